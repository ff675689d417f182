package repository

import (
	"context"
	"time"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/model"

	"gorm.io/gorm"
)

// PeriodRepository 周期存取
type PeriodRepository interface {
	// Current 最新 started_at 的周期；无周期时返回 ErrNoActivePeriod
	Current(ctx context.Context) (*model.Period, error)
	GetByID(ctx context.Context, id uint64) (*model.Period, error)
	// Lock 读取并对周期行加锁：exclusive 为 FOR UPDATE，否则 FOR SHARE
	Lock(ctx context.Context, id uint64, exclusive bool) (*model.Period, error)
	List(ctx context.Context, limit int) ([]model.Period, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, p *model.Period) error
	// CompareAndSetPhase 仅当阶段仍为 from 时切换到 to，返回是否生效
	CompareAndSetPhase(ctx context.Context, id uint64, from, to model.Phase, endedAt *time.Time) (bool, error)
	// Seal 将 winner 阶段的周期标记为已开启下一周期，返回是否生效
	Seal(ctx context.Context, id uint64) (bool, error)
}

type periodRepository struct {
	db *gorm.DB
}

func NewPeriodRepository(db *gorm.DB) PeriodRepository {
	return &periodRepository{db: db}
}

func (r *periodRepository) Current(ctx context.Context) (*model.Period, error) {
	var p model.Period
	err := r.db.WithContext(ctx).Order("started_at DESC, id DESC").Take(&p).Error
	if isNotFound(err) {
		return nil, apperr.ErrNoActivePeriod
	}
	if err != nil {
		return nil, apperr.Storage("query current period", err)
	}
	return &p, nil
}

func (r *periodRepository) GetByID(ctx context.Context, id uint64) (*model.Period, error) {
	var p model.Period
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	if isNotFound(err) {
		return nil, apperr.ErrPeriodNotFound
	}
	if err != nil {
		return nil, apperr.Storage("query period", err)
	}
	return &p, nil
}

func (r *periodRepository) Lock(ctx context.Context, id uint64, exclusive bool) (*model.Period, error) {
	strength := lockShare
	if exclusive {
		strength = lockUpdate
	}
	var p model.Period
	err := r.db.WithContext(ctx).Clauses(locking(strength)).Where("id = ?", id).Take(&p).Error
	if isNotFound(err) {
		return nil, apperr.ErrPeriodNotFound
	}
	if err != nil {
		return nil, apperr.Storage("lock period", err)
	}
	return &p, nil
}

func (r *periodRepository) List(ctx context.Context, limit int) ([]model.Period, error) {
	q := r.db.WithContext(ctx).Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []model.Period
	if err := q.Find(&out).Error; err != nil {
		return nil, apperr.Storage("list periods", err)
	}
	return out, nil
}

func (r *periodRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Period{}).Count(&n).Error; err != nil {
		return 0, apperr.Storage("count periods", err)
	}
	return n, nil
}

// Create 新建周期；prev_period_id 唯一约束冲突说明后继周期已被并发创建
func (r *periodRepository) Create(ctx context.Context, p *model.Period) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if isUniqueViolation(err) {
		return apperr.ErrStaleTransition
	}
	return apperr.Storage("create period", err)
}

func (r *periodRepository) CompareAndSetPhase(ctx context.Context, id uint64, from, to model.Phase, endedAt *time.Time) (bool, error) {
	updates := map[string]interface{}{"phase": to}
	if endedAt != nil {
		updates["ended_at"] = *endedAt
	}
	res := r.db.WithContext(ctx).Model(&model.Period{}).
		Where("id = ? AND phase = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, apperr.Storage("update period phase", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *periodRepository) Seal(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Period{}).
		Where("id = ? AND phase = ? AND sealed = ?", id, model.PhaseWinner, false).
		Update("sealed", true)
	if res.Error != nil {
		return false, apperr.Storage("seal period", res.Error)
	}
	return res.RowsAffected == 1, nil
}
