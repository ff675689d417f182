package repository

import (
	"context"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/model"

	"gorm.io/gorm"
)

// rankingOrder 提名的规范排序：票数降序，提名时间升序，ID 兜底
const rankingOrder = "vote_count DESC, submitted_at ASC, id ASC"

// SubmissionRepository 提名存取
type SubmissionRepository interface {
	Create(ctx context.Context, s *model.Submission) error
	Exists(ctx context.Context, contractAddress string, periodID uint64) (bool, error)
	// ListRanked 按规范排序返回周期内提名，limit<=0 表示全部
	ListRanked(ctx context.Context, periodID uint64, limit int) ([]model.Submission, error)
	// LockInPeriod 对属于该周期的提名加 FOR UPDATE 锁
	LockInPeriod(ctx context.Context, id, periodID uint64) (*model.Submission, error)
	// AddVotes 原子地调整 vote_count 并返回调整后的值
	AddVotes(ctx context.Context, id uint64, delta int64) (int64, error)
	SetVoteCount(ctx context.Context, id uint64, count int64) error
	IDsByPeriod(ctx context.Context, periodID uint64) ([]uint64, error)
}

type submissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

// Create 写入提名；(contract_address, period_id) 冲突返回 ErrDuplicateSubmission
func (r *submissionRepository) Create(ctx context.Context, s *model.Submission) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if isUniqueViolation(err) {
		return apperr.ErrDuplicateSubmission
	}
	return apperr.Storage("create submission", err)
}

func (r *submissionRepository) Exists(ctx context.Context, contractAddress string, periodID uint64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Submission{}).
		Where("contract_address = ? AND period_id = ?", contractAddress, periodID).
		Count(&n).Error
	if err != nil {
		return false, apperr.Storage("check submission", err)
	}
	return n > 0, nil
}

func (r *submissionRepository) ListRanked(ctx context.Context, periodID uint64, limit int) ([]model.Submission, error) {
	q := r.db.WithContext(ctx).Where("period_id = ?", periodID).Order(rankingOrder)
	if limit > 0 {
		q = q.Limit(limit)
	}
	out := make([]model.Submission, 0)
	if err := q.Find(&out).Error; err != nil {
		return nil, apperr.Storage("list submissions", err)
	}
	return out, nil
}

func (r *submissionRepository) LockInPeriod(ctx context.Context, id, periodID uint64) (*model.Submission, error) {
	var s model.Submission
	err := r.db.WithContext(ctx).Clauses(locking(lockUpdate)).
		Where("id = ? AND period_id = ?", id, periodID).
		Take(&s).Error
	if isNotFound(err) {
		return nil, apperr.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, apperr.Storage("lock submission", err)
	}
	return &s, nil
}

func (r *submissionRepository) AddVotes(ctx context.Context, id uint64, delta int64) (int64, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.Submission{}).Where("id = ?", id).
		Update("vote_count", gorm.Expr("vote_count + ?", delta))
	if res.Error != nil {
		return 0, apperr.Storage("update vote count", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, apperr.ErrSubmissionNotFound
	}
	var count int64
	if err := db.Model(&model.Submission{}).Where("id = ?", id).Select("vote_count").Scan(&count).Error; err != nil {
		return 0, apperr.Storage("read vote count", err)
	}
	return count, nil
}

func (r *submissionRepository) SetVoteCount(ctx context.Context, id uint64, count int64) error {
	err := r.db.WithContext(ctx).Model(&model.Submission{}).Where("id = ?", id).
		Update("vote_count", count).Error
	return apperr.Storage("set vote count", err)
}

func (r *submissionRepository) IDsByPeriod(ctx context.Context, periodID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&model.Submission{}).
		Where("period_id = ?", periodID).Order("id ASC").Pluck("id", &ids).Error
	if err != nil {
		return nil, apperr.Storage("list submission ids", err)
	}
	return ids, nil
}
