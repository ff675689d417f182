package repository

import (
	"context"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/model"

	"gorm.io/gorm"
)

// LoginRecordRepository 登录记录（只追加）
type LoginRecordRepository interface {
	Create(ctx context.Context, r *model.LoginRecord) error
	// ListRecent 按登录时间倒序，limit<=0 时返回全部
	ListRecent(ctx context.Context, limit int) ([]model.LoginRecord, error)
}

type loginRecordRepository struct {
	db *gorm.DB
}

func NewLoginRecordRepository(db *gorm.DB) LoginRecordRepository {
	return &loginRecordRepository{db: db}
}

func (r *loginRecordRepository) Create(ctx context.Context, rec *model.LoginRecord) error {
	return apperr.Storage("insert login record", r.db.WithContext(ctx).Create(rec).Error)
}

func (r *loginRecordRepository) ListRecent(ctx context.Context, limit int) ([]model.LoginRecord, error) {
	out := make([]model.LoginRecord, 0)
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, apperr.Storage("list login records", err)
	}
	return out, nil
}
