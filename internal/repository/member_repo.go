package repository

import (
	"context"
	"time"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemberRepository 社区成员存取
type MemberRepository interface {
	// FindByUserID 不存在时返回 nil
	FindByUserID(ctx context.Context, userID string) (*model.Member, error)
	// Upsert 按 user_id 插入或更新用户名与角色
	Upsert(ctx context.Context, m *model.Member) error
	TouchLogin(ctx context.Context, userID string, at time.Time) error
}

type memberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) FindByUserID(ctx context.Context, userID string) (*model.Member, error) {
	var m model.Member
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&m).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("query member", err)
	}
	return &m, nil
}

func (r *memberRepository) Upsert(ctx context.Context, m *model.Member) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "has_required_role"}),
	}).Create(m).Error
	return apperr.Storage("upsert member", err)
}

func (r *memberRepository) TouchLogin(ctx context.Context, userID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.Member{}).Where("user_id = ?", userID).
		Update("last_login", at).Error
	return apperr.Storage("touch member login", err)
}
