package repository

import (
	"context"
	"time"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/model"

	"gorm.io/gorm"
)

// WinnerView 获奖快照及其提名展示信息
type WinnerView struct {
	ID              uint64    `json:"id"`
	PeriodID        uint64    `json:"period_id"`
	SubmissionID    uint64    `json:"submission_id"`
	Rank            int       `json:"rank"`
	FinalVoteCount  int64     `json:"final_vote_count"`
	CreatedAt       time.Time `json:"created_at"`
	ContractAddress string    `json:"contract_address"`
	Name            string    `json:"name"`
	Thumbnail       string    `json:"thumbnail"`
	SubmitterID     string    `json:"submitter_id"`
}

// WinnerRepository 获奖快照存取（只追加）
type WinnerRepository interface {
	Exists(ctx context.Context, periodID uint64) (bool, error)
	// CreateBatch 写入快照；唯一约束冲突视为已计算过
	CreateBatch(ctx context.Context, winners []model.Winner) error
	ListByPeriod(ctx context.Context, periodID uint64) ([]WinnerView, error)
}

type winnerRepository struct {
	db *gorm.DB
}

func NewWinnerRepository(db *gorm.DB) WinnerRepository {
	return &winnerRepository{db: db}
}

func (r *winnerRepository) Exists(ctx context.Context, periodID uint64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Winner{}).Where("period_id = ?", periodID).Count(&n).Error
	if err != nil {
		return false, apperr.Storage("check winners", err)
	}
	return n > 0, nil
}

func (r *winnerRepository) CreateBatch(ctx context.Context, winners []model.Winner) error {
	if len(winners) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Create(&winners).Error
	if isUniqueViolation(err) {
		return apperr.ErrAlreadyComputed
	}
	return apperr.Storage("insert winners", err)
}

func (r *winnerRepository) ListByPeriod(ctx context.Context, periodID uint64) ([]WinnerView, error) {
	out := make([]WinnerView, 0)
	err := r.db.WithContext(ctx).Table("winners").
		Select("winners.id, winners.period_id, winners.submission_id, winners.rank, winners.final_vote_count, winners.created_at, "+
			"submissions.contract_address, submissions.name, submissions.thumbnail, submissions.submitter_id").
		Joins("JOIN submissions ON submissions.id = winners.submission_id").
		Where("winners.period_id = ?", periodID).
		Order("winners.rank ASC").
		Scan(&out).Error
	if err != nil {
		return nil, apperr.Storage("list winners", err)
	}
	return out, nil
}
