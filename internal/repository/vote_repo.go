package repository

import (
	"context"
	"time"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoteView 用户票据及所投提名的展示信息
type VoteView struct {
	ID              uint64    `json:"id"`
	UserID          string    `json:"user_id"`
	SubmissionID    uint64    `json:"submission_id"`
	PeriodID        uint64    `json:"period_id"`
	VotedAt         time.Time `json:"voted_at"`
	ContractAddress string    `json:"contract_address"`
	SubmissionName  string    `json:"submission_name"`
	Thumbnail       string    `json:"thumbnail"`
}

// VoteRepository 票据账本存取
type VoteRepository interface {
	// Find 查询 (user, submission, period) 的票据，不存在时返回 nil
	Find(ctx context.Context, userID string, submissionID, periodID uint64) (*model.Vote, error)
	Create(ctx context.Context, v *model.Vote) error
	Delete(ctx context.Context, id uint64) error
	CountForUser(ctx context.Context, userID string, periodID uint64) (int64, error)
	CountForSubmission(ctx context.Context, submissionID uint64) (int64, error)
	// ListForUser 附带提名信息，最近投出的在前
	ListForUser(ctx context.Context, userID string, periodID uint64) ([]VoteView, error)
}

type voteRepository struct {
	db *gorm.DB
}

func NewVoteRepository(db *gorm.DB) VoteRepository {
	return &voteRepository{db: db}
}

func (r *voteRepository) Find(ctx context.Context, userID string, submissionID, periodID uint64) (*model.Vote, error) {
	var votes []model.Vote
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND submission_id = ? AND period_id = ?", userID, submissionID, periodID).
		Limit(1).Find(&votes).Error
	if err != nil {
		return nil, apperr.Storage("query vote", err)
	}
	if len(votes) == 0 {
		return nil, nil
	}
	return &votes[0], nil
}

func (r *voteRepository) Create(ctx context.Context, v *model.Vote) error {
	return apperr.Storage("insert vote", r.db.WithContext(ctx).Create(v).Error)
}

func (r *voteRepository) Delete(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Vote{})
	if res.Error != nil {
		return apperr.Storage("delete vote", res.Error)
	}
	if res.RowsAffected != 1 {
		return apperr.Storage("delete vote", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *voteRepository) CountForUser(ctx context.Context, userID string, periodID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Vote{}).
		Where("user_id = ? AND period_id = ?", userID, periodID).Count(&n).Error
	if err != nil {
		return 0, apperr.Storage("count user votes", err)
	}
	return n, nil
}

func (r *voteRepository) CountForSubmission(ctx context.Context, submissionID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Vote{}).
		Where("submission_id = ?", submissionID).Count(&n).Error
	if err != nil {
		return 0, apperr.Storage("count submission votes", err)
	}
	return n, nil
}

func (r *voteRepository) ListForUser(ctx context.Context, userID string, periodID uint64) ([]VoteView, error) {
	out := make([]VoteView, 0)
	err := r.db.WithContext(ctx).Table("votes").
		Select("votes.id, votes.user_id, votes.submission_id, votes.period_id, votes.voted_at, "+
			"submissions.contract_address, submissions.name AS submission_name, submissions.thumbnail").
		Joins("JOIN submissions ON submissions.id = votes.submission_id").
		Where("votes.user_id = ? AND votes.period_id = ?", userID, periodID).
		Order("votes.voted_at DESC, votes.id DESC").
		Scan(&out).Error
	if err != nil {
		return nil, apperr.Storage("list user votes", err)
	}
	return out, nil
}

// BallotRepository 每个 (用户, 周期) 的锁行
type BallotRepository interface {
	// Lock 确保锁行存在并对其加 FOR UPDATE 锁，须在事务内调用
	Lock(ctx context.Context, userID string, periodID uint64, now time.Time) error
}

type ballotRepository struct {
	db *gorm.DB
}

func NewBallotRepository(db *gorm.DB) BallotRepository {
	return &ballotRepository{db: db}
}

func (r *ballotRepository) Lock(ctx context.Context, userID string, periodID uint64, now time.Time) error {
	db := r.db.WithContext(ctx)
	ballot := model.VoterBallot{UserID: userID, PeriodID: periodID, CreatedAt: now}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "period_id"}},
		DoNothing: true,
	}).Create(&ballot).Error
	if err != nil {
		return apperr.Storage("ensure ballot", err)
	}
	var locked model.VoterBallot
	err = db.Clauses(locking(lockUpdate)).
		Where("user_id = ? AND period_id = ?", userID, periodID).
		Take(&locked).Error
	return apperr.Storage("lock ballot", err)
}
