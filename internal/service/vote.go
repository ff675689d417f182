package service

import (
	"context"
	"errors"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/metrics"
	"CollectionVote/internal/model"
	"CollectionVote/internal/repository"

	"github.com/sirupsen/logrus"
)

// ToggleAction 投票切换结果
type ToggleAction string

const (
	ActionAdded   ToggleAction = "added"
	ActionRemoved ToggleAction = "removed"
)

// ToggleResult 切换后的状态
type ToggleResult struct {
	Action       ToggleAction `json:"action"`
	VoteCount    int64        `json:"vote_count"`
	SubmissionID uint64       `json:"submission_id"`
	PeriodID     uint64       `json:"period_id"`
}

// MaxVotesPerUser 每人每期同时有效的票数上限
const MaxVotesPerUser = 5

// VoteLedger 票据账本：记录投票、限制每人票数，并同步维护提名的 vote_count
type VoteLedger struct {
	repos   *repository.Repositories
	metrics *metrics.Metrics
	logger  *logrus.Logger
	now     Clock
}

// NewVoteLedger 创建 VoteLedger
func NewVoteLedger(repos *repository.Repositories, m *metrics.Metrics, logger *logrus.Logger) *VoteLedger {
	if m == nil {
		m = metrics.New(nil)
	}
	return &VoteLedger{repos: repos, metrics: m, logger: logger, now: systemClock}
}

// SetClock 替换时间源
func (l *VoteLedger) SetClock(c Clock) { l.now = c }

// Toggle 已投则撤票，未投则投票。
// 事务内依次锁定：周期行（共享）→ 用户选票行 → 提名行，
// 存在性检查、票数上限检查、票据增删与 vote_count 调整同生共死。
func (l *VoteLedger) Toggle(ctx context.Context, userID string, submissionID, periodID uint64) (*ToggleResult, error) {
	if userID == "" {
		return nil, apperr.ErrNotAuthenticated
	}

	result := &ToggleResult{SubmissionID: submissionID, PeriodID: periodID}
	err := l.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		period, err := tx.Periods.Lock(ctx, periodID, false)
		if err != nil {
			return err
		}
		if period.Phase != model.PhaseVoting {
			return apperr.WrongPhase(string(model.PhaseVoting), string(period.Phase))
		}

		now := l.now()
		if err := tx.Ballots.Lock(ctx, userID, periodID, now); err != nil {
			return err
		}
		if _, err := tx.Submissions.LockInPeriod(ctx, submissionID, periodID); err != nil {
			return err
		}

		existing, err := tx.Votes.Find(ctx, userID, submissionID, periodID)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := tx.Votes.Delete(ctx, existing.ID); err != nil {
				return err
			}
			result.Action = ActionRemoved
			result.VoteCount, err = tx.Submissions.AddVotes(ctx, submissionID, -1)
			return err
		}

		held, err := tx.Votes.CountForUser(ctx, userID, periodID)
		if err != nil {
			return err
		}
		if held >= MaxVotesPerUser {
			return apperr.ErrVoteCapExceeded
		}
		vote := &model.Vote{UserID: userID, SubmissionID: submissionID, PeriodID: periodID, VotedAt: now}
		if err := tx.Votes.Create(ctx, vote); err != nil {
			return err
		}
		result.Action = ActionAdded
		result.VoteCount, err = tx.Submissions.AddVotes(ctx, submissionID, 1)
		return err
	})
	if err != nil {
		if errors.Is(err, apperr.ErrVoteCapExceeded) {
			l.metrics.VoteCapRejected()
		}
		return nil, err
	}

	l.metrics.VoteToggled(string(result.Action))
	l.logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"submission_id": submissionID,
		"period_id":     periodID,
		"action":        result.Action,
		"vote_count":    result.VoteCount,
	}).Debug("投票切换完成")
	return result, nil
}

// ListForUser 用户在周期内的票据（只读，无锁）
func (l *VoteLedger) ListForUser(ctx context.Context, userID string, periodID uint64) ([]repository.VoteView, error) {
	return l.repos.Votes.ListForUser(ctx, userID, periodID)
}

// MaxVotes 每人每期票数上限
func (l *VoteLedger) MaxVotes() int { return MaxVotesPerUser }
