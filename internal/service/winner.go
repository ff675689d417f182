package service

import (
	"context"
	"fmt"
	"time"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/model"
	"CollectionVote/internal/repository"

	"github.com/sirupsen/logrus"
)

// WinnerCalculator 在 voting→winner 切换时冻结前 K 名快照
type WinnerCalculator struct {
	repos  *repository.Repositories
	k      int
	logger *logrus.Logger
}

// NewWinnerCalculator 创建 WinnerCalculator，k<=0 时使用 15
func NewWinnerCalculator(repos *repository.Repositories, k int, logger *logrus.Logger) *WinnerCalculator {
	if k <= 0 {
		k = 15
	}
	return &WinnerCalculator{repos: repos, k: k, logger: logger}
}

// Compute 在调用方事务 tx 内计算并写入快照。
// 名次依据票数降序、提名时间升序，快照票数取本次读取到的 vote_count。
// 周期已存在获奖记录时返回 ErrAlreadyComputed。
func (c *WinnerCalculator) Compute(ctx context.Context, tx *repository.Repositories, periodID uint64, now time.Time) ([]model.Winner, error) {
	exists, err := tx.Winners.Exists(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.ErrAlreadyComputed
	}

	ranked, err := tx.Submissions.ListRanked(ctx, periodID, c.k)
	if err != nil {
		return nil, err
	}
	winners := buildWinners(periodID, ranked, now)
	if err := tx.Winners.CreateBatch(ctx, winners); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"period_id": periodID,
		"winners":   len(winners),
	}).Info("获奖快照已生成")
	return winners, nil
}

func buildWinners(periodID uint64, ranked []model.Submission, now time.Time) []model.Winner {
	winners := make([]model.Winner, 0, len(ranked))
	for i, s := range ranked {
		winners = append(winners, model.Winner{
			PeriodID:       periodID,
			SubmissionID:   s.ID,
			Rank:           i + 1,
			FinalVoteCount: s.VoteCount,
			CreatedAt:      now,
		})
	}
	return winners
}

// WinnersResult 某周期的获奖列表
type WinnersResult struct {
	Period  *model.Period           `json:"period"`
	Winners []repository.WinnerView `json:"winners"`
}

// GetWinners periodID 为 0 时取当前周期；周期未进入 winner 阶段时列表为空
func (c *WinnerCalculator) GetWinners(ctx context.Context, periodID uint64) (*WinnersResult, error) {
	period, err := resolvePeriod(ctx, c.repos, periodID)
	if err != nil {
		return nil, err
	}
	result := &WinnersResult{Period: period, Winners: []repository.WinnerView{}}
	if period.Phase != model.PhaseWinner {
		return result, nil
	}
	winners, err := c.repos.Winners.ListByPeriod(ctx, period.ID)
	if err != nil {
		return nil, fmt.Errorf("查询获奖列表失败: %w", err)
	}
	result.Winners = winners
	return result, nil
}

// resolvePeriod periodID 为 0 表示当前周期
func resolvePeriod(ctx context.Context, repos *repository.Repositories, periodID uint64) (*model.Period, error) {
	if periodID == 0 {
		return repos.Periods.Current(ctx)
	}
	return repos.Periods.GetByID(ctx, periodID)
}
