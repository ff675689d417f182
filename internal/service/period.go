package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/metrics"
	"CollectionVote/internal/model"
	"CollectionVote/internal/repository"

	"github.com/sirupsen/logrus"
)

// Clock 时间源
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

const labelLayout = "2006-01"

// genesisPrevID 首个周期的 prev_period_id，借助唯一索引保证只会引导一次
const genesisPrevID uint64 = 0

// PeriodManager 周期状态机：submission → voting → winner → (新周期) submission
type PeriodManager struct {
	repos   *repository.Repositories
	winners *WinnerCalculator
	metrics *metrics.Metrics
	logger  *logrus.Logger
	now     Clock
}

// NewPeriodManager 创建 PeriodManager
func NewPeriodManager(repos *repository.Repositories, winners *WinnerCalculator, m *metrics.Metrics, logger *logrus.Logger) *PeriodManager {
	if m == nil {
		m = metrics.New(nil)
	}
	return &PeriodManager{repos: repos, winners: winners, metrics: m, logger: logger, now: systemClock}
}

// SetClock 替换时间源
func (m *PeriodManager) SetClock(c Clock) { m.now = c }

// GetCurrentPeriod 当前周期（started_at 最新），不存在时返回 ErrNoActivePeriod
func (m *PeriodManager) GetCurrentPeriod(ctx context.Context) (*model.Period, error) {
	return m.repos.Periods.Current(ctx)
}

// ListPeriods 历史周期，最新在前
func (m *PeriodManager) ListPeriods(ctx context.Context, limit int) ([]model.Period, error) {
	return m.repos.Periods.List(ctx, limit)
}

// Bootstrap 创建首个周期；已有任何周期时返回 ErrPeriodExists。label 为空时使用当前月份
func (m *PeriodManager) Bootstrap(ctx context.Context, label string) (*model.Period, error) {
	now := m.now()
	if label == "" {
		label = now.Format(labelLayout)
	}
	genesis := genesisPrevID
	period := &model.Period{
		Label:        label,
		Phase:        model.PhaseSubmission,
		StartedAt:    now,
		PrevPeriodID: &genesis,
	}
	err := m.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		n, err := tx.Periods.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.ErrPeriodExists
		}
		if err := tx.Periods.Create(ctx, period); err != nil {
			if errors.Is(err, apperr.ErrStaleTransition) {
				return apperr.ErrPeriodExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.WithFields(logrus.Fields{"period_id": period.ID, "label": period.Label}).Info("首个周期已创建")
	return period, nil
}

// Advance 读取当前周期的阶段，并以该阶段为前提推进一步
func (m *PeriodManager) Advance(ctx context.Context) (*model.Period, error) {
	current, err := m.repos.Periods.Current(ctx)
	if err != nil {
		return nil, err
	}
	return m.AdvanceFrom(ctx, current.ID, current.Phase)
}

// AdvanceFrom 条件推进：仅当周期 periodID 的阶段仍为 from 时生效，否则返回 ErrStaleTransition。
// voting→winner 的阶段切换与获奖快照写入在同一事务内完成。
// winner 阶段推进时返回新建的下一周期，其余情况返回更新后的周期。
func (m *PeriodManager) AdvanceFrom(ctx context.Context, periodID uint64, from model.Phase) (*model.Period, error) {
	if !from.Valid() {
		return nil, apperr.ErrInvalidPeriodState
	}

	var result *model.Period
	err := m.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		p, err := tx.Periods.Lock(ctx, periodID, true)
		if err != nil {
			return err
		}
		if !p.Phase.Valid() {
			return apperr.ErrInvalidPeriodState
		}
		if p.Phase != from {
			return apperr.ErrStaleTransition
		}

		now := m.now()
		switch from {
		case model.PhaseSubmission:
			if err := m.flip(ctx, tx, p, model.PhaseVoting, nil); err != nil {
				return err
			}
			result = p
		case model.PhaseVoting:
			if err := m.flip(ctx, tx, p, model.PhaseWinner, &now); err != nil {
				return err
			}
			if _, err := m.winners.Compute(ctx, tx, p.ID, now); err != nil {
				return err
			}
			p.EndedAt = &now
			result = p
		case model.PhaseWinner:
			next, err := m.openNext(ctx, tx, p, now)
			if err != nil {
				return err
			}
			result = next
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrStaleTransition) {
			m.metrics.StaleTransition()
			m.logger.WithFields(logrus.Fields{"period_id": periodID, "from": from}).Warn("周期阶段已被并发修改，放弃本次推进")
		}
		return nil, err
	}

	m.metrics.PhaseTransition(string(result.Phase))
	m.logger.WithFields(logrus.Fields{
		"period_id": result.ID,
		"label":     result.Label,
		"from":      from,
		"to":        result.Phase,
	}).Info("周期阶段已推进")
	return result, nil
}

func (m *PeriodManager) flip(ctx context.Context, tx *repository.Repositories, p *model.Period, to model.Phase, endedAt *time.Time) error {
	ok, err := tx.Periods.CompareAndSetPhase(ctx, p.ID, p.Phase, to, endedAt)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrStaleTransition
	}
	p.Phase = to
	return nil
}

// openNext 封存 winner 周期并创建下一周期
func (m *PeriodManager) openNext(ctx context.Context, tx *repository.Repositories, p *model.Period, now time.Time) (*model.Period, error) {
	if p.Sealed {
		return nil, apperr.ErrStaleTransition
	}
	ok, err := tx.Periods.Seal(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrStaleTransition
	}

	started := now
	if started.Before(p.StartedAt) {
		started = p.StartedAt
	}
	prevID := p.ID
	next := &model.Period{
		Label:        nextLabel(p.Label, now),
		Phase:        model.PhaseSubmission,
		StartedAt:    started,
		PrevPeriodID: &prevID,
	}
	if err := tx.Periods.Create(ctx, next); err != nil {
		return nil, fmt.Errorf("创建下一周期失败: %w", err)
	}
	return next, nil
}

// nextLabel 上一标签 YYYY-MM 的下一个月；无法解析时取 now 的下一个月
func nextLabel(prev string, now time.Time) string {
	t, err := time.Parse(labelLayout, prev)
	if err != nil {
		t = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t.AddDate(0, 1, 0).Format(labelLayout)
}
