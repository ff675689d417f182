package service

import (
	"context"

	"CollectionVote/internal/metrics"
	"CollectionVote/internal/repository"

	"github.com/sirupsen/logrus"
)

// Correction 一次 vote_count 修正
type Correction struct {
	SubmissionID uint64 `json:"submission_id"`
	Cached       int64  `json:"cached"`
	Actual       int64  `json:"actual"`
}

// ReconcileReport 对账结果
type ReconcileReport struct {
	PeriodID    uint64       `json:"period_id"`
	Checked     int          `json:"checked"`
	Corrections []Correction `json:"corrections"`
}

// Reconciler 以票据为准重算提名的 vote_count，修正历史遗留偏差
type Reconciler struct {
	repos   *repository.Repositories
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

func NewReconciler(repos *repository.Repositories, m *metrics.Metrics, logger *logrus.Logger) *Reconciler {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Reconciler{repos: repos, metrics: m, logger: logger}
}

// Run 逐个提名加行锁后计数比对；periodID 为 0 时取当前周期
func (r *Reconciler) Run(ctx context.Context, periodID uint64) (*ReconcileReport, error) {
	period, err := resolvePeriod(ctx, r.repos, periodID)
	if err != nil {
		return nil, err
	}
	ids, err := r.repos.Submissions.IDsByPeriod(ctx, period.ID)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{PeriodID: period.ID, Corrections: []Correction{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var fix *Correction
		err := r.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			s, err := tx.Submissions.LockInPeriod(ctx, id, period.ID)
			if err != nil {
				return err
			}
			actual, err := tx.Votes.CountForSubmission(ctx, id)
			if err != nil {
				return err
			}
			if actual == s.VoteCount {
				return nil
			}
			fix = &Correction{SubmissionID: id, Cached: s.VoteCount, Actual: actual}
			return tx.Submissions.SetVoteCount(ctx, id, actual)
		})
		if err != nil {
			return report, err
		}
		report.Checked++
		if fix != nil {
			report.Corrections = append(report.Corrections, *fix)
			r.logger.WithFields(logrus.Fields{
				"period_id":     period.ID,
				"submission_id": fix.SubmissionID,
				"cached":        fix.Cached,
				"actual":        fix.Actual,
			}).Warn("vote_count 与票据不一致，已修正")
		}
	}

	r.metrics.ReconcileCorrections(len(report.Corrections))
	r.logger.WithFields(logrus.Fields{
		"period_id":   period.ID,
		"checked":     report.Checked,
		"corrections": len(report.Corrections),
	}).Info("票数对账完成")
	return report, nil
}
