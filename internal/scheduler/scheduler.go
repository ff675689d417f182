package scheduler

import (
	"context"
	"errors"
	"time"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ReconcileRunner 对账执行者，由 service.Reconciler 实现
type ReconcileRunner interface {
	Run(ctx context.Context, periodID uint64) (*service.ReconcileReport, error)
}

// Scheduler 定时对当前周期执行票数对账
type Scheduler struct {
	cron     *cron.Cron
	cronSpec string
	timeout  time.Duration
	logger   *logrus.Logger
}

// New 解析 cron 表达式（含秒字段）并注册对账任务
func New(ctx context.Context, cronSpec string, runner ReconcileRunner, logger *logrus.Logger) (*Scheduler, error) {
	cronLogger := cron.PrintfLogger(logger)
	s := &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		cronSpec: cronSpec,
		timeout:  5 * time.Minute,
		logger:   logger,
	}
	_, err := s.cron.AddFunc(cronSpec, func() {
		rctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		s.reconcile(rctx, runner)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) reconcile(ctx context.Context, runner ReconcileRunner) {
	report, err := runner.Run(ctx, 0)
	switch {
	case errors.Is(err, apperr.ErrNoActivePeriod):
		s.logger.Debug("Reconcile: 暂无周期，跳过")
	case err != nil:
		s.logger.WithError(err).Error("Reconcile: 对账失败")
	case len(report.Corrections) > 0:
		s.logger.WithFields(logrus.Fields{
			"period_id":   report.PeriodID,
			"checked":     report.Checked,
			"corrections": len(report.Corrections),
		}).Warn("Reconcile: 已修正票数偏差")
	default:
		s.logger.WithFields(logrus.Fields{
			"period_id": report.PeriodID,
			"checked":   report.Checked,
		}).Debug("Reconcile: 票数一致")
	}
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("cron", s.cronSpec).Info("对账任务已启动")
}

// Stop 停止调度并等待进行中的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
