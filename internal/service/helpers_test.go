package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CollectionVote/internal/config"
	"CollectionVote/internal/database"
	"CollectionVote/internal/interfaces"
	"CollectionVote/internal/metrics"
	"CollectionVote/internal/model"
	"CollectionVote/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubProvider struct {
	meta  *interfaces.CollectionMetadata
	err   error
	calls atomic.Int32
}

func (p *stubProvider) FetchCollection(_ context.Context, _ string) (*interfaces.CollectionMetadata, error) {
	p.calls.Add(1)
	return p.meta, p.err
}

// fakeClock 每次读取前进一秒，保证提名时间严格递增
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type testEnv struct {
	db         *gorm.DB
	repos      *repository.Repositories
	metrics    *metrics.Metrics
	provider   *stubProvider
	clock      *fakeClock
	periods    *PeriodManager
	registry   *SubmissionRegistry
	ledger     *VoteLedger
	winners    *WinnerCalculator
	reconciler *Reconciler
}

// newTestEnv 内存 sqlite 只有一个连接，并发事务在连接池上排队执行
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvOn(t, config.DatabaseConfig{DSN: "sqlite::memory:", MaxOpenConns: 1, LogLevel: "silent"})
}

func newTestEnvOn(t *testing.T, dbCfg config.DatabaseConfig) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.Open(dbCfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))

	env := &testEnv{
		db:       db,
		repos:    repository.New(db),
		metrics:  metrics.New(prometheus.NewRegistry()),
		provider: &stubProvider{err: fmt.Errorf("indexer unavailable")},
		clock:    &fakeClock{t: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	env.winners = NewWinnerCalculator(env.repos, config.DefaultWinnerCount, logger)
	env.periods = NewPeriodManager(env.repos, env.winners, env.metrics, logger)
	env.registry = NewSubmissionRegistry(env.repos, env.provider, env.metrics, logger)
	env.ledger = NewVoteLedger(env.repos, env.metrics, logger)
	env.reconciler = NewReconciler(env.repos, env.metrics, logger)
	env.periods.SetClock(env.clock.Now)
	env.registry.SetClock(env.clock.Now)
	env.ledger.SetClock(env.clock.Now)
	return env
}

func (e *testEnv) bootstrap(t *testing.T) *model.Period {
	t.Helper()
	p, err := e.periods.Bootstrap(context.Background(), "2024-06")
	require.NoError(t, err)
	return p
}

func (e *testEnv) advance(t *testing.T) *model.Period {
	t.Helper()
	p, err := e.periods.Advance(context.Background())
	require.NoError(t, err)
	return p
}

func address(i int) string {
	return fmt.Sprintf("0x%040x", i)
}

// submitN 在当前周期提名 n 个藏品，按提名先后返回
func (e *testEnv) submitN(t *testing.T, n int) []*model.Submission {
	t.Helper()
	out := make([]*model.Submission, 0, n)
	for i := 1; i <= n; i++ {
		s, err := e.registry.Submit(context.Background(), address(i), "submitter")
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

// votingPeriod 引导周期、提名 n 个藏品并进入投票阶段
func (e *testEnv) votingPeriod(t *testing.T, n int) (*model.Period, []*model.Submission) {
	t.Helper()
	e.bootstrap(t)
	subs := e.submitN(t, n)
	p := e.advance(t)
	require.Equal(t, model.PhaseVoting, p.Phase)
	return p, subs
}

func (e *testEnv) toggle(t *testing.T, user string, submissionID, periodID uint64) *ToggleResult {
	t.Helper()
	res, err := e.ledger.Toggle(context.Background(), user, submissionID, periodID)
	require.NoError(t, err)
	return res
}

func (e *testEnv) submission(t *testing.T, id uint64) model.Submission {
	t.Helper()
	var s model.Submission
	require.NoError(t, e.db.Where("id = ?", id).Take(&s).Error)
	return s
}

func (e *testEnv) countVotes(t *testing.T, where string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Vote{}).Where(where, args...).Count(&n).Error)
	return n
}

// requireLedgerConsistent 每个提名的 vote_count 等于引用它的票据数
func (e *testEnv) requireLedgerConsistent(t *testing.T, periodID uint64) {
	t.Helper()
	var subs []model.Submission
	require.NoError(t, e.db.Where("period_id = ?", periodID).Find(&subs).Error)
	for _, s := range subs {
		require.Equal(t, e.countVotes(t, "submission_id = ?", s.ID), s.VoteCount, "submission %d", s.ID)
	}
}

var errInjected = errors.New("injected storage failure")

// failOn 在 op（create/update）写入 table 之前注入错误，返回开关，默认关闭
func (e *testEnv) failOn(t *testing.T, op, table string) *atomic.Bool {
	t.Helper()
	failing := &atomic.Bool{}
	fn := func(tx *gorm.DB) {
		if failing.Load() && tx.Statement.Table == table {
			_ = tx.AddError(errInjected)
		}
	}
	name := "test:fail_" + op + "_" + table
	var err error
	switch op {
	case "create":
		err = e.db.Callback().Create().Before("gorm:create").Register(name, fn)
	case "update":
		err = e.db.Callback().Update().Before("gorm:update").Register(name, fn)
	default:
		t.Fatalf("unsupported op %q", op)
	}
	require.NoError(t, err)
	return failing
}
