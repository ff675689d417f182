package repository

import (
	"context"
	"errors"
	"strings"

	"CollectionVote/internal/apperr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repositories 聚合全部仓储；在事务内通过 Transaction 取得绑定到同一 tx 的实例
type Repositories struct {
	db *gorm.DB

	Periods     PeriodRepository
	Submissions SubmissionRepository
	Votes       VoteRepository
	Ballots     BallotRepository
	Winners     WinnerRepository
	Members     MemberRepository
	Logins      LoginRecordRepository
}

// New 基于 *gorm.DB（或 tx）构建全部仓储
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:          db,
		Periods:     NewPeriodRepository(db),
		Submissions: NewSubmissionRepository(db),
		Votes:       NewVoteRepository(db),
		Ballots:     NewBallotRepository(db),
		Winners:     NewWinnerRepository(db),
		Members:     NewMemberRepository(db),
		Logins:      NewLoginRecordRepository(db),
	}
}

// Transaction 在单个数据库事务中执行 fn，fn 返回错误或 panic 时整体回滚
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
	return apperr.Storage("transaction", err)
}

// DB 底层连接，仅供健康检查等非业务用途
func (r *Repositories) DB() *gorm.DB { return r.db }

// 行锁强度
const (
	lockUpdate = "UPDATE"
	lockShare  = "SHARE"
)

func locking(strength string) clause.Locking {
	return clause.Locking{Strength: strength}
}

// isUniqueViolation 唯一约束冲突（TranslateError 已翻译或驱动原始报错）
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
