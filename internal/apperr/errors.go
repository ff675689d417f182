// Package apperr 定义投票周期与票据账本对外暴露的错误分类。
// 所有错误均可用 errors.Is 判断类别，调用层据此映射为稳定的外部信号。
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrForbidden            = errors.New("forbidden")
	ErrNoActivePeriod       = errors.New("no active period")
	ErrPeriodNotFound       = errors.New("period not found")
	ErrPeriodExists         = errors.New("a period already exists")
	ErrInvalidPeriodState   = errors.New("invalid period state")
	ErrStaleTransition      = errors.New("period phase changed concurrently")
	ErrWrongPhase           = errors.New("wrong phase")
	ErrInvalidAddressFormat = errors.New("invalid contract address format")
	ErrDuplicateSubmission  = errors.New("collection already submitted")
	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrVoteCapExceeded      = errors.New("vote cap exceeded")
	ErrAlreadyComputed      = errors.New("winners already computed")
	ErrStorageFailure       = errors.New("storage failure")
)

// WrongPhaseError 当前阶段与操作要求的阶段不一致
type WrongPhaseError struct {
	Expected string
	Actual   string
}

func (e *WrongPhaseError) Error() string {
	return fmt.Sprintf("wrong phase: expected %s, actual %s", e.Expected, e.Actual)
}

func (e *WrongPhaseError) Is(target error) bool { return target == ErrWrongPhase }

// WrongPhase 构造 WrongPhaseError
func WrongPhase(expected, actual string) error {
	return &WrongPhaseError{Expected: expected, Actual: actual}
}

// StorageError 包装存储层失败（瞬时错误，调用方可自行决定是否重试）
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

// Storage 将非领域错误包装为 StorageError；nil 与已分类的领域错误原样返回
func Storage(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

var domainErrors = []error{
	ErrNotAuthenticated,
	ErrForbidden,
	ErrNoActivePeriod,
	ErrPeriodNotFound,
	ErrPeriodExists,
	ErrInvalidPeriodState,
	ErrStaleTransition,
	ErrWrongPhase,
	ErrInvalidAddressFormat,
	ErrDuplicateSubmission,
	ErrSubmissionNotFound,
	ErrVoteCapExceeded,
	ErrAlreadyComputed,
	ErrStorageFailure,
}

// IsDomain 判断 err 是否已属于上面的某个分类
func IsDomain(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
