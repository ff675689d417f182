package api

import (
	"errors"
	"net/http"

	"CollectionVote/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// errBadRequest 请求参数不合法
var errBadRequest = errors.New("invalid request")

// 错误分类 → HTTP 状态码与稳定的机器可读 code，按顺序匹配
var errorTable = []struct {
	target error
	status int
	code   string
}{
	{errBadRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{apperr.ErrInvalidAddressFormat, http.StatusBadRequest, "INVALID_ADDRESS_FORMAT"},
	{apperr.ErrNotAuthenticated, http.StatusUnauthorized, "NOT_AUTHENTICATED"},
	{apperr.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{apperr.ErrNoActivePeriod, http.StatusNotFound, "NO_ACTIVE_PERIOD"},
	{apperr.ErrPeriodNotFound, http.StatusNotFound, "PERIOD_NOT_FOUND"},
	{apperr.ErrSubmissionNotFound, http.StatusNotFound, "SUBMISSION_NOT_FOUND"},
	{apperr.ErrWrongPhase, http.StatusConflict, "WRONG_PHASE"},
	{apperr.ErrDuplicateSubmission, http.StatusConflict, "DUPLICATE_SUBMISSION"},
	{apperr.ErrInvalidPeriodState, http.StatusConflict, "INVALID_PERIOD_STATE"},
	{apperr.ErrStaleTransition, http.StatusConflict, "STALE_TRANSITION"},
	{apperr.ErrAlreadyComputed, http.StatusConflict, "ALREADY_COMPUTED"},
	{apperr.ErrPeriodExists, http.StatusConflict, "PERIOD_EXISTS"},
	{apperr.ErrVoteCapExceeded, http.StatusUnprocessableEntity, "VOTE_CAP_EXCEEDED"},
	{apperr.ErrStorageFailure, http.StatusServiceUnavailable, "STORAGE_FAILURE"},
}

// classify 返回错误对应的状态码与 code；未分类错误为 500 INTERNAL
func classify(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// writeError 输出 {"error","code"}；WrongPhase 附带 expected/actual，5xx 不暴露内部细节
func writeError(c *gin.Context, logger *logrus.Logger, err error) {
	status, code := classify(err)
	body := gin.H{"error": err.Error(), "code": code}

	var wp *apperr.WrongPhaseError
	if errors.As(err, &wp) {
		body["expected"] = wp.Expected
		body["actual"] = wp.Actual
	}

	entry := logger.WithError(err).WithFields(logrus.Fields{
		"request_id": c.GetString(requestIDKey),
		"path":       c.FullPath(),
		"code":       code,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("请求处理失败")
		if status == http.StatusInternalServerError {
			body["error"] = "internal error"
		} else {
			body["error"] = apperr.ErrStorageFailure.Error()
		}
	} else {
		entry.Debug("请求被拒绝")
	}
	c.AbortWithStatusJSON(status, body)
}
