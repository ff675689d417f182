package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"CollectionVote/internal/model"
	"CollectionVote/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PeriodHandler 周期查询与管理员推进接口
type PeriodHandler struct {
	periods    *service.PeriodManager
	winners    *service.WinnerCalculator
	reconciler *service.Reconciler
	logger     *logrus.Logger
}

// NewPeriodHandler 创建 PeriodHandler
func NewPeriodHandler(periods *service.PeriodManager, winners *service.WinnerCalculator, reconciler *service.Reconciler, logger *logrus.Logger) *PeriodHandler {
	return &PeriodHandler{periods: periods, winners: winners, reconciler: reconciler, logger: logger}
}

// GetCurrentPeriod 当前周期
// GET /api/period
func (h *PeriodHandler) GetCurrentPeriod(c *gin.Context) {
	p, err := h.periods.GetCurrentPeriod(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": p})
}

// ListPeriods 历史周期
// GET /api/periods?limit=12
func (h *PeriodHandler) ListPeriods(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "24"))
	if err != nil || limit < 0 {
		writeError(c, h.logger, fmt.Errorf("%w: limit", errBadRequest))
		return
	}
	periods, err := h.periods.ListPeriods(c.Request.Context(), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"periods": periods})
}

// GetWinners 获奖列表；未进入 winner 阶段时为空
// GET /api/winners?period_id=3
func (h *PeriodHandler) GetWinners(c *gin.Context) {
	periodID, err := optionalID(c, "period_id")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	res, err := h.winners.GetWinners(c.Request.Context(), periodID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type advanceRequest struct {
	PeriodID      uint64 `json:"period_id"`
	ExpectedPhase string `json:"expected_phase"`
}

// Advance 推进当前周期一步。请求体可携带 period_id + expected_phase 作为前提条件
// POST /api/admin/advance
func (h *PeriodHandler) Advance(c *gin.Context) {
	var req advanceRequest
	// 空请求体表示无前提条件；分块传输的请求 ContentLength 为 -1，须按实际内容判断
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, h.logger, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	var (
		p   *model.Period
		err error
	)
	switch {
	case req.PeriodID == 0 && req.ExpectedPhase == "":
		p, err = h.periods.Advance(c.Request.Context())
	case req.PeriodID != 0 && req.ExpectedPhase != "":
		p, err = h.periods.AdvanceFrom(c.Request.Context(), req.PeriodID, model.Phase(req.ExpectedPhase))
	default:
		err = fmt.Errorf("%w: period_id 与 expected_phase 须同时提供", errBadRequest)
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"request_id": c.GetString(requestIDKey),
		"admin":      identityFrom(c).UserID,
		"period_id":  p.ID,
		"phase":      p.Phase,
	}).Info("管理员推进周期")
	c.JSON(http.StatusOK, gin.H{"period": p})
}

// Reconcile 对指定（默认当前）周期执行票数对账
// POST /api/admin/reconcile?period_id=3
func (h *PeriodHandler) Reconcile(c *gin.Context) {
	periodID, err := optionalID(c, "period_id")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	report, err := h.reconciler.Run(c.Request.Context(), periodID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// optionalID 读取可选的数字查询参数，缺省为 0
func optionalID(c *gin.Context, name string) (uint64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s", errBadRequest, name)
	}
	return id, nil
}
