package api

import (
	"fmt"
	"net/http"

	"CollectionVote/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BallotHandler 提名与投票接口
type BallotHandler struct {
	periods     *service.PeriodManager
	submissions *service.SubmissionRegistry
	votes       *service.VoteLedger
	logger      *logrus.Logger
}

// NewBallotHandler 创建 BallotHandler
func NewBallotHandler(periods *service.PeriodManager, submissions *service.SubmissionRegistry, votes *service.VoteLedger, logger *logrus.Logger) *BallotHandler {
	return &BallotHandler{periods: periods, submissions: submissions, votes: votes, logger: logger}
}

// ListSubmissions 提名列表（票数降序，提名时间升序）
// GET /api/submissions?period_id=3
func (h *BallotHandler) ListSubmissions(c *gin.Context) {
	periodID, err := optionalID(c, "period_id")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	list, err := h.submissions.List(c.Request.Context(), periodID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type submitRequest struct {
	ContractAddress string `json:"contract_address" binding:"required"`
}

// Submit 提名藏品
// POST /api/submissions {"contract_address":"0x..."}
func (h *BallotHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s, err := h.submissions.Submit(c.Request.Context(), req.ContractAddress, identityFrom(c).UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"submission": s})
}

// ListMyVotes 当前用户在当前周期的票据
// GET /api/votes
func (h *BallotHandler) ListMyVotes(c *gin.Context) {
	period, err := h.periods.GetCurrentPeriod(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	votes, err := h.votes.ListForUser(c.Request.Context(), identityFrom(c).UserID, period.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	remaining := h.votes.MaxVotes() - len(votes)
	if remaining < 0 {
		remaining = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"period_id": period.ID,
		"votes":     votes,
		"max_votes": h.votes.MaxVotes(),
		"remaining": remaining,
	})
}

type toggleRequest struct {
	SubmissionID uint64 `json:"submission_id" binding:"required"`
}

// ToggleVote 对当前周期的提名投票或撤票
// POST /api/votes {"submission_id":12}
func (h *BallotHandler) ToggleVote(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	period, err := h.periods.GetCurrentPeriod(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	res, err := h.votes.Toggle(c.Request.Context(), identityFrom(c).UserID, req.SubmissionID, period.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
