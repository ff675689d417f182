package service

import (
	"context"
	"strings"

	"CollectionVote/internal/apperr"
	"CollectionVote/internal/interfaces"
	"CollectionVote/internal/metrics"
	"CollectionVote/internal/model"
	"CollectionVote/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// SubmissionRegistry 记录当前周期的藏品提名
type SubmissionRegistry struct {
	repos    *repository.Repositories
	provider interfaces.MetadataProvider
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	now      Clock
}

// NewSubmissionRegistry 创建 SubmissionRegistry；provider 为 nil 时一律使用占位元数据
func NewSubmissionRegistry(repos *repository.Repositories, provider interfaces.MetadataProvider, m *metrics.Metrics, logger *logrus.Logger) *SubmissionRegistry {
	if m == nil {
		m = metrics.New(nil)
	}
	return &SubmissionRegistry{repos: repos, provider: provider, metrics: m, logger: logger, now: systemClock}
}

// SetClock 替换时间源
func (r *SubmissionRegistry) SetClock(c Clock) { r.now = c }

// NormalizeAddress 校验 ^0x[0-9a-fA-F]{40}$ 形式的地址，返回 EIP-55 校验和形式
func NormalizeAddress(addr string) (string, error) {
	if !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
		return "", apperr.ErrInvalidAddressFormat
	}
	return common.HexToAddress(addr).Hex(), nil
}

// PlaceholderMetadata 元数据提供方不可用时的确定性占位数据
func PlaceholderMetadata(contractAddress string) *interfaces.CollectionMetadata {
	return &interfaces.CollectionMetadata{
		Name:        "Collection " + prefix(contractAddress, 8),
		Thumbnail:   "https://via.placeholder.com/200?text=" + prefix(contractAddress, 4),
		Description: "NFT Collection",
		FloorPrice:  decimal.Zero,
		Volume24h:   decimal.Zero,
	}
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Submit 在 submission 阶段提名藏品。元数据获取失败不影响提名，改用占位数据。
func (r *SubmissionRegistry) Submit(ctx context.Context, contractAddress, submitterID string) (*model.Submission, error) {
	address, err := NormalizeAddress(contractAddress)
	if err != nil {
		return nil, err
	}
	if submitterID == "" {
		return nil, apperr.ErrNotAuthenticated
	}

	period, err := r.repos.Periods.Current(ctx)
	if err != nil {
		return nil, err
	}
	if period.Phase != model.PhaseSubmission {
		return nil, apperr.WrongPhase(string(model.PhaseSubmission), string(period.Phase))
	}
	// 提前拦截重复提名，避免无谓的元数据请求；最终以唯一索引为准
	exists, err := r.repos.Submissions.Exists(ctx, address, period.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.ErrDuplicateSubmission
	}

	meta := r.fetchMetadata(ctx, address)
	submission := &model.Submission{
		ContractAddress: address,
		SubmitterID:     submitterID,
		PeriodID:        period.ID,
		Name:            meta.Name,
		Thumbnail:       meta.Thumbnail,
		Description:     meta.Description,
		FloorPrice:      meta.FloorPrice,
		Volume24h:       meta.Volume24h,
		TotalItems:      meta.TotalItems,
		VoteCount:       0,
		SubmittedAt:     r.now(),
	}
	if len(meta.Raw) > 0 {
		submission.RawMetadata = datatypes.JSON(meta.Raw)
	}

	err = r.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		locked, err := tx.Periods.Lock(ctx, period.ID, false)
		if err != nil {
			return err
		}
		if locked.Phase != model.PhaseSubmission {
			return apperr.WrongPhase(string(model.PhaseSubmission), string(locked.Phase))
		}
		return tx.Submissions.Create(ctx, submission)
	})
	if err != nil {
		return nil, err
	}

	r.metrics.SubmissionCreated()
	r.logger.WithFields(logrus.Fields{
		"submission_id":    submission.ID,
		"period_id":        period.ID,
		"contract_address": address,
		"submitter_id":     submitterID,
	}).Info("藏品提名成功")
	return submission, nil
}

func (r *SubmissionRegistry) fetchMetadata(ctx context.Context, address string) *interfaces.CollectionMetadata {
	if r.provider == nil {
		r.metrics.MetadataFallback()
		return PlaceholderMetadata(address)
	}
	meta, err := r.provider.FetchCollection(ctx, address)
	if err != nil || meta == nil {
		r.metrics.MetadataFallback()
		r.logger.WithError(err).WithField("contract_address", address).Warn("获取藏品元数据失败，使用占位数据")
		return PlaceholderMetadata(address)
	}
	return meta
}

// SubmissionList 某周期的提名列表（规范排序）
type SubmissionList struct {
	Period      *model.Period      `json:"period"`
	Submissions []model.Submission `json:"submissions"`
}

// List 票数降序、提名时间升序；periodID 为 0 时取当前周期
func (r *SubmissionRegistry) List(ctx context.Context, periodID uint64) (*SubmissionList, error) {
	period, err := resolvePeriod(ctx, r.repos, periodID)
	if err != nil {
		return nil, err
	}
	subs, err := r.repos.Submissions.ListRanked(ctx, period.ID, 0)
	if err != nil {
		return nil, err
	}
	return &SubmissionList{Period: period, Submissions: subs}, nil
}
