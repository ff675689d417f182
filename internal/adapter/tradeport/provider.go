package tradeport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"CollectionVote/internal/config"
	"CollectionVote/internal/interfaces"
	"CollectionVote/internal/utils/httpclient"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultName      = "Unknown Collection"
	defaultThumbnail = "https://via.placeholder.com/200"
	maxBodyBytes     = 1 << 20
)

// collectionResponse GET /collections/{address} 响应
type collectionResponse struct {
	Name        string              `json:"name"`
	Image       string              `json:"image"`
	Description string              `json:"description"`
	FloorPrice  decimal.NullDecimal `json:"floorPrice"`
	Volume24h   decimal.NullDecimal `json:"volume24h"`
	TotalSupply decimal.NullDecimal `json:"totalSupply"`
}

// Provider 通过 Tradeport 索引接口获取藏品元数据
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewProvider(cfg config.TradeportConfig, logger *logrus.Logger) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: httpclient.NewHTTPClient(httpclient.Options{
			Proxy:   cfg.Proxy,
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}, logger),
		logger: logger,
	}
}

// FetchCollection 空字段使用默认值；网络错误或非 200 状态返回错误，由调用方决定降级
func (p *Provider) FetchCollection(ctx context.Context, contractAddress string) (*interfaces.CollectionMetadata, error) {
	if p.baseURL == "" {
		return nil, errors.New("tradeport.base_url 未配置")
	}
	endpoint := fmt.Sprintf("%s/collections/%s", p.baseURL, url.PathEscape(contractAddress))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求Tradeport失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("读取Tradeport响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Tradeport返回状态码 %d", resp.StatusCode)
	}

	var cr collectionResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("解析Tradeport响应失败: %w", err)
	}

	meta := &interfaces.CollectionMetadata{
		Name:        cr.Name,
		Thumbnail:   cr.Image,
		Description: cr.Description,
		FloorPrice:  orZero(cr.FloorPrice),
		Volume24h:   orZero(cr.Volume24h),
		TotalItems:  orZero(cr.TotalSupply).IntPart(),
		Raw:         json.RawMessage(body),
	}
	if meta.Name == "" {
		meta.Name = defaultName
	}
	if meta.Thumbnail == "" {
		meta.Thumbnail = defaultThumbnail
	}
	p.logger.WithField("contract_address", contractAddress).Debug("Tradeport元数据获取成功")
	return meta, nil
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}
