// Package metacache 为元数据提供方加一层 Redis 读穿缓存。
// 缓存不可用时直接回源，不影响提名流程。
package metacache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"CollectionVote/internal/config"
	"CollectionVote/internal/interfaces"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "collection_vote:metadata:"

// NewClient 按配置创建 Redis 客户端并检测连通性
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("连接Redis失败 %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

type entry struct {
	Name        string          `json:"name"`
	Thumbnail   string          `json:"thumbnail"`
	Description string          `json:"description"`
	FloorPrice  decimal.Decimal `json:"floor_price"`
	Volume24h   decimal.Decimal `json:"volume_24h"`
	TotalItems  int64           `json:"total_items"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// Cache 读穿缓存；只缓存成功结果
type Cache struct {
	inner  interfaces.MetadataProvider
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *logrus.Logger
}

func New(inner interfaces.MetadataProvider, rdb redis.Cmdable, ttl time.Duration, logger *logrus.Logger) *Cache {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Cache{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(contractAddress string) string {
	return keyPrefix + strings.ToLower(contractAddress)
}

func (c *Cache) FetchCollection(ctx context.Context, contractAddress string) (*interfaces.CollectionMetadata, error) {
	key := cacheKey(contractAddress)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var e entry
		if jsonErr := json.Unmarshal(raw, &e); jsonErr == nil {
			return e.toMetadata(), nil
		}
		c.logger.WithField("key", key).Warn("元数据缓存内容损坏，回源获取")
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WithError(err).WithField("key", key).Warn("读取元数据缓存失败，回源获取")
	}

	meta, err := c.inner.FetchCollection(ctx, contractAddress)
	if err != nil || meta == nil {
		return meta, err
	}
	if payload, err := json.Marshal(fromMetadata(meta)); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("写入元数据缓存失败")
		}
	}
	return meta, nil
}

func fromMetadata(m *interfaces.CollectionMetadata) entry {
	return entry{
		Name:        m.Name,
		Thumbnail:   m.Thumbnail,
		Description: m.Description,
		FloorPrice:  m.FloorPrice,
		Volume24h:   m.Volume24h,
		TotalItems:  m.TotalItems,
		Raw:         m.Raw,
	}
}

func (e entry) toMetadata() *interfaces.CollectionMetadata {
	return &interfaces.CollectionMetadata{
		Name:        e.Name,
		Thumbnail:   e.Thumbnail,
		Description: e.Description,
		FloorPrice:  e.FloorPrice,
		Volume24h:   e.Volume24h,
		TotalItems:  e.TotalItems,
		Raw:         e.Raw,
	}
}
