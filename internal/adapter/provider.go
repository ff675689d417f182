package adapter

import (
	"context"

	"CollectionVote/internal/adapter/metacache"
	"CollectionVote/internal/adapter/tradeport"
	"CollectionVote/internal/config"
	"CollectionVote/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// NewMetadataProvider 按配置组装元数据提供方：Tradeport，配置了 redis.addr 时外加读穿缓存。
// Redis 连接失败只记录告警并退化为直连。返回的 closer 用于释放缓存连接。
func NewMetadataProvider(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (interfaces.MetadataProvider, func() error) {
	var provider interfaces.MetadataProvider = tradeport.NewProvider(cfg.Tradeport, logger)
	noop := func() error { return nil }

	if cfg.Redis.Addr == "" {
		logger.Info("未配置Redis，元数据不缓存")
		return provider, noop
	}
	rdb, err := metacache.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis不可用，元数据不缓存")
		return provider, noop
	}
	logger.WithField("addr", cfg.Redis.Addr).Info("元数据缓存已启用")
	return metacache.New(provider, rdb, cfg.Redis.MetadataTTL, logger), rdb.Close
}
