package adapter

import (
	"context"
	"io"
	"testing"

	"CollectionVote/internal/adapter/metacache"
	"CollectionVote/internal/adapter/tradeport"
	"CollectionVote/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewMetadataProviderWithoutRedis(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	p, closeFn := NewMetadataProvider(context.Background(), &config.Config{}, logger)
	require.IsType(t, &tradeport.Provider{}, p)
	require.NoError(t, closeFn())
}

func TestNewMetadataProviderDegradesWhenRedisDown(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.Config{Redis: config.RedisConfig{Addr: "127.0.0.1:1"}}

	p, closeFn := NewMetadataProvider(context.Background(), cfg, logger)
	_, cached := p.(*metacache.Cache)
	require.False(t, cached)
	require.NoError(t, closeFn())
}
