package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weixiao/campus-bridge/internal/config"
)

func TestNewFromConfig_Memory(t *testing.T) {
	ctx := context.Background()

	cache, err := NewFromConfig[CacheTestDummy](ctx, config.CacheConfig{Type: "memory"}, 100)
	require.NoError(t, err)
	require.NotNil(t, cache)
	defer cache.Close()

	// instrumented wrapper must delegate to a working memory cache
	err = cache.Set(ctx, "key", CacheTestDummy{Data: "value"}, time.Minute)
	require.NoError(t, err)

	value, found, err := cache.Get(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", value.Data)
}

func TestNewFromConfig_InvalidType(t *testing.T) {
	_, err := NewFromConfig[CacheTestDummy](context.Background(), config.CacheConfig{Type: "memcached"}, 100)
	assert.ErrorContains(t, err, "invalid cache type")
}

func TestNewFromConfig_ValkeyRequiresAddress(t *testing.T) {
	_, err := NewFromConfig[CacheTestDummy](context.Background(), config.CacheConfig{Type: "valkey"}, 100)
	assert.ErrorContains(t, err, "valkey address is required")
}
