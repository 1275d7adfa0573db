package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WECHAT_APP_ID", "wx-test-app")
	t.Setenv("WECHAT_APP_SECRET", "test-secret")
	t.Setenv("WECHAT_TOKEN", "webhook-token")
	t.Setenv("WECHAT_REFRESH_PATH", "/refresh-7f3a9")
}

func TestConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 200, cfg.WeChat.TTLMarginSeconds)
	assert.Equal(t, 10, cfg.WeChat.RefreshTimeoutSeconds)
	assert.Equal(t, 4, cfg.WeChat.EventHandlerTimeoutSeconds)
	assert.Equal(t, "campus-bridge", cfg.Observe.ServiceName)
}

func TestCacheConfig_Valkey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CACHE_TYPE", "valkey")
	t.Setenv("VALKEY_ADDRESS", "localhost:6379")

	cfg, err := Load(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "valkey", cfg.Cache.Type)
}

func TestCacheConfig_ValkeyRequiresAddress(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CACHE_TYPE", "valkey")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "VALKEY_ADDRESS")
}

func TestValkeyConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VALKEY_ADDRESS", "localhost:6379")

	cfg, err := Load(context.Background())
	assert.NoError(t, err)

	expected := ValkeyConfig{
		Address: "localhost:6379",
		TLS:     true, // default
	}
	assert.Equal(t, expected, cfg.Cache.Valkey)
}

func TestValkeyConfig_TLSFalse(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VALKEY_ADDRESS", "localhost:6379")
	t.Setenv("VALKEY_TLS", "false")

	cfg, err := Load(context.Background())
	assert.NoError(t, err)

	expected := ValkeyConfig{
		Address: "localhost:6379",
		TLS:     false,
	}
	assert.Equal(t, expected, cfg.Cache.Valkey)
}

func TestWeChatConfig_RefreshPathMustBeAbsolute(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WECHAT_REFRESH_PATH", "refresh")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "WECHAT_REFRESH_PATH")
}

func TestWeChatConfig_RefreshPathCollision(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WECHAT_REFRESH_PATH", "/healthcheck")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "must not collide")
}

func TestWeChatConfig_NegativeMarginRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WECHAT_TTL_MARGIN_SECS", "-1")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "WECHAT_TTL_MARGIN_SECS")
}
