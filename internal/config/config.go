package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Analytics AnalyticsConfig
	Cache     CacheConfig
	Campus    CampusConfig
	Observe   ObserveConfig
	Server    ServerConfig
	WeChat    WeChatConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// WeChatConfig holds the official account credentials and the knobs for
// credential refresh behaviour.
type WeChatConfig struct {
	APIURL string // internal only

	// AppID and AppSecret identify the official account to the platform.
	AppID     string `env:"WECHAT_APP_ID, required"`
	AppSecret string `env:"WECHAT_APP_SECRET, required"`

	// Token is the shared secret used to verify inbound webhook signatures.
	Token string `env:"WECHAT_TOKEN, required"`

	// RefreshPath is the URL path of the endpoint that forces a credential
	// refresh. The path acts as a bearer-style secret, so it must not be a
	// guessable value.
	RefreshPath string `env:"WECHAT_REFRESH_PATH, required"`

	// RefreshTimeoutSeconds bounds the platform calls made during a refresh.
	RefreshTimeoutSeconds int `env:"WECHAT_REFRESH_TIMEOUT_SECS, default=10"`

	// TTLMarginSeconds is subtracted from the platform-advertised credential
	// lifetime when caching, so the cache entry always lapses before the
	// platform would reject the credential. The platform advertises 7200s;
	// the default margin caches for 7000s.
	TTLMarginSeconds int `env:"WECHAT_TTL_MARGIN_SECS, default=200"`

	// EventHandlerURL is the downstream processor that produces replies for
	// webhook event deliveries. When empty, deliveries are acknowledged with
	// the platform no-op response.
	EventHandlerURL string `env:"WECHAT_EVENT_HANDLER_URL"`

	// EventHandlerTimeoutSeconds bounds each call to the event processor.
	// The platform retries deliveries it considers unanswered after 5s, so
	// the default stays below that.
	EventHandlerTimeoutSeconds int `env:"WECHAT_EVENT_HANDLER_TIMEOUT_SECS, default=4"`

	// CapabilitiesFile optionally overrides the built-in JS-API capability
	// list for each page.
	CapabilitiesFile string `env:"WECHAT_CAPABILITIES_FILE"`
}

// CampusConfig locates the collaborators that perform the simulated logins
// against the school systems.
type CampusConfig struct {
	ScoreURL   string `env:"CAMPUS_SCORE_URL"`
	LibraryURL string `env:"CAMPUS_LIBRARY_URL"`

	TimeoutSeconds int `env:"CAMPUS_TIMEOUT_SECS, default=30"`
}

type AnalyticsConfig struct {
	// BaiduID is embedded verbatim in page payloads for client-side
	// analytics. Opaque to this service.
	BaiduID string `env:"ANALYTICS_BAIDU_ID"`
}

// CacheConfig specifies cache configuration.
type CacheConfig struct {
	// Type selects the cache implementation: "memory" (default) or "valkey"
	Type string `env:"CACHE_TYPE, default=memory"`

	// Valkey holds distributed cache settings.
	Valkey ValkeyConfig
}

// ValkeyConfig specifies distributed cache configuration.
type ValkeyConfig struct {
	// Address is the Valkey server address (host:port).
	Address string `env:"VALKEY_ADDRESS"`

	// TLS enables TLS connection to Valkey. Defaults to true so the secure option
	// is the default.
	TLS bool `env:"VALKEY_TLS, default=true"`

	// Username for Valkey authentication.
	Username string `env:"VALKEY_USERNAME"`

	// Password for Valkey authentication.
	Password string `env:"VALKEY_PASSWORD"`
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=campus-bridge"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Cache.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	err = cfg.WeChat.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid wechat configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	// Valkey requires address
	if c.Type == "valkey" && c.Valkey.Address == "" {
		return fmt.Errorf("VALKEY_ADDRESS required when CACHE_TYPE=valkey")
	}

	return nil
}

// Validate checks that the refresh endpoint and TTL settings are usable.
func (c *WeChatConfig) Validate() error {
	if !strings.HasPrefix(c.RefreshPath, "/") {
		return fmt.Errorf("WECHAT_REFRESH_PATH must be an absolute URL path")
	}

	// The refresh path doubles as a shared secret: refuse paths that collide
	// with the fixed routes.
	switch c.RefreshPath {
	case "/", "/healthcheck":
		return fmt.Errorf("WECHAT_REFRESH_PATH must not collide with a fixed route")
	}

	if c.TTLMarginSeconds < 0 {
		return fmt.Errorf("WECHAT_TTL_MARGIN_SECS must not be negative")
	}

	return nil
}
