package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/weixiao/campus-bridge/internal/audit"
	"github.com/weixiao/campus-bridge/internal/binding"
	"github.com/weixiao/campus-bridge/internal/cache"
	"github.com/weixiao/campus-bridge/internal/campus"
	"github.com/weixiao/campus-bridge/internal/capability"
	"github.com/weixiao/campus-bridge/internal/config"
	"github.com/weixiao/campus-bridge/internal/credential"
	"github.com/weixiao/campus-bridge/internal/events"
	"github.com/weixiao/campus-bridge/internal/gate"
	"github.com/weixiao/campus-bridge/internal/observe"
	"github.com/weixiao/campus-bridge/internal/server"
	"github.com/weixiao/campus-bridge/internal/wechat"
)

// bindingTTL is how long a binding record stays valid without activity.
// The account collaborator re-registers records as users interact, so an
// entry only lapses for genuinely dormant identities.
const bindingTTL = 30 * 24 * time.Hour

// refreshInterval paces the background credential refresh. Cached entries
// carry a TTL below the platform lifetime, so a refresh on this cadence
// keeps the cache continuously warm.
const refreshInterval = 5 * time.Minute

func configureServerRoutes(ctx context.Context, cfg config.Config, hooks *server.ShutdownHooks) (http.Handler, *credential.Refresher, error) {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	// configure middleware
	auditor := audit.Middleware()

	// The request body size is fairly limited to prevent accidental or
	// deliberate abuse. Given the current API shape, this is not configurable.
	requestLimitBytes := int64(20 << 10) // 20 KB
	requestLimiter := maxRequestSize(requestLimitBytes)

	standardRouteMiddleware := alice.New(requestLimiter, auditor)
	webhookRouteMiddleware := standardRouteMiddleware.Append(gate.Verify(cfg.WeChat.Token))

	// shared caches: platform credentials, binding records, score reports
	credentialCache, err := cache.NewFromConfig[string](ctx, cfg.Cache, 16)
	if err != nil {
		return nil, nil, fmt.Errorf("credential cache configuration failed: %w", err)
	}
	hooks.Add("credential cache", credentialCache.Close)

	bindingCache, err := cache.NewFromConfig[binding.Record](ctx, cfg.Cache, 100_000)
	if err != nil {
		return nil, nil, fmt.Errorf("binding cache configuration failed: %w", err)
	}
	hooks.Add("binding cache", bindingCache.Close)

	reportCache, err := cache.NewFromConfig[campus.ScoreReport](ctx, cfg.Cache, 100_000)
	if err != nil {
		return nil, nil, fmt.Errorf("report cache configuration failed: %w", err)
	}
	hooks.Add("report cache", reportCache.Close)

	// platform client and the credential pipeline built over it
	platform, err := wechat.New(cfg.WeChat)
	if err != nil {
		return nil, nil, fmt.Errorf("platform client configuration failed: %w", err)
	}

	margin := time.Duration(cfg.WeChat.TTLMarginSeconds) * time.Second
	refresher := credential.NewRefresher(platform.GrantTicket, credentialCache, margin)

	ticketSource := credential.CachedTicket(credentialCache)(refresher.TicketSource())
	signer := credential.NewSigner(platform.AppID(), ticketSource)

	capabilities, err := capability.Load(cfg.WeChat.CapabilitiesFile)
	if err != nil {
		return nil, nil, fmt.Errorf("capability configuration failed: %w", err)
	}

	pages := pageServer{
		signer:       signer,
		bindings:     binding.NewCacheStore(bindingCache, bindingTTL),
		capabilities: capabilities,
		baiduID:      cfg.Analytics.BaiduID,
	}

	collaborators := campus.New(cfg.Campus)

	// webhook endpoint: signature-gated, both verification and deliveries
	webhookHandler := webhookRouteMiddleware.Then(handleWebhook(events.FromConfig(cfg.WeChat)))
	mux.Handle("GET /{$}", webhookHandler)
	mux.Handle("POST /{$}", webhookHandler)

	// binding pages and their form submissions
	mux.Handle("GET /auth-score/{openid}",
		standardRouteMiddleware.Then(pages.handlePage(capability.PageBindScore, scorePageContent)))
	mux.Handle("POST /auth-score/{openid}",
		standardRouteMiddleware.Then(pages.handleBind(collaborators.BindScore, "studentid", "studentpwd", malformedStudentInput)))

	mux.Handle("GET /auth-library/{openid}",
		standardRouteMiddleware.Then(pages.handlePage(capability.PageBindLibrary, libraryPageContent)))
	mux.Handle("POST /auth-library/{openid}",
		standardRouteMiddleware.Then(pages.handleBind(collaborators.BindLibrary, "libraryid", "librarypwd", malformedLibraryInput)))

	mux.Handle("GET /score-report/{openid}",
		standardRouteMiddleware.Then(pages.handleScoreReport(reportCache)))

	// the refresh route is configuration-supplied and acts as a secret
	mux.Handle("GET "+cfg.WeChat.RefreshPath,
		standardRouteMiddleware.Then(handleRefresh(refresher)))

	// healthchecks are not included in telemetry
	muxWithoutTelemetry.Handle("GET /healthcheck", alice.New(requestLimiter).Then(handleHealthCheck()))

	return mux, refresher, nil
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launchServer()
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launchServer() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	// configure telemetry, including wrapping the default HTTP client so
	// outbound platform and collaborator calls are traced
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}

	http.DefaultTransport = observe.HTTPTransport(
		configureHTTPTransport(cfg.Server),
		cfg.Observe,
	)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
	}

	hooks := &server.ShutdownHooks{}

	handler, refresher, err := configureServerRoutes(ctx, cfg, hooks)
	if err != nil {
		return fmt.Errorf("server routing configuration failed: %w", err)
	}

	// telemetry shuts down last so hook activity is still exported
	hooks.AddContext("telemetry", shutdownTelemetry)

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	go refreshCredentials(refreshCtx, refresher)

	return server.Serve(ctx, cfg.Server, handler, hooks)
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}

// refreshCredentials keeps the cached platform credentials warm. Failures
// are transient more often than not (platform hiccup, network), so they
// are logged and the next interval tries again; the cached values stay
// usable until their TTL lapses.
func refreshCredentials(ctx context.Context, refresher *credential.Refresher) {
	defer func() {
		if r := recover(); r != nil {
			log.Info().Interface("recover", r).Msg("background credential refresh failed; will attempt to continue.")
		}
	}()

	for {
		if _, err := refresher.Refresh(ctx); err != nil {
			log.Info().Err(err).Msg("background credential refresh failed, continuing")
		}

		select {
		case <-time.After(refreshInterval):
			// continue
		case <-ctx.Done():
			log.Info().Msg("refresh goroutine shutting down gracefully")
			return
		}
	}
}
