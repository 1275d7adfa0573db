// Package server runs the gateway's HTTP listener with graceful
// shutdown, draining in-flight requests and running registered cleanup
// hooks before exit.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/weixiao/campus-bridge/internal/config"
)

// Serve listens until the context is cancelled or an interrupt arrives,
// then shuts the server down within the configured timeout and executes
// the shutdown hooks. It blocks for the lifetime of the server.
func Serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler, hooks *ShutdownHooks) error {
	notifyCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 20 * time.Second,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}

	serveResult := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		serveResult <- server.ListenAndServe()
	}()

	select {
	case err := <-serveResult:
		// Listener failed before any shutdown was requested.
		hooks.Execute(context.WithoutCancel(ctx))
		return fmt.Errorf("server failed: %w", err)
	case <-notifyCtx.Done():
	}

	log.Info().Msg("server stopping")

	drainCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx),
		time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second,
	)
	defer cancel()

	shutdownErr := server.Shutdown(drainCtx)
	if err := <-serveResult; err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("listener exited with error")
	}

	hooks.Execute(drainCtx)

	if shutdownErr != nil {
		return fmt.Errorf("server shutdown failed: %w", shutdownErr)
	}

	log.Info().Msg("server stopped")
	return nil
}
