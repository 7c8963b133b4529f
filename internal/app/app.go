// SPDX-License-Identifier: MIT

// Package app owns the worker's process lifecycle: HTTP server startup,
// signal handling, and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinirec/analysis-worker/internal/log"
)

// shutdownGrace bounds how long in-flight requests may finish after a stop
// signal. Jobs past their storage writes complete; new requests are
// refused immediately.
const shutdownGrace = 30 * time.Second

// App runs the HTTP server until the context is cancelled or a signal
// arrives.
type App struct {
	server *http.Server
}

// New wraps handler in an HTTP server listening on port. Read timeouts stay
// generous because push deliveries are small but the handler runs the whole
// job before responding.
func New(port int, handler http.Handler) *App {
	return &App{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Run blocks until shutdown completes. SIGINT and SIGTERM trigger a
// graceful stop.
func (a *App) Run(ctx context.Context) error {
	logger := log.WithComponent("app")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}
