// Package app wires the tradesim components together and runs them until
// the session ends or the process is told to stop.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradesim/internal/config"
	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/platform/goquant"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 10 * time.Second

// App owns the configuration, logger and cleanup functions.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	stdout  io.Writer
	dialer  goquant.Dialer
	closers []func()
}

// New creates an App writing text output to os.Stdout.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		stdout: os.Stdout,
	}
}

// Run wires dependencies, opens the session with the configured parameters
// and blocks until ctx is cancelled or the session ends on its own.
//
// A session ended by the venue returns an error wrapping
// domain.ErrTransport unless the HTTP server is enabled, in which case the
// process keeps serving and the operator may restart it over the API.
func (a *App) Run(ctx context.Context) error {
	params := a.cfg.Parameters()
	a.logger.InfoContext(ctx, "starting tradesim",
		slog.String("exchange", params.Exchange),
		slog.String("instrument", params.Instrument),
		slog.String("model", a.cfg.Simulation.Model),
		slog.Bool("server", a.cfg.Server.Enabled),
		slog.Bool("redis", a.cfg.Redis.Enabled),
	)

	deps, cleanup, err := wire(ctx, a.cfg, a.logger, a.stdout, a.dialer)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if err := deps.Controller.Start(params); err != nil {
		a.logger.ErrorContext(ctx, "session start failed", slog.String("error", err.Error()))
		return fmt.Errorf("app: start session: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Dispatcher.Run(gctx, deps.Controller.Events())
	})

	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(gctx)
		})
	}

	if deps.Server != nil {
		g.Go(func() error {
			return deps.Server.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return deps.Server.Shutdown(shutCtx)
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				if err := deps.Controller.Stop(context.WithoutCancel(gctx)); err != nil {
					a.logger.Warn("session stop incomplete", slog.String("error", err.Error()))
				}
				return nil

			case err := <-deps.Controller.Ended():
				if err == nil {
					err = domain.ErrTransport
				}
				if deps.Server == nil {
					return fmt.Errorf("app: session ended: %w", err)
				}
				a.logger.Warn("session ended, restart via POST /api/session/start",
					slog.String("error", err.Error()),
				)
			}
		}
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close runs the cleanup functions in reverse order. Safe to call twice.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
