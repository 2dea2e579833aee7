// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires the panel together: it launches the backend, brings the
// device list and routing session up once the backend answers, serves the
// control API and tears everything down on shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/noclap/internal/api"
	"github.com/wingedpig/noclap/internal/backend"
	"github.com/wingedpig/noclap/internal/config"
	"github.com/wingedpig/noclap/internal/devices"
	"github.com/wingedpig/noclap/internal/events"
	"github.com/wingedpig/noclap/internal/locator"
	"github.com/wingedpig/noclap/internal/logging"
	"github.com/wingedpig/noclap/internal/session"
	"github.com/wingedpig/noclap/internal/supervisor"
	"github.com/wingedpig/noclap/internal/watcher"
)

const historyMaxAge = time.Hour

// App is the main application container.
type App struct {
	cfg     *config.Config
	version string
	logger  *zap.Logger
	log     *zap.Logger

	bus        *events.MemoryEventBus
	locator    *locator.Locator
	supervisor *supervisor.Supervisor
	backend    *backend.Client
	registry   *devices.Registry
	controller *session.Controller
	server     *api.Server

	// baseCtx outlives Run's cancellation; children are stopped through
	// Terminate instead.
	baseCtx      context.Context
	shuttingDown atomic.Bool
}

// Options holds configuration options for the app.
type Options struct {
	Config  *config.Config // Defaults apply when nil
	Version string         // Application version string
	Logger  *zap.Logger
}

// New creates every component. Nothing is launched until Run.
func New(opts Options) *App {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := logging.OrNop(opts.Logger)

	a := &App{
		cfg:     cfg,
		version: opts.Version,
		logger:  logger,
		log:     logger.Named(logging.ComponentApp),
		baseCtx: context.Background(),
	}

	a.bus = events.NewMemoryEventBus(events.MemoryBusConfig{
		HistoryMaxEvents: cfg.Events.MaxEvents,
		HistoryMaxAge:    historyMaxAge,
		Logger:           logger,
	})

	a.locator = locator.New(cfg.Backend)
	a.supervisor = supervisor.New(supervisor.Options{
		StopSignal:  cfg.Backend.StopSignal,
		StopTimeout: cfg.Backend.StopTimeoutDuration(),
		LogBuffer:   cfg.Backend.LogBuffer,
		Env:         []string{"PYTHONUNBUFFERED=1"},
		Bus:         a.bus,
		Logger:      logger,
	})
	a.supervisor.OnExit(a.backendExited)

	a.backend = backend.New(cfg.Backend.URL,
		backend.WithTimeout(cfg.Backend.RequestTimeoutDuration()),
		backend.WithLogger(logger))
	a.registry = devices.NewRegistry(a.backend, a.bus, logger)
	a.controller = session.NewController(session.Options{
		Backend:        a.backend,
		Resolver:       a.registry,
		Bus:            a.bus,
		Logger:         logger,
		DefaultDelayMs: cfg.Session.DefaultDelay(),
		DelayChange:    cfg.Session.DelayChange,
		StatusInterval: cfg.Session.StatusIntervalDuration(),
		RequestTimeout: cfg.Backend.RequestTimeoutDuration(),
	})

	a.server = api.NewServer(cfg.Server, api.Dependencies{
		Session:        a.controller,
		Devices:        a.registry,
		Process:        &process{Supervisor: a.supervisor, app: a},
		EventBus:       a.bus,
		BackendBaseURL: a.backend.BaseURL(),
		Version:        a.version,
		Logger:         logger,
	})

	return a
}

// Run launches the backend and blocks until ctx is done, SIGINT or SIGTERM
// arrives, or a component fails. When the backend cannot be located or
// launched, the control API still runs and reports it unavailable. The
// backend is terminated before Run returns, whatever the reason.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.bus.Close()

	a.baseCtx = context.WithoutCancel(ctx)
	defer a.terminate()
	paths, launchErr := a.launch()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.controller.Run(gctx)
	})

	g.Go(func() error {
		a.log.Info("control API listening", zap.String("addr", a.server.Addr()))
		return a.server.Run(gctx)
	})

	if launchErr == nil {
		if a.cfg.Backend.Watch {
			w, err := watcher.New(paths.Script, watcher.Options{
				Debounce: a.cfg.Backend.WatchDebounceDuration(),
				OnChange: func(ctx context.Context, _ []string) error {
					return a.restartBackend(ctx, events.RestartTriggerScriptChange)
				},
				Bus:    a.bus,
				Logger: a.logger,
			})
			if err != nil {
				a.log.Warn("script watcher disabled", zap.Error(err))
			} else {
				g.Go(func() error {
					return w.Run(gctx)
				})
			}
		}

		g.Go(func() error {
			if err := a.bringUp(gctx); err != nil && gctx.Err() == nil {
				a.log.Error("backend not available", zap.Error(err))
			}
			return nil
		})
	}

	err := g.Wait()
	a.log.Info("shutting down")
	return err
}

// launch locates and spawns the backend. A failure is recorded on the
// supervisor and the controller, and the panel carries on without it.
func (a *App) launch() (locator.Paths, error) {
	paths, err := a.locator.Locate()
	if err != nil {
		err = fmt.Errorf("locate backend: %w", err)
	} else if err = a.supervisor.Launch(a.baseCtx, paths); err != nil {
		err = fmt.Errorf("launch backend: %w", err)
	}
	if err != nil {
		a.unavailable(err)
		return paths, err
	}
	a.controller.BackendAvailable()
	return paths, nil
}

func (a *App) unavailable(err error) {
	a.log.Error("backend unavailable", zap.Error(err))
	a.supervisor.MarkUnavailable(err)
	a.controller.BackendUnavailable(err)
}

// bringUp waits out the warm-up, polls the backend until it answers, loads
// the device list and then reconciles the session with the backend's status.
func (a *App) bringUp(ctx context.Context) error {
	if warmup := a.cfg.Backend.WarmupDuration(); warmup > 0 {
		timer := time.NewTimer(warmup)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	initial, maxBackoff := a.cfg.Backend.ReadyBackoffDurations()
	status, err := a.backend.WaitReady(ctx, initial, maxBackoff, a.cfg.Backend.ReadyTimeoutDuration())
	if err != nil {
		return err
	}
	a.log.Info("backend ready", zap.Bool("is_running", status.IsRunning))
	events.Emit(ctx, a.bus, events.EventBackendReady, logging.ComponentApp, map[string]interface{}{
		"url":        a.backend.BaseURL(),
		"is_running": status.IsRunning,
	})

	if _, err := a.registry.Refresh(ctx); err != nil {
		a.log.Warn("device refresh failed", zap.Error(err))
	}

	if _, err := a.controller.Poll(ctx); err != nil {
		a.log.Warn("initial status poll failed", zap.Error(err))
	}
	a.controller.StartPolling()
	return nil
}

// restartBackend relaunches the backend and brings it up again. If it never
// launched, it is located afresh.
func (a *App) restartBackend(ctx context.Context, trigger events.RestartTrigger) error {
	err := a.supervisor.Restart(ctx, trigger)
	switch {
	case errors.Is(err, supervisor.ErrNotLaunched):
		if _, err := a.launch(); err != nil {
			return err
		}
	case err != nil:
		if !a.supervisor.Running() {
			a.unavailable(err)
		}
		return err
	default:
		a.controller.BackendAvailable()
	}
	return a.bringUp(ctx)
}

// backendExited ends the routing session whenever the backend goes away,
// except during shutdown.
func (a *App) backendExited(info supervisor.ExitInfo) {
	if a.shuttingDown.Load() {
		return
	}

	reason := fmt.Sprintf("exit code %d", info.ExitCode)
	switch {
	case info.Crash != nil:
		reason = info.Crash.Summary()
	case info.Requested:
		reason = "restarted"
	}
	a.controller.BackendExited(reason)
}

func (a *App) terminate() {
	a.shuttingDown.Store(true)
	if err := a.supervisor.Terminate(context.Background()); err != nil {
		a.log.Warn("terminate backend", zap.Error(err))
	}
}

// process is the supervisor as seen by the control API. A restart also
// waits for the new backend and reloads its devices.
type process struct {
	*supervisor.Supervisor
	app *App
}

func (p *process) Restart(ctx context.Context, trigger events.RestartTrigger) error {
	return p.app.restartBackend(ctx, trigger)
}
