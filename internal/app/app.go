// Package app wires configuration, storage, push transport, detector, cron
// and the HTTP API into a runnable process.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gmsas95/medwatch/internal/api"
	"github.com/gmsas95/medwatch/internal/config"
	"github.com/gmsas95/medwatch/internal/cron"
	"github.com/gmsas95/medwatch/internal/detector"
	"github.com/gmsas95/medwatch/internal/logging"
	"github.com/gmsas95/medwatch/internal/metrics"
	"github.com/gmsas95/medwatch/internal/notify"
	"github.com/gmsas95/medwatch/internal/push"
	"github.com/gmsas95/medwatch/internal/store"
	"go.uber.org/zap"
)

// App holds every long-lived component.
type App struct {
	Config     *config.Config
	Store      *store.Store
	Logger     *zap.Logger
	Level      zap.AtomicLevel
	Metrics    *metrics.Metrics
	Notify     *notify.Service
	Engine     *detector.Engine
	CronRunner *cron.Runner
	Version    string
}

// New builds the component graph on top of an opened store.
func New(ctx context.Context, cfg *config.Config, st *store.Store, logger *zap.Logger, level zap.AtomicLevel, version string) (*App, error) {
	transport, err := newTransport(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return newWithTransport(cfg, st, transport, logger, level, version), nil
}

func newWithTransport(cfg *config.Config, st *store.Store, transport push.Transport, logger *zap.Logger, level zap.AtomicLevel, version string) *App {
	m := metrics.New()
	dispatcher := notify.NewDispatcher(transport, m, logger.Named("dispatch"))

	notifier := detector.NewNotifier(st, dispatcher, logger.Named("notifier"))
	engine := detector.NewEngine(st, notifier, cfg.Location(), logger.Named("detector"))

	runner := cron.NewRunner(cron.Config{
		Schedule:   cfg.Detector.Schedule,
		Location:   cfg.Location(),
		RunOnStart: cfg.Detector.RunOnStart,
	}, engine, st, m, logger)

	return &App{
		Config:     cfg,
		Store:      st,
		Logger:     logger,
		Level:      level,
		Metrics:    m,
		Notify:     notify.NewService(dispatcher, logger.Named("notify")),
		Engine:     engine,
		CronRunner: runner,
		Version:    version,
	}
}

func newTransport(ctx context.Context, cfg *config.Config, logger *zap.Logger) (push.Transport, error) {
	switch cfg.Push.Provider {
	case "fcm":
		client, err := push.NewFCM(ctx, push.FCMConfig{
			ProjectID:       cfg.Push.ProjectID,
			CredentialsFile: cfg.Push.CredentialsFile,
			Endpoint:        cfg.Push.Endpoint,
			Timeout:         time.Duration(cfg.Push.TimeoutSeconds) * time.Second,
			RatePerSecond:   cfg.Push.RatePerSecond,
			Burst:           cfg.Push.Burst,
			BreakerFailures: cfg.Push.BreakerFailures,
			BreakerCooldown: time.Duration(cfg.Push.BreakerCooldown) * time.Second,
		}, logger.Named("fcm"))
		if err != nil {
			return nil, fmt.Errorf("failed to create fcm transport: %w", err)
		}
		return client, nil
	default:
		logger.Warn("Push provider is 'log'; notifications are not delivered")
		return push.NewLogTransport(logger.Named("push")), nil
	}
}

// ApplyConfig takes over the settings that can change without a restart.
func (app *App) ApplyConfig(next *config.Config) {
	prev := app.Level.Level()
	lvl := logging.ParseLevel(next.Log.Level)
	if lvl != prev {
		app.Level.SetLevel(lvl)
		app.Logger.Info("Log level changed",
			zap.String("from", prev.String()),
			zap.String("to", lvl.String()),
		)
	}
}

// RunOnce performs a single detection run outside the scheduler.
func (app *App) RunOnce(ctx context.Context) *detector.RunSummary {
	return app.CronRunner.RunOnce(ctx)
}

// Server builds the HTTP API server.
func (app *App) Server() *api.Server {
	deps := api.Deps{
		Notifier: app.Notify,
		Store:    app.Store,
		Metrics:  app.Metrics.Handler(),
		Version:  app.Version,
	}
	if app.Config.Detector.Enabled {
		deps.Runs = app.CronRunner
	}
	return api.New(app.Config, deps, app.Logger.Named("api"))
}

// RunServer starts the scheduler and the API and blocks until SIGINT or SIGTERM.
func (app *App) RunServer() {
	if app.Config.Detector.Enabled {
		if err := app.CronRunner.Start(); err != nil {
			app.Logger.Fatal("Failed to start cron runner", zap.Error(err))
		}
	} else {
		app.Logger.Info("Detector disabled; only the API is served")
	}

	server := app.Server()
	go func() {
		if err := server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("version", app.Version),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")

	// drain API-triggered runs before the scheduler stops
	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
	if app.CronRunner.IsRunning() {
		app.CronRunner.Stop()
	}
}
