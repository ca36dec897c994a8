// Package cron schedules the recurring missed-medication check.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gmsas95/medwatch/internal/detector"
	"github.com/gmsas95/medwatch/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config holds cron runner configuration
type Config struct {
	Schedule   string // cron expression, e.g. "@every 5m" or "*/5 * * * *"
	Location   *time.Location
	RunOnStart bool
	Timeout    time.Duration // per-run deadline, zero for none
}

// Detector performs one detection pass.
type Detector interface {
	Run(ctx context.Context) *detector.RunSummary
}

// History persists finished runs.
type History interface {
	SaveRun(ctx context.Context, rec *store.RunRecord) error
}

// RunObserver is told about every finished run.
type RunObserver interface {
	ObserveRun(s *detector.RunSummary)
}

// Runner manages scheduled detection runs
type Runner struct {
	config   Config
	detector Detector
	history  History
	observer RunObserver
	logger   *zap.Logger

	cron    *cron.Cron
	entry   cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
	runMu   sync.Mutex
	wg      sync.WaitGroup // run-on-start goroutine
}

// NewRunner creates a new cron runner. history and observer may be nil.
func NewRunner(config Config, d Detector, history History, observer RunObserver, logger *zap.Logger) *Runner {
	if config.Schedule == "" {
		config.Schedule = "@every 5m"
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := zapAdapter{logger: logger.Named("cron")}

	return &Runner{
		config:   config,
		detector: d,
		history:  history,
		observer: observer,
		logger:   logger,
		cron: cron.New(
			cron.WithLocation(config.Location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the detection job and starts the scheduler
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}

	id, err := r.cron.AddFunc(r.config.Schedule, func() { r.RunOnce(r.ctx) })
	if err != nil {
		return fmt.Errorf("invalid detector schedule %q: %w", r.config.Schedule, err)
	}
	r.entry = id
	r.running = true
	r.cron.Start()

	if r.config.RunOnStart {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.RunOnce(r.ctx)
		}()
	}

	r.logger.Info("Cron runner started",
		zap.String("schedule", r.config.Schedule),
		zap.String("timezone", r.config.Location.String()),
	)
	return nil
}

// Stop stops the scheduler and waits for scheduled and run-on-start runs to
// finish. Callers of RunOnce outside the scheduler must be drained first.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.wg.Wait()
	r.logger.Info("Cron runner stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// NextRun returns when the detection job fires next, or the zero time when stopped.
func (r *Runner) NextRun() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.running {
		return time.Time{}
	}
	e := r.cron.Entry(r.entry)
	if e.Next.IsZero() && e.Schedule != nil {
		return e.Schedule.Next(time.Now().In(r.config.Location))
	}
	return e.Next
}

// RunOnce executes one detection pass, stores and observes its summary.
// Runs never overlap; a call made while another run is in flight waits.
// It never fails: storage problems are logged.
func (r *Runner) RunOnce(ctx context.Context) *detector.RunSummary {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	summary := r.detector.Run(ctx)

	if r.observer != nil {
		r.observer.ObserveRun(summary)
	}
	if r.history != nil {
		// the run's own context may already be done
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.history.SaveRun(saveCtx, summary.Record()); err != nil {
			r.logger.Error("Failed to save run history",
				zap.String("run_id", summary.RunID),
				zap.Error(err),
			)
		}
	}
	return summary
}

// zapAdapter satisfies cron.Logger.
type zapAdapter struct {
	logger *zap.Logger
}

func (a zapAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (a zapAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
