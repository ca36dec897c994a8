// Package api serves the on-demand notification endpoint, run history and
// operational endpoints over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gmsas95/medwatch/internal/config"
	"github.com/gmsas95/medwatch/internal/detector"
	"github.com/gmsas95/medwatch/internal/notify"
	"github.com/gmsas95/medwatch/internal/store"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Notifier sends caller-initiated caregiver notifications.
type Notifier interface {
	SendCaregiverNotification(ctx context.Context, caller *notify.Caller, req notify.Request) (*notify.Result, error)
}

// RunTrigger performs one detection run on demand.
type RunTrigger interface {
	RunOnce(ctx context.Context) *detector.RunSummary
}

// Store is the read side the API exposes.
type Store interface {
	Ping(ctx context.Context) error
	ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error)
	GetPatientGroup(ctx context.Context, id string) (*store.PatientGroup, error)
	ListMedicationLogs(ctx context.Context, groupID, date string) ([]store.MedicationLog, error)
}

// Deps are the collaborators the server routes to. Runs and Metrics may be nil.
type Deps struct {
	Notifier Notifier
	Store    Store
	Runs     RunTrigger
	Metrics  http.Handler
	Version  string
}

// Server handles the HTTP API
type Server struct {
	app    *fiber.App
	config *config.Config
	deps   Deps
	logger *zap.Logger
}

// New creates a new API server
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	s := &Server{
		app:    app,
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address and blocks
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown drains connections
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
