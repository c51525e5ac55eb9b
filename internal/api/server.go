package api

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"cardiometrix/internal/importer"
	"cardiometrix/internal/risk"
	"cardiometrix/internal/types"
)

// RiskComputer runs the daily pipeline for one user-day on demand.
type RiskComputer interface {
	ComputeForUser(ctx context.Context, userID, asOfDate string) (risk.Outcome, error)
}

// BatchRunner runs the pipeline for the whole active cohort, either for
// today or as a replay of an explicit date.
type BatchRunner interface {
	RunDaily(ctx context.Context) (risk.RunSummary, error)
	RunForDate(ctx context.Context, asOfDate string) (risk.RunSummary, error)
}

// RiskReader reads persisted daily snapshots.
type RiskReader interface {
	GetRiskDaily(ctx context.Context, userID, asOfDate string) (*types.RiskDaily, error)
}

// RiskForecaster projects the recent risk trajectory forward.
type RiskForecaster interface {
	Forecast(ctx context.Context, userID, asOfDate string, horizons []int) (*risk.RiskForecast, error)
}

// NudgeAccess reads and transitions daily nudges.
type NudgeAccess interface {
	GetDailyNudge(ctx context.Context, userID, asOfDate string) (*types.DailyNudge, error)
	UpdateStatus(ctx context.Context, userID, asOfDate string, status types.NudgeStatus) error
}

// MeasurementWriter stores individual measurements.
type MeasurementWriter interface {
	Insert(ctx context.Context, m types.Measurement) (types.Measurement, error)
}

// BulkImporter ingests measurement export streams.
type BulkImporter interface {
	Import(ctx context.Context, userID string, r io.Reader) (importer.Stats, error)
}

// WeeklyService computes and reads weekly summaries.
type WeeklyService interface {
	ComputeWeekly(ctx context.Context, userID, dateISO string) (types.WeeklyRiskSummary, error)
	GetWeeklySummary(ctx context.Context, userID, weekStart string) (*types.WeeklyRiskSummary, error)
}

// UserDirectory resolves user timezone for "today" routes.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// ServerConfig holds the dependencies and settings of the API server.
type ServerConfig struct {
	Risk          RiskComputer
	Runner        BatchRunner
	Snapshots     RiskReader
	Forecast      RiskForecaster
	Nudges        NudgeAccess
	Measurements  MeasurementWriter
	Importer      BulkImporter
	Weekly        WeeklyService
	Users         UserDirectory
	JobSecretHash string
	Logger        *slog.Logger
	Now           func() time.Time
}

// Server is the HTTP API server.
type Server struct {
	cfg    ServerConfig
	router chi.Router
}

// NewServer creates a Server and mounts its routes.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{cfg: cfg, router: chi.NewRouter()}
	s.mountRoutes()
	return s
}

// Router returns the mounted router for use by an http.Server.
func (s *Server) Router() chi.Router {
	return s.router
}

// mountRoutes registers the middleware chain and the route tree. Order
// matters: the recoverer wraps everything, the request ID must exist before
// logging, and identity extraction runs per-group.
func (s *Server) mountRoutes() {
	s.router.Use(Recoverer(s.cfg.Logger))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.cfg.Logger))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Patient-facing routes require the gateway-injected identity.
		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Post("/measurements", s.handleCreateMeasurement)
			r.Post("/measurements/import", s.handleImportMeasurements)

			r.Post("/risk/compute", s.handleComputeRisk)
			r.Get("/risk/today", s.handleRiskToday)
			r.Get("/risk/forecast", s.handleRiskForecast)
			r.Get("/risk/{date}", s.handleRiskByDate)

			r.Get("/nudges/today", s.handleNudgeToday)
			r.Post("/nudges/{date}/status", s.handleNudgeStatus)

			r.Post("/summary/weekly/compute", s.handleComputeWeekly)
			r.Get("/summary/weekly", s.handleGetWeekly)
		})

		// Scheduler-facing routes are guarded by the job secret.
		r.Group(func(r chi.Router) {
			r.Use(RequireJobSecret(s.cfg.JobSecretHash))

			r.Post("/jobs/daily-risk", s.handleDailyRiskJob)
		})
	})
}
