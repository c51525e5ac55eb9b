package risk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cardiometrix/internal/types"
)

// DefaultConcurrency bounds the per-run fan-out when no explicit limit is
// configured. The ceiling is the scorer's rate budget, not CPU.
const DefaultConcurrency = 8

// PatientDirectory lists the users a daily batch run covers.
type PatientDirectory interface {
	// ListActivePatients returns every user with the patient role.
	ListActivePatients(ctx context.Context) ([]types.User, error)
}

// RunSummary aggregates the per-user outcomes of one batch run.
type RunSummary struct {
	RunDate   string                `json:"run_date"`
	Total     int                   `json:"total"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Results   []types.UserRunResult `json:"results"`
	Elapsed   time.Duration         `json:"elapsed"`
}

// Runner fans the daily pipeline out across the active patient cohort.
type Runner struct {
	orch        *Orchestrator
	directory   PatientDirectory
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// NewRunner creates a Runner. A non-positive concurrency falls back to
// DefaultConcurrency.
func NewRunner(orch *Orchestrator, directory PatientDirectory, concurrency int, logger *slog.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		orch:        orch,
		directory:   directory,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// RunDaily computes the pipeline for every active patient. Each user's as-of
// date is the current calendar date in their own timezone, so a late-evening
// UTC run still lands on the right local day.
//
// One user's failure never aborts the others: failures are recorded in the
// summary and the run itself only errors when the cohort cannot be listed.
func (r *Runner) RunDaily(ctx context.Context) (RunSummary, error) {
	started := r.now()
	return r.run(ctx, started.UTC().Format(types.DateLayout), func(p types.User) string {
		return types.LocalDate(started, p.Timezone)
	})
}

// RunForDate replays the pipeline for every active patient at an explicit
// as-of date, ignoring per-user timezones. Upsert semantics make replays
// idempotent.
func (r *Runner) RunForDate(ctx context.Context, asOfDate string) (RunSummary, error) {
	if _, err := types.ParseDate(asOfDate); err != nil {
		return RunSummary{}, types.NewAppError(types.ErrCodeValidationInvalidDate,
			"date must be YYYY-MM-DD", err)
	}
	return r.run(ctx, asOfDate, func(types.User) string { return asOfDate })
}

func (r *Runner) run(ctx context.Context, runDate string, dateFor func(types.User) string) (RunSummary, error) {
	started := r.now()

	patients, err := r.directory.ListActivePatients(ctx)
	if err != nil {
		return RunSummary{}, types.NewAppError(types.ErrCodeInternalDB,
			"failed to list active patients", err)
	}

	r.logger.Info("daily risk run starting",
		slog.String("run_date", runDate),
		slog.Int("patients", len(patients)),
		slog.Int("concurrency", r.concurrency),
	)

	var mu sync.Mutex
	results := make([]types.UserRunResult, 0, len(patients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, p := range patients {
		patient := p
		g.Go(func() error {
			asOf := dateFor(patient)
			_, err := r.orch.ComputeForUser(gctx, patient.ID, asOf)

			res := types.UserRunResult{UserID: patient.ID, OK: err == nil}
			if err != nil {
				res.Error = err.Error()
				r.logger.Error("user run failed",
					slog.String("user_id", patient.ID),
					slog.String("as_of_date", asOf),
					slog.String("error", err.Error()),
				)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			// Never propagate: sibling users must still run.
			return nil
		})
	}
	_ = g.Wait()

	summary := RunSummary{
		RunDate: runDate,
		Total:   len(results),
		Results: results,
		Elapsed: r.now().Sub(started),
	}
	for _, res := range results {
		if res.OK {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	r.logger.Info("daily risk run finished",
		slog.String("run_date", runDate),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}
