// Package risk implements the daily risk pipeline: fetch a user's raw
// measurements, derive the feature vector, obtain a score from the remote
// model, persist the daily snapshot, and select the day's nudge. The
// orchestrator owns the ordering and failure semantics of one user-day; the
// runner fans it out across the active patient cohort.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cardiometrix/internal/features"
	"cardiometrix/internal/nudges"
	"cardiometrix/internal/scoring"
	"cardiometrix/internal/types"
)

// measurementLookbackDays is how far back raw measurements are fetched for a
// derivation. It must cover the lab lookback, the longest window of the rest
// of the vector being the 30-day baseline.
const measurementLookbackDays = features.LabLookbackDays

// MeasurementSource provides raw measurements for derivation.
type MeasurementSource interface {
	// ListForUser returns the user's measurements with measured_at in
	// [from, to], any type, in no particular order.
	ListForUser(ctx context.Context, userID string, from, to time.Time) ([]types.Measurement, error)
}

// NudgeHistorySource provides the recent nudge statuses that feed the
// adherence feature.
type NudgeHistorySource interface {
	// ListStatuses returns the statuses of nudges shown in [fromDate, toDate]
	// (inclusive calendar dates).
	ListStatuses(ctx context.Context, userID string, fromDate, toDate string) ([]types.NudgeStatus, error)
}

// Scorer produces a risk score for one feature vector. Implementations must
// degrade internally: a returned result with Band "unknown" is the failure
// signal, not an error.
type Scorer interface {
	ScoreOne(ctx context.Context, fv types.FeatureVectorV1) types.RiskScoreResult
}

// SnapshotStore persists daily risk snapshots keyed by (user_id, as_of_date).
type SnapshotStore interface {
	UpsertRiskDaily(ctx context.Context, snapshot types.RiskDaily) error
}

// NudgeStore persists daily nudges keyed by (user_id, as_of_date).
type NudgeStore interface {
	UpsertDailyNudge(ctx context.Context, nudge types.DailyNudge) error
}

// LegacyMirror writes the pre-pipeline projections still read by older
// clients. Mirror failures must not fail the run; they are logged and the
// canonical snapshot stands.
type LegacyMirror interface {
	MirrorRiskScore(ctx context.Context, score types.LegacyRiskScore) error
	MirrorNudge(ctx context.Context, nudge types.LegacyNudge) error
}

// PostCommitHook is invoked after a user-day has been fully persisted.
// Implementations must be best-effort: a hook failure never unwinds the run.
type PostCommitHook interface {
	DailyRiskComputed(ctx context.Context, msg types.PushMessage) error
}

// OrchestratorConfig holds the dependencies of an Orchestrator. Measurements,
// NudgeHistory, Scorer, Snapshots and Nudges are required; Legacy and Hook
// are optional.
type OrchestratorConfig struct {
	Measurements MeasurementSource
	NudgeHistory NudgeHistorySource
	Scorer       Scorer
	Snapshots    SnapshotStore
	Nudges       NudgeStore
	Legacy       LegacyMirror
	Hook         PostCommitHook
	Windows      features.Windows
	Logger       *slog.Logger
	Now          func() time.Time
}

// Orchestrator computes one user-day of the risk pipeline.
type Orchestrator struct {
	cfg     OrchestratorConfig
	deriver *features.Deriver
}

// NewOrchestrator creates an Orchestrator from the given config.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Measurements == nil || cfg.NudgeHistory == nil || cfg.Scorer == nil ||
		cfg.Snapshots == nil || cfg.Nudges == nil {
		return nil, fmt.Errorf("orchestrator: missing required dependency")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		cfg:     cfg,
		deriver: features.NewDeriver(cfg.Windows),
	}, nil
}

// Outcome is the result of one user-day computation.
type Outcome struct {
	Snapshot types.RiskDaily
	Nudge    types.DailyNudge
}

// ComputeForUser runs the full pipeline for one (user, as_of_date):
// derive, score, snapshot, nudge, legacy mirrors, post-commit hook.
//
// The operation is idempotent: recomputing a day overwrites the snapshot and
// resets the nudge to pending, because a recompute means the day's
// recommendation may have changed. A scorer outage or insufficient data
// yields an unknown-band snapshot rather than an error; errors are reserved
// for validation and persistence failures.
func (o *Orchestrator) ComputeForUser(ctx context.Context, userID, asOfDate string) (Outcome, error) {
	log := o.cfg.Logger.With(
		slog.String("user_id", userID),
		slog.String("as_of_date", asOfDate),
	)

	asOf, err := types.ParseDate(asOfDate)
	if err != nil {
		return Outcome{}, types.NewAppError(types.ErrCodeValidationInvalidDate,
			"as_of_date must be YYYY-MM-DD", err)
	}

	from := types.StartOfDay(asOf).AddDate(0, 0, -measurementLookbackDays)
	to := types.EndOfDay(asOf)
	ms, err := o.cfg.Measurements.ListForUser(ctx, userID, from, to)
	if err != nil {
		return Outcome{}, types.NewAppError(types.ErrCodeInternalDB,
			"failed to load measurements", err)
	}

	// Adherence covers the trailing week including today: a first run finds
	// no nudge for the as-of day yet, but a recompute counts the status the
	// user already set on today's nudge.
	histFrom := types.StartOfDay(asOf).AddDate(0, 0, -(o.recentDays() - 1)).Format(types.DateLayout)
	histTo := asOfDate
	statuses, err := o.cfg.NudgeHistory.ListStatuses(ctx, userID, histFrom, histTo)
	if err != nil {
		return Outcome{}, types.NewAppError(types.ErrCodeInternalDB,
			"failed to load nudge history", err)
	}

	derived, err := o.deriver.Derive(features.Inputs{
		UserID:        userID,
		AsOfDate:      asOfDate,
		Measurements:  ms,
		NudgeStatuses: statuses,
	})
	if err != nil {
		return Outcome{}, err
	}

	var result types.RiskScoreResult
	if derived.SufficientData {
		result = o.cfg.Scorer.ScoreOne(ctx, derived.Features)
	} else {
		result = scoring.InsufficientDataResult(asOfDate)
		log.Info("skipping scorer, insufficient data",
			slog.Int("total_points_30d", derived.Coverage.TotalPoints30d),
			slog.Int("bp_points_14d", derived.Coverage.BPPoints14d),
			slog.Int("weight_points_14d", derived.Coverage.WeightPoints14d),
		)
	}

	snapshot := types.RiskDaily{
		UserID:       userID,
		AsOfDate:     asOfDate,
		Risk:         result.Risk,
		Band:         result.Band,
		Drivers:      result.Drivers,
		ModelVersion: result.ModelVersion,
		Error:        result.Error,
		Features:     derived.Features,
		ComputedAt:   o.cfg.Now().UTC(),
	}
	if err := o.cfg.Snapshots.UpsertRiskDaily(ctx, snapshot); err != nil {
		return Outcome{}, types.NewAppError(types.ErrCodeInternalDB,
			"failed to persist risk snapshot", err)
	}

	nudge := nudges.Pick(userID, asOfDate, result.Band, result.Drivers)
	nudge.CreatedAt = snapshot.ComputedAt
	if err := o.cfg.Nudges.UpsertDailyNudge(ctx, nudge); err != nil {
		return Outcome{}, types.NewAppError(types.ErrCodeInternalDB,
			"failed to persist daily nudge", err)
	}

	o.mirrorLegacy(ctx, log, snapshot, nudge)
	o.notify(ctx, log, snapshot, nudge)

	log.Info("daily risk computed",
		slog.String("band", string(snapshot.Band)),
		slog.String("model_version", snapshot.ModelVersion),
		slog.Int("drivers", len(snapshot.Drivers)),
		slog.String("nudge_key", nudge.Key),
	)
	return Outcome{Snapshot: snapshot, Nudge: nudge}, nil
}

func (o *Orchestrator) recentDays() int {
	if o.cfg.Windows.RecentDays > 0 {
		return o.cfg.Windows.RecentDays
	}
	return features.DefaultWindows().RecentDays
}

// mirrorLegacy projects the day into the pre-pipeline tables. Best-effort.
func (o *Orchestrator) mirrorLegacy(ctx context.Context, log *slog.Logger, snapshot types.RiskDaily, nudge types.DailyNudge) {
	if o.cfg.Legacy == nil {
		return
	}
	if err := o.cfg.Legacy.MirrorRiskScore(ctx, ToLegacyRiskScore(snapshot)); err != nil {
		log.Warn("legacy risk score mirror failed", slog.String("error", err.Error()))
	}
	if err := o.cfg.Legacy.MirrorNudge(ctx, ToLegacyNudge(nudge, snapshot)); err != nil {
		log.Warn("legacy nudge mirror failed", slog.String("error", err.Error()))
	}
}

// notify fires the post-commit hook for elevated days. Green and unknown days
// are not push-worthy.
func (o *Orchestrator) notify(ctx context.Context, log *slog.Logger, snapshot types.RiskDaily, nudge types.DailyNudge) {
	if o.cfg.Hook == nil {
		return
	}
	if snapshot.Band != types.BandAmber && snapshot.Band != types.BandRed {
		return
	}
	msg := types.PushMessage{
		MessageID: fmt.Sprintf("%s:%s", snapshot.UserID, snapshot.AsOfDate),
		UserID:    snapshot.UserID,
		AsOfDate:  snapshot.AsOfDate,
		Band:      snapshot.Band,
		NudgeText: nudge.Text,
	}
	if err := o.cfg.Hook.DailyRiskComputed(ctx, msg); err != nil {
		log.Warn("post-commit hook failed", slog.String("error", err.Error()))
	}
}
