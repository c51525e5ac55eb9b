// Package summary implements the weekly trend summary: 7-day averages and
// 14-day slopes over daily risk scores, blood pressure, and weight, distilled
// into deterioration signals and a short narrative. The numeric core is a
// pure function so the trend rules can be tested without storage.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"cardiometrix/internal/stats"
	"cardiometrix/internal/types"
)

// HorizonDays is the horizon stamped on every weekly summary.
const HorizonDays = 7

// slopeMinPoints is the minimum series length for a 14-day slope. Two points
// give a crude but usable direction; one gives nothing.
const slopeMinPoints = 2

// Deterioration thresholds on the 14-day slopes (units per day). BP slopes
// additionally require an elevated 7-day average before they count, so a
// normotensive user trending 118 to 122 is not flagged.
const (
	riskSlopeThreshold   = 0.003
	bpSysSlopeThreshold  = 0.4
	bpDiaSlopeThreshold  = 0.2
	weightSlopeThreshold = 0.05

	bpSysElevatedAvg = 130.0
	bpDiaElevatedAvg = 80.0
)

// RiskHistorySource provides the recent daily snapshots for one user.
type RiskHistorySource interface {
	// ListSnapshots returns the user's daily snapshots with as_of_date in
	// [fromDate, toDate], ordered by date ascending.
	ListSnapshots(ctx context.Context, userID string, fromDate, toDate string) ([]types.RiskDaily, error)
}

// MeasurementSource provides raw measurements of one type for the trend
// windows.
type MeasurementSource interface {
	ListForUser(ctx context.Context, userID string, from, to time.Time) ([]types.Measurement, error)
}

// Store persists weekly summaries keyed by (user_id, week_start).
type Store interface {
	UpsertWeeklySummary(ctx context.Context, s types.WeeklyRiskSummary) error
}

// EngineConfig holds the dependencies of an Engine.
type EngineConfig struct {
	Risk         RiskHistorySource
	Measurements MeasurementSource
	Store        Store
	Logger       *slog.Logger
	Now          func() time.Time
}

// Engine computes and persists weekly trend summaries.
type Engine struct {
	cfg EngineConfig
}

// NewEngine creates an Engine from the given config.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Risk == nil || cfg.Measurements == nil || cfg.Store == nil {
		return nil, fmt.Errorf("summary engine: missing required dependency")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{cfg: cfg}, nil
}

// ComputeWeekly builds and upserts the weekly summary for the week containing
// dateISO. Trend windows end at dateISO, not at the week boundary, so a
// mid-week recompute reflects the latest data.
func (e *Engine) ComputeWeekly(ctx context.Context, userID, dateISO string) (types.WeeklyRiskSummary, error) {
	date, err := types.ParseDate(dateISO)
	if err != nil {
		return types.WeeklyRiskSummary{}, types.NewAppError(types.ErrCodeValidationInvalidDate,
			"date must be YYYY-MM-DD", err)
	}

	from14 := types.StartOfDay(date).AddDate(0, 0, -13)
	to := types.EndOfDay(date)

	snapshots, err := e.cfg.Risk.ListSnapshots(ctx, userID,
		from14.Format(types.DateLayout), dateISO)
	if err != nil {
		return types.WeeklyRiskSummary{}, types.NewAppError(types.ErrCodeInternalDB,
			"failed to load risk history", err)
	}

	ms, err := e.cfg.Measurements.ListForUser(ctx, userID, from14, to)
	if err != nil {
		return types.WeeklyRiskSummary{}, types.NewAppError(types.ErrCodeInternalDB,
			"failed to load measurements", err)
	}

	s := Build(Inputs{
		UserID:       userID,
		DateISO:      dateISO,
		Snapshots:    snapshots,
		Measurements: ms,
	})
	s.ComputedAt = e.cfg.Now().UTC()

	if err := e.cfg.Store.UpsertWeeklySummary(ctx, s); err != nil {
		return types.WeeklyRiskSummary{}, types.NewAppError(types.ErrCodeInternalDB,
			"failed to persist weekly summary", err)
	}

	e.cfg.Logger.Info("weekly summary computed",
		slog.String("user_id", userID),
		slog.String("week_start", s.WeekStart),
		slog.String("trend", string(s.Signals.Trend)),
		slog.Bool("deterioration", s.Signals.DeteriorationDetected),
	)
	return s, nil
}

// Inputs carries the pre-fetched data for one weekly build.
type Inputs struct {
	UserID       string
	DateISO      string
	Snapshots    []types.RiskDaily
	Measurements []types.Measurement
}

// seriesPoint is one day of a daily-averaged series.
type seriesPoint struct {
	date  string
	value float64
}

// Build computes the weekly summary from pre-fetched inputs. Pure.
func Build(in Inputs) types.WeeklyRiskSummary {
	date, err := types.ParseDate(in.DateISO)
	if err != nil {
		// Callers validate the date; an unparseable one here is a programming
		// error, so return an empty no-data summary rather than panic.
		date = time.Time{}
	}

	weekStart := types.WeekStart(date)
	weekEnd := weekStart.AddDate(0, 0, 6)
	start7 := types.StartOfDay(date).AddDate(0, 0, -6).Format(types.DateLayout)

	riskSeries := riskSeriesFrom(in.Snapshots)
	sysSeries := dailySeries(in.Measurements, types.MeasurementBP, "systolic")
	diaSeries := dailySeries(in.Measurements, types.MeasurementBP, "diastolic")
	weightSeries := dailySeries(in.Measurements, types.MeasurementWeight, "kg")

	metrics := types.WeeklyMetrics{
		RiskScoreAvg7d:    avgForWindow(riskSeries, start7),
		RiskScoreSlope14d: seriesSlope(riskSeries),
		BPSysAvg7d:        avgForWindow(sysSeries, start7),
		BPSysSlope14d:     seriesSlope(sysSeries),
		BPDiaAvg7d:        avgForWindow(diaSeries, start7),
		BPDiaSlope14d:     seriesSlope(diaSeries),
		WeightAvg7d:       avgForWindow(weightSeries, start7),
		WeightSlope14d:    seriesSlope(weightSeries),
	}

	hasAnyData := len(riskSeries) > 0 || len(sysSeries) > 0 ||
		len(diaSeries) > 0 || len(weightSeries) > 0

	signals := deriveSignals(metrics)
	explanations := buildExplanations(metrics, hasAnyData)
	summaryText := buildSummaryText(hasAnyData, signals)

	return types.WeeklyRiskSummary{
		UserID:       in.UserID,
		WeekStart:    weekStart.Format(types.DateLayout),
		WeekEnd:      weekEnd.Format(types.DateLayout),
		HorizonDays:  HorizonDays,
		Metrics:      metrics,
		Signals:      signals,
		Explanations: explanations,
		SummaryText:  summaryText,
	}
}

func deriveSignals(m types.WeeklyMetrics) types.WeeklySignals {
	deterioration := exceeds(m.RiskScoreSlope14d, riskSlopeThreshold) ||
		(exceeds(m.BPSysSlope14d, bpSysSlopeThreshold) && atLeast(m.BPSysAvg7d, bpSysElevatedAvg)) ||
		(exceeds(m.BPDiaSlope14d, bpDiaSlopeThreshold) && atLeast(m.BPDiaAvg7d, bpDiaElevatedAvg)) ||
		exceeds(m.WeightSlope14d, weightSlopeThreshold)

	// The risk slope is the primary trend signal; the deterioration flag only
	// decides the trend when no risk series exists.
	trend := types.TrendStable
	if m.RiskScoreSlope14d != nil {
		if *m.RiskScoreSlope14d > riskSlopeThreshold {
			trend = types.TrendWorsening
		}
		if *m.RiskScoreSlope14d < -riskSlopeThreshold {
			trend = types.TrendImproving
		}
	} else if deterioration {
		trend = types.TrendWorsening
	}

	return types.WeeklySignals{DeteriorationDetected: deterioration, Trend: trend}
}

func buildExplanations(m types.WeeklyMetrics, hasAnyData bool) []string {
	var out []string

	if m.RiskScoreAvg7d != nil {
		out = append(out, fmt.Sprintf("This week's average risk score is %.2f.", *m.RiskScoreAvg7d))
	}
	if !hasAnyData {
		out = append(out, "Add at least a few BP and weight readings to generate weekly trends.")
	}
	if m.RiskScoreSlope14d != nil && math.Abs(*m.RiskScoreSlope14d) >= riskSlopeThreshold {
		out = append(out, fmt.Sprintf("Risk score is trending %s over 2 weeks (%s).",
			upOrDown(*m.RiskScoreSlope14d), formatDelta(*m.RiskScoreSlope14d, "risk score")))
	}
	if m.BPSysAvg7d != nil {
		out = append(out, fmt.Sprintf("Average systolic BP this week is %.0f mmHg.", *m.BPSysAvg7d))
	}
	if m.BPSysSlope14d != nil && math.Abs(*m.BPSysSlope14d) >= bpSysSlopeThreshold {
		out = append(out, fmt.Sprintf("Systolic BP is %s (%s over 2 weeks).",
			risingOrFalling(*m.BPSysSlope14d), formatDelta(*m.BPSysSlope14d, "mmHg")))
	}
	if m.BPDiaAvg7d != nil {
		out = append(out, fmt.Sprintf("Average diastolic BP this week is %.0f mmHg.", *m.BPDiaAvg7d))
	}
	if m.BPDiaSlope14d != nil && math.Abs(*m.BPDiaSlope14d) >= bpDiaSlopeThreshold {
		out = append(out, fmt.Sprintf("Diastolic BP is %s (%s over 2 weeks).",
			risingOrFalling(*m.BPDiaSlope14d), formatDelta(*m.BPDiaSlope14d, "mmHg")))
	}
	if m.WeightAvg7d != nil {
		out = append(out, fmt.Sprintf("Average weight this week is %.1f kg.", *m.WeightAvg7d))
	}
	if m.WeightSlope14d != nil && math.Abs(*m.WeightSlope14d) >= weightSlopeThreshold {
		direction := "increasing"
		if *m.WeightSlope14d < 0 {
			direction = "decreasing"
		}
		out = append(out, fmt.Sprintf("Weight is %s (%s over 2 weeks).",
			direction, formatDelta(*m.WeightSlope14d, "kg")))
	}

	return out
}

func buildSummaryText(hasAnyData bool, s types.WeeklySignals) string {
	switch {
	case !hasAnyData:
		return "Weekly risk summary: not enough data yet. Log measurements to see trends."
	case s.DeteriorationDetected:
		return "Weekly risk summary: gradual deterioration detected. Focus on BP control and weight stability."
	case s.Trend == types.TrendImproving:
		return "Weekly risk summary: trends are improving. Keep up the current routine."
	default:
		return "Weekly risk summary: trends are stable. Maintain current habits and monitoring."
	}
}

// riskSeriesFrom keeps only scored days; unknown-band days have no score and
// must not flatten the series.
func riskSeriesFrom(snapshots []types.RiskDaily) []seriesPoint {
	var out []seriesPoint
	for _, s := range snapshots {
		if s.Risk == nil {
			continue
		}
		out = append(out, seriesPoint{date: s.AsOfDate, value: *s.Risk})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].date < out[j].date })
	return out
}

// dailySeries groups measurements by calendar date, averaging within each
// day, producing a date-ascending series.
func dailySeries(ms []types.Measurement, mt types.MeasurementType, field string) []seriesPoint {
	byDate := make(map[string][]float64)
	for _, m := range ms {
		if m.Type != mt || m.Payload == nil {
			continue
		}
		v, ok := m.Payload[field].(float64)
		if !ok || math.IsNaN(v) {
			continue
		}
		date := m.MeasuredAt.UTC().Format(types.DateLayout)
		byDate[date] = append(byDate[date], v)
	}

	out := make([]seriesPoint, 0, len(byDate))
	for date, vals := range byDate {
		out = append(out, seriesPoint{date: date, value: stats.Mean(vals)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].date < out[j].date })
	return out
}

func avgForWindow(series []seriesPoint, startDate string) *float64 {
	var vals []float64
	for _, p := range series {
		if p.date >= startDate {
			vals = append(vals, p.value)
		}
	}
	if len(vals) == 0 {
		return nil
	}
	v := stats.Mean(vals)
	return &v
}

func seriesSlope(series []seriesPoint) *float64 {
	if len(series) < slopeMinPoints {
		return nil
	}
	points := make([]stats.Point, 0, len(series))
	for _, p := range series {
		t, err := types.ParseDate(p.date)
		if err != nil {
			continue
		}
		points = append(points, stats.Point{At: t, Value: p.value})
	}
	if len(points) < slopeMinPoints {
		return nil
	}
	v := stats.LinearSlope(points, slopeMinPoints)
	return &v
}

// formatDelta projects a per-day slope across the 14-day window into a signed
// total change for display.
func formatDelta(slope float64, unit string) string {
	delta := slope * 13
	sign := ""
	if delta >= 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.1f %s", sign, delta, unit)
}

func upOrDown(v float64) string {
	if v > 0 {
		return "up"
	}
	return "down"
}

func risingOrFalling(v float64) string {
	if v > 0 {
		return "rising"
	}
	return "falling"
}

func exceeds(v *float64, threshold float64) bool {
	return v != nil && *v > threshold
}

func atLeast(v *float64, floor float64) bool {
	return v != nil && *v >= floor
}
