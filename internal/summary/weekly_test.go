package summary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"cardiometrix/internal/types"
)

const dateISO = "2026-03-31" // a Tuesday

func snapshot(date string, risk float64) types.RiskDaily {
	return types.RiskDaily{UserID: "u-1", AsOfDate: date, Risk: &risk, Band: types.BandAmber}
}

func bpOn(date string, sys, dia float64) types.Measurement {
	t, _ := types.ParseDate(date)
	return types.Measurement{
		UserID:     "u-1",
		Type:       types.MeasurementBP,
		MeasuredAt: t.Add(8 * time.Hour),
		Payload:    map[string]any{"systolic": sys, "diastolic": dia},
	}
}

func weightOn(date string, kg float64) types.Measurement {
	t, _ := types.ParseDate(date)
	return types.Measurement{
		UserID:     "u-1",
		Type:       types.MeasurementWeight,
		MeasuredAt: t.Add(7 * time.Hour),
		Payload:    map[string]any{"kg": kg},
	}
}

func dayISO(daysBack int) string {
	t, _ := types.ParseDate(dateISO)
	return t.AddDate(0, 0, -daysBack).Format(types.DateLayout)
}

func TestBuildNoData(t *testing.T) {
	s := Build(Inputs{UserID: "u-1", DateISO: dateISO})

	if s.Signals.Trend != types.TrendStable || s.Signals.DeteriorationDetected {
		t.Fatalf("signals = %+v, want stable and no deterioration", s.Signals)
	}
	if !strings.Contains(s.SummaryText, "not enough data") {
		t.Fatalf("summary = %q, want no-data text", s.SummaryText)
	}
	if s.Metrics.RiskScoreAvg7d != nil || s.Metrics.BPSysSlope14d != nil {
		t.Fatal("metrics must be nil with no data")
	}
	if s.HorizonDays != HorizonDays {
		t.Fatalf("horizon = %d, want %d", s.HorizonDays, HorizonDays)
	}
}

func TestBuildWeekBoundaries(t *testing.T) {
	s := Build(Inputs{UserID: "u-1", DateISO: dateISO})
	// 2026-03-31 falls in the Monday-start week of 2026-03-30.
	if s.WeekStart != "2026-03-30" || s.WeekEnd != "2026-04-05" {
		t.Fatalf("week = %s..%s, want 2026-03-30..2026-04-05", s.WeekStart, s.WeekEnd)
	}
}

func TestBuildRisingRiskIsWorsening(t *testing.T) {
	// Risk climbing 0.01/day dwarfs the 0.003 threshold.
	var snaps []types.RiskDaily
	for i := 0; i < 14; i++ {
		snaps = append(snaps, snapshot(dayISO(13-i), 0.30+0.01*float64(i)))
	}
	s := Build(Inputs{UserID: "u-1", DateISO: dateISO, Snapshots: snaps})

	if s.Signals.Trend != types.TrendWorsening || !s.Signals.DeteriorationDetected {
		t.Fatalf("signals = %+v, want worsening with deterioration", s.Signals)
	}
	if !strings.Contains(s.SummaryText, "deterioration detected") {
		t.Fatalf("summary = %q, want deterioration text", s.SummaryText)
	}
	found := false
	for _, e := range s.Explanations {
		if strings.Contains(e, "Risk score is trending up") {
			found = true
		}
	}
	if !found {
		t.Fatalf("explanations missing rising-risk line: %v", s.Explanations)
	}
}

func TestBuildFallingRiskIsImproving(t *testing.T) {
	var snaps []types.RiskDaily
	for i := 0; i < 14; i++ {
		snaps = append(snaps, snapshot(dayISO(13-i), 0.50-0.01*float64(i)))
	}
	s := Build(Inputs{UserID: "u-1", DateISO: dateISO, Snapshots: snaps})

	if s.Signals.Trend != types.TrendImproving {
		t.Fatalf("trend = %s, want improving", s.Signals.Trend)
	}
	if !strings.Contains(s.SummaryText, "improving") {
		t.Fatalf("summary = %q, want improving text", s.SummaryText)
	}
}

func TestBuildElevatedRisingSystolicDeteriorates(t *testing.T) {
	// Systolic rising 1 mmHg/day with a 7-day average well above 130.
	var ms []types.Measurement
	for i := 0; i < 14; i++ {
		ms = append(ms, bpOn(dayISO(13-i), 128+float64(i), 78))
	}
	s := Build(Inputs{UserID: "u-1", DateISO: dateISO, Measurements: ms})

	if !s.Signals.DeteriorationDetected {
		t.Fatal("elevated rising systolic must flag deterioration")
	}
	// No risk series, so the deterioration flag decides the trend.
	if s.Signals.Trend != types.TrendWorsening {
		t.Fatalf("trend = %s, want worsening", s.Signals.Trend)
	}
	found := false
	for _, e := range s.Explanations {
		if strings.Contains(e, "Systolic BP is rising") {
			found = true
		}
	}
	if !found {
		t.Fatalf("explanations missing systolic line: %v", s.Explanations)
	}
}

func TestBuildNormotensiveRisingSystolicIsNotDeterioration(t *testing.T) {
	// Same 1 mmHg/day rise but the average stays well below 130.
	var ms []types.Measurement
	for i := 0; i < 14; i++ {
		ms = append(ms, bpOn(dayISO(13-i), 105+float64(i), 68))
	}
	s := Build(Inputs{UserID: "u-1", DateISO: dateISO, Measurements: ms})

	if s.Signals.DeteriorationDetected {
		t.Fatal("rising but normotensive BP must not flag deterioration")
	}
	if s.Signals.Trend != types.TrendStable {
		t.Fatalf("trend = %s, want stable", s.Signals.Trend)
	}
}

func TestBuildWeightGainDeteriorates(t *testing.T) {
	// 0.1 kg/day exceeds the 0.05 threshold; no BP gate applies to weight.
	var ms []types.Measurement
	for i := 0; i < 14; i++ {
		ms = append(ms, weightOn(dayISO(13-i), 80+0.1*float64(i)))
	}
	s := Build(Inputs{UserID: "u-1", DateISO: dateISO, Measurements: ms})

	if !s.Signals.DeteriorationDetected {
		t.Fatal("steady weight gain must flag deterioration")
	}
}

func TestBuildStableRiskOverridesDeteriorationTrend(t *testing.T) {
	// Flat risk series with a worsening weight trend: deterioration is
	// flagged but the trend verdict follows the risk slope.
	var snaps []types.RiskDaily
	for i := 0; i < 14; i++ {
		snaps = append(snaps, snapshot(dayISO(13-i), 0.30))
	}
	var ms []types.Measurement
	for i := 0; i < 14; i++ {
		ms = append(ms, weightOn(dayISO(13-i), 80+0.1*float64(i)))
	}
	s := Build(Inputs{UserID: "u-1", DateISO: dateISO, Snapshots: snaps, Measurements: ms})

	if !s.Signals.DeteriorationDetected {
		t.Fatal("weight gain must still flag deterioration")
	}
	if s.Signals.Trend != types.TrendStable {
		t.Fatalf("trend = %s, want stable (risk series is flat)", s.Signals.Trend)
	}
	if !strings.Contains(s.SummaryText, "deterioration detected") {
		t.Fatalf("summary = %q, deterioration text takes precedence", s.SummaryText)
	}
}

func TestBuildUnknownDaysExcludedFromRiskSeries(t *testing.T) {
	snaps := []types.RiskDaily{
		snapshot(dayISO(3), 0.30),
		{UserID: "u-1", AsOfDate: dayISO(2), Band: types.BandUnknown}, // no score
		snapshot(dayISO(1), 0.31),
	}
	s := Build(Inputs{UserID: "u-1", DateISO: dateISO, Snapshots: snaps})

	if s.Metrics.RiskScoreAvg7d == nil {
		t.Fatal("scored days must produce an average")
	}
	want := (0.30 + 0.31) / 2
	if diff := *s.Metrics.RiskScoreAvg7d - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("avg = %v, want %v ignoring unknown day", *s.Metrics.RiskScoreAvg7d, want)
	}
}

func TestBuildSingleDaySeriesHasNoSlope(t *testing.T) {
	s := Build(Inputs{
		UserID:       "u-1",
		DateISO:      dateISO,
		Measurements: []types.Measurement{bpOn(dayISO(1), 130, 85), bpOn(dayISO(1), 134, 87)},
	})
	if s.Metrics.BPSysSlope14d != nil {
		t.Fatal("one distinct day cannot have a slope")
	}
	// Two same-day readings average into one daily point.
	if s.Metrics.BPSysAvg7d == nil || *s.Metrics.BPSysAvg7d != 132 {
		t.Fatalf("BPSysAvg7d = %v, want 132", s.Metrics.BPSysAvg7d)
	}
}

// --- engine tests ---

type mockRiskHistory struct {
	snaps []types.RiskDaily
	err   error
}

func (m *mockRiskHistory) ListSnapshots(_ context.Context, _, _, _ string) ([]types.RiskDaily, error) {
	return m.snaps, m.err
}

type mockMeasurements struct {
	ms []types.Measurement
}

func (m *mockMeasurements) ListForUser(_ context.Context, _ string, _, _ time.Time) ([]types.Measurement, error) {
	return m.ms, nil
}

type mockStore struct {
	upserts []types.WeeklyRiskSummary
	err     error
}

func (m *mockStore) UpsertWeeklySummary(_ context.Context, s types.WeeklyRiskSummary) error {
	if m.err != nil {
		return m.err
	}
	m.upserts = append(m.upserts, s)
	return nil
}

func TestComputeWeeklyPersists(t *testing.T) {
	store := &mockStore{}
	eng, err := NewEngine(EngineConfig{
		Risk:         &mockRiskHistory{snaps: []types.RiskDaily{snapshot(dayISO(1), 0.2), snapshot(dayISO(2), 0.2)}},
		Measurements: &mockMeasurements{},
		Store:        store,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:          func() time.Time { return time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	s, err := eng.ComputeWeekly(context.Background(), "u-1", dateISO)
	if err != nil {
		t.Fatalf("ComputeWeekly: %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(store.upserts))
	}
	if s.ComputedAt.IsZero() {
		t.Fatal("ComputedAt must be stamped")
	}
	if s.UserID != "u-1" || s.WeekStart != "2026-03-30" {
		t.Fatalf("unexpected summary key: %s/%s", s.UserID, s.WeekStart)
	}
}

func TestComputeWeeklyRejectsBadDate(t *testing.T) {
	eng, _ := NewEngine(EngineConfig{
		Risk:         &mockRiskHistory{},
		Measurements: &mockMeasurements{},
		Store:        &mockStore{},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	_, err := eng.ComputeWeekly(context.Background(), "u-1", "03/31/2026")
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationInvalidDate {
		t.Fatalf("error = %v, want %s", err, types.ErrCodeValidationInvalidDate)
	}
}

func TestComputeWeeklyHistoryFailure(t *testing.T) {
	eng, _ := NewEngine(EngineConfig{
		Risk:         &mockRiskHistory{err: errors.New("timeout")},
		Measurements: &mockMeasurements{},
		Store:        &mockStore{},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	_, err := eng.ComputeWeekly(context.Background(), "u-1", dateISO)
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeInternalDB {
		t.Fatalf("error = %v, want %s", err, types.ErrCodeInternalDB)
	}
}
