package features

import (
	"fmt"
	"math"
	"testing"
	"time"

	"cardiometrix/internal/types"
)

const asOf = "2026-03-31"

func at(daysBack int, hour int) time.Time {
	base := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, -daysBack).Add(time.Duration(hour) * time.Hour)
}

func measurement(mt types.MeasurementType, t time.Time, payload map[string]any) types.Measurement {
	return types.Measurement{
		ID:         fmt.Sprintf("%s-%d", mt, t.Unix()),
		UserID:     "u-1",
		Type:       mt,
		MeasuredAt: t,
		Payload:    payload,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func derive(t *testing.T, ms []types.Measurement, statuses []types.NudgeStatus) Result {
	t.Helper()
	d := NewDeriver(DefaultWindows())
	res, err := d.Derive(Inputs{
		UserID:        "u-1",
		AsOfDate:      asOf,
		Measurements:  ms,
		NudgeStatuses: statuses,
	})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	return res
}

func TestDeriveEmptyInputs(t *testing.T) {
	res := derive(t, nil, nil)

	fv := res.Features
	if fv.BPSysTrend14d != 0 || fv.WeightTrend14d != 0 || fv.HRVZ7d != 0 {
		t.Fatalf("expected zero trends and z-scores, got %+v", fv)
	}
	// No sleep data means a full week at the target shortfall, clamped to 4.
	if fv.SleepDebtHrs7d != 4 {
		t.Fatalf("SleepDebtHrs7d = %v, want 4", fv.SleepDebtHrs7d)
	}
	if fv.AdherenceNudge7d != 0.5 {
		t.Fatalf("AdherenceNudge7d = %v, want neutral 0.5", fv.AdherenceNudge7d)
	}
	if fv.A1cLatest != nil || fv.LDLLatest != nil {
		t.Fatal("expected nil lab values with no measurements")
	}
	if res.SufficientData {
		t.Fatal("no measurements must not be sufficient for scoring")
	}
}

func TestDeriveBPTrendAndClamp(t *testing.T) {
	// Systolic rising 1 mmHg/day over 5 days.
	var ms []types.Measurement
	for i := 0; i < 5; i++ {
		ms = append(ms, measurement(types.MeasurementBP, at(4-i, 8), map[string]any{
			"systolic":  float64(120 + i),
			"diastolic": float64(80),
		}))
	}
	res := derive(t, ms, nil)

	if !almostEqual(res.Features.BPSysTrend14d, 1) {
		t.Fatalf("BPSysTrend14d = %v, want 1", res.Features.BPSysTrend14d)
	}
	if !almostEqual(res.Features.BPDiaTrend14d, 0) {
		t.Fatalf("BPDiaTrend14d = %v, want 0 for flat diastolic", res.Features.BPDiaTrend14d)
	}
	if !res.SufficientData {
		t.Fatal("5 BP readings in window must be sufficient")
	}

	// A pathological 10 mmHg/day ramp clamps to the +5 ceiling.
	var steep []types.Measurement
	for i := 0; i < 4; i++ {
		steep = append(steep, measurement(types.MeasurementBP, at(3-i, 8), map[string]any{
			"systolic":  float64(100 + 10*i),
			"diastolic": float64(70),
		}))
	}
	res = derive(t, steep, nil)
	if res.Features.BPSysTrend14d != types.ClampBPTrend.Max {
		t.Fatalf("steep trend = %v, want clamped to %v", res.Features.BPSysTrend14d, types.ClampBPTrend.Max)
	}
}

func TestDeriveHRVZScore(t *testing.T) {
	var ms []types.Measurement
	// Baseline: rmssd 50 on days 10..20 back (outside the recent window).
	for i := 10; i <= 20; i++ {
		ms = append(ms, measurement(types.MeasurementHRV, at(i, 7), map[string]any{"rmssd": 50.0}))
	}
	// Recent: rmssd 30, a marked drop.
	ms = append(ms, measurement(types.MeasurementHRV, at(1, 7), map[string]any{"rmssd": 30.0}))
	// Coverage gate needs a BP or weight reading.
	ms = append(ms, measurement(types.MeasurementWeight, at(2, 7), map[string]any{"kg": 80.0}))

	res := derive(t, ms, nil)

	// Constant baseline std floors at 0.25: (30-50)/0.25 = -80, clamped to -4.
	if res.Features.HRVZ7d != types.ClampZ.Min {
		t.Fatalf("HRVZ7d = %v, want clamped %v", res.Features.HRVZ7d, types.ClampZ.Min)
	}
}

func TestDeriveSleepDebtUsesMaxPerDay(t *testing.T) {
	ms := []types.Measurement{
		// Two samples same day: main sleep 6h plus a wearable re-read of 5h.
		// The max (6h) counts, not the sum.
		measurement(types.MeasurementSleep, at(1, 7), map[string]any{"hours": 6.0}),
		measurement(types.MeasurementSleep, at(1, 9), map[string]any{"hours": 5.0}),
		// Minutes payload converts: 450 minutes = 7.5h, zero shortfall.
		measurement(types.MeasurementSleep, at(2, 7), map[string]any{"minutes": 450.0}),
		measurement(types.MeasurementWeight, at(1, 8), map[string]any{"kg": 80.0}),
		measurement(types.MeasurementWeight, at(3, 8), map[string]any{"kg": 80.1}),
		measurement(types.MeasurementWeight, at(5, 8), map[string]any{"kg": 80.2}),
	}
	res := derive(t, ms, nil)

	// Day-1 shortfall 1.5h, day-2 zero, five empty days at 7.5h each:
	// (1.5 + 0 + 5*7.5)/7 = 5.57..., clamped to 4.
	if res.Features.SleepDebtHrs7d != 4 {
		t.Fatalf("SleepDebtHrs7d = %v, want clamped 4", res.Features.SleepDebtHrs7d)
	}
}

func TestDeriveSleepDebtPartialWeek(t *testing.T) {
	var ms []types.Measurement
	for i := 0; i < 7; i++ {
		ms = append(ms, measurement(types.MeasurementSleep, at(i, 7), map[string]any{"hours": 7.0}))
	}
	ms = append(ms,
		measurement(types.MeasurementWeight, at(1, 8), map[string]any{"kg": 80.0}),
		measurement(types.MeasurementWeight, at(3, 8), map[string]any{"kg": 80.0}),
		measurement(types.MeasurementWeight, at(5, 8), map[string]any{"kg": 80.0}),
	)
	res := derive(t, ms, nil)

	// 0.5h shortfall every night.
	if !almostEqual(res.Features.SleepDebtHrs7d, 0.5) {
		t.Fatalf("SleepDebtHrs7d = %v, want 0.5", res.Features.SleepDebtHrs7d)
	}
}

func TestDeriveGlucoseUnitConversion(t *testing.T) {
	ms := []types.Measurement{
		measurement(types.MeasurementGlucose, at(4, 8), map[string]any{"mgdl": 100.0}),
		// 5.55 mmol/L is ~100 mg/dL, so the trend over these stays near zero.
		measurement(types.MeasurementGlucose, at(2, 8), map[string]any{"mmol": 100.0 / mmolToMgdl}),
		measurement(types.MeasurementGlucose, at(0, 8), map[string]any{"mgdl": 100.0}),
		measurement(types.MeasurementWeight, at(1, 8), map[string]any{"kg": 80.0}),
	}
	res := derive(t, ms, nil)

	if !almostEqual(res.Features.GlucoseTrend14d, 0) {
		t.Fatalf("GlucoseTrend14d = %v, want 0 after unit normalization", res.Features.GlucoseTrend14d)
	}
}

func TestDeriveLatestLabs(t *testing.T) {
	older := 6.1
	newer := 5.8
	ms := []types.Measurement{
		measurement(types.MeasurementA1c, at(90, 8), map[string]any{"value": older}),
		measurement(types.MeasurementA1c, at(10, 8), map[string]any{"percent": newer}),
		// Beyond the 180-day lab lookback, must be ignored.
		measurement(types.MeasurementLipid, at(200, 8), map[string]any{"ldl": 160.0}),
		measurement(types.MeasurementWeight, at(1, 8), map[string]any{"kg": 80.0}),
		measurement(types.MeasurementWeight, at(2, 8), map[string]any{"kg": 80.0}),
	}
	res := derive(t, ms, nil)

	if res.Features.A1cLatest == nil || *res.Features.A1cLatest != newer {
		t.Fatalf("A1cLatest = %v, want %v", res.Features.A1cLatest, newer)
	}
	if res.Features.LDLLatest != nil {
		t.Fatalf("LDLLatest = %v, want nil for out-of-window lipid panel", *res.Features.LDLLatest)
	}
}

func TestDerivePayloadCoercion(t *testing.T) {
	ms := []types.Measurement{
		// Device importers sometimes deliver numbers as strings.
		measurement(types.MeasurementWeight, at(4, 8), map[string]any{"kg": "81.0"}),
		measurement(types.MeasurementWeight, at(2, 8), map[string]any{"kg": 80.5}),
		measurement(types.MeasurementWeight, at(0, 8), map[string]any{"kg": 80.0}),
		// Garbage values are discarded, not zeroed.
		measurement(types.MeasurementWeight, at(1, 8), map[string]any{"kg": "not-a-number"}),
		measurement(types.MeasurementWeight, at(1, 9), map[string]any{"kg": math.NaN()}),
		measurement(types.MeasurementWeight, at(1, 10), nil),
	}
	res := derive(t, ms, nil)

	if !almostEqual(res.Features.WeightTrend14d, -0.25) {
		t.Fatalf("WeightTrend14d = %v, want -0.25", res.Features.WeightTrend14d)
	}
	if res.Coverage.WeightPoints14d != 3 {
		t.Fatalf("WeightPoints14d = %d, want 3 usable points", res.Coverage.WeightPoints14d)
	}
}

func TestDeriveAdherence(t *testing.T) {
	ms := []types.Measurement{
		measurement(types.MeasurementWeight, at(1, 8), map[string]any{"kg": 80.0}),
		measurement(types.MeasurementWeight, at(2, 8), map[string]any{"kg": 80.0}),
		measurement(types.MeasurementWeight, at(3, 8), map[string]any{"kg": 80.0}),
	}

	res := derive(t, ms, []types.NudgeStatus{
		types.NudgeDone, types.NudgeDone, types.NudgePending, types.NudgeSnoozed,
	})
	if !almostEqual(res.Features.AdherenceNudge7d, 0.5) {
		t.Fatalf("AdherenceNudge7d = %v, want 0.5", res.Features.AdherenceNudge7d)
	}

	res = derive(t, ms, nil)
	if res.Features.AdherenceNudge7d != 0.5 {
		t.Fatalf("no shown nudges: adherence = %v, want neutral 0.5", res.Features.AdherenceNudge7d)
	}
}

func TestDeriveSufficiencyGate(t *testing.T) {
	// Three points in 30 days but none of them BP or weight in 14 days.
	steps := []types.Measurement{
		measurement(types.MeasurementSteps, at(1, 8), map[string]any{"count": 5000.0}),
		measurement(types.MeasurementSteps, at(2, 8), map[string]any{"count": 6000.0}),
		measurement(types.MeasurementSteps, at(3, 8), map[string]any{"count": 7000.0}),
	}
	res := derive(t, steps, nil)
	if res.SufficientData {
		t.Fatal("steps-only data must not clear the sufficiency gate")
	}

	// One recent BP reading plus the steps clears it.
	withBP := append(steps, measurement(types.MeasurementBP, at(1, 9), map[string]any{
		"systolic": 120.0, "diastolic": 80.0,
	}))
	res = derive(t, withBP, nil)
	if !res.SufficientData {
		t.Fatal("steps plus one recent BP reading must be sufficient")
	}
}

func TestDeriveDeterministic(t *testing.T) {
	ms := []types.Measurement{
		measurement(types.MeasurementBP, at(3, 8), map[string]any{"systolic": 122.0, "diastolic": 81.0}),
		measurement(types.MeasurementBP, at(1, 8), map[string]any{"systolic": 126.0, "diastolic": 83.0}),
		measurement(types.MeasurementBP, at(5, 8), map[string]any{"systolic": 120.0, "diastolic": 80.0}),
		measurement(types.MeasurementSleep, at(1, 7), map[string]any{"hours": 7.0}),
	}
	reversed := make([]types.Measurement, len(ms))
	for i, m := range ms {
		reversed[len(ms)-1-i] = m
	}

	a := derive(t, ms, nil).Features
	b := derive(t, reversed, nil).Features
	if a != b {
		t.Fatalf("derivation depends on input order:\n%+v\n%+v", a, b)
	}
}

func TestDeriveRejectsBadDate(t *testing.T) {
	d := NewDeriver(DefaultWindows())
	_, err := d.Derive(Inputs{UserID: "u-1", AsOfDate: "31-03-2026"})
	if err == nil {
		t.Fatal("expected error for malformed as_of_date")
	}
	appErr, ok := err.(*types.AppError)
	if !ok || appErr.Code != types.ErrCodeValidationInvalidDate {
		t.Fatalf("error = %v, want AppError with %s", err, types.ErrCodeValidationInvalidDate)
	}
}
