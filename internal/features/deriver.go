// Package features implements the daily feature derivation stage of the risk
// pipeline. The deriver is a pure function over pre-fetched measurement
// records: it performs no I/O, so it can be tested in isolation and its
// output is idempotent for a given (measurements, as_of_date) pair.
package features

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"cardiometrix/internal/stats"
	"cardiometrix/internal/types"
)

// SleepTargetHours is the nightly sleep target against which sleep debt is
// measured.
const SleepTargetHours = 7.5

// LabLookbackDays is the window for "latest" lab values (A1c, LDL).
const LabLookbackDays = 180

// neutralAdherence is the adherence value used when no nudges were shown in
// the window, so the scorer sees neither good nor bad adherence.
const neutralAdherence = 0.5

// mmolToMgdl converts glucose mmol/L to mg/dL.
const mmolToMgdl = 18.0182

// Windows configures the derivation windows in days. All windows end at the
// end of the as-of day, inclusive.
type Windows struct {
	RecentDays   int // z-score numerator and sleep/adherence window
	TrendDays    int // slope window for BP, weight, glucose
	BaselineDays int // z-score denominator lookback
	VarDays      int // BP variance window
}

// DefaultWindows returns the production window lengths.
func DefaultWindows() Windows {
	return Windows{RecentDays: 7, TrendDays: 14, BaselineDays: 30, VarDays: 7}
}

// Inputs carries everything the deriver needs. Measurements are expected to
// cover at least the lab lookback window; anything outside the windows is
// ignored, so over-fetching is harmless.
type Inputs struct {
	UserID        string
	AsOfDate      string
	Measurements  []types.Measurement
	NudgeStatuses []types.NudgeStatus
}

// Result bundles the derived vector with its coverage record and the
// sufficiency verdict. When SufficientData is false the caller must skip the
// remote scorer and record an unknown band.
type Result struct {
	Features       types.FeatureVectorV1
	Coverage       types.FeatureCoverage
	SufficientData bool
}

// Deriver derives FeatureVectorV1 vectors. It is safe for concurrent use.
type Deriver struct {
	windows  Windows
	validate *validator.Validate
}

// NewDeriver creates a Deriver with the given windows. Zero or negative
// window values fall back to the defaults.
func NewDeriver(w Windows) *Deriver {
	def := DefaultWindows()
	if w.RecentDays <= 0 {
		w.RecentDays = def.RecentDays
	}
	if w.TrendDays <= 0 {
		w.TrendDays = def.TrendDays
	}
	if w.BaselineDays <= 0 {
		w.BaselineDays = def.BaselineDays
	}
	if w.VarDays <= 0 {
		w.VarDays = def.VarDays
	}
	return &Deriver{windows: w, validate: validator.New()}
}

// window is an inclusive [from, to] time range.
type window struct {
	from time.Time
	to   time.Time
}

func (w window) contains(t time.Time) bool {
	return !t.Before(w.from) && !t.After(w.to)
}

// Derive computes the feature vector for the given inputs.
func (d *Deriver) Derive(in Inputs) (Result, error) {
	asOf, err := types.ParseDate(in.AsOfDate)
	if err != nil {
		return Result{}, types.NewAppError(types.ErrCodeValidationInvalidDate,
			"as_of_date must be YYYY-MM-DD", err)
	}

	dayStart := types.StartOfDay(asOf)
	dayEnd := types.EndOfDay(asOf)

	w := d.windows
	recent := window{from: dayStart.AddDate(0, 0, -(w.RecentDays - 1)), to: dayEnd}
	trend := window{from: dayStart.AddDate(0, 0, -(w.TrendDays - 1)), to: dayEnd}
	variance := window{from: dayStart.AddDate(0, 0, -(w.VarDays - 1)), to: dayEnd}

	// The baseline excludes the recent window so a recent shift does not
	// contaminate its own reference distribution.
	baselineLookback := w.BaselineDays
	if min := w.RecentDays + 7; baselineLookback < min {
		baselineLookback = min
	}
	baseline := window{
		from: dayStart.AddDate(0, 0, -baselineLookback),
		to:   types.EndOfDay(dayStart.AddDate(0, 0, -w.RecentDays)),
	}
	labs := window{from: dayStart.AddDate(0, 0, -LabLookbackDays), to: dayEnd}

	sys := extract(in.Measurements, types.MeasurementBP, payloadField("systolic"))
	dia := extract(in.Measurements, types.MeasurementBP, payloadField("diastolic"))
	weight := extract(in.Measurements, types.MeasurementWeight, payloadField("kg"))
	hrv := extract(in.Measurements, types.MeasurementHRV, firstOf("rmssd", "ms"))
	hr := extract(in.Measurements, types.MeasurementHR, payloadField("bpm"))
	steps := extract(in.Measurements, types.MeasurementSteps, payloadField("count"))
	sleep := extract(in.Measurements, types.MeasurementSleep, sleepHours)
	glucose := extract(in.Measurements, types.MeasurementGlucose, glucoseMgdl)
	a1c := extract(in.Measurements, types.MeasurementA1c, firstOf("value", "percent"))
	ldl := extract(in.Measurements, types.MeasurementLipid, payloadField("ldl"))

	fv := types.FeatureVectorV1{
		UserID:   in.UserID,
		AsOfDate: in.AsOfDate,

		BPSysTrend14d: clampSlope(filter(sys, trend), types.ClampBPTrend),
		BPDiaTrend14d: clampSlope(filter(dia, trend), types.ClampBPTrend),
		BPSysVar7d:    clampStd(filter(sys, variance), types.ClampBPVar),
		BPDiaVar7d:    clampStd(filter(dia, variance), types.ClampBPVar),

		HRVZ7d:   clampZ(filter(hrv, recent), filter(hrv, baseline)),
		RHRZ7d:   clampZ(filter(hr, recent), filter(hr, baseline)),
		StepsZ7d: clampZ(filter(steps, recent), filter(steps, baseline)),

		SleepDebtHrs7d: d.sleepDebt(filter(sleep, recent), dayStart),

		WeightTrend14d:  clampSlope(filter(weight, trend), types.ClampWeightTrend),
		GlucoseTrend14d: clampSlope(filter(glucose, trend), types.ClampGlucoseTrend),

		A1cLatest: latest(filter(a1c, labs)),
		LDLLatest: latest(filter(ldl, labs)),

		AdherenceNudge7d: adherence(in.NudgeStatuses),
	}

	coverage := types.FeatureCoverage{
		TotalPoints30d:  countInWindow(in.Measurements, window{from: baseline.from, to: dayEnd}),
		BPPoints14d:     len(filter(sys, trend)),
		WeightPoints14d: len(filter(weight, trend)),
		StepsPoints7d:   len(filter(steps, recent)),
		SleepPoints7d:   len(filter(sleep, recent)),
	}

	if err := d.validate.Struct(fv); err != nil {
		return Result{}, types.NewAppError(types.ErrCodeValidationInvalidFeatures,
			fmt.Sprintf("derived feature vector failed schema validation for user %s", in.UserID), err)
	}

	return Result{Features: fv, Coverage: coverage, SufficientData: coverage.Sufficient()}, nil
}

// sleepDebt averages the daily shortfall below the sleep target over the
// recent window. Each day's sleep is the max of that day's samples (not the
// sum, which would double count naps); days with no samples count as zero
// hours slept, i.e. full debt.
func (d *Deriver) sleepDebt(points []stats.Point, dayStart time.Time) float64 {
	byDay := make(map[string]float64, len(points))
	for _, p := range points {
		key := p.At.UTC().Format(types.DateLayout)
		if p.Value > byDay[key] {
			byDay[key] = p.Value
		}
	}

	total := 0.0
	for i := 0; i < d.windows.RecentDays; i++ {
		key := dayStart.AddDate(0, 0, -i).Format(types.DateLayout)
		shortfall := SleepTargetHours - byDay[key]
		if shortfall > 0 {
			total += shortfall
		}
	}

	avg := total / float64(d.windows.RecentDays)
	return stats.Clamp(avg, types.ClampSleepDebt.Min, types.ClampSleepDebt.Max)
}

// adherence is doneCount/shownCount over the supplied 7-day statuses, or a
// neutral 0.5 when nothing was shown.
func adherence(statuses []types.NudgeStatus) float64 {
	if len(statuses) == 0 {
		return neutralAdherence
	}
	done := 0
	for _, s := range statuses {
		if s == types.NudgeDone || types.LegacyNudgeStatus(s) == types.LegacyCompleted {
			done++
		}
	}
	ratio := float64(done) / float64(len(statuses))
	return stats.Clamp(ratio, types.ClampAdherence.Min, types.ClampAdherence.Max)
}

// --- extraction helpers ---

type extractor func(payload map[string]any) (float64, bool)

// payloadField extracts a single named payload field.
func payloadField(name string) extractor {
	return func(payload map[string]any) (float64, bool) {
		return coerceNumber(payload[name])
	}
}

// firstOf extracts the first present field from the given candidates.
func firstOf(names ...string) extractor {
	return func(payload map[string]any) (float64, bool) {
		for _, name := range names {
			if v, ok := coerceNumber(payload[name]); ok {
				return v, true
			}
		}
		return 0, false
	}
}

// sleepHours reads hours directly or converts minutes.
func sleepHours(payload map[string]any) (float64, bool) {
	if v, ok := coerceNumber(payload["hours"]); ok {
		return v, true
	}
	if v, ok := coerceNumber(payload["minutes"]); ok {
		return v / 60, true
	}
	return 0, false
}

// glucoseMgdl reads mg/dL directly or converts mmol/L.
func glucoseMgdl(payload map[string]any) (float64, bool) {
	if v, ok := coerceNumber(payload["mgdl"]); ok {
		return v, true
	}
	if v, ok := coerceNumber(payload["mmol"]); ok {
		return v * mmolToMgdl, true
	}
	return 0, false
}

// coerceNumber accepts float64/int payload values and numeric-like strings
// (device importers are sloppy about this), discarding non-finite values.
func coerceNumber(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func extract(measurements []types.Measurement, mt types.MeasurementType, ex extractor) []stats.Point {
	var points []stats.Point
	for _, m := range measurements {
		if m.Type != mt || m.Payload == nil || m.MeasuredAt.IsZero() {
			continue
		}
		v, ok := ex(m.Payload)
		if !ok {
			continue
		}
		points = append(points, stats.Point{At: m.MeasuredAt, Value: v})
	}
	return points
}

func filter(points []stats.Point, w window) []stats.Point {
	var out []stats.Point
	for _, p := range points {
		if w.contains(p.At) {
			out = append(out, p)
		}
	}
	return out
}

func values(points []stats.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// latest returns the most recent value in the set, or nil when empty.
func latest(points []stats.Point) *float64 {
	var best *stats.Point
	for i := range points {
		if best == nil || points[i].At.After(best.At) {
			best = &points[i]
		}
	}
	if best == nil {
		return nil
	}
	v := best.Value
	return &v
}

func countInWindow(measurements []types.Measurement, w window) int {
	n := 0
	for _, m := range measurements {
		if !m.MeasuredAt.IsZero() && w.contains(m.MeasuredAt) {
			n++
		}
	}
	return n
}

func clampSlope(points []stats.Point, c types.ClampRange) float64 {
	return stats.Clamp(stats.LinearSlope(points, stats.DefaultMinSlopePoints), c.Min, c.Max)
}

func clampStd(points []stats.Point, c types.ClampRange) float64 {
	return stats.Clamp(stats.Std(values(points)), c.Min, c.Max)
}

func clampZ(recent, baseline []stats.Point) float64 {
	z := stats.ZScore(values(recent), values(baseline))
	return stats.Clamp(z, types.ClampZ.Min, types.ClampZ.Max)
}
