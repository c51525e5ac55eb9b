package types

// FeatureVectorV1 is the fixed-shape input contract of the risk scorer, one
// per (user, as_of_date). Every numeric field is clamped to the range the
// model was validated against before it leaves the deriver; the validate tags
// re-state those clamps so an out-of-range vector can never be serialized to
// the scorer. Derivation is a pure function of the measurements and the
// as-of date: same inputs always produce the same vector.
type FeatureVectorV1 struct {
	UserID   string `json:"user_id,omitempty"`
	AsOfDate string `json:"as_of_date" validate:"required,datetime=2006-01-02"`

	BPSysTrend14d   float64 `json:"bp_sys_trend_14d" validate:"gte=-5,lte=5"`
	BPSysVar7d      float64 `json:"bp_sys_var_7d" validate:"gte=0,lte=40"`
	BPDiaTrend14d   float64 `json:"bp_dia_trend_14d" validate:"gte=-5,lte=5"`
	BPDiaVar7d      float64 `json:"bp_dia_var_7d" validate:"gte=0,lte=40"`
	HRVZ7d          float64 `json:"hrv_z_7d" validate:"gte=-4,lte=4"`
	RHRZ7d          float64 `json:"rhr_z_7d" validate:"gte=-4,lte=4"`
	StepsZ7d        float64 `json:"steps_z_7d" validate:"gte=-4,lte=4"`
	SleepDebtHrs7d  float64 `json:"sleep_debt_hours_7d" validate:"gte=0,lte=4"`
	WeightTrend14d  float64 `json:"weight_trend_14d" validate:"gte=-2,lte=2"`
	GlucoseTrend14d float64 `json:"glucose_trend_14d" validate:"gte=-20,lte=20"`

	// Most recent lab values within 180 days; nil when none exist.
	A1cLatest *float64 `json:"a1c_latest"`
	LDLLatest *float64 `json:"ldl_latest"`

	AdherenceNudge7d float64 `json:"adherence_nudge_7d" validate:"gte=0,lte=1"`
}

// ClampRange is a hard min/max bound applied to a derived feature.
type ClampRange struct {
	Min float64
	Max float64
}

// Feature clamp table. The validate tags on FeatureVectorV1 must stay in
// sync with these values.
var (
	ClampBPTrend      = ClampRange{Min: -5, Max: 5}
	ClampBPVar        = ClampRange{Min: 0, Max: 40}
	ClampZ            = ClampRange{Min: -4, Max: 4}
	ClampSleepDebt    = ClampRange{Min: 0, Max: 4}
	ClampWeightTrend  = ClampRange{Min: -2, Max: 2}
	ClampGlucoseTrend = ClampRange{Min: -20, Max: 20}
	ClampAdherence    = ClampRange{Min: 0, Max: 1}
)

// FeatureCoverage records the raw point counts behind a feature vector so
// callers (and clinicians) can judge how much data supports a score.
type FeatureCoverage struct {
	TotalPoints30d  int `json:"total_points_30d"`
	BPPoints14d     int `json:"bp_points_14d"`
	WeightPoints14d int `json:"weight_points_14d"`
	StepsPoints7d   int `json:"steps_points_7d"`
	SleepPoints7d   int `json:"sleep_points_7d"`
}

// Sufficient reports whether the coverage clears the scoring gate: at least
// three points across the baseline-through-today window, and at least one BP
// or weight reading in the trend window. Below this gate the scorer would
// produce a confident-looking score from near-empty data, so callers must
// skip scoring and record an unknown band instead.
func (c FeatureCoverage) Sufficient() bool {
	return c.TotalPoints30d >= 3 && (c.BPPoints14d >= 1 || c.WeightPoints14d >= 1)
}
