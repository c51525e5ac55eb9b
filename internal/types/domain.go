package types

import (
	"time"
)

// Measurement is a single raw time-stamped health reading. Measurements are
// immutable once created (import dedup aside) and are the single source of
// truth for every derived number in the pipeline.
type Measurement struct {
	ID         string          `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	Type       MeasurementType `json:"type" db:"type"`
	MeasuredAt time.Time       `json:"measured_at" db:"measured_at"`

	// Payload holds the per-type numeric fields (e.g. systolic/diastolic for
	// bp, kg for weight). Values may arrive as numeric strings from device
	// importers; the feature deriver coerces them.
	Payload map[string]any `json:"payload" db:"payload"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Driver is a named feature with its contribution to a risk score, used to
// explain the score and to pick a nudge category.
type Driver struct {
	Name         string          `json:"name" validate:"required"`
	Value        float64         `json:"value"`
	Direction    DriverDirection `json:"direction" validate:"required,oneof=up down"`
	Contribution float64         `json:"contribution"`
}

// RiskScoreResult is the outcome of scoring one feature vector. Risk is nil
// with Band "unknown" when there was not enough data or the scorer was
// unavailable; that is a valid terminal state, not a retryable error.
type RiskScoreResult struct {
	Risk         *float64 `json:"risk"`
	Band         RiskBand `json:"band"`
	Drivers      []Driver `json:"drivers"`
	ModelVersion string   `json:"model_version"`
	AsOfDate     string   `json:"as_of_date"`
	Error        string   `json:"error,omitempty"`
}

// MaxDrivers is the maximum number of drivers retained on a RiskScoreResult.
const MaxDrivers = 4

// RiskDaily is the per-(user, date) snapshot persisted by the orchestrator.
// It embeds the exact feature vector used for the score so the result stays
// auditable. Recomputing a day overwrites the snapshot, never appends.
type RiskDaily struct {
	UserID       string          `json:"user_id" db:"user_id"`
	AsOfDate     string          `json:"as_of_date" db:"as_of_date"`
	Risk         *float64        `json:"risk" db:"risk"`
	Band         RiskBand        `json:"band" db:"band"`
	Drivers      []Driver        `json:"drivers" db:"drivers"`
	ModelVersion string          `json:"model_version" db:"model_version"`
	Error        string          `json:"error,omitempty" db:"error"`
	Features     FeatureVectorV1 `json:"feature_snapshot" db:"feature_snapshot"`
	ComputedAt   time.Time       `json:"computed_at" db:"computed_at"`
}

// DailyNudge is the single actionable recommendation for one user on one
// calendar day. Recomputing a day resets Status to pending: a recompute means
// "today's recommendation changed", so any prior done/snoozed action no
// longer refers to the current message.
type DailyNudge struct {
	UserID    string      `json:"user_id" db:"user_id"`
	AsOfDate  string      `json:"as_of_date" db:"as_of_date"`
	Key       string      `json:"key" db:"key"`
	Tag       NudgeTag    `json:"tag" db:"tag"`
	Text      string      `json:"text" db:"text"`
	Variant   int         `json:"variant" db:"variant"`
	Status    NudgeStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// User is the minimal account projection the pipeline needs: who to run for
// and in which timezone their calendar day rolls over.
type User struct {
	ID       string   `json:"id" db:"id"`
	Role     UserRole `json:"role" db:"role"`
	Timezone string   `json:"timezone,omitempty" db:"timezone"`
}

// UserRunResult records the per-user outcome of a daily batch run. One user's
// failure never aborts sibling users.
type UserRunResult struct {
	UserID string `json:"user_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// WeeklyMetrics holds the 7-day averages and 14-day slopes computed by the
// weekly summary engine. Nil means the underlying series had no usable data.
type WeeklyMetrics struct {
	RiskScoreAvg7d    *float64 `json:"risk_score_avg_7d"`
	RiskScoreSlope14d *float64 `json:"risk_score_slope_14d"`
	BPSysAvg7d        *float64 `json:"bp_sys_avg_7d"`
	BPSysSlope14d     *float64 `json:"bp_sys_slope_14d"`
	BPDiaAvg7d        *float64 `json:"bp_dia_avg_7d"`
	BPDiaSlope14d     *float64 `json:"bp_dia_slope_14d"`
	WeightAvg7d       *float64 `json:"weight_avg_7d"`
	WeightSlope14d    *float64 `json:"weight_slope_14d"`
}

// WeeklySignals carries the boolean/enum verdicts derived from WeeklyMetrics.
type WeeklySignals struct {
	DeteriorationDetected bool           `json:"deterioration_detected"`
	Trend                 TrendDirection `json:"trend"`
}

// WeeklyRiskSummary is the narrative trend summary for one user-week,
// upserted by (user_id, week_start).
type WeeklyRiskSummary struct {
	UserID       string        `json:"user_id" db:"user_id"`
	WeekStart    string        `json:"week_start" db:"week_start"`
	WeekEnd      string        `json:"week_end" db:"week_end"`
	HorizonDays  int           `json:"horizon_days" db:"horizon_days"`
	Metrics      WeeklyMetrics `json:"metrics" db:"metrics"`
	Signals      WeeklySignals `json:"signals" db:"signals"`
	Explanations []string      `json:"explanations" db:"explanations"`
	SummaryText  string        `json:"summary_text" db:"summary_text"`
	ComputedAt   time.Time     `json:"computed_at" db:"computed_at"`
}

// PushMessage is the payload handed to the external push dispatcher after a
// daily run commits. Band and nudge text are the only fields the dispatcher
// reads; everything else is correlation metadata.
type PushMessage struct {
	MessageID string   `json:"message_id"`
	UserID    string   `json:"user_id"`
	AsOfDate  string   `json:"as_of_date"`
	Band      RiskBand `json:"band"`
	NudgeText string   `json:"nudge_text"`
}

// LegacyRiskScore mirrors a daily score into the pre-pipeline risk_scores
// shape still read by older clients. Band is empty (rather than "unknown")
// when the score is unavailable, matching the legacy schema's optional band.
type LegacyRiskScore struct {
	UserID      string         `db:"user_id"`
	Date        string         `db:"date"`
	HorizonDays int            `db:"horizon_days"`
	Score       *float64       `db:"score"`
	Band        string         `db:"band"`
	Drivers     []LegacyDriver `db:"drivers"`
}

// LegacyDriver is the driver shape used by the legacy risk_scores mirror.
type LegacyDriver struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
	Direction    string  `json:"direction"`
}

// LegacyNudge mirrors a daily nudge into the pre-pipeline nudges shape.
type LegacyNudge struct {
	UserID    string            `db:"user_id"`
	Date      string            `db:"date"`
	Message   string            `db:"message"`
	Category  string            `db:"category"`
	Status    LegacyNudgeStatus `db:"status"`
	Rationale string            `db:"rationale"`
}

// ToLegacyStatus maps a DailyNudge status onto the legacy vocabulary.
func ToLegacyStatus(s NudgeStatus) LegacyNudgeStatus {
	switch s {
	case NudgeDone:
		return LegacyCompleted
	case NudgeSnoozed:
		return LegacySkipped
	default:
		return LegacySent
	}
}
