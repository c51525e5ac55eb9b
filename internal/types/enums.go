package types

// MeasurementType identifies the kind of raw health measurement.
type MeasurementType string

const (
	MeasurementBP      MeasurementType = "bp"
	MeasurementWeight  MeasurementType = "weight"
	MeasurementHR      MeasurementType = "hr"
	MeasurementHRV     MeasurementType = "hrv"
	MeasurementSteps   MeasurementType = "steps"
	MeasurementSleep   MeasurementType = "sleep"
	MeasurementA1c     MeasurementType = "a1c"
	MeasurementLipid   MeasurementType = "lipid"
	MeasurementGlucose MeasurementType = "glucose"
)

// AllMeasurementTypes is the complete set of measurement types consumed by
// the feature pipeline. Lab types (a1c, lipid) use a 180-day lookback; all
// others use 30 days.
var AllMeasurementTypes = []MeasurementType{
	MeasurementBP,
	MeasurementWeight,
	MeasurementHR,
	MeasurementHRV,
	MeasurementSteps,
	MeasurementSleep,
	MeasurementA1c,
	MeasurementLipid,
	MeasurementGlucose,
}

// IsValidMeasurementType reports whether t is a known measurement type.
func IsValidMeasurementType(t MeasurementType) bool {
	for _, known := range AllMeasurementTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RiskBand is the coarse discretization of the continuous risk score.
// BandUnknown is a valid terminal state (insufficient data or scorer
// unavailable), not an error state.
type RiskBand string

const (
	BandGreen   RiskBand = "green"
	BandAmber   RiskBand = "amber"
	BandRed     RiskBand = "red"
	BandUnknown RiskBand = "unknown"
)

// DriverDirection indicates whether a driver pushes the risk score up or down.
type DriverDirection string

const (
	DirectionUp   DriverDirection = "up"
	DirectionDown DriverDirection = "down"
)

// NudgeStatus is the user-mutable state of a daily nudge.
type NudgeStatus string

const (
	NudgePending NudgeStatus = "pending"
	NudgeDone    NudgeStatus = "done"
	NudgeSnoozed NudgeStatus = "snoozed"
)

// LegacyNudgeStatus is the status vocabulary of the pre-pipeline nudge
// records still read by older clients. Projection mapping:
// pending -> sent, done -> completed, snoozed -> skipped.
type LegacyNudgeStatus string

const (
	LegacySent      LegacyNudgeStatus = "sent"
	LegacyCompleted LegacyNudgeStatus = "completed"
	LegacySkipped   LegacyNudgeStatus = "skipped"
)

// NudgeTag categorizes a nudge by the behavior it targets.
type NudgeTag string

const (
	TagSalt      NudgeTag = "salt"
	TagSteps     NudgeTag = "steps"
	TagSleep     NudgeTag = "sleep"
	TagWeight    NudgeTag = "weight"
	TagMeds      NudgeTag = "meds"
	TagHydration NudgeTag = "hydration"
	TagRoutine   NudgeTag = "routine"
)

// UserRole defines the account role within the platform.
type UserRole string

const (
	RolePatient   UserRole = "patient"
	RoleClinician UserRole = "clinician"
	RoleCaregiver UserRole = "caregiver"
)

// TrendDirection summarizes the direction of a weekly trend signal.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendWorsening TrendDirection = "worsening"
)
