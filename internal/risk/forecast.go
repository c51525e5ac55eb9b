package risk

import (
	"context"
	"fmt"
	"math"

	"cardiometrix/internal/stats"
	"cardiometrix/internal/types"
)

// forecastLookbackDays is the trailing window of daily snapshots the
// projection is fitted against.
const forecastLookbackDays = 30

// maxForecastHorizons caps how many projection points one request may ask for.
const maxForecastHorizons = 10

// DefaultForecastHorizons are the projection distances used when the caller
// does not ask for specific ones.
var DefaultForecastHorizons = []int{30, 60, 90}

// ForecastPoint is one projected risk value at a future distance.
type ForecastPoint struct {
	Days  int            `json:"days"`
	Score float64        `json:"score"`
	Band  types.RiskBand `json:"band"`
}

// RiskForecast projects the recent risk trajectory forward. It is a straight
// linear extrapolation of the trailing scored days, not a model output, which
// is why the confidence grade travels with it.
type RiskForecast struct {
	AsOf         string          `json:"as_of_date"`
	CurrentScore float64         `json:"current_score"`
	CurrentBand  types.RiskBand  `json:"current_band"`
	SlopePerDay  float64         `json:"slope_per_day"`
	Confidence   string          `json:"confidence"`
	Horizons     []ForecastPoint `json:"horizons"`
	Explanation  string          `json:"explanation"`
}

// SnapshotHistory reads the persisted daily snapshots the forecast is fitted
// against.
type SnapshotHistory interface {
	ListSnapshots(ctx context.Context, userID, fromDate, toDate string) ([]types.RiskDaily, error)
}

// Forecaster projects risk trajectories from snapshot history.
type Forecaster struct {
	history SnapshotHistory
}

// NewForecaster creates a Forecaster over the given snapshot history.
func NewForecaster(history SnapshotHistory) *Forecaster {
	return &Forecaster{history: history}
}

// Forecast fits a slope to the user's scored days in the trailing 30-day
// window ending at asOfDate and extrapolates it to each horizon. Horizons
// must be positive; nil means the defaults. At least two scored days are
// required for a projection.
func (f *Forecaster) Forecast(ctx context.Context, userID, asOfDate string, horizons []int) (*RiskForecast, error) {
	asOf, err := types.ParseDate(asOfDate)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidDate,
			"as_of_date must be YYYY-MM-DD", err)
	}
	if len(horizons) == 0 {
		horizons = DefaultForecastHorizons
	}
	if len(horizons) > maxForecastHorizons {
		horizons = horizons[:maxForecastHorizons]
	}
	for _, h := range horizons {
		if h <= 0 {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidHorizons,
				"horizons must be positive day counts", nil)
		}
	}

	fromDate := asOf.AddDate(0, 0, -(forecastLookbackDays - 1)).Format(types.DateLayout)
	snapshots, err := f.history.ListSnapshots(ctx, userID, fromDate, asOfDate)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to load risk history", err)
	}

	var (
		points []stats.Point
		scores []float64
		latest types.RiskDaily
	)
	for _, s := range snapshots {
		if s.Risk == nil {
			continue
		}
		day, err := types.ParseDate(s.AsOfDate)
		if err != nil {
			continue
		}
		points = append(points, stats.Point{At: day, Value: *s.Risk})
		scores = append(scores, *s.Risk)
		if latest.AsOfDate == "" || s.AsOfDate > latest.AsOfDate {
			latest = s
		}
	}
	if len(points) < 2 {
		return nil, types.NewAppError(types.ErrCodeNotFoundRiskDaily,
			"not enough scored days to project a trajectory", nil)
	}

	slope := stats.LinearSlope(points, 2)
	current := stats.Clamp(*latest.Risk, 0, 1)

	projected := make([]ForecastPoint, len(horizons))
	for i, days := range horizons {
		score := stats.Clamp(current+slope*float64(days), 0, 1)
		projected[i] = ForecastPoint{Days: days, Score: score, Band: bandForScore(score)}
	}

	return &RiskForecast{
		AsOf:         latest.AsOfDate,
		CurrentScore: current,
		CurrentBand:  bandForScore(current),
		SlopePerDay:  slope,
		Confidence:   forecastConfidence(len(scores), slope),
		Horizons:     projected,
		Explanation: fmt.Sprintf("Projection assumes your last %d days of risk remain %s.",
			len(scores), slopeLabel(slope)),
	}, nil
}

// bandForScore discretizes a continuous score into the display bands. The
// projection reuses the display thresholds rather than asking the scorer,
// since a projected score has no model behind it.
func bandForScore(score float64) types.RiskBand {
	switch {
	case score < 0.33:
		return types.BandGreen
	case score < 0.66:
		return types.BandAmber
	default:
		return types.BandRed
	}
}

// forecastConfidence grades the projection: long flat histories extrapolate
// well, short ones do not.
func forecastConfidence(n int, slope float64) string {
	switch {
	case n >= 21 && math.Abs(slope) < 0.01:
		return "high"
	case n >= 14:
		return "medium"
	default:
		return "low"
	}
}

func slopeLabel(slope float64) string {
	switch {
	case slope > 0:
		return "increasing"
	case slope < 0:
		return "decreasing"
	default:
		return "flat"
	}
}
