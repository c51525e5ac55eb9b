package nudges

import (
	"math"
	"sort"
	"strings"

	"cardiometrix/internal/types"
)

// Pick selects the daily nudge for one user-day.
//
// Green days get the routine reinforcement nudge. Otherwise the single
// largest driver by absolute contribution, in either direction, is matched
// against the catalog tags. When it does not match, or there are no drivers
// at all (including unknown-band days), the generic walk nudge applies, so
// every user-day has exactly one nudge.
func Pick(userID, asOfDate string, band types.RiskBand, drivers []types.Driver) types.DailyNudge {
	entry := selectEntry(band, drivers)
	variant := variantIndex(asOfDate, len(entry.Variants))

	return types.DailyNudge{
		UserID:   userID,
		AsOfDate: asOfDate,
		Key:      entry.Key,
		Tag:      entry.Tag,
		Text:     entry.Variants[variant],
		Variant:  variant,
		Status:   types.NudgePending,
	}
}

func selectEntry(band types.RiskBand, drivers []types.Driver) Entry {
	if band == types.BandGreen {
		return catalog[types.TagRoutine]
	}

	if len(drivers) == 0 {
		return fallback
	}

	// Largest absolute contribution first; a strongly protective driver still
	// names the behavior most worth reinforcing. Stable order keeps selection
	// deterministic when magnitudes tie.
	sorted := make([]types.Driver, len(drivers))
	copy(sorted, drivers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Contribution) > math.Abs(sorted[j].Contribution)
	})

	tag, ok := matchTag(sorted[0].Name)
	if !ok {
		return fallback
	}
	return catalog[tag]
}

// matchTag maps a driver's feature name onto a behavior tag. Matching is by
// substring so it tolerates both raw feature names (bp_sys_trend_14d) and the
// human-readable labels some model versions emit ("Systolic BP trend").
func matchTag(name string) (types.NudgeTag, bool) {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "sleep"):
		return types.TagSleep, true
	case strings.Contains(n, "step"), strings.Contains(n, "activity"), strings.Contains(n, "movement"):
		return types.TagSteps, true
	case strings.Contains(n, "weight"):
		return types.TagWeight, true
	case strings.Contains(n, "bp"), strings.Contains(n, "systolic"),
		strings.Contains(n, "diastolic"), strings.Contains(n, "pressure"):
		return types.TagSalt, true
	case strings.Contains(n, "med"), strings.Contains(n, "adherence"):
		return types.TagMeds, true
	case strings.Contains(n, "hrv"):
		return types.TagSleep, true
	case strings.Contains(n, "rhr"), strings.Contains(n, "resting"), strings.Contains(n, "heart rate"):
		return types.TagHydration, true
	default:
		return "", false
	}
}

// variantIndex rotates message variants by day of year so consecutive days
// with the same nudge read differently.
func variantIndex(asOfDate string, n int) int {
	if n <= 1 {
		return 0
	}
	return types.DayOfYear(asOfDate) % n
}
