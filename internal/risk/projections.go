package risk

import (
	"fmt"

	"cardiometrix/internal/types"
)

// legacyHorizonDays is the fixed prediction horizon stamped on legacy risk
// score rows. The legacy schema required one; the current model always scores
// a 30-day horizon.
const legacyHorizonDays = 30

// ToLegacyRiskScore projects a daily snapshot into the pre-pipeline
// risk_scores shape. Unknown bands map to an empty band string because the
// legacy schema predates the unknown state.
func ToLegacyRiskScore(s types.RiskDaily) types.LegacyRiskScore {
	band := string(s.Band)
	if s.Band == types.BandUnknown {
		band = ""
	}

	drivers := make([]types.LegacyDriver, 0, len(s.Drivers))
	for _, d := range s.Drivers {
		drivers = append(drivers, types.LegacyDriver{
			Feature:      d.Name,
			Contribution: d.Contribution,
			Direction:    string(d.Direction),
		})
	}

	return types.LegacyRiskScore{
		UserID:      s.UserID,
		Date:        s.AsOfDate,
		HorizonDays: legacyHorizonDays,
		Score:       s.Risk,
		Band:        band,
		Drivers:     drivers,
	}
}

// ToLegacyNudge projects a daily nudge into the pre-pipeline nudges shape.
// The rationale names the band and top driver so legacy clinician views keep
// their "why this nudge" column.
func ToLegacyNudge(n types.DailyNudge, s types.RiskDaily) types.LegacyNudge {
	rationale := fmt.Sprintf("band=%s", s.Band)
	if len(s.Drivers) > 0 {
		rationale = fmt.Sprintf("band=%s top_driver=%s", s.Band, s.Drivers[0].Name)
	}

	return types.LegacyNudge{
		UserID:    n.UserID,
		Date:      n.AsOfDate,
		Message:   n.Text,
		Category:  string(n.Tag),
		Status:    types.ToLegacyStatus(n.Status),
		Rationale: rationale,
	}
}
