package db

import (
	"context"
	"encoding/json"

	"cardiometrix/internal/types"
)

// LegacyRepository writes the pre-pipeline risk_scores and nudges tables that
// older clients still read. These are projections of the canonical tables,
// not sources of truth; nothing in this service reads them back.
type LegacyRepository struct {
	db DBTX
}

// NewLegacyRepository creates a LegacyRepository backed by the given database
// connection (pool or transaction).
func NewLegacyRepository(db DBTX) *LegacyRepository {
	return &LegacyRepository{db: db}
}

// MirrorRiskScore upserts a legacy risk_scores row for one user-day.
func (r *LegacyRepository) MirrorRiskScore(ctx context.Context, s types.LegacyRiskScore) error {
	drivers, err := json.Marshal(s.Drivers)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"legacy drivers are not serializable", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO risk_scores (user_id, date, horizon_days, score, band, drivers)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, date) DO UPDATE SET
		   horizon_days = EXCLUDED.horizon_days,
		   score = EXCLUDED.score,
		   band = EXCLUDED.band,
		   drivers = EXCLUDED.drivers`,
		s.UserID, s.Date, s.HorizonDays, s.Score, nullIfEmpty(s.Band), drivers,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB,
			"failed to mirror legacy risk score", err)
	}
	return nil
}

// MirrorNudge upserts a legacy nudges row for one user-day.
func (r *LegacyRepository) MirrorNudge(ctx context.Context, n types.LegacyNudge) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO nudges (user_id, date, message, category, status, rationale)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, date) DO UPDATE SET
		   message = EXCLUDED.message,
		   category = EXCLUDED.category,
		   status = EXCLUDED.status,
		   rationale = EXCLUDED.rationale`,
		n.UserID, n.Date, n.Message, n.Category, n.Status, n.Rationale,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB,
			"failed to mirror legacy nudge", err)
	}
	return nil
}
