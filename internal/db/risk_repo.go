package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"cardiometrix/internal/types"
)

// RiskRepository provides data access for the risk_daily table, the canonical
// per-(user, date) snapshot store.
type RiskRepository struct {
	db DBTX
}

// NewRiskRepository creates a RiskRepository backed by the given database
// connection (pool or transaction).
func NewRiskRepository(db DBTX) *RiskRepository {
	return &RiskRepository{db: db}
}

const riskColumns = `r.user_id, r.as_of_date, r.risk, r.band, r.drivers,
	r.model_version, r.error, r.feature_snapshot, r.computed_at`

// UpsertRiskDaily writes the snapshot for one user-day, replacing any prior
// computation of the same day.
func (r *RiskRepository) UpsertRiskDaily(ctx context.Context, s types.RiskDaily) error {
	drivers, err := json.Marshal(s.Drivers)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"drivers are not serializable", err)
	}
	features, err := json.Marshal(s.Features)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"feature snapshot is not serializable", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO risk_daily (user_id, as_of_date, risk, band, drivers,
		                         model_version, error, feature_snapshot, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, as_of_date) DO UPDATE SET
		   risk = EXCLUDED.risk,
		   band = EXCLUDED.band,
		   drivers = EXCLUDED.drivers,
		   model_version = EXCLUDED.model_version,
		   error = EXCLUDED.error,
		   feature_snapshot = EXCLUDED.feature_snapshot,
		   computed_at = EXCLUDED.computed_at`,
		s.UserID, s.AsOfDate, s.Risk, s.Band, drivers,
		s.ModelVersion, nullIfEmpty(s.Error), features, s.ComputedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB,
			"failed to upsert risk snapshot", err)
	}
	return nil
}

// GetRiskDaily returns the snapshot for one user-day.
func (r *RiskRepository) GetRiskDaily(ctx context.Context, userID, asOfDate string) (*types.RiskDaily, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+riskColumns+`
		 FROM risk_daily r
		 WHERE r.user_id = $1 AND r.as_of_date = $2`,
		userID, asOfDate,
	)

	s, err := scanRiskDaily(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRiskDaily,
				"no risk snapshot for this date", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to retrieve risk snapshot", err)
	}
	return s, nil
}

// ListSnapshots returns the user's snapshots with as_of_date in
// [fromDate, toDate], ordered by date ascending. Feeds the weekly summary.
func (r *RiskRepository) ListSnapshots(ctx context.Context, userID, fromDate, toDate string) ([]types.RiskDaily, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+riskColumns+`
		 FROM risk_daily r
		 WHERE r.user_id = $1 AND r.as_of_date >= $2 AND r.as_of_date <= $3
		 ORDER BY r.as_of_date ASC`,
		userID, fromDate, toDate,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to list risk snapshots", err)
	}
	defer rows.Close()

	var out []types.RiskDaily
	for rows.Next() {
		s, err := scanRiskDaily(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB,
				"failed to scan risk snapshot", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to iterate risk snapshots", err)
	}
	return out, nil
}

// scanRiskDaily scans one row in riskColumns order.
func scanRiskDaily(row pgx.Row) (*types.RiskDaily, error) {
	var s types.RiskDaily
	var drivers, features []byte
	var errMsg *string

	err := row.Scan(
		&s.UserID,
		&s.AsOfDate,
		&s.Risk,
		&s.Band,
		&drivers,
		&s.ModelVersion,
		&errMsg,
		&features,
		&s.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		s.Error = *errMsg
	}
	if len(drivers) > 0 {
		if err := json.Unmarshal(drivers, &s.Drivers); err != nil {
			return nil, err
		}
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &s.Features); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// nullIfEmpty maps "" to SQL NULL for optional text columns.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
