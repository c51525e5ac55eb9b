package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cardiometrix/internal/types"
)

// NudgeRepository provides data access for the daily_nudges table.
type NudgeRepository struct {
	db DBTX
}

// NewNudgeRepository creates a NudgeRepository backed by the given database
// connection (pool or transaction).
func NewNudgeRepository(db DBTX) *NudgeRepository {
	return &NudgeRepository{db: db}
}

const nudgeColumns = `n.user_id, n.as_of_date, n.key, n.tag, n.text, n.variant, n.status, n.created_at`

// UpsertDailyNudge writes the nudge for one user-day. A recompute replaces
// the row entirely, including the status: the new recommendation starts
// pending regardless of what the user did with the old one.
func (r *NudgeRepository) UpsertDailyNudge(ctx context.Context, n types.DailyNudge) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO daily_nudges (user_id, as_of_date, key, tag, text, variant, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, as_of_date) DO UPDATE SET
		   key = EXCLUDED.key,
		   tag = EXCLUDED.tag,
		   text = EXCLUDED.text,
		   variant = EXCLUDED.variant,
		   status = EXCLUDED.status,
		   created_at = EXCLUDED.created_at`,
		n.UserID, n.AsOfDate, n.Key, n.Tag, n.Text, n.Variant, n.Status, n.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB,
			"failed to upsert daily nudge", err)
	}
	return nil
}

// GetDailyNudge returns the nudge for one user-day.
func (r *NudgeRepository) GetDailyNudge(ctx context.Context, userID, asOfDate string) (*types.DailyNudge, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+nudgeColumns+`
		 FROM daily_nudges n
		 WHERE n.user_id = $1 AND n.as_of_date = $2`,
		userID, asOfDate,
	)

	var n types.DailyNudge
	err := row.Scan(&n.UserID, &n.AsOfDate, &n.Key, &n.Tag, &n.Text, &n.Variant, &n.Status, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNudge,
				"no nudge for this date", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to retrieve daily nudge", err)
	}
	return &n, nil
}

// UpdateStatus transitions the nudge for one user-day to the given status.
// Returns not-found when the day has no nudge.
func (r *NudgeRepository) UpdateStatus(ctx context.Context, userID, asOfDate string, status types.NudgeStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE daily_nudges SET status = $3
		 WHERE user_id = $1 AND as_of_date = $2`,
		userID, asOfDate, status,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB,
			"failed to update nudge status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNudge,
			"no nudge for this date", nil)
	}
	return nil
}

// ListStatuses returns the statuses of nudges shown in [fromDate, toDate]
// (inclusive calendar dates). Feeds the adherence feature. Days that only
// exist in the pre-pipeline nudges table count too, with their status mapped
// back to the current vocabulary, so adherence history survives the cutover.
func (r *NudgeRepository) ListStatuses(ctx context.Context, userID, fromDate, toDate string) ([]types.NudgeStatus, error) {
	rows, err := r.db.Query(ctx,
		`SELECT n.status
		 FROM daily_nudges n
		 WHERE n.user_id = $1 AND n.as_of_date >= $2 AND n.as_of_date <= $3
		 UNION ALL
		 SELECT CASE l.status
		          WHEN 'completed' THEN 'done'
		          WHEN 'skipped' THEN 'snoozed'
		          ELSE 'pending'
		        END
		 FROM nudges l
		 WHERE l.user_id = $1 AND l.date >= $2 AND l.date <= $3
		   AND NOT EXISTS (
		     SELECT 1 FROM daily_nudges d
		     WHERE d.user_id = l.user_id AND d.as_of_date = l.date
		   )`,
		userID, fromDate, toDate,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to list nudge statuses", err)
	}
	defer rows.Close()

	var out []types.NudgeStatus
	for rows.Next() {
		var s types.NudgeStatus
		if err := rows.Scan(&s); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB,
				"failed to scan nudge status", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to iterate nudge statuses", err)
	}
	return out, nil
}
