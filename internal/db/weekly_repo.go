package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"cardiometrix/internal/types"
)

// WeeklyRepository provides data access for the weekly_risk_summaries table.
type WeeklyRepository struct {
	db DBTX
}

// NewWeeklyRepository creates a WeeklyRepository backed by the given database
// connection (pool or transaction).
func NewWeeklyRepository(db DBTX) *WeeklyRepository {
	return &WeeklyRepository{db: db}
}

// UpsertWeeklySummary writes the summary for one user-week, replacing any
// prior computation of the same week.
func (r *WeeklyRepository) UpsertWeeklySummary(ctx context.Context, s types.WeeklyRiskSummary) error {
	metrics, err := json.Marshal(s.Metrics)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"weekly metrics are not serializable", err)
	}
	signals, err := json.Marshal(s.Signals)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"weekly signals are not serializable", err)
	}
	explanations, err := json.Marshal(s.Explanations)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"weekly explanations are not serializable", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO weekly_risk_summaries
		   (user_id, week_start, week_end, horizon_days, metrics, signals,
		    explanations, summary_text, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, week_start) DO UPDATE SET
		   week_end = EXCLUDED.week_end,
		   horizon_days = EXCLUDED.horizon_days,
		   metrics = EXCLUDED.metrics,
		   signals = EXCLUDED.signals,
		   explanations = EXCLUDED.explanations,
		   summary_text = EXCLUDED.summary_text,
		   computed_at = EXCLUDED.computed_at`,
		s.UserID, s.WeekStart, s.WeekEnd, s.HorizonDays, metrics, signals,
		explanations, s.SummaryText, s.ComputedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB,
			"failed to upsert weekly summary", err)
	}
	return nil
}

// GetWeeklySummary returns the summary for the week containing the given
// week_start date.
func (r *WeeklyRepository) GetWeeklySummary(ctx context.Context, userID, weekStart string) (*types.WeeklyRiskSummary, error) {
	row := r.db.QueryRow(ctx,
		`SELECT w.user_id, w.week_start, w.week_end, w.horizon_days, w.metrics,
		        w.signals, w.explanations, w.summary_text, w.computed_at
		 FROM weekly_risk_summaries w
		 WHERE w.user_id = $1 AND w.week_start = $2`,
		userID, weekStart,
	)

	var s types.WeeklyRiskSummary
	var metrics, signals, explanations []byte
	err := row.Scan(&s.UserID, &s.WeekStart, &s.WeekEnd, &s.HorizonDays,
		&metrics, &signals, &explanations, &s.SummaryText, &s.ComputedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSummary,
				"no weekly summary for this week", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to retrieve weekly summary", err)
	}

	if err := json.Unmarshal(metrics, &s.Metrics); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to decode weekly metrics", err)
	}
	if err := json.Unmarshal(signals, &s.Signals); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to decode weekly signals", err)
	}
	if len(explanations) > 0 {
		if err := json.Unmarshal(explanations, &s.Explanations); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB,
				"failed to decode weekly explanations", err)
		}
	}
	return &s, nil
}
