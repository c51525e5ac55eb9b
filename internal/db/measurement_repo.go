package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"cardiometrix/internal/types"
)

// MeasurementRepository provides data access for the measurements table.
type MeasurementRepository struct {
	db DBTX
}

// NewMeasurementRepository creates a MeasurementRepository backed by the
// given database connection (pool or transaction).
func NewMeasurementRepository(db DBTX) *MeasurementRepository {
	return &MeasurementRepository{db: db}
}

const measurementColumns = `m.id, m.user_id, m.type, m.measured_at, m.payload, m.created_at`

// Insert stores a single measurement, generating an ID when the caller did
// not supply one.
func (r *MeasurementRepository) Insert(ctx context.Context, m types.Measurement) (types.Measurement, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return types.Measurement{}, types.NewAppError(types.ErrCodeValidationInvalidMeasurement,
			"measurement payload is not serializable", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO measurements (id, user_id, type, measured_at, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.UserID, m.Type, m.MeasuredAt, payload, m.CreatedAt,
	)
	if err != nil {
		return types.Measurement{}, types.NewAppError(types.ErrCodeInternalDB,
			"failed to insert measurement", err)
	}
	return m, nil
}

// InsertIfAbsent stores a measurement unless an identical reading already
// exists for the same (user, type, measured_at). Returns true when a row was
// written. Used by the bulk importer to make re-imports idempotent.
func (r *MeasurementRepository) InsertIfAbsent(ctx context.Context, m types.Measurement) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeValidationInvalidMeasurement,
			"measurement payload is not serializable", err)
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO measurements (id, user_id, type, measured_at, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, type, measured_at) DO NOTHING`,
		m.ID, m.UserID, m.Type, m.MeasuredAt, payload, m.CreatedAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB,
			"failed to insert measurement", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListForUser returns the user's measurements with measured_at in [from, to],
// all types, ordered by measured_at ascending.
func (r *MeasurementRepository) ListForUser(ctx context.Context, userID string, from, to time.Time) ([]types.Measurement, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+measurementColumns+`
		 FROM measurements m
		 WHERE m.user_id = $1 AND m.measured_at >= $2 AND m.measured_at <= $3
		 ORDER BY m.measured_at ASC`,
		userID, from, to,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to list measurements", err)
	}
	defer rows.Close()

	var out []types.Measurement
	for rows.Next() {
		var m types.Measurement
		var payload []byte
		if err := rows.Scan(&m.ID, &m.UserID, &m.Type, &m.MeasuredAt, &payload, &m.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB,
				"failed to scan measurement", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &m.Payload); err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB,
					"failed to decode measurement payload", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to iterate measurements", err)
	}
	return out, nil
}
