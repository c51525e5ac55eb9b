package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cardiometrix/internal/types"
)

// UserRepository provides data access for the users table. The pipeline only
// needs a thin projection: identity, role, and timezone.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a UserRepository backed by the given database
// connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID. Returns not-found for unknown or
// soft-deleted users.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT u.id, u.role, COALESCE(u.timezone, '')
		 FROM users u
		 WHERE u.id = $1 AND u.deleted_at IS NULL`,
		id,
	)

	var u types.User
	if err := row.Scan(&u.ID, &u.Role, &u.Timezone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return &u, nil
}

// ListActivePatients returns every non-deleted user with the patient role,
// the cohort a daily batch run covers.
func (r *UserRepository) ListActivePatients(ctx context.Context) ([]types.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT u.id, u.role, COALESCE(u.timezone, '')
		 FROM users u
		 WHERE u.role = $1 AND u.deleted_at IS NULL
		 ORDER BY u.id`,
		types.RolePatient,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to list patients", err)
	}
	defer rows.Close()

	var out []types.User
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.ID, &u.Role, &u.Timezone); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB,
				"failed to scan user", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB,
			"failed to iterate users", err)
	}
	return out, nil
}
