package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gideonfinance/gideon-auth/internal/domain"
	"github.com/gideonfinance/gideon-auth/internal/lockout"
)

// ProfileRepository persists account profiles and their lockout state.
type ProfileRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.Profile, error)
	GetByID(ctx context.Context, id string) (domain.Profile, error)
	Ensure(ctx context.Context, profile domain.Profile) error
	RecordFailure(ctx context.Context, id string, maxAttempts int) (lockout.State, error)
	ResetLockout(ctx context.Context, id string) error
}

// Compile-time interface assertion.
var _ ProfileRepository = (*PostgresProfileRepo)(nil)

// PostgresProfileRepo implements ProfileRepository on a pgx pool.
type PostgresProfileRepo struct {
	db *pgxpool.Pool
}

func NewPostgresProfileRepo(db *pgxpool.Pool) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const selectProfileByEmailSQL = `SELECT id, email, display_name, failed_attempts, locked, created_at, updated_at
FROM profiles WHERE lower(email) = lower($1)`

const selectProfileByIDSQL = `SELECT id, email, display_name, failed_attempts, locked, created_at, updated_at
FROM profiles WHERE id = $1`

// ensureProfileSQL backs up the provider-side trigger that creates the row on
// confirmation; if the trigger already ran this is a no-op.
const ensureProfileSQL = `INSERT INTO profiles (id, email, display_name, failed_attempts, locked)
VALUES ($1, $2, $3, 0, false)
ON CONFLICT (id) DO NOTHING`

// recordFailureSQL increments the counter and derives the lock flag in one
// statement so concurrent failed attempts serialize on the row instead of
// racing a read-modify-write.
const recordFailureSQL = `UPDATE profiles
SET failed_attempts = failed_attempts + 1,
    locked = locked OR failed_attempts + 1 >= $2,
    updated_at = now()
WHERE id = $1
RETURNING failed_attempts, locked`

const resetLockoutSQL = `UPDATE profiles
SET failed_attempts = 0, locked = false, updated_at = now()
WHERE id = $1`

func (r *PostgresProfileRepo) GetByEmail(ctx context.Context, email string) (domain.Profile, error) {
	return scanProfile(r.db.QueryRow(ctx, selectProfileByEmailSQL, email))
}

func (r *PostgresProfileRepo) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	return scanProfile(r.db.QueryRow(ctx, selectProfileByIDSQL, id))
}

func (r *PostgresProfileRepo) Ensure(ctx context.Context, profile domain.Profile) error {
	if _, err := r.db.Exec(ctx, ensureProfileSQL, profile.ID, profile.Email, profile.DisplayName); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

func (r *PostgresProfileRepo) RecordFailure(ctx context.Context, id string, maxAttempts int) (lockout.State, error) {
	var state lockout.State
	row := r.db.QueryRow(ctx, recordFailureSQL, id, maxAttempts)
	if err := row.Scan(&state.FailedAttempts, &state.Locked); err != nil {
		return lockout.State{}, fmt.Errorf("record failed attempt: %w", err)
	}
	return state, nil
}

func (r *PostgresProfileRepo) ResetLockout(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, resetLockoutSQL, id); err != nil {
		return fmt.Errorf("reset lockout: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (domain.Profile, error) {
	var p domain.Profile
	if err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &p.FailedAttempts, &p.Locked, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}
