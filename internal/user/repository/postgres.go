package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/axedro/genflow-ai/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, name, password_hash, email_verified_at, last_login_at, created_at, updated_at`

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user for the normalized email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, domain.NormalizeEmail(email))
	return scanUser(row)
}

// Create persists the user. The user must have ID set and a normalized email.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`insert into users (id, email, name, password_hash, email_verified_at, created_at, updated_at)
		 values ($1, $2, $3, nullif($4, ''), $5, $6, $7)`,
		u.ID, u.Email, u.Name, u.PasswordHash, timeToNull(u.EmailVerifiedAt), u.CreatedAt, u.UpdatedAt)
	return err
}

// UpdatePassword replaces the stored password hash.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`update users set password_hash = $2, updated_at = now() where id = $1`,
		userID, passwordHash)
	return err
}

// UpdateLastLogin records the time of a successful login.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`update users set last_login_at = $2 where id = $1`, userID, at)
	return err
}

// Delete removes the user. Sessions and memberships cascade via foreign keys.
func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `delete from users where id = $1`, userID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u            domain.User
		passwordHash sql.NullString
		verifiedAt   sql.NullTime
		lastLoginAt  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &passwordHash, &verifiedAt, &lastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.PasswordHash = passwordHash.String
	u.EmailVerifiedAt = nullTimeToPtr(verifiedAt)
	u.LastLoginAt = nullTimeToPtr(lastLoginAt)
	return &u, nil
}

func timeToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
