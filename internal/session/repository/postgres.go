package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/axedro/genflow-ai/internal/session/domain"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, token, user_id, expires_at, created_at, client_ip, user_agent`

// Create persists the session. Returns ErrTokenConflict if the token is
// already present.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`insert into sessions (id, token, user_id, expires_at, created_at, client_ip, user_agent)
		 values ($1, $2, $3, $4, $5, nullif($6, ''), nullif($7, ''))`,
		s.ID, s.Token, s.UserID, s.ExpiresAt, s.CreatedAt, s.ClientIP, s.UserAgent)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrTokenConflict
		}
		return err
	}
	return nil
}

// GetByToken returns the live session for token, or nil when no row exists
// or the row has expired. The two cases are deliberately indistinguishable.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where token = $1 and expires_at > now()`, token)
	s, err := scanSession(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListActiveByUser returns all non-expired sessions for the user. Bulk
// invalidation uses this to seed the revocation cache before deleting rows.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`select `+sessionColumns+` from sessions where user_id = $1 and expires_at > now()`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes the session for token. Deleting a missing token is not an
// error.
func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `delete from sessions where token = $1`, token)
	return err
}

// DeleteAllForUser removes every session for the user.
func (r *PostgresRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `delete from sessions where user_id = $1`, userID)
	return err
}

// DeleteAllForUserExcept removes every session for the user except the one
// bound to keepToken. Used by password change, where the requester's own
// session survives.
func (r *PostgresRepository) DeleteAllForUserExcept(ctx context.Context, userID, keepToken string) error {
	_, err := r.db.ExecContext(ctx,
		`delete from sessions where user_id = $1 and token <> $2`, userID, keepToken)
	return err
}

// DeleteExpired purges expired rows and returns how many were removed.
// Storage hygiene only; correctness never depends on it.
func (r *PostgresRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from sessions where expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(scan func(dest ...any) error) (*domain.Session, error) {
	var (
		s         domain.Session
		clientIP  sql.NullString
		userAgent sql.NullString
	)
	if err := scan(&s.ID, &s.Token, &s.UserID, &s.ExpiresAt, &s.CreatedAt, &clientIP, &userAgent); err != nil {
		return nil, err
	}
	s.ClientIP = clientIP.String
	s.UserAgent = userAgent.String
	return &s, nil
}
