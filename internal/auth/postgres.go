package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	membershipdomain "github.com/axedro/genflow-ai/internal/membership/domain"
	userdomain "github.com/axedro/genflow-ai/internal/user/domain"
	workspacedomain "github.com/axedro/genflow-ai/internal/workspace/domain"
)

const uniqueViolation = "23505"

// PostgresRegistrar creates the user, workspace, and owner membership in a
// single transaction.
type PostgresRegistrar struct {
	db *sql.DB
}

// NewPostgresRegistrar returns a Registrar backed by the given db.
func NewPostgresRegistrar(db *sql.DB) *PostgresRegistrar {
	return &PostgresRegistrar{db: db}
}

// CreateAccount inserts all three rows or none. A duplicate email surfaces
// as ErrEmailTaken; the pre-check in Register races with concurrent
// registrations, so the unique index is the real guarantee.
func (r *PostgresRegistrar) CreateAccount(ctx context.Context, u *userdomain.User, w *workspacedomain.Workspace, m *membershipdomain.Membership) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin register tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var verifiedAt sql.NullTime
	if u.EmailVerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: *u.EmailVerifiedAt, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`insert into users (id, email, name, password_hash, email_verified_at, created_at, updated_at)
		 values ($1, $2, $3, nullif($4, ''), $5, $6, $7)`,
		u.ID, u.Email, u.Name, u.PasswordHash, verifiedAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`insert into workspaces (id, name, industry, created_at) values ($1, $2, nullif($3, ''), $4)`,
		w.ID, w.Name, w.Industry, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`insert into memberships (workspace_id, user_id, role, joined_at) values ($1, $2, $3, $4)`,
		m.WorkspaceID, m.UserID, string(m.Role), m.JoinedAt)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
