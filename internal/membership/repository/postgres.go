package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/axedro/genflow-ai/internal/membership/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a membership repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const membershipColumns = `workspace_id, user_id, role, invited_at, joined_at`

// GetByUserAndWorkspace returns the membership for the given user and
// workspace, or nil if not found. It returns an error only for database
// failures, not for missing rows.
func (r *PostgresRepository) GetByUserAndWorkspace(ctx context.Context, userID, workspaceID string) (*domain.Membership, error) {
	row := r.db.QueryRowContext(ctx,
		`select `+membershipColumns+` from memberships where user_id = $1 and workspace_id = $2`,
		userID, workspaceID)
	m, err := scanMembership(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListByUser returns all memberships for the given user.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`select `+membershipColumns+` from memberships where user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Create persists the membership.
func (r *PostgresRepository) Create(ctx context.Context, m *domain.Membership) error {
	var invitedAt sql.NullTime
	if m.InvitedAt != nil {
		invitedAt = sql.NullTime{Time: *m.InvitedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`insert into memberships (workspace_id, user_id, role, invited_at, joined_at)
		 values ($1, $2, $3, $4, $5)`,
		m.WorkspaceID, m.UserID, string(m.Role), invitedAt, m.JoinedAt)
	return err
}

func scanMembership(scan func(dest ...any) error) (*domain.Membership, error) {
	var (
		m         domain.Membership
		role      string
		invitedAt sql.NullTime
	)
	if err := scan(&m.WorkspaceID, &m.UserID, &role, &invitedAt, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.Role = domain.Role(role)
	if invitedAt.Valid {
		m.InvitedAt = &invitedAt.Time
	}
	return &m, nil
}
