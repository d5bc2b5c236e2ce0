package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/axedro/genflow-ai/internal/workspace/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a workspace repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the workspace for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Workspace, error) {
	row := r.db.QueryRowContext(ctx,
		`select id, name, industry, created_at from workspaces where id = $1`, id)
	var w domain.Workspace
	var industry sql.NullString
	if err := row.Scan(&w.ID, &w.Name, &industry, &w.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	w.Industry = industry.String
	return &w, nil
}

// Create persists the workspace. The workspace must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, w *domain.Workspace) error {
	_, err := r.db.ExecContext(ctx,
		`insert into workspaces (id, name, industry, created_at) values ($1, $2, nullif($3, ''), $4)`,
		w.ID, w.Name, w.Industry, w.CreatedAt)
	return err
}
