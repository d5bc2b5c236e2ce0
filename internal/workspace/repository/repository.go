package repository

import (
	"context"

	"github.com/axedro/genflow-ai/internal/workspace/domain"
)

// Repository defines persistence for workspaces.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Workspace, error)
	Create(ctx context.Context, w *domain.Workspace) error
}
