package repository

import (
	"context"

	"github.com/axedro/genflow-ai/internal/membership/domain"
)

// Repository defines persistence for memberships. The auth core only reads
// and creates memberships; role changes happen elsewhere in the system.
type Repository interface {
	GetByUserAndWorkspace(ctx context.Context, userID, workspaceID string) (*domain.Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	Create(ctx context.Context, m *domain.Membership) error
}
