package repository

import (
	"context"
	"errors"

	"github.com/axedro/genflow-ai/internal/session/domain"
)

// ErrTokenConflict is returned when a session is created with a token that
// already exists. Session ids embed a timestamp plus randomness, so this
// never happens in a healthy system; seeing it means session id generation
// is broken, not that the caller did anything wrong.
var ErrTokenConflict = errors.New("session token already exists")

// Repository defines persistence for sessions. GetByToken treats expired
// rows as absent so callers cannot distinguish "never existed" from
// "expired".
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteAllForUser(ctx context.Context, userID string) error
	DeleteAllForUserExcept(ctx context.Context, userID, keepToken string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
