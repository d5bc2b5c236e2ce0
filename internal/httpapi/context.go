package httpapi

import (
	"context"

	"github.com/axedro/genflow-ai/internal/auth"
)

type contextKey struct{ name string }

var (
	principalKey = contextKey{"principal"}
	tokenKey     = contextKey{"token"}
)

// withPrincipal returns a context carrying the validated principal and the
// raw bearer token it was derived from.
func withPrincipal(ctx context.Context, p *auth.Principal, token string) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	ctx = context.WithValue(ctx, tokenKey, token)
	return ctx
}

// PrincipalFromContext returns the validated principal, if the request went
// through the auth middleware.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*auth.Principal)
	return p, ok
}

// TokenFromContext returns the raw bearer token for the request.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok
}
