package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, unsigned by us,
	// or carries the wrong token_use tag.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a well-formed, correctly signed token
	// is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Token use tags. A reset token must never be accepted where a session token
// is expected, and vice versa.
const (
	useSession       = "session"
	usePasswordReset = "password_reset"
)

// SessionClaims is the claim set carried by a bearer session token.
// Role is informational only: authorization re-reads the live membership.
type SessionClaims struct {
	jwt.RegisteredClaims
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
	SessionID   string `json:"session_id"`
	TokenUse    string `json:"token_use"`
}

// ResetClaims is the claim set carried by a password-reset token.
type ResetClaims struct {
	jwt.RegisteredClaims
	TokenUse string `json:"token_use"`
}

// TokenProvider issues and verifies HS256-signed tokens. It is stateless:
// verification never consults the session store or revocation cache.
type TokenProvider struct {
	secret     []byte
	issuer     string
	sessionTTL time.Duration
	resetTTL   time.Duration
}

// NewTokenProvider returns a TokenProvider signing with the given secret.
// sessionTTL is the bearer token lifetime; resetTTL bounds password-reset
// tokens. Zero or negative TTLs fall back to 168h and 1h respectively.
func NewTokenProvider(secret []byte, issuer string, sessionTTL, resetTTL time.Duration) (*TokenProvider, error) {
	if len(secret) == 0 {
		return nil, errors.New("security: signing secret is required")
	}
	if sessionTTL <= 0 {
		sessionTTL = 168 * time.Hour
	}
	if resetTTL <= 0 {
		resetTTL = time.Hour
	}
	return &TokenProvider{secret: secret, issuer: issuer, sessionTTL: sessionTTL, resetTTL: resetTTL}, nil
}

// SessionTTL returns the configured bearer token lifetime.
func (p *TokenProvider) SessionTTL() time.Duration { return p.sessionTTL }

// ResetTTL returns the configured password-reset token lifetime.
func (p *TokenProvider) ResetTTL() time.Duration { return p.resetTTL }

// IssueSession signs a bearer token for the given session, user, workspace,
// and role. Returns the token string and its expiry.
func (p *TokenProvider) IssueSession(sessionID, userID, workspaceID, role string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(p.sessionTTL)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		WorkspaceID: workspaceID,
		Role:        role,
		SessionID:   sessionID,
		TokenUse:    useSession,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// VerifySession parses and validates a bearer session token (signature,
// expiry, issuer, token_use). Returns ErrTokenExpired for a correctly signed
// but expired token, ErrInvalidToken for everything else.
func (p *TokenProvider) VerifySession(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, p.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != p.issuer || claims.TokenUse != useSession {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" || claims.WorkspaceID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// PeekSession parses a session token without rejecting it for expiry.
// Signature and shape are still enforced. Logout uses this to compute the
// remaining lifetime of a token it is about to revoke.
func (p *TokenProvider) PeekSession(tokenString string) (*SessionClaims, error) {
	claims, err := p.VerifySession(tokenString)
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, ErrTokenExpired) {
		return nil, err
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, perr := parser.ParseWithClaims(tokenString, &SessionClaims{}, p.keyFunc)
	if perr != nil {
		return nil, ErrInvalidToken
	}
	c, ok := token.Claims.(*SessionClaims)
	if !ok || c.TokenUse != useSession {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// IssueReset signs a short-lived password-reset token for the user. The
// random jti keeps two tokens issued in the same instant distinct, which the
// single-slot ticket comparison depends on.
func (p *TokenProvider) IssueReset(userID string) (string, time.Time, error) {
	jti := make([]byte, 16)
	if _, err := rand.Read(jti); err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(p.resetTTL)
	claims := ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        hex.EncodeToString(jti),
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenUse: usePasswordReset,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// VerifyReset parses and validates a password-reset token and returns the
// user id it was issued for.
func (p *TokenProvider) VerifyReset(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ResetClaims{}, p.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*ResetClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Issuer != p.issuer || claims.TokenUse != usePasswordReset || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (p *TokenProvider) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return p.secret, nil
}
