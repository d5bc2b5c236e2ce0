package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/axedro/genflow-ai/internal/ids"
	"github.com/axedro/genflow-ai/internal/kvstore"
	membershipdomain "github.com/axedro/genflow-ai/internal/membership/domain"
	"github.com/axedro/genflow-ai/internal/ratelimit"
	"github.com/axedro/genflow-ai/internal/revocation"
	"github.com/axedro/genflow-ai/internal/security"
	sessiondomain "github.com/axedro/genflow-ai/internal/session/domain"
	sessionrepo "github.com/axedro/genflow-ai/internal/session/repository"
	userdomain "github.com/axedro/genflow-ai/internal/user/domain"
	workspacedomain "github.com/axedro/genflow-ai/internal/workspace/domain"
)

const resetTicketPrefix = "pwreset:"

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// WorkspaceRepo is the minimal workspace repository needed by the auth service.
type WorkspaceRepo interface {
	GetByID(ctx context.Context, id string) (*workspacedomain.Workspace, error)
}

// MembershipRepo is the minimal membership repository needed by the auth service.
type MembershipRepo interface {
	GetByUserAndWorkspace(ctx context.Context, userID, workspaceID string) (*membershipdomain.Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*membershipdomain.Membership, error)
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	Create(ctx context.Context, s *sessiondomain.Session) error
	GetByToken(ctx context.Context, token string) (*sessiondomain.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteAllForUser(ctx context.Context, userID string) error
	DeleteAllForUserExcept(ctx context.Context, userID, keepToken string) error
}

// Registrar creates the user, their workspace, and the owner membership as
// one transactional unit, so a partial failure never leaves an identity that
// can log in without a workspace.
type Registrar interface {
	CreateAccount(ctx context.Context, u *userdomain.User, w *workspacedomain.Workspace, m *membershipdomain.Membership) error
}

// Client carries request metadata recorded on each session.
type Client struct {
	IP        string
	UserAgent string
}

// RegisterInput is the payload for Register.
type RegisterInput struct {
	Email       string
	Password    string
	Name        string
	CompanyName string
	Industry    string
}

// AuthResult is the outcome of Register, Login, and Refresh.
type AuthResult struct {
	User      *userdomain.User
	Workspace *workspacedomain.Workspace
	Token     string
	ExpiresAt time.Time
}

// Principal is the outcome of Validate: the identity, workspace, and the
// caller's current role in it.
type Principal struct {
	User      *userdomain.User
	Workspace *workspacedomain.Workspace
	Role      membershipdomain.Role
	SessionID string
}

// Service orchestrates credential, session, and token lifecycle.
type Service struct {
	registrar   Registrar
	users       UserRepo
	workspaces  WorkspaceRepo
	memberships MembershipRepo
	sessions    SessionRepo
	revocations *revocation.Cache
	limiter     *ratelimit.Limiter
	tickets     kvstore.Store
	hasher      *security.Hasher
	tokens      *security.TokenProvider

	// cacheTimeout bounds every advisory kv call. The cache and limiter
	// fail open; only the durable stores fail closed.
	cacheTimeout time.Duration

	// storeTimeout bounds every durable-store call. No operation here may
	// block indefinitely: a stalled store surfaces as ErrStoreUnavailable.
	storeTimeout time.Duration

	// requireVerifiedEmail gates login on email_verified_at. Registration
	// auto-verifies (an MVP relaxation), so this stays false until a real
	// verification flow exists.
	requireVerifiedEmail bool
}

// Config carries the service's tunables.
type Config struct {
	CacheTimeout         time.Duration
	StoreTimeout         time.Duration
	RequireVerifiedEmail bool
}

// NewService returns a Service with the given dependencies.
func NewService(
	registrar Registrar,
	users UserRepo,
	workspaces WorkspaceRepo,
	memberships MembershipRepo,
	sessions SessionRepo,
	revocations *revocation.Cache,
	limiter *ratelimit.Limiter,
	tickets kvstore.Store,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	cfg Config,
) *Service {
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = 250 * time.Millisecond
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Service{
		registrar:            registrar,
		users:                users,
		workspaces:           workspaces,
		memberships:          memberships,
		sessions:             sessions,
		revocations:          revocations,
		limiter:              limiter,
		tickets:              tickets,
		hasher:               hasher,
		tokens:               tokens,
		cacheTimeout:         cfg.CacheTimeout,
		storeTimeout:         cfg.StoreTimeout,
		requireVerifiedEmail: cfg.RequireVerifiedEmail,
	}
}

// Register creates a user, their workspace (caller as owner), and a first
// session. Fails with ErrEmailTaken if the normalized email already exists.
func (s *Service) Register(ctx context.Context, in RegisterInput, client Client) (*AuthResult, error) {
	if err := s.checkRate(ctx, "register", client.IP); err != nil {
		return nil, err
	}
	email := userdomain.NormalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	sctx, cancel := s.storeCtx(ctx)
	existing, err := s.users.GetByEmail(sctx, email)
	cancel()
	if err != nil {
		return nil, storeErr(err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hashed, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	// Auto-verification is a deliberate MVP relaxation; see requireVerifiedEmail.
	verifiedAt := now
	user := &userdomain.User{
		ID:              uuid.New().String(),
		Email:           email,
		Name:            in.Name,
		PasswordHash:    hashed,
		EmailVerifiedAt: &verifiedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	workspaceName := in.CompanyName
	if workspaceName == "" {
		workspaceName = in.Name + "'s Workspace"
	}
	workspace := &workspacedomain.Workspace{
		ID:        uuid.New().String(),
		Name:      workspaceName,
		Industry:  in.Industry,
		CreatedAt: now,
	}
	membership := &membershipdomain.Membership{
		WorkspaceID: workspace.ID,
		UserID:      user.ID,
		Role:        membershipdomain.RoleOwner,
		JoinedAt:    now,
	}

	sctx, cancel = s.storeCtx(ctx)
	err = s.registrar.CreateAccount(sctx, user, workspace, membership)
	cancel()
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, storeErr(err)
	}

	return s.openSession(ctx, user, workspace, membershipdomain.RoleOwner, client)
}

// Login authenticates email/password and opens a session in the caller's
// primary workspace (the most privileged owner/admin membership). Each login
// opens an independent session; earlier ones stay valid.
func (s *Service) Login(ctx context.Context, email, password string, client Client) (*AuthResult, error) {
	if err := s.checkRate(ctx, "login", client.IP); err != nil {
		return nil, err
	}
	sctx, cancel := s.storeCtx(ctx)
	user, err := s.users.GetByEmail(sctx, email)
	cancel()
	if err != nil {
		return nil, storeErr(err)
	}
	// Missing user and missing hash (invitee placeholder) fail identically
	// to a wrong password.
	if user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if s.requireVerifiedEmail && user.EmailVerifiedAt == nil {
		return nil, ErrEmailNotVerified
	}

	sctx, cancel = s.storeCtx(ctx)
	memberships, err := s.memberships.ListByUser(sctx, user.ID)
	cancel()
	if err != nil {
		return nil, storeErr(err)
	}
	var elevated []*membershipdomain.Membership
	for _, m := range memberships {
		if m.Role.AtLeast(membershipdomain.RoleAdmin) {
			elevated = append(elevated, m)
		}
	}
	primary := membershipdomain.MostPrivileged(elevated)
	if primary == nil {
		return nil, ErrWorkspaceNotFound
	}
	sctx, cancel = s.storeCtx(ctx)
	workspace, err := s.workspaces.GetByID(sctx, primary.WorkspaceID)
	cancel()
	if err != nil {
		return nil, storeErr(err)
	}
	if workspace == nil {
		return nil, ErrWorkspaceNotFound
	}

	sctx, cancel = s.storeCtx(ctx)
	err = s.users.UpdateLastLogin(sctx, user.ID, time.Now().UTC())
	cancel()
	if err != nil {
		log.Printf("auth: update last login for %s: %v", user.ID, err)
	}

	return s.openSession(ctx, user, workspace, primary.Role, client)
}

// Logout deletes the session row for the token and writes a revocation
// entry covering the token's remaining lifetime. A malformed token is a
// no-op success: the caller's intent (stop trusting this string) is
// already satisfied.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	// The session row is keyed by the raw token string, so it is removed
	// even when the token no longer parses.
	sctx, cancel := s.storeCtx(ctx)
	err := s.sessions.Delete(sctx, token)
	cancel()
	if err != nil {
		return storeErr(err)
	}
	claims, err := s.tokens.PeekSession(token)
	if err != nil {
		return nil
	}
	s.revoke(ctx, token, time.Until(claims.ExpiresAt.Time))
	return nil
}

// Validate checks a bearer token in order: revocation cache, signature and
// expiry, session row, then the live membership. The returned role is the
// current one, so a downgrade takes effect before the token expires.
func (s *Service) Validate(ctx context.Context, token string) (*Principal, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	revoked, err := s.revocations.IsRevoked(cctx, token)
	cancel()
	if err != nil {
		// Advisory cache: degradation is logged and the durable store decides.
		log.Printf("auth: revocation cache check failed: %v", err)
	} else if revoked {
		return nil, ErrTokenRevoked
	}

	claims, err := s.tokens.VerifySession(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	sctx, cancel := s.storeCtx(ctx)
	sess, err := s.sessions.GetByToken(sctx, token)
	cancel()
	if err != nil {
		return nil, storeErr(err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	sctx, cancel = s.storeCtx(ctx)
	user, err := s.users.GetByID(sctx, claims.Subject)
	cancel()
	if err != nil {
		return nil, storeErr(err)
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}
	sctx, cancel = s.storeCtx(ctx)
	membership, err := s.memberships.GetByUserAndWorkspace(sctx, user.ID, claims.WorkspaceID)
	cancel()
	if err != nil {
		return nil, storeErr(err)
	}
	if membership == nil {
		return nil, ErrWorkspaceNotFound
	}
	sctx, cancel = s.storeCtx(ctx)
	workspace, err := s.workspaces.GetByID(sctx, claims.WorkspaceID)
	cancel()
	if err != nil {
		return nil, storeErr(err)
	}
	if workspace == nil {
		return nil, ErrWorkspaceNotFound
	}

	return &Principal{
		User:      sanitize(user),
		Workspace: workspace,
		Role:      membership.Role,
		SessionID: claims.SessionID,
	}, nil
}

// Refresh validates the old token, opens a new session with the current
// membership role, and only then revokes the old one, so the caller is never
// left without a valid token mid-refresh.
func (s *Service) Refresh(ctx context.Context, oldToken string, client Client) (*AuthResult, error) {
	p, err := s.Validate(ctx, oldToken)
	if err != nil {
		return nil, err
	}
	res, err := s.openSession(ctx, p.User, p.Workspace, p.Role, client)
	if err != nil {
		return nil, err
	}
	if err := s.Logout(ctx, oldToken); err != nil {
		// The new session is already live; the old token ages out at its
		// original expiry.
		log.Printf("auth: revoke old token on refresh: %v", err)
	}
	return res, nil
}

// ForgotPassword issues a password-reset ticket for the account, if one
// exists, and returns the reset token for delivery. The empty string means
// no such account; callers must report success either way. A new request
// overwrites any prior unused ticket: one live ticket per user. The ticket
// stores only the token digest, never the raw token.
func (s *Service) ForgotPassword(ctx context.Context, email string, client Client) (string, error) {
	if err := s.checkRate(ctx, "forgot", client.IP); err != nil {
		return "", err
	}
	sctx, cancel := s.storeCtx(ctx)
	user, err := s.users.GetByEmail(sctx, email)
	cancel()
	if err != nil {
		return "", storeErr(err)
	}
	if user == nil {
		return "", nil
	}
	resetToken, _, err := s.tokens.IssueReset(user.ID)
	if err != nil {
		return "", err
	}
	sctx, cancel = s.storeCtx(ctx)
	err = s.tickets.Set(sctx, resetTicketPrefix+user.ID, security.TokenDigest(resetToken), s.tokens.ResetTTL())
	cancel()
	if err != nil {
		return "", storeErr(err)
	}
	return resetToken, nil
}

// ResetPassword verifies the reset token against the single-slot ticket,
// stores the new password, and invalidates every session for the user. A
// superseded ticket fails even when the presented token is still validly
// signed.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	userID, err := s.tokens.VerifyReset(resetToken)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrInvalidToken
	}
	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	sctx, cancel := s.storeCtx(ctx)
	stored, ok, err := s.tickets.Get(sctx, resetTicketPrefix+userID)
	cancel()
	if err != nil {
		return storeErr(err)
	}
	if !ok || !security.TokenEqual(stored, security.TokenDigest(resetToken)) {
		return ErrInvalidToken
	}

	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	sctx, cancel = s.storeCtx(ctx)
	err = s.users.UpdatePassword(sctx, userID, hashed)
	cancel()
	if err != nil {
		return storeErr(err)
	}
	sctx, cancel = s.storeCtx(ctx)
	err = s.tickets.Delete(sctx, resetTicketPrefix+userID)
	cancel()
	if err != nil {
		log.Printf("auth: delete reset ticket for %s: %v", userID, err)
	}
	// The credential changed: no prior token is trusted, including the
	// session that requested the reset (there usually is none).
	return s.invalidateSessions(ctx, userID, "")
}

// ChangePassword verifies the current password, stores the new one, and
// invalidates every session except the requester's own, the one UX
// exception to global invalidation.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, currentToken string) error {
	sctx, cancel := s.storeCtx(ctx)
	user, err := s.users.GetByID(sctx, userID)
	cancel()
	if err != nil {
		return storeErr(err)
	}
	if user == nil || user.PasswordHash == "" {
		return ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}
	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	sctx, cancel = s.storeCtx(ctx)
	err = s.users.UpdatePassword(sctx, userID, hashed)
	cancel()
	if err != nil {
		return storeErr(err)
	}
	return s.invalidateSessions(ctx, userID, currentToken)
}

// RevokeUserSessions force-logs-out another member of the actor's workspace.
// Requires an admin or owner role and a target who is a member of the same
// workspace.
func (s *Service) RevokeUserSessions(ctx context.Context, actor *Principal, targetUserID string) error {
	if !actor.Role.AtLeast(membershipdomain.RoleAdmin) {
		return ErrInsufficientRole
	}
	sctx, cancel := s.storeCtx(ctx)
	target, err := s.memberships.GetByUserAndWorkspace(sctx, targetUserID, actor.Workspace.ID)
	cancel()
	if err != nil {
		return storeErr(err)
	}
	if target == nil {
		return ErrWorkspaceNotFound
	}
	return s.invalidateSessions(ctx, targetUserID, "")
}

// openSession issues a token, persists the session row, and returns the
// result. A token conflict on create means session id generation is broken;
// it is surfaced, never retried.
func (s *Service) openSession(ctx context.Context, user *userdomain.User, workspace *workspacedomain.Workspace, role membershipdomain.Role, client Client) (*AuthResult, error) {
	sessionID := ids.New()
	token, expiresAt, err := s.tokens.IssueSession(sessionID, user.ID, workspace.ID, string(role))
	if err != nil {
		return nil, err
	}
	sess := &sessiondomain.Session{
		ID:        sessionID,
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
		ClientIP:  client.IP,
		UserAgent: client.UserAgent,
	}
	sctx, cancel := s.storeCtx(ctx)
	err = s.sessions.Create(sctx, sess)
	cancel()
	if err != nil {
		if errors.Is(err, sessionrepo.ErrTokenConflict) {
			return nil, fmt.Errorf("session id collision for user %s: %w", user.ID, err)
		}
		return nil, storeErr(err)
	}
	return &AuthResult{
		User:      sanitize(user),
		Workspace: workspace,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// invalidateSessions deletes every session for the user (except keepToken,
// when set) and seeds the revocation cache with the deleted tokens. Cache
// writes are best effort; the row deletions are what make this stick.
func (s *Service) invalidateSessions(ctx context.Context, userID, keepToken string) error {
	sctx, cancel := s.storeCtx(ctx)
	sessions, err := s.sessions.ListActiveByUser(sctx, userID)
	cancel()
	if err != nil {
		return storeErr(err)
	}
	now := time.Now()
	for _, sess := range sessions {
		if keepToken != "" && sess.Token == keepToken {
			continue
		}
		s.revoke(ctx, sess.Token, sess.ExpiresAt.Sub(now))
	}
	sctx, cancel = s.storeCtx(ctx)
	if keepToken != "" {
		err = s.sessions.DeleteAllForUserExcept(sctx, userID, keepToken)
	} else {
		err = s.sessions.DeleteAllForUser(sctx, userID)
	}
	cancel()
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *Service) revoke(ctx context.Context, token string, remaining time.Duration) {
	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()
	if err := s.revocations.Revoke(cctx, token, remaining); err != nil {
		log.Printf("auth: revocation cache write failed: %v", err)
	}
}

func (s *Service) checkRate(ctx context.Context, op, ip string) error {
	if ip == "" {
		ip = "unknown"
	}
	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()
	ok, err := s.limiter.Allow(cctx, op+":"+ip)
	if err != nil {
		log.Printf("auth: rate limiter unavailable, failing open: %v", err)
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// storeCtx bounds a durable-store call. Every repository call in this
// service goes through it; nothing here may block past storeTimeout.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func sanitize(u *userdomain.User) *userdomain.User {
	c := *u
	c.PasswordHash = ""
	return &c
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !emailPattern.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}
