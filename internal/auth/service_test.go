package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

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

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*userdomain.User
	byEmail map[string]*userdomain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*userdomain.User{}, byEmail: map[string]*userdomain.User{}}
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byEmail[userdomain.NormalizeEmail(email)], nil
}

func (r *memUserRepo) create(u *userdomain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
}

func (r *memUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[userID]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (r *memUserRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[userID]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

type memWorkspaceRepo struct {
	mu sync.Mutex
	m  map[string]*workspacedomain.Workspace
}

func newMemWorkspaceRepo() *memWorkspaceRepo {
	return &memWorkspaceRepo{m: map[string]*workspacedomain.Workspace{}}
}

func (r *memWorkspaceRepo) GetByID(ctx context.Context, id string) (*workspacedomain.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id], nil
}

type memMembershipRepo struct {
	mu sync.Mutex
	m  []*membershipdomain.Membership
}

func (r *memMembershipRepo) GetByUserAndWorkspace(ctx context.Context, userID, workspaceID string) (*membershipdomain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.m {
		if m.UserID == userID && m.WorkspaceID == workspaceID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *memMembershipRepo) ListByUser(ctx context.Context, userID string) ([]*membershipdomain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*membershipdomain.Membership
	for _, m := range r.m {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMembershipRepo) remove(userID, workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.m[:0]
	for _, m := range r.m {
		if !(m.UserID == userID && m.WorkspaceID == workspaceID) {
			kept = append(kept, m)
		}
	}
	r.m = kept
}

func (r *memMembershipRepo) setRole(userID, workspaceID string, role membershipdomain.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.m {
		if m.UserID == userID && m.WorkspaceID == workspaceID {
			m.Role = role
		}
	}
}

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session // keyed by token
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: map[string]*sessiondomain.Session{}}
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[s.Token]; ok {
		return sessionrepo.ErrTokenConflict
	}
	s2 := *s
	r.m[s.Token] = &s2
	return nil
}

func (r *memSessionRepo) GetByToken(ctx context.Context, token string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[token]
	if !ok || s.Expired(time.Now()) {
		return nil, nil
	}
	return s, nil
}

func (r *memSessionRepo) ListActiveByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.m {
		if s.UserID == userID && !s.Expired(time.Now()) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSessionRepo) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, token)
	return nil
}

func (r *memSessionRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tok, s := range r.m {
		if s.UserID == userID {
			delete(r.m, tok)
		}
	}
	return nil
}

func (r *memSessionRepo) DeleteAllForUserExcept(ctx context.Context, userID, keepToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tok, s := range r.m {
		if s.UserID == userID && tok != keepToken {
			delete(r.m, tok)
		}
	}
	return nil
}

// memRegistrar applies the three creates to the fakes non-transactionally;
// transactional behavior is the postgres registrar's concern.
type memRegistrar struct {
	users       *memUserRepo
	workspaces  *memWorkspaceRepo
	memberships *memMembershipRepo
}

func (r *memRegistrar) CreateAccount(ctx context.Context, u *userdomain.User, w *workspacedomain.Workspace, m *membershipdomain.Membership) error {
	if existing, _ := r.users.GetByEmail(ctx, u.Email); existing != nil {
		return ErrEmailTaken
	}
	r.users.create(u)
	r.workspaces.mu.Lock()
	r.workspaces.m[w.ID] = w
	r.workspaces.mu.Unlock()
	r.memberships.mu.Lock()
	r.memberships.m = append(r.memberships.m, m)
	r.memberships.mu.Unlock()
	return nil
}

type fixture struct {
	svc         *Service
	users       *memUserRepo
	workspaces  *memWorkspaceRepo
	memberships *memMembershipRepo
	sessions    *memSessionRepo
	kv          *kvstore.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	users := newMemUserRepo()
	workspaces := newMemWorkspaceRepo()
	memberships := &memMembershipRepo{}
	sessions := newMemSessionRepo()
	kv := kvstore.NewMemoryStore()
	svc := NewService(
		&memRegistrar{users: users, workspaces: workspaces, memberships: memberships},
		users, workspaces, memberships, sessions,
		revocation.NewCache(kv),
		ratelimit.NewLimiter(kv, time.Minute, 5),
		kv,
		security.NewHasher(4),
		tokens,
		Config{},
	)
	return &fixture{svc: svc, users: users, workspaces: workspaces, memberships: memberships, sessions: sessions, kv: kv}
}

func register(t *testing.T, f *fixture, email string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Email: email, Password: "s3cret-pass", Name: "Alice", CompanyName: "Acme",
	}, Client{IP: testIP(t), UserAgent: "test"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return res
}

// testIP hands each test its own client address so the per-IP limiter
// windows do not interfere across tests.
func testIP(t *testing.T) string {
	return "ip-" + t.Name()
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice@x.com")
	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "Alice@X.com", Password: "s3cret-pass", Name: "Alice",
	}, Client{IP: testIP(t)})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate register: want ErrEmailTaken, got %v", err)
	}
}

func TestRegister_ResultShape(t *testing.T) {
	f := newFixture(t)
	res := register(t, f, "alice@x.com")
	if res.Token == "" {
		t.Error("no token issued")
	}
	if res.User.PasswordHash != "" {
		t.Error("password hash leaked in result")
	}
	if res.User.EmailVerifiedAt == nil {
		t.Error("registration did not auto-verify email")
	}
	if res.Workspace == nil || res.Workspace.Name != "Acme" {
		t.Errorf("workspace not created from company name: %+v", res.Workspace)
	}
	p, err := f.svc.Validate(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("Validate after register: %v", err)
	}
	if p.Role != membershipdomain.RoleOwner {
		t.Errorf("registering user role = %s, want owner", p.Role)
	}
}

func TestLogin_ConcurrentSessionsIndependent(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	ctx := context.Background()
	client := Client{IP: testIP(t)}

	res1, err := f.svc.Login(ctx, "alice@x.com", "s3cret-pass", client)
	if err != nil {
		t.Fatalf("Login 1: %v", err)
	}
	res2, err := f.svc.Login(ctx, "alice@x.com", "s3cret-pass", client)
	if err != nil {
		t.Fatalf("Login 2: %v", err)
	}
	if res1.Token == res2.Token || res1.Token == reg.Token {
		t.Fatal("logins produced duplicate tokens")
	}
	for i, tok := range []string{reg.Token, res1.Token, res2.Token} {
		if _, err := f.svc.Validate(ctx, tok); err != nil {
			t.Errorf("token %d invalid: %v", i, err)
		}
	}

	// Logging out one leaves the others untouched.
	if err := f.svc.Logout(ctx, res1.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Validate(ctx, res1.Token); !errors.Is(err, ErrTokenRevoked) && !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("logged-out token: want ErrTokenRevoked or ErrSessionNotFound, got %v", err)
	}
	if _, err := f.svc.Validate(ctx, res2.Token); err != nil {
		t.Errorf("sibling session invalidated by logout: %v", err)
	}
}

func TestLogin_AntiEnumeration(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice@x.com")
	ctx := context.Background()
	client := Client{IP: testIP(t)}

	_, errUnknown := f.svc.Login(ctx, "nobody@x.com", "whatever-pass", client)
	_, errWrong := f.svc.Login(ctx, "alice@x.com", "wrong-password", client)
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Errorf("want identical ErrInvalidCredentials, got %v / %v", errUnknown, errWrong)
	}
}

func TestLogin_PlaceholderUserCannotLogIn(t *testing.T) {
	f := newFixture(t)
	// Invitee placeholder: identity exists, no password set.
	f.users.create(&userdomain.User{ID: "u-inv", Email: "invitee@x.com"})
	_, err := f.svc.Login(context.Background(), "invitee@x.com", "anything-goes", Client{IP: testIP(t)})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("placeholder login: want ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_NoElevatedWorkspace(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	f.memberships.setRole(reg.User.ID, reg.Workspace.ID, membershipdomain.RoleViewer)
	_, err := f.svc.Login(context.Background(), "alice@x.com", "s3cret-pass", Client{IP: testIP(t)})
	if !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("viewer-only login: want ErrWorkspaceNotFound, got %v", err)
	}
}

func TestLogout_GarbageTokenIsNoop(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.Logout(context.Background(), "not-a-real-token"); err != nil {
		t.Errorf("Logout garbage token: %v", err)
	}
	if err := f.svc.Logout(context.Background(), ""); err != nil {
		t.Errorf("Logout empty token: %v", err)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	ctx := context.Background()
	if err := f.svc.Logout(ctx, reg.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := f.svc.Logout(ctx, reg.Token); err != nil {
		t.Errorf("second Logout: %v", err)
	}
}

func TestValidate_RoleDowngradeTakesEffect(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	ctx := context.Background()

	f.memberships.setRole(reg.User.ID, reg.Workspace.ID, membershipdomain.RoleViewer)
	p, err := f.svc.Validate(ctx, reg.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	// The token still claims owner; the live membership wins.
	if p.Role != membershipdomain.RoleViewer {
		t.Errorf("role = %s, want viewer from live membership", p.Role)
	}
}

func TestValidate_MembershipRemoved(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	f.memberships.remove(reg.User.ID, reg.Workspace.ID)
	_, err := f.svc.Validate(context.Background(), reg.Token)
	if !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("removed membership: want ErrWorkspaceNotFound, got %v", err)
	}
}

func TestValidate_UnknownToken(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Validate(context.Background(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: want ErrInvalidToken, got %v", err)
	}
}

func TestValidate_SessionRowMissing(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	ctx := context.Background()
	// Drop the row directly; the signature is still good, the allow-list
	// entry is gone.
	_ = f.sessions.Delete(ctx, reg.Token)
	if _, err := f.svc.Validate(ctx, reg.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session row: want ErrSessionNotFound, got %v", err)
	}
}

func TestRefresh_IssueThenRevoke(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	ctx := context.Background()

	res, err := f.svc.Refresh(ctx, reg.Token, Client{IP: testIP(t)})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Token == reg.Token {
		t.Fatal("refresh returned the same token")
	}
	if _, err := f.svc.Validate(ctx, res.Token); err != nil {
		t.Errorf("new token invalid: %v", err)
	}
	if _, err := f.svc.Validate(ctx, reg.Token); !errors.Is(err, ErrTokenRevoked) && !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("old token after refresh: want revoked/not-found, got %v", err)
	}
}

func TestForgotPassword_AntiEnumeration(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice@x.com")
	ctx := context.Background()
	client := Client{IP: testIP(t)}

	tok, err := f.svc.ForgotPassword(ctx, "alice@x.com", client)
	if err != nil {
		t.Fatalf("ForgotPassword existing: %v", err)
	}
	if tok == "" {
		t.Error("no reset token for existing account")
	}
	tok, err = f.svc.ForgotPassword(ctx, "nobody@x.com", client)
	if err != nil {
		t.Errorf("ForgotPassword missing account must not error: %v", err)
	}
	if tok != "" {
		t.Error("reset token issued for missing account")
	}
}

func TestResetPassword_InvalidatesAllSessions(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	ctx := context.Background()
	client := Client{IP: testIP(t)}

	res2, err := f.svc.Login(ctx, "alice@x.com", "s3cret-pass", client)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	resetToken, err := f.svc.ForgotPassword(ctx, "alice@x.com", client)
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, resetToken, "brand-new-pass"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	for i, tok := range []string{reg.Token, res2.Token} {
		if _, err := f.svc.Validate(ctx, tok); err == nil {
			t.Errorf("token %d survived password reset", i)
		}
	}
	if _, err := f.svc.Login(ctx, "alice@x.com", "s3cret-pass", client); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password still accepted: %v", err)
	}
	if _, err := f.svc.Login(ctx, "alice@x.com", "brand-new-pass", client); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestResetPassword_SupersededTicketRejected(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice@x.com")
	ctx := context.Background()
	client := Client{IP: testIP(t)}

	first, err := f.svc.ForgotPassword(ctx, "alice@x.com", client)
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	second, err := f.svc.ForgotPassword(ctx, "alice@x.com", client)
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	// The first token is still validly signed but its single-slot ticket
	// was overwritten.
	if err := f.svc.ResetPassword(ctx, first, "brand-new-pass"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("superseded ticket: want ErrInvalidToken, got %v", err)
	}
	if err := f.svc.ResetPassword(ctx, second, "brand-new-pass"); err != nil {
		t.Errorf("current ticket rejected: %v", err)
	}
}

func TestResetPassword_TicketSingleUse(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice@x.com")
	ctx := context.Background()

	resetToken, err := f.svc.ForgotPassword(ctx, "alice@x.com", Client{IP: testIP(t)})
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, resetToken, "brand-new-pass"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, resetToken, "another-pass"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("reused ticket: want ErrInvalidToken, got %v", err)
	}
}

func TestChangePassword_KeepsCurrentSession(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	ctx := context.Background()
	client := Client{IP: testIP(t)}

	other, err := f.svc.Login(ctx, "alice@x.com", "s3cret-pass", client)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.svc.ChangePassword(ctx, reg.User.ID, "s3cret-pass", "brand-new-pass", reg.Token); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := f.svc.Validate(ctx, reg.Token); err != nil {
		t.Errorf("requester's own session invalidated: %v", err)
	}
	if _, err := f.svc.Validate(ctx, other.Token); err == nil {
		t.Error("other session survived password change")
	}
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	err := f.svc.ChangePassword(context.Background(), reg.User.ID, "wrong-pass", "brand-new-pass", reg.Token)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong current password: want ErrInvalidCredentials, got %v", err)
	}
}

func TestRevokeUserSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := register(t, f, "owner@x.com")

	// A second member of the owner's workspace with a live session.
	member := register(t, f, "member@x.com")
	f.memberships.mu.Lock()
	f.memberships.m = append(f.memberships.m, &membershipdomain.Membership{
		WorkspaceID: owner.Workspace.ID,
		UserID:      member.User.ID,
		Role:        membershipdomain.RoleUser,
		JoinedAt:    time.Now(),
	})
	f.memberships.mu.Unlock()

	actor, err := f.svc.Validate(ctx, owner.Token)
	if err != nil {
		t.Fatalf("Validate owner: %v", err)
	}
	if err := f.svc.RevokeUserSessions(ctx, actor, member.User.ID); err != nil {
		t.Fatalf("RevokeUserSessions: %v", err)
	}
	if _, err := f.svc.Validate(ctx, member.Token); err == nil {
		t.Error("target session survived forced revocation")
	}
	if _, err := f.svc.Validate(ctx, owner.Token); err != nil {
		t.Errorf("actor session affected: %v", err)
	}
}

func TestRevokeUserSessions_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := register(t, f, "owner@x.com")
	f.memberships.setRole(owner.User.ID, owner.Workspace.ID, membershipdomain.RoleUser)

	actor, err := f.svc.Validate(ctx, owner.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := f.svc.RevokeUserSessions(ctx, actor, "someone-else"); !errors.Is(err, ErrInsufficientRole) {
		t.Errorf("plain member revoking: want ErrInsufficientRole, got %v", err)
	}
}

func TestRevokeUserSessions_TargetOutsideWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := register(t, f, "owner@x.com")
	other := register(t, f, "other@x.com") // owner of a different workspace

	actor, err := f.svc.Validate(ctx, owner.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := f.svc.RevokeUserSessions(ctx, actor, other.User.ID); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("target outside workspace: want ErrWorkspaceNotFound, got %v", err)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice@x.com")
	ctx := context.Background()
	client := Client{IP: testIP(t)}

	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(ctx, "alice@x.com", "wrong-password", client)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: want ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	// The 6th attempt is limited regardless of credential correctness.
	if _, err := f.svc.Login(ctx, "alice@x.com", "s3cret-pass", client); !errors.Is(err, ErrRateLimited) {
		t.Errorf("6th attempt: want ErrRateLimited, got %v", err)
	}
}

// failingSessions wraps a SessionRepo and fails GetByToken, modeling a
// session store outage.
type failingSessions struct {
	SessionRepo
}

func (failingSessions) GetByToken(ctx context.Context, token string) (*sessiondomain.Session, error) {
	return nil, errors.New("store down")
}

func TestValidate_SessionStoreFailsClosed(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	f.svc.sessions = failingSessions{f.sessions}
	_, err := f.svc.Validate(context.Background(), reg.Token)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("store outage: want ErrStoreUnavailable, got %v", err)
	}
}

// blockingSessions wraps a SessionRepo and stalls GetByToken until the
// context is cancelled, modeling a hung store connection.
type blockingSessions struct {
	SessionRepo
}

func (blockingSessions) GetByToken(ctx context.Context, token string) (*sessiondomain.Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestValidate_StalledSessionStoreTimesOut(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	f.svc.sessions = blockingSessions{f.sessions}
	f.svc.storeTimeout = 10 * time.Millisecond

	start := time.Now()
	_, err := f.svc.Validate(context.Background(), reg.Token)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("stalled store: want ErrStoreUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Validate blocked %v despite the store timeout", elapsed)
	}
}

func TestForgotPassword_TicketHoldsDigestOnly(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	ctx := context.Background()

	resetToken, err := f.svc.ForgotPassword(ctx, "alice@x.com", Client{IP: testIP(t)})
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	stored, ok, err := f.kv.Get(ctx, resetTicketPrefix+reg.User.ID)
	if err != nil || !ok {
		t.Fatalf("ticket missing: ok=%v err=%v", ok, err)
	}
	if stored == resetToken {
		t.Error("raw reset token stored in the cache backend")
	}
	if stored != security.TokenDigest(resetToken) {
		t.Errorf("ticket value is not the token digest")
	}
}

func TestValidate_RevocationCacheDownFailsOpen(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	f.svc.revocations = revocation.NewCache(failingKV{})
	// Cache down: the durable session store still validates the token.
	if _, err := f.svc.Validate(context.Background(), reg.Token); err != nil {
		t.Errorf("cache outage must fail open: %v", err)
	}
}

func TestLogout_RemainsEffectiveWithoutCache(t *testing.T) {
	f := newFixture(t)
	reg := register(t, f, "alice@x.com")
	ctx := context.Background()
	f.svc.revocations = revocation.NewCache(failingKV{})

	if err := f.svc.Logout(ctx, reg.Token); err != nil {
		t.Fatalf("Logout with cache down: %v", err)
	}
	// The session row deletion alone rejects the token.
	if _, err := f.svc.Validate(ctx, reg.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("want ErrSessionNotFound via session store, got %v", err)
	}
}

type failingKV struct{}

func (failingKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("kv down")
}
func (failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("kv down")
}
func (failingKV) Delete(ctx context.Context, key string) error { return errors.New("kv down") }
func (failingKV) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, errors.New("kv down")
}

// End-to-end lifecycle: register, second login, selective logout, reset.
func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := Client{IP: testIP(t)}

	reg := register(t, f, "alice@x.com")
	token1 := reg.Token

	res, err := f.svc.Login(ctx, "alice@x.com", "s3cret-pass", client)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	token2 := res.Token
	if token1 == token2 {
		t.Fatal("token2 == token1")
	}

	if _, err := f.svc.Validate(ctx, token1); err != nil {
		t.Fatalf("token1 invalid: %v", err)
	}
	if _, err := f.svc.Validate(ctx, token2); err != nil {
		t.Fatalf("token2 invalid: %v", err)
	}

	if err := f.svc.Logout(ctx, token1); err != nil {
		t.Fatalf("Logout token1: %v", err)
	}
	if _, err := f.svc.Validate(ctx, token1); !errors.Is(err, ErrTokenRevoked) && !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("token1 after logout: %v", err)
	}
	if _, err := f.svc.Validate(ctx, token2); err != nil {
		t.Errorf("token2 after token1 logout: %v", err)
	}

	resetToken, err := f.svc.ForgotPassword(ctx, "alice@x.com", client)
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, resetToken, "fresh-new-pass"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := f.svc.Validate(ctx, token2); err == nil {
		t.Error("token2 survived the password reset")
	}
}
