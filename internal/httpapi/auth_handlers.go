package httpapi

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/axedro/genflow-ai/internal/auth"
	"github.com/axedro/genflow-ai/internal/obs"
	userdomain "github.com/axedro/genflow-ai/internal/user/domain"
	workspacedomain "github.com/axedro/genflow-ai/internal/workspace/domain"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	CompanyName string `json:"companyName,omitempty"`
	Industry    string `json:"industry,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type revokeUserSessionsRequest struct {
	UserID string `json:"userId"`
}

type userPayload struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
}

type workspacePayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"`
}

type authResponse struct {
	User      userPayload      `json:"user"`
	Workspace workspacePayload `json:"workspace"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

type mePayload struct {
	User      userPayload      `json:"user"`
	Workspace workspacePayload `json:"workspace"`
	Role      string           `json:"role"`
	SessionID string           `json:"sessionId"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toUserPayload(u *userdomain.User) userPayload {
	return userPayload{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		EmailVerifiedAt: u.EmailVerifiedAt,
		LastLoginAt:     u.LastLoginAt,
	}
}

func toWorkspacePayload(w *workspacedomain.Workspace) workspacePayload {
	return workspacePayload{ID: w.ID, Name: w.Name, Industry: w.Industry}
}

func toAuthResponse(res *auth.AuthResult) authResponse {
	return authResponse{
		User:      toUserPayload(res.User),
		Workspace: toWorkspacePayload(res.Workspace),
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
	}
}

func clientOf(r *http.Request) auth.Client {
	return auth.Client{IP: clientIP(r), UserAgent: r.UserAgent()}
}

func attemptResult(err error) string {
	if errors.Is(err, auth.ErrRateLimited) {
		return "rate_limited"
	}
	return "failure"
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		Name:        req.Name,
		CompanyName: req.CompanyName,
		Industry:    req.Industry,
	}, clientOf(r))
	if err != nil {
		obs.AuthAttempt("register", attemptResult(err))
		writeAuthError(w, err)
		return
	}
	obs.AuthAttempt("register", "success")
	writeJSON(w, http.StatusCreated, toAuthResponse(res))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := a.auth.Login(r.Context(), req.Email, req.Password, clientOf(r))
	if err != nil {
		obs.AuthAttempt("login", attemptResult(err))
		writeAuthError(w, err)
		return
	}
	obs.AuthAttempt("login", "success")
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	// Logout is forgiving on purpose: a missing or malformed token still
	// reports success, so clients can always clear local state.
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
		return
	}
	if err := a.auth.Logout(r.Context(), token); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	res, err := a.auth.Refresh(r.Context(), token, clientOf(r))
	if err != nil {
		obs.AuthAttempt("refresh", attemptResult(err))
		writeAuthError(w, err)
		return
	}
	obs.AuthAttempt("refresh", "success")
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resetToken, err := a.auth.ForgotPassword(r.Context(), req.Email, clientOf(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	if resetToken != "" {
		// Delivery (email) is out of process; the ticket is live either way.
		log.Printf("httpapi: password reset ticket issued")
	}
	// Identical response whether or not the account exists.
	writeJSON(w, http.StatusOK, messageResponse{Message: "if the account exists, a reset link has been sent"})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		obs.AuthAttempt("reset_password", attemptResult(err))
		writeAuthError(w, err)
		return
	}
	obs.AuthAttempt("reset_password", "success")
	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

func (a *API) handleRevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req revokeUserSessionsRequest
	if err := decodeJSON(w, r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.auth.RevokeUserSessions(r.Context(), p, req.UserID); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "sessions revoked"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, mePayload{
		User:      toUserPayload(p.User),
		Workspace: toWorkspacePayload(p.Workspace),
		Role:      string(p.Role),
		SessionID: p.SessionID,
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	token, _ := TokenFromContext(r.Context())
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.auth.ChangePassword(r.Context(), p.User.ID, req.CurrentPassword, req.NewPassword, token); err != nil {
		obs.AuthAttempt("change_password", attemptResult(err))
		writeAuthError(w, err)
		return
	}
	obs.AuthAttempt("change_password", "success")
	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}
