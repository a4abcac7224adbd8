// Package handler contains the HTTP handlers for the accounts API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/service"
)

// RegistrationHandler exposes the password-path lifecycle over HTTP:
// register, confirm email, login, logout, and the current-user endpoint.
type RegistrationHandler struct {
	registrations *service.RegistrationService
	logger        *slog.Logger
}

// NewRegistrationHandler creates a RegistrationHandler.
func NewRegistrationHandler(registrations *service.RegistrationService, logger *slog.Logger) *RegistrationHandler {
	return &RegistrationHandler{
		registrations: registrations,
		logger:        logger,
	}
}

// registerRequest is the JSON body of POST /api/register.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// HandleRegister creates a new unconfirmed account.
//
// HTTP: POST /api/register
//
// The handler only does syntax: decode the body, check the fields are
// present and look plausible. The lifecycle rules (hashing, token, email)
// live in the service.
func (h *RegistrationHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "request body must be valid JSON"))
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, apperror.ValidationFailed("email", "a valid email is required"))
		return
	}
	if req.Password == "" {
		writeError(w, apperror.ValidationFailed("password", "password is required"))
		return
	}

	if err := h.registrations.Register(r.Context(), req.Email, req.Password, req.Name); err != nil {
		h.logger.Warn("registration failed",
			slog.String("email", req.Email),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "user registered successfully"})
}

// HandleConfirmEmail consumes a confirmation token.
//
// HTTP: GET /api/confirm?token=<token>
//
// GET because the URL arrives in an email and is opened by a browser.
// The token is single-use, so replaying the URL fails with 404.
func (h *RegistrationHandler) HandleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	if err := h.registrations.ConfirmEmail(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "email confirmed successfully"})
}

// loginRequest is the JSON body of POST /api/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin authenticates an email/password pair and sets the JWT cookie.
//
// HTTP: POST /api/login
//
// All failures return the same 401 — see RegistrationService.Login.
func (h *RegistrationHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "request body must be valid JSON"))
		return
	}

	result, err := h.registrations.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, result.User)
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /auth/logout
//
// POST and not GET: logout is state-changing, and GET would be vulnerable
// to CSRF and to browsers pre-fetching the URL. Since sessions are
// stateless JWTs, "logout" just deletes the client-side cookie; the token
// stays technically valid until it expires.
func (h *RegistrationHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// HandleMe returns the authenticated user's record.
//
// HTTP: GET /api/me (behind auth.RequireAuth)
func (h *RegistrationHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// RequireAuth should have rejected the request already; reaching
		// this means the route was wired without the middleware.
		writeError(w, apperror.Unauthorized())
		return
	}

	user, err := h.registrations.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// setSessionCookie stores the JWT in an HttpOnly cookie.
//
// HttpOnly = JavaScript cannot read it (XSS protection).
// SameSite=Lax = sent on top-level navigations but not cross-site POSTs.
// Secure should be true behind HTTPS; left off for local development.
func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int((15 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
