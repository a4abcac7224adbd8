package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"
	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/service"
)

// oauthStateCookie holds the CSRF state between the login redirect and the
// provider callback. Single-use, 10-minute expiry.
const oauthStateCookie = "oauth_state"

// AuthHandler manages the GitHub OAuth login flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → verify state, exchange the code, hand the
//     verified profile to the identity service, set the JWT cookie
//
// The handler owns everything HTTP (cookies, redirects, the CSRF state
// dance); the identity service owns the user resolution.
type AuthHandler struct {
	github     *auth.GitHubProvider
	identities *service.IdentityService
	logger     *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(github *auth.GitHubProvider, identities *service.IdentityService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		github:     github,
		identities: identities,
		logger:     logger,
	}
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// We generate a random state string and store it in a short-lived cookie.
// When GitHub calls back, HandleGitHubCallback verifies the returned state
// matches the cookie — proving the flow was initiated by this server, not
// by an attacker's forged link.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a verified GitHub profile
//  3. Resolve the provider identity to a local user (creating a shell on
//     first contact)
//  4. Issue the JWT cookie and redirect home
//
// Every failure after the state check produces the same generic
// "authentication failed" — callback errors never explain themselves.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// Clear the state cookie — it's single-use
	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	// The user may have denied the authorization request on GitHub.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("error", errParam),
		)
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for a verified GitHub profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	// --- Step 3: Resolve to a local user ---
	result, err := h.identities.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: identity resolution failed",
			slog.String("providerUserID", ghUser.ProviderUserID()),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	// --- Step 4: JWT cookie + redirect ---
	setSessionCookie(w, result.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
