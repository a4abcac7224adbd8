package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/handler"
	"github.com/sakif/accounts/internal/repository/sqlite"
	"github.com/sakif/accounts/internal/service"
)

// stubNotifier satisfies mailer.Notifier without any SMTP. It records the
// last send so tests can assert on the template contract.
type stubNotifier struct {
	lastTo       string
	lastTemplate string
	lastContext  map[string]string
}

func (s *stubNotifier) Send(to, templateName string, ctx map[string]string) error {
	s.lastTo = to
	s.lastTemplate = templateName
	s.lastContext = ctx
	return nil
}

// testEnv bundles everything a handler test needs: real services over an
// in-memory SQLite repository, fast bcrypt costs, and a router with the
// same route layout as production.
type testEnv struct {
	router   chi.Router
	db       *sqlite.DB
	notifier *stubNotifier
	tokens   *auth.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)

	notifier := &stubNotifier{}
	registrations := service.NewRegistrationService(
		db,
		auth.NewPasswordServiceForTest(4),
		auth.NewConfirmationTokenServiceForTest(4),
		tokens,
		notifier,
		service.EnvProduction,
		logger,
	)

	h := handler.NewRegistrationHandler(registrations, logger)

	r := chi.NewRouter()
	r.Post("/api/register", h.HandleRegister)
	r.Get("/api/confirm", h.HandleConfirmEmail)
	r.Post("/api/login", h.HandleLogin)
	r.With(auth.RequireAuth(tokens)).Get("/api/me", h.HandleMe)

	return &testEnv{router: r, db: db, notifier: notifier, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestHandleRegister(t *testing.T) {
	t.Run("valid registration", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(t, http.MethodPost, "/api/register",
			`{"email":"a@example.com","password":"pw123","name":"Alice"}`)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var res handler.MessageResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "user registered successfully", res.Message)

		// The account exists, unconfirmed, with an outstanding token.
		user, err := env.db.FindByEmail(context.Background(), "a@example.com")
		require.NoError(t, err)
		assert.False(t, user.EmailConfirmed)
		assert.NotEmpty(t, user.ConfirmationToken)

		// The notification gateway got the template contract.
		assert.Equal(t, "a@example.com", env.notifier.lastTo)
		assert.Equal(t, "confirmation", env.notifier.lastTemplate)
		assert.Equal(t, "Alice", env.notifier.lastContext["name"])
		assert.Equal(t, user.ConfirmationToken, env.notifier.lastContext["token"])
	})

	t.Run("duplicate email", func(t *testing.T) {
		env := newTestEnv(t)

		first := env.do(t, http.MethodPost, "/api/register",
			`{"email":"a@example.com","password":"pw123","name":"Alice"}`)
		require.Equal(t, http.StatusCreated, first.Code)

		second := env.do(t, http.MethodPost, "/api/register",
			`{"email":"a@example.com","password":"pw123","name":"Alice"}`)
		assert.Equal(t, http.StatusConflict, second.Code)

		var res handler.ErrorResponse
		require.NoError(t, json.NewDecoder(second.Body).Decode(&res))
		assert.Equal(t, "conflict", res.Error)
	})

	t.Run("invalid body", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(t, http.MethodPost, "/api/register", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing email", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(t, http.MethodPost, "/api/register", `{"password":"pw123","name":"X"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestHandleConfirmEmail(t *testing.T) {
	t.Run("full confirmation flow", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(t, http.MethodPost, "/api/register",
			`{"email":"a@example.com","password":"pw123","name":"Alice"}`)
		require.Equal(t, http.StatusCreated, rr.Code)

		token := env.notifier.lastContext["token"]
		require.NotEmpty(t, token)

		confirm := env.do(t, http.MethodGet, "/api/confirm?token="+token, "")
		assert.Equal(t, http.StatusOK, confirm.Code)

		user, err := env.db.FindByEmail(context.Background(), "a@example.com")
		require.NoError(t, err)
		assert.True(t, user.EmailConfirmed)
		assert.Empty(t, user.ConfirmationToken)

		// Replaying the emailed link: the token was consumed.
		replay := env.do(t, http.MethodGet, "/api/confirm?token="+token, "")
		assert.Equal(t, http.StatusNotFound, replay.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(t, http.MethodGet, "/api/confirm", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(t, http.MethodGet, "/api/confirm?token=not-a-real-token", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestHandleLogin(t *testing.T) {
	registerAndConfirm := func(t *testing.T, env *testEnv) {
		t.Helper()
		rr := env.do(t, http.MethodPost, "/api/register",
			`{"email":"a@example.com","password":"pw123","name":"Alice"}`)
		require.Equal(t, http.StatusCreated, rr.Code)
		confirm := env.do(t, http.MethodGet, "/api/confirm?token="+env.notifier.lastContext["token"], "")
		require.Equal(t, http.StatusOK, confirm.Code)
	}

	t.Run("confirmed user can log in", func(t *testing.T) {
		env := newTestEnv(t)
		registerAndConfirm(t, env)

		rr := env.do(t, http.MethodPost, "/api/login",
			`{"email":"a@example.com","password":"pw123"}`)
		assert.Equal(t, http.StatusOK, rr.Code)

		// The session cookie carries a JWT that validates back to a user.
		cookies := rr.Result().Cookies()
		var session *http.Cookie
		for _, c := range cookies {
			if c.Name == auth.SessionCookieName {
				session = c
			}
		}
		require.NotNil(t, session, "login must set the session cookie")
		assert.True(t, session.HttpOnly)

		userID, err := env.tokens.Validate(session.Value)
		require.NoError(t, err)
		assert.NotEmpty(t, userID)
	})

	t.Run("unconfirmed user is denied", func(t *testing.T) {
		env := newTestEnv(t)
		rr := env.do(t, http.MethodPost, "/api/register",
			`{"email":"a@example.com","password":"pw123","name":"Alice"}`)
		require.Equal(t, http.StatusCreated, rr.Code)

		login := env.do(t, http.MethodPost, "/api/login",
			`{"email":"a@example.com","password":"pw123"}`)
		assert.Equal(t, http.StatusUnauthorized, login.Code)
	})

	t.Run("wrong password is denied", func(t *testing.T) {
		env := newTestEnv(t)
		registerAndConfirm(t, env)

		rr := env.do(t, http.MethodPost, "/api/login",
			`{"email":"a@example.com","password":"wrong"}`)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		var res handler.ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "authentication failed", res.Message)
	})
}

func TestHandleMe(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(t, http.MethodGet, "/api/me", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("returns the authenticated user", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(t, http.MethodPost, "/api/register",
			`{"email":"a@example.com","password":"pw123","name":"Alice"}`)
		require.Equal(t, http.StatusCreated, rr.Code)
		confirm := env.do(t, http.MethodGet, "/api/confirm?token="+env.notifier.lastContext["token"], "")
		require.Equal(t, http.StatusOK, confirm.Code)

		login := env.do(t, http.MethodPost, "/api/login",
			`{"email":"a@example.com","password":"pw123"}`)
		require.Equal(t, http.StatusOK, login.Code)

		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		for _, c := range login.Result().Cookies() {
			req.AddCookie(c)
		}
		me := httptest.NewRecorder()
		env.router.ServeHTTP(me, req)

		assert.Equal(t, http.StatusOK, me.Code)

		var user struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		require.NoError(t, json.NewDecoder(me.Body).Decode(&user))
		assert.Equal(t, "a@example.com", user.Email)
		assert.Equal(t, "Alice", user.Name)
	})
}
