package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/model"
)

func newTestIdentityService(t *testing.T, repo *fakeUserRepo) *IdentityService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewIdentityService(repo, ts, logger)
}

// =========================================================================
// ResolveOrCreate TESTS
// =========================================================================

func TestResolveOrCreate_FirstContactCreatesShell(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestIdentityService(t, repo)

	user, err := svc.ResolveOrCreate(context.Background(), "gh-123", "github", nil)
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}

	if user.ID == "" {
		t.Error("shell account has no ID")
	}
	if user.PasswordHash != "" {
		t.Error("shell account must have no password")
	}
	if !user.EmailConfirmed {
		t.Error("shell account should be confirmed — the provider vouched for it")
	}
	if !user.LinkedTo("github", "gh-123") {
		t.Error("shell account is missing its provider link")
	}
}

func TestResolveOrCreate_IsIdempotent(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestIdentityService(t, repo)

	first, err := svc.ResolveOrCreate(context.Background(), "gh-123", "github", nil)
	if err != nil {
		t.Fatalf("first ResolveOrCreate() error = %v", err)
	}

	second, err := svc.ResolveOrCreate(context.Background(), "gh-123", "github", nil)
	if err != nil {
		t.Fatalf("second ResolveOrCreate() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("resolution is not idempotent: %q vs %q", first.ID, second.ID)
	}
	if len(repo.users) != 1 {
		t.Errorf("repo holds %d users after double resolve, want 1", len(repo.users))
	}
}

func TestResolveOrCreate_DistinctIdentitiesGetDistinctUsers(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestIdentityService(t, repo)

	a, _ := svc.ResolveOrCreate(context.Background(), "gh-1", "github", nil)
	b, _ := svc.ResolveOrCreate(context.Background(), "gh-2", "github", nil)

	if a.ID == b.ID {
		t.Error("distinct provider identities resolved to the same user")
	}
}

func TestResolveOrCreate_ExistingUserIsNotMutated(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestIdentityService(t, repo)

	profile := &model.User{Name: "Original Name", Email: "orig@example.com"}
	first, err := svc.ResolveOrCreate(context.Background(), "gh-9", "github", profile)
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}

	// A later resolve with a changed profile returns the stored record
	// untouched — the found path performs no writes.
	changed := &model.User{Name: "Changed Name", Email: "changed@example.com"}
	second, err := svc.ResolveOrCreate(context.Background(), "gh-9", "github", changed)
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("resolved a different user: %q vs %q", second.ID, first.ID)
	}
	if second.Name != "Original Name" {
		t.Errorf("Name = %q, existing user must not be mutated", second.Name)
	}
}

func TestResolveOrCreate_CreationFailureIsOpaque(t *testing.T) {
	repo := newFakeUserRepo()
	repo.createErr = errors.New("disk full: table users")
	svc := newTestIdentityService(t, repo)

	_, err := svc.ResolveOrCreate(context.Background(), "gh-123", "github", nil)
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("ResolveOrCreate() error = %v, want ErrUnauthorized", err)
	}
	// The repository detail stays in the log, not in the error.
	if err.Error() != "authentication failed" {
		t.Errorf("error message %q leaks internal detail", err.Error())
	}
}

func TestResolveOrCreate_LostRaceReturnsWinner(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestIdentityService(t, repo)

	// Simulate losing the create race: the link appears in the repo
	// between our failed lookup and our create attempt.
	winner := &model.User{
		Name:           "Winner",
		EmailConfirmed: true,
		ProviderLinks:  []model.ProviderLink{{Provider: "github", ProviderUserID: "gh-5"}},
	}
	if err := repo.Create(context.Background(), winner); err != nil {
		t.Fatalf("seeding winner: %v", err)
	}
	// Our own create will now conflict on the link; resolve must fall
	// back to the winner instead of denying the login.
	user, err := svc.ResolveOrCreate(context.Background(), "gh-5", "github", nil)
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if user.ID != winner.ID {
		t.Errorf("resolved user %q, want the race winner %q", user.ID, winner.ID)
	}
}

func TestResolveOrCreate_EmptyIdentityDenied(t *testing.T) {
	svc := newTestIdentityService(t, newFakeUserRepo())

	if _, err := svc.ResolveOrCreate(context.Background(), "", "github", nil); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("empty providerUserID error = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.ResolveOrCreate(context.Background(), "gh-1", "", nil); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("empty provider error = %v, want ErrUnauthorized", err)
	}
}

// =========================================================================
// LoginOrRegisterGitHub TESTS
// =========================================================================

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestIdentityService(t, repo)

	ghUser := &auth.GitHubUser{
		ID:    42,
		Login: "octocat",
		Email: "octocat@github.com",
		Name:  "The Octocat",
	}

	result, err := svc.LoginOrRegisterGitHub(context.Background(), ghUser)
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	if result.Token == "" {
		t.Fatal("LoginOrRegisterGitHub() returned empty Token")
	}
	if result.User.Name != "The Octocat" {
		t.Errorf("User.Name = %q, want %q", result.User.Name, "The Octocat")
	}
	if !result.User.LinkedTo("github", "42") {
		t.Error("user is not linked to github/42")
	}
}

func TestLoginOrRegisterGitHub_SecondLoginSameUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestIdentityService(t, repo)

	ghUser := &auth.GitHubUser{ID: 99, Login: "someone"}

	first, err := svc.LoginOrRegisterGitHub(context.Background(), ghUser)
	if err != nil {
		t.Fatalf("first login error: %v", err)
	}
	second, err := svc.LoginOrRegisterGitHub(context.Background(), ghUser)
	if err != nil {
		t.Fatalf("second login error: %v", err)
	}

	if first.User.ID != second.User.ID {
		t.Errorf("two logins produced different users: %q vs %q", first.User.ID, second.User.ID)
	}
}

func TestLoginOrRegisterGitHub_NilUser(t *testing.T) {
	svc := newTestIdentityService(t, newFakeUserRepo())

	if _, err := svc.LoginOrRegisterGitHub(context.Background(), nil); err == nil {
		t.Fatal("LoginOrRegisterGitHub(nil) should return an error")
	}
}
