package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/model"
	"github.com/sakif/accounts/internal/repository"
)

// IdentityService resolves external provider identities to local users.
//
// By the time a request reaches this service, the OAuth boundary has
// already exchanged the authorization code and verified the provider's
// assertion — the (provider, providerUserID) pair arrives here as trusted,
// authenticated input. This service only decides which local User it means.
type IdentityService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

// NewIdentityService creates an IdentityService with its dependencies.
func NewIdentityService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// ResolveOrCreate maps a provider identity to the single local user it
// belongs to, creating a shell account on first contact.
//
// IDEMPOTENCE:
// Repeated resolution of the same (provider, providerUserID) returns the
// same user. The found path performs no mutation at all. The create path is
// guarded by the repository's unique link constraint: if two requests race,
// one INSERT loses with a conflict and we simply re-read the winner's user —
// both callers end up with the same record.
//
// SHELL ACCOUNT POLICY:
// A shell is created with no password and EmailConfirmed=true. The provider
// has already vouched for the identity (and for the email, when it shares
// one), so demanding a second confirmation round-trip would add friction
// without adding trust.
//
// Failures surface as ErrUnauthorized without internal detail — the caller
// only learns that the login was denied.
func (s *IdentityService) ResolveOrCreate(ctx context.Context, providerUserID, provider string, profile *model.User) (*model.User, error) {
	if providerUserID == "" || provider == "" {
		return nil, apperror.Unauthorized()
	}

	user, err := s.users.FindByProviderLink(ctx, provider, providerUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		s.logger.Error("identity lookup failed",
			slog.String("provider", provider),
			slog.String("providerUserID", providerUserID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Unauthorized()
	}

	// First contact — create a shell account linked to this identity.
	shell := &model.User{
		Name:           "",
		EmailConfirmed: true,
		Locale:         model.DefaultLocale,
		ProviderLinks: []model.ProviderLink{
			{Provider: provider, ProviderUserID: providerUserID},
		},
	}
	if profile != nil {
		shell.Name = profile.Name
		shell.Email = profile.Email
	}

	if err := s.users.Create(ctx, shell); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			// Lost a race (or the profile email already belongs to a
			// local account). Re-read by link: if a concurrent resolve
			// won, this returns the winner and we stay idempotent.
			if user, ferr := s.users.FindByProviderLink(ctx, provider, providerUserID); ferr == nil {
				return user, nil
			}
		}
		s.logger.Error("shell account creation failed",
			slog.String("provider", provider),
			slog.String("providerUserID", providerUserID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Unauthorized()
	}

	s.logger.Info("shell account created",
		slog.String("userID", shell.ID),
		slog.String("provider", provider),
		slog.String("providerUserID", providerUserID),
	)
	return shell, nil
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback: resolve the
// GitHub identity to a local user and issue a JWT for it.
//
// The handler has already exchanged the code for a verified profile; this
// method consumes only the stable numeric id (plus display fields for a
// first-time shell).
func (s *IdentityService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/identity: GitHub user must not be nil")
	}

	profile := &model.User{
		Name:  ghUser.DisplayName(),
		Email: ghUser.Email,
	}

	user, err := s.ResolveOrCreate(ctx, ghUser.ProviderUserID(), auth.ProviderGitHub, profile)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ghUser.Login),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}
