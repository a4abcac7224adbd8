// Package service — account lifecycle business logic.
//
// Two services own the account-identity lifecycle:
//
//	RegistrationService — password path: register → confirm email → login
//	IdentityService     — OAuth path: provider identity → local user
//
// Both sit between the HTTP handlers and the repository:
//
//	handlers (HTTP) → services (lifecycle rules) → repository (DB)
//	                ↘ mailer (delivery)  ↘ auth (hashing, tokens)
//
// The services never read HTTP requests, set cookies, or know about chi —
// and the handlers never touch the repository. Each layer is testable with
// fakes for the layer below.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/mailer"
	"github.com/sakif/accounts/internal/model"
	"github.com/sakif/accounts/internal/repository"
)

// EnvProduction is the deployment mode in which confirmation emails are
// actually delivered. Any other value makes delivery a documented no-op:
// development and CI runs create fully functional accounts without an SMTP
// server anywhere in sight.
//
// The mode is injected through the constructor rather than read from the
// environment here — the service has no ambient configuration.
const EnvProduction = "production"

// RegistrationService owns the password-path account lifecycle: the state
// machine from "registered, unconfirmed" to "confirmed", plus password
// login once confirmed.
type RegistrationService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	confirm   *auth.ConfirmationTokenService
	tokens    *auth.TokenService
	notifier  mailer.Notifier
	env       string
	logger    *slog.Logger
}

// NewRegistrationService creates a RegistrationService with all required
// dependencies. env selects the deployment mode (see EnvProduction).
func NewRegistrationService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	confirm *auth.ConfirmationTokenService,
	tokens *auth.TokenService,
	notifier mailer.Notifier,
	env string,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		users:     users,
		passwords: passwords,
		confirm:   confirm,
		tokens:    tokens,
		notifier:  notifier,
		env:       env,
		logger:    logger,
	}
}

// Register creates a new unconfirmed account and sends the confirmation
// email (production only).
//
// Sequence: hash the password → persist the user → generate and persist the
// confirmation token → notify. Strictly in that order, within one request;
// concurrent registrations for the same email are serialized by the
// repository's unique constraint — the loser receives ErrConflict and no
// second record exists.
//
// DELIVERY FAILURE IS NOT REGISTRATION FAILURE:
// If the notification gateway errors, the account already exists and the
// token is already persisted. We log the failure and return success — the
// user can request the email again later, whereas rolling back the account
// would silently discard a registration the caller was told nothing about.
func (s *RegistrationService) Register(ctx context.Context, email, password, name string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("service/registration: hashing password: %w", err)
	}

	token, err := s.confirm.Generate(email)
	if err != nil {
		return fmt.Errorf("service/registration: generating confirmation token: %w", err)
	}

	user := &model.User{
		Email:             email,
		PasswordHash:      hash,
		Name:              name,
		EmailConfirmed:    false,
		ConfirmationToken: token,
		Locale:            model.DefaultLocale,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// ErrConflict (duplicate email) passes through typed.
		return fmt.Errorf("service/registration: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("email", email),
	)

	s.sendConfirmationEmail(user)
	return nil
}

// sendConfirmationEmail delivers the confirmation message, production only.
// Failures are logged, never returned — see Register.
func (s *RegistrationService) sendConfirmationEmail(user *model.User) {
	if s.env != EnvProduction {
		s.logger.Debug("skipping confirmation email delivery",
			slog.String("env", s.env),
			slog.String("userID", user.ID),
		)
		return
	}

	err := s.notifier.Send(user.Email, mailer.TemplateConfirmation, map[string]string{
		"name":  user.Name,
		"token": user.ConfirmationToken,
	})
	if err != nil {
		deliveryErr := apperror.Delivery(err)
		s.logger.Error("confirmation email delivery failed",
			slog.String("userID", user.ID),
			slog.String("error", deliveryErr.Error()),
		)
	}
}

// ConfirmEmail consumes a confirmation token: the user holding it becomes
// confirmed and the token is cleared.
//
// IDEMPOTENCE (OR RATHER, ITS ABSENCE):
// Confirming twice with the same token fails the second time with
// ErrNotFound — the token was cleared by the first call and no longer
// resolves to anyone. That is the intended single-use semantics, not a bug.
func (s *RegistrationService) ConfirmEmail(ctx context.Context, token string) error {
	if token == "" {
		return apperror.ValidationFailed("token", "token is required")
	}

	user, err := s.users.FindByConfirmationToken(ctx, token)
	if err != nil {
		return fmt.Errorf("service/registration: looking up confirmation token: %w", err)
	}

	user.EmailConfirmed = true
	user.ConfirmationToken = ""
	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("service/registration: confirming user %s: %w", user.ID, err)
	}

	s.logger.Info("email confirmed", slog.String("userID", user.ID))
	return nil
}

// AuthResult is returned by authentication operations. It bundles the user
// record and the issued JWT so the handler can set the cookie and respond
// in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Login authenticates an email/password pair and issues a JWT.
//
// Every failure — unknown email, wrong password, shell account without a
// password, unconfirmed email — surfaces as the same generic
// ErrUnauthorized. Distinguishing them would tell an attacker which emails
// are registered; the real cause goes to the log instead.
func (s *RegistrationService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.logger.Info("login failed: unknown email", slog.String("email", email))
		return nil, apperror.Unauthorized()
	}

	if user.PasswordHash == "" {
		// Shell account — only its OAuth provider can authenticate it.
		s.logger.Info("login failed: account has no password", slog.String("userID", user.ID))
		return nil, apperror.Unauthorized()
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Info("login failed: wrong password", slog.String("userID", user.ID))
		return nil, apperror.Unauthorized()
	}

	if !user.EmailConfirmed {
		s.logger.Info("login failed: email not confirmed", slog.String("userID", user.ID))
		return nil, apperror.Unauthorized()
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/registration: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the user for the given internal ID. Used by the
// /api/me handler after the middleware validates the JWT.
func (s *RegistrationService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/registration: fetching user %s: %w", id, err)
	}
	return user, nil
}
