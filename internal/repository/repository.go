// Package repository declares the persistence contracts the services depend
// on. Services receive these interfaces, never a concrete store — the SQLite
// implementation lives in repository/sqlite, and tests substitute in-memory
// fakes.
package repository

import (
	"context"

	"github.com/sakif/accounts/internal/model"
)

// UserRepository is the persistence boundary for accounts.
//
// All methods are atomic single-record operations. The uniqueness
// constraints live here, not in the services:
//   - email is unique when present (NULL emails of shell accounts excepted)
//   - (provider, provider_user_id) maps to exactly one user
//
// Those constraints are the only serialization the lifecycle needs: when
// two concurrent requests race on the same email or the same provider
// identity, the loser gets apperror.ErrConflict and no state is corrupted.
type UserRepository interface {
	// Create persists a new user together with any provider links already
	// attached to it, in a single transaction. It fills in ID, CreatedAt
	// and UpdatedAt. A duplicate email or provider link yields
	// apperror.ErrConflict.
	Create(ctx context.Context, user *model.User) error

	// Save writes back mutable fields (name, confirmation state, locale,
	// password hash) of an existing user.
	Save(ctx context.Context, user *model.User) error

	// AddProviderLink attaches an additional provider identity to an
	// existing user. A link already claimed by any user yields
	// apperror.ErrConflict.
	AddProviderLink(ctx context.Context, userID string, link model.ProviderLink) error

	// GetUserByID returns the user with the given internal id, provider
	// links included. Unknown id yields apperror.ErrNotFound.
	GetUserByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail returns the user owning the given email address.
	// Unknown email yields apperror.ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByConfirmationToken returns the user holding the given
	// outstanding confirmation token. A token that was never issued, or
	// was already consumed, yields apperror.ErrNotFound.
	FindByConfirmationToken(ctx context.Context, token string) (*model.User, error)

	// FindByProviderLink returns the user linked to the given provider
	// identity. Unknown link yields apperror.ErrNotFound.
	FindByProviderLink(ctx context.Context, provider, providerUserID string) (*model.User, error)
}
