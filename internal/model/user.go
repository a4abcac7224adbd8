// Package model defines the data structures used throughout the application.
package model

import "time"

// Locale is one of the fixed set of interface languages an account can use.
//
// WHY A STRING TYPE AND NOT iota CONSTANTS?
// The locale is stored in the database and rendered into emails, so the
// on-disk representation matters. A named string type gives us type safety
// in Go code while keeping the stored value human-readable ("en", not 0).
type Locale string

const (
	LocaleEN Locale = "en"
	LocaleRU Locale = "ru"
)

// DefaultLocale is assigned to every account at creation.
const DefaultLocale = LocaleEN

// Valid reports whether l is one of the known locales.
func (l Locale) Valid() bool {
	switch l {
	case LocaleEN, LocaleRU:
		return true
	}
	return false
}

// ProviderLink associates a local account with an identity at an external
// OAuth provider. Each (Provider, ProviderUserID) pair maps to exactly one
// User — the unique index in the repository enforces that.
type ProviderLink struct {
	Provider       string `json:"provider"       db:"provider"`         // e.g. "github"
	ProviderUserID string `json:"providerUserId" db:"provider_user_id"` // provider's stable user id
}

// User is the canonical identity record. It is created by exactly one of
// two paths — password registration or OAuth resolution — and both paths
// converge on this single type.
//
// WHY Email string (not *string)?
// OAuth shell accounts may have no email at all (the provider can hide it).
// We use the empty string as "absent" in Go code; the repository stores it
// as SQL NULL so the unique index on email ignores shells.
//
// WHY IS PasswordHash SOMETIMES EMPTY?
// A shell account created from an OAuth assertion has no local password.
// Password login for such an account fails until one is set.
//
// CONFIRMATION LIFECYCLE:
// A password registration starts with EmailConfirmed=false and a non-empty
// ConfirmationToken. Confirming sets EmailConfirmed=true and clears the
// token. The flag never reverts, and a cleared token is never reissued for
// the same registration.
type User struct {
	ID                string         `json:"id"             db:"id"`
	Email             string         `json:"email"          db:"email"`
	PasswordHash      string         `json:"-"              db:"password_hash"` // never serialized
	Name              string         `json:"name"           db:"name"`
	EmailConfirmed    bool           `json:"emailConfirmed" db:"email_confirmed"`
	ConfirmationToken string         `json:"-"              db:"confirmation_token"` // single-use, never serialized
	Locale            Locale         `json:"locale"         db:"locale"`
	ProviderLinks     []ProviderLink `json:"providerLinks,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"      db:"created_at"`
	UpdatedAt         time.Time      `json:"updatedAt"      db:"updated_at"`
}

// LinkedTo reports whether the user already carries a link to the given
// provider identity.
func (u *User) LinkedTo(provider, providerUserID string) bool {
	for _, l := range u.ProviderLinks {
		if l.Provider == provider && l.ProviderUserID == providerUserID {
			return true
		}
	}
	return false
}
