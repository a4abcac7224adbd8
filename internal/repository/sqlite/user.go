package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/model"
	"github.com/sakif/accounts/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// userColumns is the SELECT list shared by every user query, in the order
// scanUser expects.
const userColumns = `id, email, password_hash, name, email_confirmed,
	confirmation_token, locale, created_at, updated_at`

// Create persists a new user and any provider links attached to it.
//
// SINGLE TRANSACTION:
// A shell account created by OAuth resolution must come into existence
// together with its provider link — a user row without its link would be
// unreachable, and a link without its user row violates the foreign key.
// Both inserts therefore share one transaction.
//
// CONFLICT MAPPING:
// The unique indexes on email and on (provider, provider_user_id) are the
// serialization point for concurrent registrations: the second INSERT for
// the same email or the same provider identity fails here, and we surface
// it as apperror.ErrConflict for the service layer to interpret.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Locale == "" {
		user.Locale = model.DefaultLocale
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback() // no-op after a successful Commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name, email_confirmed,
			confirmation_token, locale, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		nullable(user.Email),
		user.PasswordHash,
		user.Name,
		user.EmailConfirmed,
		nullable(user.ConfirmationToken),
		string(user.Locale),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email "+user.Email)
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	for _, link := range user.ProviderLinks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO provider_links (user_id, provider, provider_user_id, created_at)
			 VALUES (?, ?, ?, ?)`,
			user.ID, link.Provider, link.ProviderUserID, now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("provider link", link.Provider+" "+link.ProviderUserID)
			}
			return fmt.Errorf("sqlite: inserting provider link %s/%s: %w",
				link.Provider, link.ProviderUserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user create: %w", err)
	}
	return nil
}

// Save writes back the mutable fields of an existing user.
// ID and CreatedAt never change; UpdatedAt is refreshed here.
func (db *DB) Save(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET email = ?, password_hash = ?, name = ?,
			email_confirmed = ?, confirmation_token = ?, locale = ?, updated_at = ?
		 WHERE id = ?`,
		nullable(user.Email),
		user.PasswordHash,
		user.Name,
		user.EmailConfirmed,
		nullable(user.ConfirmationToken),
		string(user.Locale),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email "+user.Email)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking update of user %s: %w", user.ID, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", "id "+user.ID)
	}
	return nil
}

// AddProviderLink attaches an additional provider identity to an existing
// user. The primary key on (provider, provider_user_id) rejects a link
// already claimed — by this user or any other.
func (db *DB) AddProviderLink(ctx context.Context, userID string, link model.ProviderLink) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO provider_links (user_id, provider, provider_user_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		userID, link.Provider, link.ProviderUserID, time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("provider link", link.Provider+" "+link.ProviderUserID)
		}
		return fmt.Errorf("sqlite: inserting provider link %s/%s: %w",
			link.Provider, link.ProviderUserID, err)
	}
	return nil
}

// GetUserByID retrieves a user by internal id, provider links included.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return db.loadUser(ctx, row, "id "+id)
}

// FindByEmail retrieves a user by email address. Shell accounts without an
// email are unreachable here — their column is NULL and never matches.
func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return db.loadUser(ctx, row, "email "+email)
}

// FindByConfirmationToken retrieves the user holding an outstanding
// confirmation token. Confirmed users have a NULL token column, so a
// consumed token yields ErrNotFound — which is exactly the semantics
// confirmEmail wants for a second confirmation attempt.
func (db *DB) FindByConfirmationToken(ctx context.Context, token string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE confirmation_token = ?`, token)
	return db.loadUser(ctx, row, "confirmation token")
}

// FindByProviderLink retrieves the user linked to the given provider
// identity.
func (db *DB) FindByProviderLink(ctx context.Context, provider, providerUserID string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.password_hash, u.name, u.email_confirmed,
			u.confirmation_token, u.locale, u.created_at, u.updated_at
		 FROM users u
		 JOIN provider_links pl ON pl.user_id = u.id
		 WHERE pl.provider = ? AND pl.provider_user_id = ?`,
		provider, providerUserID)
	return db.loadUser(ctx, row, "provider link "+provider+"/"+providerUserID)
}

// loadUser scans a single user row and attaches its provider links.
// notFoundKey names the lookup key for the error message.
func (db *DB) loadUser(ctx context.Context, row *sql.Row, notFoundKey string) (*model.User, error) {
	var (
		u       model.User
		email   sql.NullString
		token   sql.NullString
		localeS string
	)

	err := row.Scan(
		&u.ID,
		&email,
		&u.PasswordHash,
		&u.Name,
		&u.EmailConfirmed,
		&token,
		&localeS,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", notFoundKey)
		}
		return nil, fmt.Errorf("sqlite: scanning user: %w", err)
	}

	u.Email = email.String
	u.ConfirmationToken = token.String
	u.Locale = model.Locale(localeS)

	links, err := db.linksFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.ProviderLinks = links

	return &u, nil
}

func (db *DB) linksFor(ctx context.Context, userID string) ([]model.ProviderLink, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT provider, provider_user_id FROM provider_links
		 WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying provider links for %s: %w", userID, err)
	}
	defer rows.Close()

	var links []model.ProviderLink
	for rows.Next() {
		var l model.ProviderLink
		if err := rows.Scan(&l.Provider, &l.ProviderUserID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning provider link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// nullable converts Go's empty-string "absent" convention into SQL NULL so
// the partial unique indexes skip the row.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure. modernc.org/sqlite renders these as
// "constraint failed: UNIQUE constraint failed: users.email (2067)";
// a primary-key collision reports as a UNIQUE failure too.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
