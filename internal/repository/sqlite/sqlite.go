// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside your Go binary as a single
// file. No separate database server to install, configure, or manage. Good
// for single-server deployments, and ":memory:" gives tests a real database
// with the real constraints for free.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation of
// the SQLite source — works everywhere Go works.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: the driver registers itself with database/sql
	// under the name "sqlite" in its init().
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides the repository methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/accounts.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests, lost on close)
//
// sql.Open does not actually connect — it creates a pool manager. We Ping
// immediately so a bad path or permissions problem surfaces here instead of
// on the first query.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each pooled connection to a ":memory:" DSN gets its own empty
	// database, so the schema created below would vanish whenever the pool
	// opened a second connection. One connection keeps it coherent.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is in progress —
	// default SQLite locks the whole file during writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. provider_links references
	// users(id), so we need them on.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool. Always defer this next to New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS is idempotent, so
// running it on every startup is safe.
//
// SCHEMA NOTES:
//   - email is nullable: OAuth shell accounts can exist without one, and
//     SQLite unique indexes skip NULL rows, so any number of shells coexist
//     while non-null emails stay unique.
//   - confirmation_token is nullable and uniquely indexed: at most one user
//     holds a given outstanding token, and confirmed users hold none.
//   - provider_links(provider, provider_user_id) is the idempotency anchor
//     for OAuth resolution — the unique index makes a concurrent
//     double-create impossible; the loser sees a constraint violation.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                 TEXT PRIMARY KEY,
			email              TEXT,
			password_hash      TEXT NOT NULL DEFAULT '',
			name               TEXT NOT NULL DEFAULT '',
			email_confirmed    INTEGER NOT NULL DEFAULT 0,
			confirmation_token TEXT,
			locale             TEXT NOT NULL DEFAULT 'en',
			created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email
			ON users(email) WHERE email IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_confirmation_token
			ON users(confirmation_token) WHERE confirmation_token IS NOT NULL;
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS provider_links (
			user_id          TEXT NOT NULL REFERENCES users(id),
			provider         TEXT NOT NULL,
			provider_user_id TEXT NOT NULL,
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (provider, provider_user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_provider_links_user_id
			ON provider_links(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating provider_links table: %w", err)
	}

	return nil
}
