// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs
// no C toolchain. The driver registers itself with database/sql as "sqlite".
//
// CONNECTION SETTINGS:
// Pragmas are passed in the DSN (`_pragma=...`) rather than executed once,
// because a PRAGMA run with db.Exec only configures whichever pooled
// connection happened to serve it. The pool is capped at one connection:
// SQLite has a single writer anyway, and it keeps ":memory:" databases alive
// across calls.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/feature-board/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn *sql.DB
}

// New opens (creating if needed) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/features.db"  → file-based database
//   - ":memory:"          → in-memory database, gone on Close (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(dbPath string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if dbPath == ":memory:" {
		return "file::memory:?" + pragmas
	}
	return "file:" + dbPath + "?" + pragmas + "&_pragma=journal_mode(WAL)"
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run
// on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS authors (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating authors table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS feature_proposals (
			id           TEXT PRIMARY KEY,
			text         TEXT NOT NULL,
			author_id    TEXT NOT NULL REFERENCES authors(id),
			upvote_count INTEGER NOT NULL DEFAULT 0 CHECK (upvote_count >= 0),
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_feature_proposals_author_id ON feature_proposals(author_id);
		CREATE INDEX IF NOT EXISTS idx_feature_proposals_upvote_count ON feature_proposals(upvote_count);
		CREATE INDEX IF NOT EXISTS idx_feature_proposals_created_at ON feature_proposals(created_at);
		CREATE INDEX IF NOT EXISTS idx_feature_proposals_upvotes_created ON feature_proposals(upvote_count, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating feature_proposals table: %w", err)
	}

	// The UNIQUE pair is the one-vote-per-author guarantee. Everything the
	// service checks beforehand is only there to produce a friendlier error.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS upvotes (
			id         TEXT PRIMARY KEY,
			author_id  TEXT NOT NULL REFERENCES authors(id),
			feature_id TEXT NOT NULL REFERENCES feature_proposals(id),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT idx_upvotes_author_feature UNIQUE (author_id, feature_id)
		);
		CREATE INDEX IF NOT EXISTS idx_upvotes_feature_id ON upvotes(feature_id);
	`)
	if err != nil {
		return fmt.Errorf("creating upvotes table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	// Without extended result codes only the primary code is set.
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	if sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(sqliteErr.Error(), "FOREIGN KEY constraint failed")
}
