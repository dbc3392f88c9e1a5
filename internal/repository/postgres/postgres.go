// Package postgres implements the repository interfaces on PostgreSQL
// through sqlx and the lib/pq driver.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sakif/feature-board/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// SQLSTATE codes reported by lib/pq.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type DB struct {
	db *sqlx.DB
}

// New opens a pooled connection, verifies it and creates the schema.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	const op = "repository.postgres.New"

	conn, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("database parameters",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
		slog.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
	)

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := Wrap(conn)
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return db, nil
}

// Wrap adapts an already-open handle. The schema is not touched.
func Wrap(conn *sqlx.DB) *DB {
	return &DB{db: conn}
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate creates tables and indexes that do not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	const op = "repository.postgres.Migrate"

	statements := []string{
		`CREATE TABLE IF NOT EXISTS authors (
			id         TEXT PRIMARY KEY,
			email      VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT idx_authors_email UNIQUE (email)
		)`,
		`CREATE TABLE IF NOT EXISTS feature_proposals (
			id           TEXT PRIMARY KEY,
			text         TEXT NOT NULL,
			author_id    TEXT NOT NULL REFERENCES authors(id),
			upvote_count INTEGER NOT NULL DEFAULT 0 CHECK (upvote_count >= 0),
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feature_proposals_author_id ON feature_proposals(author_id)`,
		`CREATE INDEX IF NOT EXISTS idx_feature_proposals_upvote_count ON feature_proposals(upvote_count)`,
		`CREATE INDEX IF NOT EXISTS idx_feature_proposals_created_at ON feature_proposals(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_feature_proposals_upvotes_created ON feature_proposals(upvote_count, created_at)`,
		`CREATE TABLE IF NOT EXISTS upvotes (
			id         TEXT PRIMARY KEY,
			author_id  TEXT NOT NULL REFERENCES authors(id),
			feature_id TEXT NOT NULL REFERENCES feature_proposals(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT idx_upvotes_author_feature UNIQUE (author_id, feature_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_upvotes_feature_id ON upvotes(feature_id)`,
	}

	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pqCode(err) == foreignKeyViolation
}
