package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/feature-board/internal/apperror"
	"github.com/sakif/feature-board/internal/model"
	"github.com/sakif/feature-board/internal/repository"
)

var _ repository.AuthorRepository = (*DB)(nil)

// FindOrCreateAuthor returns the author for email, inserting a new row on
// first sight.
//
// RACE BETWEEN SELECT AND INSERT:
// Two first-time requests for the same email can both miss the SELECT.
// Only one INSERT survives the UNIQUE(email) constraint; the loser reads the
// winner's row back, so both callers observe the same author ID.
func (db *DB) FindOrCreateAuthor(ctx context.Context, email string) (*model.Author, error) {
	existing, err := db.GetAuthorByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	now := model.Now()
	author := &model.Author{
		ID:        xid.New().String(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO authors (id, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		author.ID,
		author.Email,
		author.CreatedAt,
		author.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return db.GetAuthorByEmail(ctx, email)
		}
		return nil, fmt.Errorf("sqlite: inserting author %s: %w", email, err)
	}

	return author, nil
}

// GetAuthorByEmail returns apperror.ErrNotFound if no author has that email.
func (db *DB) GetAuthorByEmail(ctx context.Context, email string) (*model.Author, error) {
	var a model.Author

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, created_at, updated_at
		 FROM authors WHERE email = ?`,
		email,
	).Scan(
		&a.ID,
		&a.Email,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("author", email)
		}
		return nil, fmt.Errorf("sqlite: getting author %s: %w", email, err)
	}

	return &a, nil
}
