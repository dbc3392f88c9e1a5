package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/feature-board/internal/apperror"
	"github.com/sakif/feature-board/internal/model"
)

func (d *DB) FindOrCreateAuthor(ctx context.Context, email string) (*model.Author, error) {
	const op = "repository.postgres.FindOrCreateAuthor"

	existing, err := d.GetAuthorByEmail(ctx, email)
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

	_, err = d.db.NamedExecContext(ctx,
		`INSERT INTO authors (id, email, created_at, updated_at)
		 VALUES (:id, :email, :created_at, :updated_at)`,
		author,
	)
	if err != nil {
		// lost the race to a concurrent first request for the same email
		if isUniqueViolation(err) {
			return d.GetAuthorByEmail(ctx, email)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return author, nil
}

func (d *DB) GetAuthorByEmail(ctx context.Context, email string) (*model.Author, error) {
	const op = "repository.postgres.GetAuthorByEmail"

	var a model.Author
	err := d.db.GetContext(ctx, &a,
		`SELECT id, email, created_at, updated_at FROM authors WHERE email = $1`,
		email,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("author", email)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}
