package postgres

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/feature-board/internal/apperror"
	"github.com/sakif/feature-board/internal/model"
)

func (d *DB) HasUpvote(ctx context.Context, authorID, featureID string) (bool, error) {
	const op = "repository.postgres.HasUpvote"

	var exists bool
	err := d.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM upvotes WHERE author_id = $1 AND feature_id = $2)`,
		authorID, featureID,
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

func (d *DB) CreateUpvote(ctx context.Context, upvote *model.Upvote) error {
	const op = "repository.postgres.CreateUpvote"

	upvote.ID = xid.New().String()
	upvote.CreatedAt = model.Now()

	_, err := d.db.NamedExecContext(ctx,
		`INSERT INTO upvotes (id, author_id, feature_id, created_at)
		 VALUES (:id, :author_id, :feature_id, :created_at)`,
		upvote,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.Conflict("upvote", upvote.FeatureID)
		case isForeignKeyViolation(err):
			return apperror.NotFound("feature proposal", upvote.FeatureID)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
