package sqlite

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/feature-board/internal/apperror"
	"github.com/sakif/feature-board/internal/model"
	"github.com/sakif/feature-board/internal/repository"
)

var _ repository.UpvoteRepository = (*DB)(nil)

func (db *DB) HasUpvote(ctx context.Context, authorID, featureID string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM upvotes WHERE author_id = ? AND feature_id = ?)`,
		authorID,
		featureID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking upvote (%s, %s): %w", authorID, featureID, err)
	}
	return exists, nil
}

// CreateUpvote records a vote. A UNIQUE(author_id, feature_id) failure means
// another request already stored this vote and is reported as
// apperror.ErrConflict; a FOREIGN KEY failure means the proposal is gone.
func (db *DB) CreateUpvote(ctx context.Context, upvote *model.Upvote) error {
	upvote.ID = xid.New().String()
	upvote.CreatedAt = model.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO upvotes (id, author_id, feature_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		upvote.ID,
		upvote.AuthorID,
		upvote.FeatureID,
		upvote.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("upvote", upvote.FeatureID)
		}
		if isForeignKeyViolation(err) {
			return apperror.NotFound("feature proposal", upvote.FeatureID)
		}
		return fmt.Errorf("sqlite: creating upvote: %w", err)
	}

	return nil
}
