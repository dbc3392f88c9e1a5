package postgres

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

const selectProposal = `
	SELECT p.id, p.text, p.author_id, a.email AS author_email, p.upvote_count, p.created_at, p.updated_at
	FROM feature_proposals p
	JOIN authors a ON a.id = p.author_id`

func (d *DB) CreateProposal(ctx context.Context, proposal *model.Proposal) error {
	const op = "repository.postgres.CreateProposal"

	now := model.Now()
	proposal.ID = xid.New().String()
	proposal.UpvoteCount = 0
	proposal.CreatedAt = now
	proposal.UpdatedAt = now

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO feature_proposals (id, text, author_id, upvote_count, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, $4, $5)`,
		proposal.ID, proposal.Text, proposal.AuthorID, proposal.CreatedAt, proposal.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("author", proposal.AuthorID)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (d *DB) GetProposal(ctx context.Context, id string) (*model.Proposal, error) {
	const op = "repository.postgres.GetProposal"

	var p model.Proposal
	if err := d.db.GetContext(ctx, &p, selectProposal+` WHERE p.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("feature proposal", id)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	inUTC(&p)
	return &p, nil
}

func (d *DB) ListProposals(ctx context.Context, opts repository.ListOptions) ([]model.Proposal, error) {
	const op = "repository.postgres.ListProposals"

	proposals := make([]model.Proposal, 0, opts.Limit)
	err := d.db.SelectContext(ctx, &proposals,
		selectProposal+` ORDER BY `+opts.OrderBy()+` LIMIT $1 OFFSET $2`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for i := range proposals {
		inUTC(&proposals[i])
	}
	return proposals, nil
}

func (d *DB) CountProposals(ctx context.Context) (int, error) {
	const op = "repository.postgres.CountProposals"

	var total int
	if err := d.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM feature_proposals`); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return total, nil
}

func (d *DB) IncrementUpvoteCount(ctx context.Context, id string) error {
	const op = "repository.postgres.IncrementUpvoteCount"

	res, err := d.db.ExecContext(ctx,
		`UPDATE feature_proposals SET upvote_count = upvote_count + 1, updated_at = $1 WHERE id = $2`,
		model.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return apperror.NotFound("feature proposal", id)
	}
	return nil
}

// inUTC undoes lib/pq scanning TIMESTAMPTZ into the session time zone, so
// stored rows encode like the ones CreateProposal returns.
func inUTC(p *model.Proposal) {
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
}
