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

var _ repository.ProposalRepository = (*DB)(nil)

// selectProposal joins the author so every proposal comes back with its
// authorEmail already filled in. Column order must match scanProposal.
const selectProposal = `
	SELECT p.id, p.text, p.author_id, a.email, p.upvote_count, p.created_at, p.updated_at
	FROM feature_proposals p
	JOIN authors a ON a.id = p.author_id`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner, p *model.Proposal) error {
	return row.Scan(
		&p.ID,
		&p.Text,
		&p.AuthorID,
		&p.AuthorEmail,
		&p.UpvoteCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

// CreateProposal inserts a proposal with a zero upvote count.
// The ID and timestamps are generated here and written back into proposal.
func (db *DB) CreateProposal(ctx context.Context, proposal *model.Proposal) error {
	now := model.Now()
	proposal.ID = xid.New().String()
	proposal.UpvoteCount = 0
	proposal.CreatedAt = now
	proposal.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO feature_proposals (id, text, author_id, upvote_count, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?)`,
		proposal.ID,
		proposal.Text,
		proposal.AuthorID,
		proposal.CreatedAt,
		proposal.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("author", proposal.AuthorID)
		}
		return fmt.Errorf("sqlite: creating proposal: %w", err)
	}

	return nil
}

// GetProposal returns apperror.ErrNotFound if the proposal doesn't exist.
func (db *DB) GetProposal(ctx context.Context, id string) (*model.Proposal, error) {
	var p model.Proposal

	row := db.conn.QueryRowContext(ctx, selectProposal+` WHERE p.id = ?`, id)
	if err := scanProposal(row, &p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("feature proposal", id)
		}
		return nil, fmt.Errorf("sqlite: getting proposal %s: %w", id, err)
	}

	return &p, nil
}

// ListProposals returns one page of proposals. The caller has already
// validated Limit and Offset; ORDER BY comes from a whitelist.
func (db *DB) ListProposals(ctx context.Context, opts repository.ListOptions) ([]model.Proposal, error) {
	rows, err := db.conn.QueryContext(ctx,
		selectProposal+` ORDER BY `+opts.OrderBy()+` LIMIT ? OFFSET ?`,
		opts.Limit,
		opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing proposals: %w", err)
	}
	defer rows.Close()

	proposals := make([]model.Proposal, 0, opts.Limit)
	for rows.Next() {
		var p model.Proposal
		if err := scanProposal(rows, &p); err != nil {
			return nil, fmt.Errorf("sqlite: scanning proposal row: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating proposals: %w", err)
	}

	return proposals, nil
}

func (db *DB) CountProposals(ctx context.Context) (int, error) {
	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM feature_proposals`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sqlite: counting proposals: %w", err)
	}
	return total, nil
}

// IncrementUpvoteCount bumps the counter inside the UPDATE itself
// (upvote_count = upvote_count + 1). A read-modify-write from Go would lose
// votes when two voters hit the same proposal at once.
func (db *DB) IncrementUpvoteCount(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE feature_proposals
		 SET upvote_count = upvote_count + 1, updated_at = ?
		 WHERE id = ?`,
		model.Now(),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing upvotes for %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("feature proposal", id)
	}

	return nil
}
