// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in the sqlite and postgres subpackages.
//
// Error contract for every implementation:
//   - a missing row is reported as apperror.NotFound
//   - a unique-constraint violation is reported as apperror.ErrConflict
//   - anything else is wrapped with fmt.Errorf("...: %w", err)
package repository

import (
	"context"
	"fmt"

	"github.com/sakif/feature-board/internal/model"
)

type ListOptions struct {
	Limit     int
	Offset    int
	SortBy    model.SortField
	SortOrder model.SortOrder
}

// OrderBy renders the ORDER BY clause for a proposals query aliased as "p".
// Only whitelisted columns and directions are ever interpolated; unknown
// values fall back to newest first. Ties break on id in the same direction
// so that pages never overlap.
func (o ListOptions) OrderBy() string {
	column := "p.created_at"
	if o.SortBy == model.SortByUpvoteCount {
		column = "p.upvote_count"
	}
	dir := "DESC"
	if o.SortOrder == model.SortAsc {
		dir = "ASC"
	}
	return fmt.Sprintf("%s %s, p.id %s", column, dir, dir)
}

type AuthorRepository interface {
	// FindOrCreateAuthor returns the author with this email, inserting it
	// first if needed. Concurrent first calls for one email return the same row.
	FindOrCreateAuthor(ctx context.Context, email string) (*model.Author, error)
	GetAuthorByEmail(ctx context.Context, email string) (*model.Author, error)
}

type ProposalRepository interface {
	CreateProposal(ctx context.Context, proposal *model.Proposal) error
	GetProposal(ctx context.Context, id string) (*model.Proposal, error)
	ListProposals(ctx context.Context, opts ListOptions) ([]model.Proposal, error)
	CountProposals(ctx context.Context) (int, error)
	// IncrementUpvoteCount adds one to upvote_count in a single UPDATE.
	IncrementUpvoteCount(ctx context.Context, id string) error
}

type UpvoteRepository interface {
	HasUpvote(ctx context.Context, authorID, featureID string) (bool, error)
	// CreateUpvote returns apperror.ErrConflict when (author, feature)
	// already has a row.
	CreateUpvote(ctx context.Context, upvote *model.Upvote) error
}

// Repository is everything the proposal service needs from storage.
type Repository interface {
	AuthorRepository
	ProposalRepository
	UpvoteRepository
}

// Store is a Repository with a connection lifecycle, owned by the server.
type Store interface {
	Repository
	Ping(ctx context.Context) error
	Close() error
}
