// Package service contains the business logic layer of the application.
//
// THE LAYERS:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take primitives and return domain errors from apperror. They never
// see an *http.Request and never pick a status code.
//
// THE DEPENDENCY CHAIN:
//
//	main.go creates:  Store → AuthorService → ProposalService → Handler
//	At runtime:       Handler calls Service calls Repository (+ Cache)
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/feature-board/internal/apperror"
	"github.com/sakif/feature-board/internal/cache"
	"github.com/sakif/feature-board/internal/model"
	"github.com/sakif/feature-board/internal/repository"
)

// Listing defaults, applied by callers when a query parameter is absent.
const (
	DefaultPage     = 1
	DefaultLimit    = 10
	MaxLimit        = 50
	DefaultCacheTTL = 60 * time.Second
)

// AlreadyUpvotedMessage is what a voter sees on a second vote, whether the
// duplicate was caught by the existence check or by the unique constraint.
const AlreadyUpvotedMessage = "You have already upvoted this feature"

// AuthorResolver maps an email to its author, creating it on first use.
type AuthorResolver interface {
	Resolve(ctx context.Context, email string) (*model.Author, error)
}

// ProposalService handles feature proposals, their listing and their votes.
type ProposalService struct {
	repo     repository.Repository
	authors  AuthorResolver
	cache    cache.Cache
	cacheTTL time.Duration
	validate *validator.Validate
	logger   *slog.Logger
}

func NewProposalService(
	repo repository.Repository,
	authors AuthorResolver,
	c cache.Cache,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *ProposalService {
	if c == nil {
		c = cache.Nop{}
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &ProposalService{
		repo:     repo,
		authors:  authors,
		cache:    c,
		cacheTTL: cacheTTL,
		validate: newValidator(),
		logger:   logger,
	}
}

type createInput struct {
	Text        string `json:"text"        validate:"textlen"`
	AuthorEmail string `json:"authorEmail" validate:"required,email,max=255"`
}

// Create validates and saves a new proposal on behalf of authorEmail.
//
// Nothing is written unless both fields pass validation. On success every
// cached listing page is dropped, since any of them may now be stale.
func (s *ProposalService) Create(ctx context.Context, text, authorEmail string) (*model.Proposal, error) {
	// === VALIDATION ===
	in := createInput{
		Text:        strings.TrimSpace(text),
		AuthorEmail: normalizeEmail(authorEmail),
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	author, err := s.authors.Resolve(ctx, in.AuthorEmail)
	if err != nil {
		return nil, err
	}

	proposal := &model.Proposal{
		Text:        in.Text,
		AuthorID:    author.ID,
		AuthorEmail: author.Email,
	}
	if err := s.repo.CreateProposal(ctx, proposal); err != nil {
		s.logger.Error("failed to create proposal",
			slog.String("author_id", author.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating proposal: %w", err)
	}

	s.invalidateListings(ctx)

	s.logger.Info("proposal created",
		slog.String("id", proposal.ID),
		slog.String("author_id", author.ID),
	)

	return proposal, nil
}

// ListQuery selects one page of proposals.
type ListQuery struct {
	Page      int             `json:"page"      validate:"gte=1"`
	Limit     int             `json:"limit"     validate:"gte=1,lte=50"`
	SortBy    model.SortField `json:"sortBy"    validate:"oneof=createdAt upvoteCount"`
	SortOrder model.SortOrder `json:"sortOrder" validate:"oneof=asc desc"`
}

// DefaultListQuery is the listing used when the client specifies nothing:
// first page, ten per page, newest first.
func DefaultListQuery() ListQuery {
	return ListQuery{
		Page:      DefaultPage,
		Limit:     DefaultLimit,
		SortBy:    model.SortByCreatedAt,
		SortOrder: model.SortDesc,
	}
}

// List returns one page of proposals plus pagination metadata.
//
// CACHING:
// Pages are read through the cache under a key built from all four query
// values. A hit is returned without touching the database. Cache failures
// of any kind degrade to a normal database read.
func (s *ProposalService) List(ctx context.Context, q ListQuery) (*model.ProposalPage, error) {
	if err := s.validate.Struct(q); err != nil {
		return nil, validationError(err)
	}

	key := cache.ListingKey(q.Page, q.Limit, q.SortBy, q.SortOrder)
	if page, ok := s.cachedPage(ctx, key); ok {
		return page, nil
	}

	// A page number large enough to overflow the offset is simply past the end.
	offset := math.MaxInt
	if q.Page-1 <= math.MaxInt/q.Limit {
		offset = (q.Page - 1) * q.Limit
	}

	proposals, err := s.repo.ListProposals(ctx, repository.ListOptions{
		Limit:     q.Limit,
		Offset:    offset,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
	})
	if err != nil {
		s.logger.Error("failed to list proposals", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing proposals: %w", err)
	}

	total, err := s.repo.CountProposals(ctx)
	if err != nil {
		s.logger.Error("failed to count proposals", slog.String("error", err.Error()))
		return nil, fmt.Errorf("counting proposals: %w", err)
	}

	page := &model.ProposalPage{
		Data: proposals,
		Meta: model.PageMeta{
			Page:       q.Page,
			Limit:      q.Limit,
			Total:      total,
			TotalPages: model.TotalPages(total, q.Limit),
		},
	}
	// A write that invalidates between the reads above and this store leaves
	// the stale page cached until cacheTTL expires.
	s.storePage(ctx, key, page)

	return page, nil
}

type upvoteInput struct {
	ID    string `json:"id"    validate:"required,xid"`
	Email string `json:"email" validate:"required,email,max=255"`
}

// Upvote records one vote by email on the proposal id and returns the
// proposal with its new count.
//
// THE ONE-VOTE RULE:
// HasUpvote gives the common case a clear answer before anything is written.
// Two requests racing past that check are still stopped by the unique index
// on (author_id, feature_id): the repository reports the loser as
// apperror.ErrConflict, and it gets the same message as the early check.
// The counter is only bumped after the insert succeeds.
func (s *ProposalService) Upvote(ctx context.Context, id, email string) (*model.Proposal, error) {
	in := upvoteInput{
		ID:    strings.TrimSpace(id),
		Email: normalizeEmail(email),
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	if _, err := s.repo.GetProposal(ctx, in.ID); err != nil {
		return nil, err
	}

	author, err := s.authors.Resolve(ctx, in.Email)
	if err != nil {
		return nil, err
	}

	voted, err := s.repo.HasUpvote(ctx, author.ID, in.ID)
	if err != nil {
		return nil, fmt.Errorf("checking upvote: %w", err)
	}
	if voted {
		return nil, apperror.Conflictf(AlreadyUpvotedMessage)
	}

	upvote := &model.Upvote{AuthorID: author.ID, FeatureID: in.ID}
	if err := s.repo.CreateUpvote(ctx, upvote); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Debug("concurrent duplicate upvote rejected",
				slog.String("feature_id", in.ID),
				slog.String("author_id", author.ID),
			)
			return nil, apperror.Conflictf(AlreadyUpvotedMessage)
		}
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to record upvote",
			slog.String("feature_id", in.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("recording upvote: %w", err)
	}

	if err := s.repo.IncrementUpvoteCount(ctx, in.ID); err != nil {
		s.logger.Error("failed to increment upvote count",
			slog.String("feature_id", in.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("incrementing upvote count: %w", err)
	}

	s.invalidateListings(ctx)

	updated, err := s.repo.GetProposal(ctx, in.ID)
	if err != nil {
		return nil, fmt.Errorf("reloading proposal: %w", err)
	}

	s.logger.Info("proposal upvoted",
		slog.String("id", updated.ID),
		slog.String("author_id", author.ID),
		slog.Int("upvote_count", updated.UpvoteCount),
	)

	return updated, nil
}

// === CACHE HELPERS ===
// None of these return errors. A broken cache costs latency, never answers.

func (s *ProposalService) cachedPage(ctx context.Context, key string) (*model.ProposalPage, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("cache get failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil, false
	}

	var page model.ProposalPage
	if err := json.Unmarshal(raw, &page); err != nil {
		s.logger.Warn("discarding undecodable cache entry", slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}

	s.logger.Debug("cache hit", slog.String("key", key))
	return &page, true
}

func (s *ProposalService) storePage(ctx context.Context, key string, page *model.ProposalPage) {
	raw, err := json.Marshal(page)
	if err != nil {
		s.logger.Warn("cache encode failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		s.logger.Warn("cache set failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *ProposalService) invalidateListings(ctx context.Context) {
	if err := s.cache.DeletePattern(ctx, cache.ListingPattern); err != nil {
		s.logger.Warn("cache invalidation failed", slog.String("error", err.Error()))
	}
}
