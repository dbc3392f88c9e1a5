package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/feature-board/internal/apperror"
	"github.com/sakif/feature-board/internal/cache"
	"github.com/sakif/feature-board/internal/model"
	"github.com/sakif/feature-board/internal/repository"
)

// =========================================================================
// FAKE REPOSITORY
// =========================================================================
//
// fakeRepo keeps authors, proposals and upvotes in maps and enforces the
// same uniqueness rules as the SQL schema, so the service sees the same
// errors it would get from SQLite or Postgres.
//
// skipHasUpvote makes HasUpvote always answer false. That lets a test walk
// the path where two requests race past the existence check and the unique
// constraint is what rejects the second one.

type fakeRepo struct {
	mu        sync.Mutex
	authors   map[string]*model.Author // keyed by email
	proposals map[string]*model.Proposal
	upvotes   map[string]bool // authorID + "/" + featureID

	skipHasUpvote bool
	listErr       error
	incrementErr  error

	listCalls int
}

var _ repository.Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		authors:   make(map[string]*model.Author),
		proposals: make(map[string]*model.Proposal),
		upvotes:   make(map[string]bool),
	}
}

func (f *fakeRepo) FindOrCreateAuthor(_ context.Context, email string) (*model.Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.authors[email]; ok {
		cp := *a
		return &cp, nil
	}
	now := model.Now()
	a := &model.Author{ID: xid.New().String(), Email: email, CreatedAt: now, UpdatedAt: now}
	f.authors[email] = a
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) GetAuthorByEmail(_ context.Context, email string) (*model.Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.authors[email]
	if !ok {
		return nil, apperror.NotFound("author", email)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) emailOf(authorID string) string {
	for _, a := range f.authors {
		if a.ID == authorID {
			return a.Email
		}
	}
	return ""
}

func (f *fakeRepo) CreateProposal(_ context.Context, p *model.Proposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	email := f.emailOf(p.AuthorID)
	if email == "" {
		return apperror.NotFound("author", p.AuthorID)
	}

	now := model.Now()
	p.ID = xid.New().String()
	p.UpvoteCount = 0
	p.CreatedAt = now
	p.UpdatedAt = now
	p.AuthorEmail = email

	stored := *p
	f.proposals[p.ID] = &stored
	return nil
}

func (f *fakeRepo) GetProposal(_ context.Context, id string) (*model.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.proposals[id]
	if !ok {
		return nil, apperror.NotFound("feature proposal", id)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) ListProposals(_ context.Context, opts repository.ListOptions) ([]model.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}

	all := make([]model.Proposal, 0, len(f.proposals))
	for _, p := range f.proposals {
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		var less bool
		switch {
		case opts.SortBy == model.SortByUpvoteCount && a.UpvoteCount != b.UpvoteCount:
			less = a.UpvoteCount < b.UpvoteCount
		case opts.SortBy != model.SortByUpvoteCount && !a.CreatedAt.Equal(b.CreatedAt):
			less = a.CreatedAt.Before(b.CreatedAt)
		default:
			less = a.ID < b.ID
		}
		if opts.SortOrder == model.SortAsc {
			return less
		}
		return !less
	})

	if opts.Offset >= len(all) {
		return []model.Proposal{}, nil
	}
	all = all[opts.Offset:]
	if opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (f *fakeRepo) CountProposals(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.proposals), nil
}

func (f *fakeRepo) IncrementUpvoteCount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.incrementErr != nil {
		return f.incrementErr
	}
	p, ok := f.proposals[id]
	if !ok {
		return apperror.NotFound("feature proposal", id)
	}
	p.UpvoteCount++
	p.UpdatedAt = model.Now()
	return nil
}

func (f *fakeRepo) HasUpvote(_ context.Context, authorID, featureID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.skipHasUpvote {
		return false, nil
	}
	return f.upvotes[authorID+"/"+featureID], nil
}

func (f *fakeRepo) CreateUpvote(_ context.Context, u *model.Upvote) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.proposals[u.FeatureID]; !ok {
		return apperror.NotFound("feature proposal", u.FeatureID)
	}
	key := u.AuthorID + "/" + u.FeatureID
	if f.upvotes[key] {
		return apperror.Conflict("upvote", u.FeatureID)
	}
	f.upvotes[key] = true
	u.ID = xid.New().String()
	u.CreatedAt = model.Now()
	return nil
}

// =========================================================================
// FAKE CACHE
// =========================================================================

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	broken  bool

	deletes int
}

var _ cache.Cache = (*fakeCache)(nil)

var errCacheDown = errors.New("cache unavailable")

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
	}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return nil, errCacheDown
	}
	v, ok := c.entries[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return errCacheDown
	}
	c.entries[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deletes++
	if c.broken {
		return errCacheDown
	}
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *fakeCache) Close() error { return nil }

func (c *fakeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// =========================================================================
// TEST HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(t *testing.T) (*ProposalService, *fakeRepo, *fakeCache) {
	t.Helper()
	repo := newFakeRepo()
	c := newFakeCache()
	logger := testLogger()
	svc := NewProposalService(repo, NewAuthorService(repo, logger), c, time.Minute, logger)
	return svc, repo, c
}

func mustCreate(t *testing.T, svc *ProposalService, text, email string) *model.Proposal {
	t.Helper()
	p, err := svc.Create(context.Background(), text, email)
	if err != nil {
		t.Fatalf("Create(%q) error = %v", text, err)
	}
	return p
}
