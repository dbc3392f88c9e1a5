package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/feature-board/internal/apperror"
	"github.com/sakif/feature-board/internal/model"
)

const validText = "Add dark mode to the dashboard"

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate_Success(t *testing.T) {
	svc, _, _ := newTestService(t)

	p, err := svc.Create(context.Background(), validText, "dev@example.com")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if p.ID == "" {
		t.Error("expected proposal to have an ID")
	}
	if p.Text != validText {
		t.Errorf("Text = %q, want %q", p.Text, validText)
	}
	if p.AuthorEmail != "dev@example.com" {
		t.Errorf("AuthorEmail = %q", p.AuthorEmail)
	}
	if p.UpvoteCount != 0 {
		t.Errorf("UpvoteCount = %d, want 0", p.UpvoteCount)
	}
}

func TestCreate_TrimsAndNormalizes(t *testing.T) {
	svc, _, _ := newTestService(t)

	p, err := svc.Create(context.Background(), "   "+validText+"\n", " Dev@Example.COM ")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.Text != validText {
		t.Errorf("Text = %q, want trimmed", p.Text)
	}
	if p.AuthorEmail != "dev@example.com" {
		t.Errorf("AuthorEmail = %q, want lower-cased", p.AuthorEmail)
	}
}

func TestCreate_TextLengthBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "one below minimum", text: strings.Repeat("a", MinTextLength-1), wantErr: true},
		{name: "minimum", text: strings.Repeat("a", MinTextLength)},
		{name: "maximum", text: strings.Repeat("a", MaxTextLength)},
		{name: "one above maximum", text: strings.Repeat("a", MaxTextLength+1), wantErr: true},
		{name: "9 chars", text: strings.Repeat("a", 9), wantErr: true},
		{name: "10 chars", text: strings.Repeat("a", 10)},
		{name: "500 chars", text: strings.Repeat("a", 500)},
		{name: "501 chars", text: strings.Repeat("a", 501), wantErr: true},
		{name: "empty", text: "", wantErr: true},
		{name: "padding does not count", text: "   short   ", wantErr: true},
		// 10 runes, 30 bytes
		{name: "multibyte counted as characters", text: strings.Repeat("日", 10)},
		{name: "500 multibyte", text: strings.Repeat("é", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)

			_, err := svc.Create(context.Background(), tt.text, "dev@example.com")
			if tt.wantErr {
				if !errors.Is(err, apperror.ErrValidation) {
					t.Fatalf("error = %v, want validation error", err)
				}
				var appErr *apperror.AppError
				if errors.As(err, &appErr) {
					if appErr.Field != "text" {
						t.Errorf("Field = %q, want text", appErr.Field)
					}
					if appErr.Message != "text must be between 10 and 500 characters" {
						t.Errorf("Message = %q", appErr.Message)
					}
				}
				if len(repo.proposals) != 0 || len(repo.authors) != 0 {
					t.Error("storage was touched for invalid input")
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
		})
	}
}

func TestCreate_InvalidEmail(t *testing.T) {
	svc, repo, _ := newTestService(t)

	for _, email := range []string{"", "nope", "@example.com", strings.Repeat("a", 250) + "@example.com"} {
		_, err := svc.Create(context.Background(), validText, email)
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("Create(email=%q) error = %v, want validation error", email, err)
		}
	}
	if len(repo.authors) != 0 {
		t.Errorf("authors stored = %d, want 0", len(repo.authors))
	}
}

func TestCreate_InvalidatesListingCache(t *testing.T) {
	svc, _, c := newTestService(t)
	ctx := context.Background()

	if _, err := svc.List(ctx, DefaultListQuery()); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if c.len() != 1 {
		t.Fatalf("cache entries = %d, want 1", c.len())
	}

	mustCreate(t, svc, validText, "dev@example.com")

	if c.len() != 0 {
		t.Errorf("cache entries after create = %d, want 0", c.len())
	}
}

func TestCreate_SucceedsWhenCacheDown(t *testing.T) {
	svc, _, c := newTestService(t)
	c.broken = true

	if _, err := svc.Create(context.Background(), validText, "dev@example.com"); err != nil {
		t.Fatalf("Create() error = %v, want cache failure ignored", err)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestList_Empty(t *testing.T) {
	svc, _, _ := newTestService(t)

	page, err := svc.List(context.Background(), DefaultListQuery())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Data == nil || len(page.Data) != 0 {
		t.Errorf("Data = %#v, want empty non-nil slice", page.Data)
	}
	want := model.PageMeta{Page: 1, Limit: 10, Total: 0, TotalPages: 0}
	if page.Meta != want {
		t.Errorf("Meta = %+v, want %+v", page.Meta, want)
	}
}

func TestList_Pagination(t *testing.T) {
	svc, _, _ := newTestService(t)
	for i := range 25 {
		mustCreate(t, svc, fmt.Sprintf("Proposal number %02d", i), "dev@example.com")
	}

	tests := []struct {
		page     int
		wantLen  int
		wantMeta model.PageMeta
	}{
		{page: 1, wantLen: 10, wantMeta: model.PageMeta{Page: 1, Limit: 10, Total: 25, TotalPages: 3}},
		{page: 3, wantLen: 5, wantMeta: model.PageMeta{Page: 3, Limit: 10, Total: 25, TotalPages: 3}},
		{page: 4, wantLen: 0, wantMeta: model.PageMeta{Page: 4, Limit: 10, Total: 25, TotalPages: 3}},
	}

	for _, tt := range tests {
		q := DefaultListQuery()
		q.Page = tt.page
		page, err := svc.List(context.Background(), q)
		if err != nil {
			t.Fatalf("List(page=%d) error = %v", tt.page, err)
		}
		if len(page.Data) != tt.wantLen {
			t.Errorf("page %d: len = %d, want %d", tt.page, len(page.Data), tt.wantLen)
		}
		if page.Meta != tt.wantMeta {
			t.Errorf("page %d: Meta = %+v, want %+v", tt.page, page.Meta, tt.wantMeta)
		}
	}
}

func TestList_HugePageIsEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustCreate(t, svc, validText, "dev@example.com")

	q := DefaultListQuery()
	q.Page = 1 << 62
	q.Limit = 50
	page, err := svc.List(context.Background(), q)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page.Data) != 0 {
		t.Errorf("len = %d, want 0", len(page.Data))
	}
	if page.Meta.Total != 1 {
		t.Errorf("Total = %d, want 1", page.Meta.Total)
	}
}

func TestList_SortByUpvotes(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	low := mustCreate(t, svc, "Low voted proposal", "a@example.com")
	high := mustCreate(t, svc, "High voted proposal", "a@example.com")
	for _, voter := range []string{"v1@example.com", "v2@example.com"} {
		if _, err := svc.Upvote(ctx, high.ID, voter); err != nil {
			t.Fatalf("Upvote() error = %v", err)
		}
	}

	q := DefaultListQuery()
	q.SortBy = model.SortByUpvoteCount
	page, err := svc.List(ctx, q)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Data[0].ID != high.ID || page.Data[1].ID != low.ID {
		t.Errorf("order = [%s %s], want [%s %s]", page.Data[0].ID, page.Data[1].ID, high.ID, low.ID)
	}
	if page.Data[0].UpvoteCount != 2 {
		t.Errorf("UpvoteCount = %d, want 2", page.Data[0].UpvoteCount)
	}
}

func TestList_RejectsInvalidQuery(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ListQuery)
		wantField string
	}{
		{name: "page zero", mutate: func(q *ListQuery) { q.Page = 0 }, wantField: "page"},
		{name: "negative page", mutate: func(q *ListQuery) { q.Page = -1 }, wantField: "page"},
		{name: "limit zero", mutate: func(q *ListQuery) { q.Limit = 0 }, wantField: "limit"},
		{name: "limit above max", mutate: func(q *ListQuery) { q.Limit = 51 }, wantField: "limit"},
		{name: "unknown sort", mutate: func(q *ListQuery) { q.SortBy = "text" }, wantField: "sortBy"},
		{name: "unknown order", mutate: func(q *ListQuery) { q.SortOrder = "sideways" }, wantField: "sortOrder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)
			q := DefaultListQuery()
			tt.mutate(&q)

			_, err := svc.List(context.Background(), q)
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("error = %v, want validation error", err)
			}
			if appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
			if repo.listCalls != 0 {
				t.Errorf("storage read %d times, want 0", repo.listCalls)
			}
		})
	}
}

func TestList_LimitBoundaries(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, limit := range []int{1, MaxLimit} {
		q := DefaultListQuery()
		q.Limit = limit
		if _, err := svc.List(context.Background(), q); err != nil {
			t.Errorf("List(limit=%d) error = %v", limit, err)
		}
	}
}

func TestList_ServesRepeatFromCache(t *testing.T) {
	svc, repo, c := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, validText, "dev@example.com")

	first, err := svc.List(ctx, DefaultListQuery())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	second, err := svc.List(ctx, DefaultListQuery())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if repo.listCalls != 1 {
		t.Errorf("storage reads = %d, want 1", repo.listCalls)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Errorf("cached response differs:\n%s\n%s", a, b)
	}

	key := "features:page=1:limit=10:sort=createdAt:order=desc"
	if c.ttls[key] != time.Minute {
		t.Errorf("ttl = %v, want %v", c.ttls[key], time.Minute)
	}
}

func TestList_DistinctKeysPerQuery(t *testing.T) {
	svc, repo, c := newTestService(t)
	ctx := context.Background()

	q := DefaultListQuery()
	if _, err := svc.List(ctx, q); err != nil {
		t.Fatal(err)
	}
	q.SortOrder = model.SortAsc
	if _, err := svc.List(ctx, q); err != nil {
		t.Fatal(err)
	}

	if repo.listCalls != 2 {
		t.Errorf("storage reads = %d, want 2", repo.listCalls)
	}
	if c.len() != 2 {
		t.Errorf("cache entries = %d, want 2", c.len())
	}
}

func TestList_CacheDownFallsBackToStorage(t *testing.T) {
	svc, repo, c := newTestService(t)
	c.broken = true
	mustCreate(t, svc, validText, "dev@example.com")

	for range 2 {
		page, err := svc.List(context.Background(), DefaultListQuery())
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(page.Data) != 1 {
			t.Errorf("len = %d, want 1", len(page.Data))
		}
	}
	if repo.listCalls != 2 {
		t.Errorf("storage reads = %d, want 2", repo.listCalls)
	}
}

func TestList_CorruptCacheEntryIsAMiss(t *testing.T) {
	svc, repo, c := newTestService(t)
	c.entries["features:page=1:limit=10:sort=createdAt:order=desc"] = []byte("{not json")

	if _, err := svc.List(context.Background(), DefaultListQuery()); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if repo.listCalls != 1 {
		t.Errorf("storage reads = %d, want 1", repo.listCalls)
	}
}

func TestList_StorageError(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.listErr = errors.New("disk on fire")

	_, err := svc.List(context.Background(), DefaultListQuery())
	if err == nil || apperror.Kind(err) != nil {
		t.Fatalf("error = %v, want wrapped non-domain error", err)
	}
}

// =========================================================================
// UPVOTE TESTS
// =========================================================================

func TestUpvote_Success(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := mustCreate(t, svc, validText, "author@example.com")

	got, err := svc.Upvote(context.Background(), p.ID, "voter@example.com")
	if err != nil {
		t.Fatalf("Upvote() error = %v", err)
	}
	if got.UpvoteCount != 1 {
		t.Errorf("UpvoteCount = %d, want 1", got.UpvoteCount)
	}
	if got.AuthorEmail != "author@example.com" {
		t.Errorf("AuthorEmail = %q, want proposal author", got.AuthorEmail)
	}
}

func TestUpvote_AuthorMayVoteOwnProposal(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := mustCreate(t, svc, validText, "author@example.com")

	if _, err := svc.Upvote(context.Background(), p.ID, "author@example.com"); err != nil {
		t.Fatalf("Upvote() error = %v", err)
	}
}

func TestUpvote_Duplicate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	p := mustCreate(t, svc, validText, "author@example.com")

	if _, err := svc.Upvote(ctx, p.ID, "voter@example.com"); err != nil {
		t.Fatalf("first Upvote() error = %v", err)
	}
	_, err := svc.Upvote(ctx, p.ID, "VOTER@example.com")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second Upvote() error = %v, want conflict", err)
	}
	if err.Error() != AlreadyUpvotedMessage {
		t.Errorf("message = %q, want %q", err.Error(), AlreadyUpvotedMessage)
	}

	stored, _ := repo.GetProposal(ctx, p.ID)
	if stored.UpvoteCount != 1 {
		t.Errorf("UpvoteCount = %d, want 1", stored.UpvoteCount)
	}
}

func TestUpvote_ConstraintViolationIsSameConflict(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	p := mustCreate(t, svc, validText, "author@example.com")

	if _, err := svc.Upvote(ctx, p.ID, "voter@example.com"); err != nil {
		t.Fatalf("first Upvote() error = %v", err)
	}

	// Both requests passed the existence check; only the insert can tell.
	repo.skipHasUpvote = true
	_, err := svc.Upvote(ctx, p.ID, "voter@example.com")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("error = %v, want conflict", err)
	}
	if err.Error() != AlreadyUpvotedMessage {
		t.Errorf("message = %q, want %q", err.Error(), AlreadyUpvotedMessage)
	}

	stored, _ := repo.GetProposal(ctx, p.ID)
	if stored.UpvoteCount != 1 {
		t.Errorf("UpvoteCount = %d, want 1", stored.UpvoteCount)
	}
}

func TestUpvote_ConcurrentDuplicates(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.skipHasUpvote = true
	p := mustCreate(t, svc, validText, "author@example.com")

	const n = 20
	var ok, conflicts atomic.Int32
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Upvote(context.Background(), p.ID, "same@example.com")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperror.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || conflicts.Load() != n-1 {
		t.Errorf("ok = %d, conflicts = %d; want 1 and %d", ok.Load(), conflicts.Load(), n-1)
	}
	stored, _ := repo.GetProposal(context.Background(), p.ID)
	if stored.UpvoteCount != 1 {
		t.Errorf("UpvoteCount = %d, want 1", stored.UpvoteCount)
	}
}

func TestUpvote_UnknownProposal(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.Upvote(context.Background(), xid.New().String(), "voter@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("error = %v, want not found", err)
	}
	if len(repo.authors) != 0 {
		t.Error("voter was created for a missing proposal")
	}
}

func TestUpvote_InvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := mustCreate(t, svc, validText, "author@example.com")

	tests := []struct {
		name, id, email, wantField string
	}{
		{name: "malformed id", id: "not-an-id", email: "v@example.com", wantField: "id"},
		{name: "empty id", id: "", email: "v@example.com", wantField: "id"},
		{name: "bad email", id: p.ID, email: "nope", wantField: "email"},
		{name: "empty email", id: p.ID, email: "", wantField: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upvote(context.Background(), tt.id, tt.email)
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("error = %v, want validation error", err)
			}
			if appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
		})
	}
}

func TestUpvote_InvalidatesListingCache(t *testing.T) {
	svc, repo, c := newTestService(t)
	ctx := context.Background()
	p := mustCreate(t, svc, validText, "author@example.com")

	before, err := svc.List(ctx, DefaultListQuery())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Upvote(ctx, p.ID, "voter@example.com"); err != nil {
		t.Fatal(err)
	}
	after, err := svc.List(ctx, DefaultListQuery())
	if err != nil {
		t.Fatal(err)
	}

	if repo.listCalls != 2 {
		t.Errorf("storage reads = %d, want 2", repo.listCalls)
	}
	if before.Data[0].UpvoteCount != 0 || after.Data[0].UpvoteCount != 1 {
		t.Errorf("counts before/after = %d/%d, want 0/1", before.Data[0].UpvoteCount, after.Data[0].UpvoteCount)
	}
	if c.deletes != 2 {
		t.Errorf("invalidations = %d, want 2", c.deletes)
	}
}

func TestUpvote_IncrementFailure(t *testing.T) {
	svc, repo, _ := newTestService(t)
	p := mustCreate(t, svc, validText, "author@example.com")
	repo.incrementErr = errors.New("lock timeout")

	_, err := svc.Upvote(context.Background(), p.ID, "voter@example.com")
	if err == nil || apperror.Kind(err) != nil {
		t.Fatalf("error = %v, want wrapped non-domain error", err)
	}
}
