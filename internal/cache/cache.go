// Package cache is the best-effort response cache in front of the listing
// endpoint. Callers treat every error as a miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/feature-board/internal/model"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// ListingPattern matches every cached listing page.
const ListingPattern = "features:*"

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) error
	Close() error
}

// ListingKey builds the key for one listing page.
func ListingKey(page, limit int, sortBy model.SortField, order model.SortOrder) string {
	return fmt.Sprintf("features:page=%d:limit=%d:sort=%s:order=%s", page, limit, sortBy, order)
}

// Nop never stores anything. It is used when no Redis address is configured.
type Nop struct{}

var _ Cache = Nop{}

func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) DeletePattern(context.Context, string) error { return nil }
func (Nop) Close() error { return nil }
