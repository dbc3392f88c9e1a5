package model

import (
	"encoding/json"
	"time"
)

// TimestampLayout is how timestamps appear in the API: UTC with exactly three
// fractional digits, e.g. "2024-01-01T00:00:00.120Z".
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Proposal is a submitted feature request with its running upvote count.
//
// AuthorEmail is not a column of feature_proposals: repositories JOIN the
// authors table and flatten the email into the record so callers never have
// to resolve the author separately.
//
// The JSON shape is the public API contract:
//
//	{"id":"...","text":"...","authorEmail":"...","upvoteCount":3,"createdAt":"2024-01-01T00:00:00.123Z"}
type Proposal struct {
	ID          string    `json:"id"          db:"id"`
	Text        string    `json:"text"        db:"text"`
	AuthorID    string    `json:"-"           db:"author_id"`
	AuthorEmail string    `json:"authorEmail" db:"author_email"`
	UpvoteCount int       `json:"upvoteCount" db:"upvote_count"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"-"           db:"updated_at"`
}

// MarshalJSON writes CreatedAt with TimestampLayout. The default time.Time
// encoding drops trailing zeros from the fraction.
func (p Proposal) MarshalJSON() ([]byte, error) {
	type fields Proposal
	return json.Marshal(struct {
		fields
		CreatedAt string `json:"createdAt"`
	}{
		fields:    fields(p),
		CreatedAt: p.CreatedAt.UTC().Format(TimestampLayout),
	})
}

// Upvote links one author to one proposal. At most one exists per
// (AuthorID, FeatureID) pair; rows are append-only.
type Upvote struct {
	ID        string    `json:"id"        db:"id"`
	AuthorID  string    `json:"authorId"  db:"author_id"`
	FeatureID string    `json:"featureId" db:"feature_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Now returns the current time in the precision every store keeps:
// UTC, truncated to milliseconds. Using it for all timestamps means a record
// read back from SQLite, Postgres or the cache encodes to the same JSON.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
