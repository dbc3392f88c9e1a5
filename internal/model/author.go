// Package model defines the data structures used throughout the application.
package model

import "time"

// Author is a user identity keyed solely by email. There is no password and
// no session: whoever types an email acts as that author.
//
// Authors are created lazily the first time an email submits or votes, and
// are never modified afterwards. The UNIQUE constraint on email in the DB is
// what guarantees one row per address.
type Author struct {
	ID        string    `json:"id"        db:"id"`
	Email     string    `json:"email"     db:"email"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
