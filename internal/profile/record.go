// Package profile mirrors principal attributes into a document store.
// The mirror is a derived cache and never authoritative.
package profile

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyUserID is returned when a record has no identifier.
var ErrEmptyUserID = errors.New("profile.empty_user_id")

// Record is the mirrored copy of a principal.
type Record struct {
	UserID      string
	Email       string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
	LastLogin   time.Time
}

// Store reads and merge-writes records by user id.
type Store interface {
	// Get returns the record and whether it exists.
	Get(ctx context.Context, userID string) (Record, bool, error)
	// Merge writes the non-zero fields of record, leaving the rest untouched.
	Merge(ctx context.Context, record Record) error
}

func mergeInto(existing Record, update Record) Record {
	merged := existing
	merged.UserID = update.UserID
	if update.Email != "" {
		merged.Email = update.Email
	}
	if update.DisplayName != "" {
		merged.DisplayName = update.DisplayName
	}
	if update.AvatarURL != "" {
		merged.AvatarURL = update.AvatarURL
	}
	if !update.CreatedAt.IsZero() {
		merged.CreatedAt = update.CreatedAt
	}
	if !update.LastLogin.IsZero() {
		merged.LastLogin = update.LastLogin
	}
	return merged
}
