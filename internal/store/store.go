// Package store implements the State Store: per-user session persistence
// with atomic save/load and copy-on-read/copy-on-write semantics, so callers
// may mutate a loaded session freely without corrupting what is stored.
package store

import (
	"context"

	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/models"
)

// Store is the State Store contract (spec §4.2): Save and Load, both
// serialised per user key, with Load returning a logically-independent copy,
// plus Delete and Close.
// MemoryStore (in-process) and PostgresStore (external KV) share this
// interface.
type Store interface {
	// Save persists session under userKey. It replaces whatever was stored
	// for that key.
	Save(ctx context.Context, userKey string, session *models.Session) error

	// Load returns a copy of the session stored under userKey, or
	// (nil, false, nil) if no session exists for that key.
	Load(ctx context.Context, userKey string) (*models.Session, bool, error)

	// Delete removes the session stored under userKey, if any.
	Delete(ctx context.Context, userKey string) error

	// Close releases any resources held by the store.
	Close() error
}

// ErrNotFound is returned by implementations that distinguish "not found"
// from other I/O errors internally, before translating to Load's (nil,
// false, nil) contract. Exported for callers that want to detect the same
// condition from a lower-level method.
type ErrNotFound struct {
	UserKey string
}

func (e *ErrNotFound) Error() string {
	return "session not found: " + e.UserKey
}
