// Package store provides a keyed document store with revision-guarded
// updates. Documents are JSON values addressed by (collection, id). Writes
// that carry a revision are conditional: the write succeeds only when the
// stored revision still matches, which is what the RSVP state machine
// relies on for race-free transitions.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrConflict indicates a conditional write lost a revision race.
	ErrConflict = errors.New("revision conflict")
)

// Collections used by rallyd. Callers pass these as the collection argument;
// the store itself treats collection names as opaque.
const (
	CollectionUsers         = "users"
	CollectionPlayers       = "players"
	CollectionCourts        = "courts"
	CollectionGroups        = "groups"
	CollectionSessions      = "sessions"
	CollectionNotifications = "notifications"
)

// Store is a keyed record store with get/set/update semantics and a
// compare-and-swap primitive. Implementations must provide per-document
// atomicity; no cross-document transactions are required.
type Store interface {
	// Get unmarshals the document into out and returns its revision.
	Get(ctx context.Context, collection, id string, out any) (rev int64, err error)

	// Put unconditionally creates or replaces a document and returns the
	// new revision.
	Put(ctx context.Context, collection, id string, v any) (rev int64, err error)

	// Replace writes the document only if the stored revision still equals
	// rev. Returns ErrConflict when another writer got there first and
	// ErrNotFound when the document no longer exists.
	Replace(ctx context.Context, collection, id string, rev int64, v any) (newRev int64, err error)

	// Delete removes a document. Deleting a missing document returns
	// ErrNotFound.
	Delete(ctx context.Context, collection, id string) error

	// List returns the ids of every document in a collection.
	List(ctx context.Context, collection string) ([]string, error)

	// Close releases underlying resources.
	Close() error
}
