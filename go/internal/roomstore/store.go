// Package roomstore defines the shared room document store the engine runs
// against. All authoritative game state lives here; clients only ever
// mutate it through conditional, idempotent patches.
package roomstore

import (
	"context"
	"errors"

	"github.com/mcdev12/manhunt/go/internal/models"
)

var (
	// ErrNotFound indicates the requested room does not exist.
	ErrNotFound = errors.New("room not found")

	// ErrAlreadyExists indicates an insert with a taken room id. Callers
	// generating random codes retry on this and only this.
	ErrAlreadyExists = errors.New("room id already exists")

	// ErrConflict indicates a conditional update lost the version race more
	// times than the store was willing to retry. Callers resolve it by
	// re-reading the authoritative state, never by blind retry.
	ErrConflict = errors.New("conditional update conflict")

	// ErrNoChange is returned by a PatchFn to abort a write because the
	// target is already in the requested state. Callers treat it as an
	// idempotent no-op, not a failure.
	ErrNoChange = errors.New("no change")

	// ErrIllegalTransition indicates a patch tried to move a room's status
	// backward or skip a phase. The lifecycle is strictly one-way.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// checkTransition rejects any patch whose status change is not a legal
// forward step.
func checkTransition(from, to models.RoomStatus) error {
	if from == to || models.CanTransition(from, to) {
		return nil
	}
	return ErrIllegalTransition
}

// PatchFn mutates a room in place. It runs against a private clone; the
// mutation only becomes visible if the store's version check succeeds.
// Patches must be safe to re-apply, since a lost version race re-runs the
// patch against fresher state.
type PatchFn func(*models.Room) error

// Store is the keyed room document store.
type Store interface {
	// Get returns a snapshot of the room, or ErrNotFound.
	Get(ctx context.Context, roomID string) (*models.Room, error)

	// Create inserts a new room. Fails if the id is taken.
	Create(ctx context.Context, room *models.Room) error

	// ConditionalUpdate applies patch under a version check and returns the
	// updated snapshot. ErrNoChange from the patch aborts the write and is
	// passed through. Exhausted version races return ErrConflict.
	ConditionalUpdate(ctx context.Context, roomID string, patch PatchFn) (*models.Room, error)

	// Delete removes (archives) a room once its result has been persisted.
	Delete(ctx context.Context, roomID string) error
}

// Watcher delivers room change notifications. Implementations push the
// latest snapshot on every committed write, with an internal polling
// fallback when push delivery is unavailable.
type Watcher interface {
	// Subscribe registers fn for change snapshots of the room. The returned
	// func unregisters it.
	Subscribe(roomID string, fn func(*models.Room)) (func(), error)
}
