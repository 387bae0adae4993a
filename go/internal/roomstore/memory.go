package roomstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcdev12/manhunt/go/internal/models"
)

const maxPatchRetries = 5

// MemoryStore is an in-memory Store and Watcher. It backs offline play and
// every engine test; semantics match the Postgres store, including the
// version-CAS contract.
type MemoryStore struct {
	mu     sync.Mutex
	rooms  map[string]*models.Room
	subs   map[string]map[int]func(*models.Room)
	nextID int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]*models.Room),
		subs:  make(map[string]map[int]func(*models.Room)),
	}
}

// Get returns a snapshot of the room.
func (s *MemoryStore) Get(ctx context.Context, roomID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return room.Clone(), nil
}

// Create inserts a new room.
func (s *MemoryStore) Create(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.ID]; ok {
		return fmt.Errorf("room %s: %w", room.ID, ErrAlreadyExists)
	}
	cp := room.Clone()
	cp.Version = 1
	s.rooms[room.ID] = cp
	return nil
}

// ConditionalUpdate applies patch under the version check and notifies
// subscribers on success.
func (s *MemoryStore) ConditionalUpdate(ctx context.Context, roomID string, patch PatchFn) (*models.Room, error) {
	s.mu.Lock()
	current, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	next := current.Clone()
	if err := patch(next); err != nil {
		snapshot := current.Clone()
		s.mu.Unlock()
		if err == ErrNoChange {
			return snapshot, ErrNoChange
		}
		return nil, err
	}
	if err := checkTransition(current.Status, next.Status); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	next.Version = current.Version + 1
	s.rooms[roomID] = next

	snapshot := next.Clone()
	subs := s.snapshotSubs(roomID)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot.Clone())
	}
	return snapshot, nil
}

// Delete removes a room and drops its subscribers.
func (s *MemoryStore) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return ErrNotFound
	}
	delete(s.rooms, roomID)
	delete(s.subs, roomID)
	return nil
}

// Subscribe registers fn for change snapshots of the room.
func (s *MemoryStore) Subscribe(roomID string, fn func(*models.Room)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs[roomID] == nil {
		s.subs[roomID] = make(map[int]func(*models.Room))
	}
	id := s.nextID
	s.nextID++
	s.subs[roomID][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[roomID], id)
	}, nil
}

// snapshotSubs copies the subscriber list so callbacks run outside the lock.
// Callers must hold s.mu.
func (s *MemoryStore) snapshotSubs(roomID string) []func(*models.Room) {
	subs := make([]func(*models.Room), 0, len(s.subs[roomID]))
	for _, fn := range s.subs[roomID] {
		subs = append(subs, fn)
	}
	return subs
}
