package roomstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/manhunt/go/internal/models"
)

// NotifyChannel is the Postgres channel room writes are announced on. The
// rooms table carries a trigger calling pg_notify(NotifyChannel, room id)
// after every insert/update; Listener subscribes to it.
const NotifyChannel = "room_events"

// uniqueViolation is the Postgres error code for a duplicate primary key.
const uniqueViolation = "23505"

// PostgresStore persists each room as a jsonb document with a version
// column. Conditional updates are compare-and-swap on the version, so two
// clients patching different players in the same polling window never lose
// each other's write: the loser re-reads and re-applies its patch.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get returns a snapshot of the room.
func (s *PostgresStore) Get(ctx context.Context, roomID string) (*models.Room, error) {
	var (
		doc     []byte
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT doc, version FROM rooms WHERE id = $1`, roomID,
	).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return decodeRoom(doc, version)
}

// Create inserts a new room at version 1.
func (s *PostgresStore) Create(ctx context.Context, room *models.Room) error {
	cp := room.Clone()
	cp.Version = 1
	doc, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO rooms (id, doc, version) VALUES ($1, $2, 1)`,
		room.ID, doc,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("room %s: %w", room.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// ConditionalUpdate reads the room, applies patch to a private copy, and
// writes it back only if the version is unchanged. A lost race re-runs the
// patch against the fresher document, up to maxPatchRetries attempts.
func (s *PostgresStore) ConditionalUpdate(ctx context.Context, roomID string, patch PatchFn) (*models.Room, error) {
	for attempt := 0; attempt < maxPatchRetries; attempt++ {
		current, err := s.Get(ctx, roomID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := patch(next); err != nil {
			if err == ErrNoChange {
				return current, ErrNoChange
			}
			return nil, err
		}
		if err := checkTransition(current.Status, next.Status); err != nil {
			return nil, err
		}
		next.Version = current.Version + 1

		doc, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal room: %w", err)
		}

		tag, err := s.pool.Exec(ctx,
			`UPDATE rooms SET doc = $2, version = version + 1 WHERE id = $1 AND version = $3`,
			roomID, doc, current.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update room: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return next, nil
		}
		// Version moved underneath us; loop and re-apply against the fresher
		// document.
	}
	return nil, ErrConflict
}

// Delete removes an archived room.
func (s *PostgresStore) Delete(ctx context.Context, roomID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeRoom(doc []byte, version int64) (*models.Room, error) {
	var room models.Room
	if err := json.Unmarshal(doc, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	room.Version = version
	return &room, nil
}
