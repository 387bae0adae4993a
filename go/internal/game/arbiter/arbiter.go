// Package arbiter serializes the mutually exclusive player-state mutations:
// elimination, escape, and skillcheck completion. Every operation is a
// conditional, idempotent patch against the room store, so duplicate
// submissions from retrying clients and races between different actors
// resolve to a single effective write.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/manhunt/go/internal/events"
	gameroom "github.com/mcdev12/manhunt/go/internal/game/room"
	"github.com/mcdev12/manhunt/go/internal/models"
	"github.com/mcdev12/manhunt/go/internal/roomstore"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds each client-initiated operation. A timed-out call
// resets the local in-flight guard only; the store-side effect may still
// have landed, which is safe because the patches are idempotent.
const DefaultTimeout = 15 * time.Second

var (
	// ErrPlayerNotFound indicates the target player is not in the room.
	ErrPlayerNotFound = errors.New("player not found in room")

	// ErrSkillcheckNotFound indicates an unknown skillcheck id.
	ErrSkillcheckNotFound = errors.New("skillcheck not found")

	// ErrWrongPhase indicates the room is not in a phase that allows the
	// operation (and the caller did not pass the host override).
	ErrWrongPhase = errors.New("operation not allowed in current phase")

	// ErrEscapeNotRevealed indicates an escape attempt before the escape
	// area was revealed.
	ErrEscapeNotRevealed = errors.New("escape area not revealed")

	// ErrInFlight indicates the same operation is already running on this
	// client.
	ErrInFlight = errors.New("operation already in flight")
)

// Options modifies how an operation validates. Host/debug overrides use the
// same operations and patches as normal play; the flag only relaxes phase
// and reveal preconditions, never the terminal-state guards.
type Options struct {
	Override bool
}

// Arbiter issues conditional mutations through the room store.
type Arbiter struct {
	store     roomstore.Store
	publisher events.Publisher // optional
	clock     clockwork.Clock
	rng       *rand.Rand
	timeout   time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates an arbiter over the given store. publisher may be nil for
// offline play; events are only emitted by the call whose write landed, so
// a mutation raced from several clients produces one event.
func New(store roomstore.Store, publisher events.Publisher, clock clockwork.Clock, rng *rand.Rand) *Arbiter {
	return &Arbiter{
		store:     store,
		publisher: publisher,
		clock:     clock,
		rng:       rng,
		timeout:   DefaultTimeout,
		inFlight:  make(map[string]bool),
	}
}

// Eliminate flips a player to eliminated. No-op if the player is already
// eliminated or has escaped; the two terminal states are mutually
// exclusive, and whichever lands first wins.
func (a *Arbiter) Eliminate(ctx context.Context, roomID, playerUID, eliminatedBy string, opts Options) (*models.Room, error) {
	key := fmt.Sprintf("eliminate:%s:%s", roomID, playerUID)
	room, applied, err := a.run(ctx, key, roomID, func(r *models.Room) error {
		p := r.Player(playerUID)
		if p == nil {
			return ErrPlayerNotFound
		}
		if !p.IsAlive || p.HasEscaped {
			return roomstore.ErrNoChange
		}
		if !opts.Override && r.Status != models.RoomStatusActive {
			return ErrWrongPhase
		}

		now := a.clock.Now().UTC()
		p.IsAlive = false
		p.EliminatedAt = &now
		p.EliminatedBy = eliminatedBy
		clearLocation(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied {
		p := room.Player(playerUID)
		a.publish(ctx, roomID, events.EventTypePlayerEliminated, events.PlayerEliminatedPayload{
			RoomID:       roomID,
			PlayerUID:    playerUID,
			EliminatedBy: eliminatedBy,
			EliminatedAt: *p.EliminatedAt,
		})
	}
	return room, nil
}

// MarkEscaped flips a player to escaped and records them in the escape
// area. No-op if already escaped; an eliminated player can never escape.
func (a *Arbiter) MarkEscaped(ctx context.Context, roomID, playerUID string, opts Options) (*models.Room, error) {
	key := fmt.Sprintf("escape:%s:%s", roomID, playerUID)
	room, applied, err := a.run(ctx, key, roomID, func(r *models.Room) error {
		p := r.Player(playerUID)
		if p == nil {
			return ErrPlayerNotFound
		}
		if p.HasEscaped || !p.IsAlive {
			return roomstore.ErrNoChange
		}
		if !opts.Override {
			if r.Status != models.RoomStatusActive {
				return ErrWrongPhase
			}
			if !r.EscapeRevealed() {
				return ErrEscapeNotRevealed
			}
		}

		now := a.clock.Now().UTC()
		p.HasEscaped = true
		p.EscapedAt = &now
		clearLocation(p)
		if r.EscapeArea != nil {
			r.EscapeArea.EscapedPlayers = append(r.EscapeArea.EscapedPlayers, playerUID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied {
		p := room.Player(playerUID)
		a.publish(ctx, roomID, events.EventTypePlayerEscaped, events.PlayerEscapedPayload{
			RoomID:    roomID,
			PlayerUID: playerUID,
			EscapedAt: *p.EscapedAt,
		})
	}
	return room, nil
}

// CompleteSkillcheck marks a skillcheck completed. No-op if already
// completed. Completing the last incomplete skillcheck atomically sets
// AllSkillchecksCompleted and reveals the escape area in the same patch.
func (a *Arbiter) CompleteSkillcheck(ctx context.Context, roomID, skillcheckID, playerUID string, opts Options) (*models.Room, error) {
	key := fmt.Sprintf("skillcheck:%s:%s", roomID, skillcheckID)
	revealed := false
	room, applied, err := a.run(ctx, key, roomID, func(r *models.Room) error {
		revealed = false
		sc := r.SkillcheckByID(skillcheckID)
		if sc == nil {
			return ErrSkillcheckNotFound
		}
		if sc.IsCompleted {
			return roomstore.ErrNoChange
		}
		if !opts.Override {
			if r.Status != models.RoomStatusHeadstart && r.Status != models.RoomStatusActive {
				return ErrWrongPhase
			}
			p := r.Player(playerUID)
			if p == nil {
				return ErrPlayerNotFound
			}
			if !p.IsLivingSurvivor() {
				return roomstore.ErrNoChange
			}
		}

		now := a.clock.Now().UTC()
		sc.IsCompleted = true
		sc.CompletedBy = playerUID
		sc.CompletedAt = &now

		if len(r.IncompleteSkillchecks()) == 0 && !r.AllSkillchecksCompleted {
			r.AllSkillchecksCompleted = true
			gameroom.RevealEscapeArea(r, now, a.rng)
			revealed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied {
		sc := room.SkillcheckByID(skillcheckID)
		a.publish(ctx, roomID, events.EventTypeSkillcheckCompleted, events.SkillcheckCompletedPayload{
			RoomID:       roomID,
			SkillcheckID: skillcheckID,
			CompletedBy:  sc.CompletedBy,
			CompletedAt:  *sc.CompletedAt,
			Remaining:    len(room.IncompleteSkillchecks()),
		})
		if revealed {
			a.publish(ctx, roomID, events.EventTypeEscapeAreaRevealed, events.EscapeAreaRevealedPayload{
				RoomID:       roomID,
				EscapeAreaID: room.EscapeArea.ID,
				RevealedAt:   *room.EscapeArea.RevealedAt,
				EscapeEndsAt: room.EscapeTimerStartedAt.Add(room.Settings.EscapeDuration()),
			})
		}
	}
	return room, nil
}

// run executes one arbiter operation: in-flight dedup, bounded timeout,
// conditional store write, conflict-as-no-op resolution. applied reports
// whether this call's write landed, as opposed to resolving as a no-op.
func (a *Arbiter) run(ctx context.Context, key, roomID string, patch roomstore.PatchFn) (room *models.Room, applied bool, err error) {
	a.mu.Lock()
	if a.inFlight[key] {
		a.mu.Unlock()
		return nil, false, ErrInFlight
	}
	a.inFlight[key] = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.inFlight, key)
		a.mu.Unlock()
	}()

	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	room, err = a.store.ConditionalUpdate(opCtx, roomID, patch)
	switch {
	case err == nil:
		return room, true, nil
	case errors.Is(err, roomstore.ErrNoChange):
		// Someone already made this mutation; the no-op is the success case.
		return room, false, nil
	case errors.Is(err, roomstore.ErrConflict):
		// Lost the version race repeatedly. Re-read the authoritative state
		// rather than retrying blindly.
		log.Warn().Str("op", key).Msg("conditional update conflict; re-reading room")
		room, err = a.store.Get(ctx, roomID)
		return room, false, err
	case errors.Is(err, context.DeadlineExceeded):
		// Status unknown: the write may have landed. The in-flight guard is
		// released so the idempotent patch can be safely retried.
		log.Warn().Str("op", key).Dur("timeout", a.timeout).Msg("arbiter operation timed out")
		return nil, false, err
	default:
		return nil, false, err
	}
}

func (a *Arbiter) publish(ctx context.Context, roomID string, eventType events.EventType, payload interface{}) {
	if a.publisher == nil {
		return
	}
	evt, err := events.NewEvent(roomID, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msgf("failed to build %s event", eventType)
		return
	}
	if err := a.publisher.Publish(ctx, evt); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msgf("failed to publish %s event", eventType)
	}
}

func clearLocation(p *models.Player) {
	p.Location = nil
	p.LastLocationUpdate = nil
}
