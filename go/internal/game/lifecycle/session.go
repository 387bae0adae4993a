package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/manhunt/go/internal/game/proximity"
	gameroom "github.com/mcdev12/manhunt/go/internal/game/room"
	"github.com/mcdev12/manhunt/go/internal/game/timer"
	"github.com/mcdev12/manhunt/go/internal/models"
	"github.com/mcdev12/manhunt/go/internal/roomstore"
	"github.com/rs/zerolog/log"
)

const (
	defaultTickInterval = time.Second
	defaultGrace        = 3 * time.Second
	graceRetryInterval  = 500 * time.Millisecond
)

// SessionConfig identifies the player a session runs for and tunes its
// cadence.
type SessionConfig struct {
	RoomID  string
	SelfUID string

	// TickInterval is the reconciliation cadence. Defaults to 1s.
	TickInterval time.Duration

	// Grace bounds how long transient store errors are tolerated before the
	// session gives up on the room. Defaults to 3s.
	Grace time.Duration

	Proximity proximity.Config
}

// SessionHandlers receives the session's outputs. All callbacks are
// optional and are invoked from the session's goroutines.
type SessionHandlers struct {
	// OnRoom fires with a fresh snapshot on every observed room change.
	OnRoom func(*models.Room)

	// OnTick fires once per tick with the recomputed countdowns.
	OnTick func(timer.Snapshot)

	// OnProximity fires with the transitions caused by a location sample.
	OnProximity func([]proximity.Event)

	// OnKicked fires once when this player's uid disappears from a room that
	// is not finished. The session stops afterward.
	OnKicked func()
}

// Session is one client's view of a room: it subscribes to room changes,
// drives the countdown ticker, raises lifecycle transitions on expiry, and
// feeds GPS samples through the proximity engine. Every client runs one;
// the store's conditional writes keep their concurrent transition attempts
// harmless.
type Session struct {
	store      roomstore.Store
	watcher    roomstore.Watcher
	controller *Controller
	rooms      *gameroom.App
	prox       *proximity.Engine
	clock      clockwork.Clock
	cfg        SessionConfig
	handlers   SessionHandlers

	mu      sync.Mutex
	current *models.Room
	kicked  bool
	cancel  context.CancelFunc
	runCtx  context.Context
}

// NewSession wires a session for one player in one room.
func NewSession(store roomstore.Store, watcher roomstore.Watcher, controller *Controller, rooms *gameroom.App, clock clockwork.Clock, cfg SessionConfig, handlers SessionHandlers) *Session {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.Grace <= 0 {
		cfg.Grace = defaultGrace
	}
	return &Session{
		store:      store,
		watcher:    watcher,
		controller: controller,
		rooms:      rooms,
		prox:       proximity.NewEngine(cfg.Proximity),
		clock:      clock,
		cfg:        cfg,
		handlers:   handlers,
	}
}

// Run blocks until ctx is cancelled, the player is kicked, or the room is
// gone past the grace window.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.runCtx = ctx
	s.mu.Unlock()

	room, err := s.loadWithGrace(ctx)
	if err != nil {
		return err
	}
	s.onSnapshot(room)

	unsubscribe, err := s.watcher.Subscribe(s.cfg.RoomID, s.onSnapshot)
	if err != nil {
		return err
	}
	defer unsubscribe()

	ticker := timer.NewTicker(s.clock, s.cfg.TickInterval)
	ticker.Run(ctx, s.Room, s.onTick, func(kind timer.ExpiryKind) {
		s.onExpiry(ctx, kind)
	})

	if s.wasKicked() {
		return nil
	}
	return ctx.Err()
}

// loadWithGrace fetches the room, tolerating transient store errors for up
// to the grace window before surfacing them.
func (s *Session) loadWithGrace(ctx context.Context) (*models.Room, error) {
	deadline := s.clock.Now().Add(s.cfg.Grace)
	for {
		room, err := s.store.Get(ctx, s.cfg.RoomID)
		if err == nil {
			return room, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !s.clock.Now().Before(deadline) {
			return nil, err
		}
		log.Warn().Err(err).Str("room_id", s.cfg.RoomID).Msg("room fetch failed, retrying within grace window")
		s.clock.Sleep(graceRetryInterval)
	}
}

// Room returns the latest observed snapshot.
func (s *Session) Room() *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Proximity exposes the session's prompt engine for UI state queries and
// dismiss/accept input.
func (s *Session) Proximity() *proximity.Engine {
	return s.prox
}

// HandleLocation records one GPS sample: it writes the player's position to
// the room and evaluates the proximity geometry against the sample.
func (s *Session) HandleLocation(ctx context.Context, loc models.Location) error {
	room, err := s.rooms.UpdateLocation(ctx, s.cfg.RoomID, s.cfg.SelfUID, loc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = room
	s.mu.Unlock()

	evts := s.prox.Update(room, s.cfg.SelfUID, loc)
	if len(evts) > 0 && s.handlers.OnProximity != nil {
		s.handlers.OnProximity(evts)
	}
	return nil
}

func (s *Session) onSnapshot(room *models.Room) {
	s.mu.Lock()
	prev := s.current
	s.current = room
	ctx := s.runCtx
	cancel := s.cancel

	kicked := false
	if room.Status != models.RoomStatusFinished &&
		prev != nil && prev.Player(s.cfg.SelfUID) != nil && room.Player(s.cfg.SelfUID) == nil {
		kicked = true
		s.kicked = true
	}
	s.mu.Unlock()

	if kicked {
		log.Info().Str("room_id", room.ID).Str("uid", s.cfg.SelfUID).Msg("removed from room")
		if s.handlers.OnKicked != nil {
			s.handlers.OnKicked()
		}
		if cancel != nil {
			cancel()
		}
		return
	}

	// A fresh waiting room means a new game on the same code; prompt memory
	// from the previous game must not leak into it.
	if room.Status == models.RoomStatusWaiting && prev != nil && prev.Status != models.RoomStatusWaiting {
		s.prox.Reset()
	}

	// Elimination and escape writes can end the game between ticks.
	if room.Status == models.RoomStatusActive && ctx != nil {
		if _, err := s.controller.EvaluateGameEnd(ctx, room.ID); err != nil {
			log.Warn().Err(err).Str("room_id", room.ID).Msg("win evaluation failed")
		}
	}

	if s.handlers.OnRoom != nil {
		s.handlers.OnRoom(room)
	}
}

func (s *Session) onTick(snap timer.Snapshot) {
	if s.handlers.OnTick != nil {
		s.handlers.OnTick(snap)
	}
}

func (s *Session) onExpiry(ctx context.Context, kind timer.ExpiryKind) {
	var err error
	switch kind {
	case timer.ExpiryHeadstart:
		_, err = s.controller.AdvanceHeadstart(ctx, s.cfg.RoomID)
	case timer.ExpiryRound:
		_, err = s.controller.HandleRoundExpiry(ctx, s.cfg.RoomID)
	case timer.ExpiryEscape:
		_, err = s.controller.HandleEscapeExpiry(ctx, s.cfg.RoomID)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Str("room_id", s.cfg.RoomID).Stringer("timer", kind).Msg("expiry handling failed")
	}
}

func (s *Session) wasKicked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kicked
}
