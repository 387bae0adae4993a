// Package room implements room membership operations: creation, joining,
// leaving, kicks, and location updates. Game-phase mutations live in the
// arbiter and lifecycle packages.
package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/manhunt/go/internal/events"
	"github.com/mcdev12/manhunt/go/internal/models"
	"github.com/mcdev12/manhunt/go/internal/roomstore"
	"github.com/rs/zerolog/log"
)

var (
	// ErrRoomFull indicates the room is at its player cap.
	ErrRoomFull = errors.New("room is full")

	// ErrAlreadyJoined indicates the uid is already in the room.
	ErrAlreadyJoined = errors.New("player already joined")

	// ErrGameInProgress indicates a join attempt after the game left the
	// waiting phase.
	ErrGameInProgress = errors.New("game already in progress")

	// ErrNotHost indicates a host-only operation from a non-host uid.
	ErrNotHost = errors.New("only the host may do that")

	// ErrInvalidSettings indicates out-of-range room settings.
	ErrInvalidSettings = errors.New("invalid room settings")
)

// JoinRequest carries the identity of a joining player.
type JoinRequest struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// maxCodeAttempts bounds code regeneration on insert collisions. The code
// space holds ~10^9 combinations, so hitting this means the store is
// misbehaving, not that the codes ran out.
const maxCodeAttempts = 10

// App handles room membership logic over the store.
type App struct {
	store     roomstore.Store
	publisher events.Publisher // optional
	clock     clockwork.Clock
	rng       *rand.Rand
}

// NewApp creates a room App. publisher may be nil for offline play.
func NewApp(store roomstore.Store, publisher events.Publisher, clock clockwork.Clock, rng *rand.Rand) *App {
	return &App{store: store, publisher: publisher, clock: clock, rng: rng}
}

// CreateRoom creates a room with a fresh code, joins the host as its first
// player, and scatters skillchecks around the host's location if enabled.
func (a *App) CreateRoom(ctx context.Context, host JoinRequest, settings models.Settings, hostLocation models.Location) (*models.Room, error) {
	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	now := a.clock.Now().UTC()
	room := &models.Room{
		HostUID: host.UID,
		Status:  models.RoomStatusWaiting,
		Players: map[string]*models.Player{
			host.UID: {
				UID:         host.UID,
				DisplayName: host.DisplayName,
				AvatarURL:   host.AvatarURL,
				IsAlive:     true,
				JoinedAt:    now,
			},
		},
		Settings:    settings,
		Skillchecks: ScatterSkillchecks(hostLocation, settings, a.rng),
		CreatedAt:   now,
	}

	// Room codes can collide; only a duplicate-id insert warrants a fresh
	// code. Any other store failure surfaces immediately.
	inserted := false
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		room.ID = GenerateCode()
		err := a.store.Create(ctx, room)
		if err == nil {
			inserted = true
			break
		}
		if !errors.Is(err, roomstore.ErrAlreadyExists) {
			return nil, err
		}
		log.Debug().Str("room_id", room.ID).Msg("room code collision, regenerating")
	}
	if !inserted {
		return nil, fmt.Errorf("no unused room code after %d attempts", maxCodeAttempts)
	}

	log.Info().
		Str("room_id", room.ID).
		Str("host_uid", host.UID).
		Int("skillchecks", len(room.Skillchecks)).
		Msg("room created")
	return a.store.Get(ctx, room.ID)
}

// JoinRoom adds a player to a waiting room.
func (a *App) JoinRoom(ctx context.Context, roomID string, req JoinRequest) (*models.Room, error) {
	return a.store.ConditionalUpdate(ctx, roomID, func(r *models.Room) error {
		if r.Status != models.RoomStatusWaiting {
			return ErrGameInProgress
		}
		if _, ok := r.Players[req.UID]; ok {
			return ErrAlreadyJoined
		}
		if len(r.Players) >= r.Settings.MaxPlayers {
			return ErrRoomFull
		}
		r.Players[req.UID] = &models.Player{
			UID:         req.UID,
			DisplayName: req.DisplayName,
			AvatarURL:   req.AvatarURL,
			IsAlive:     true,
			JoinedAt:    a.clock.Now().UTC(),
		}
		return nil
	})
}

// LeaveRoom removes the calling player from the room.
func (a *App) LeaveRoom(ctx context.Context, roomID, uid string) (*models.Room, error) {
	return a.removePlayer(ctx, roomID, uid)
}

// KickPlayer removes a player on behalf of the host. The kicked client
// detects its own removal from the player map and ends participation; the
// gateway additionally pushes the PlayerKicked event straight to that
// player's connections.
func (a *App) KickPlayer(ctx context.Context, roomID, hostUID, targetUID string) (*models.Room, error) {
	room, err := a.store.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostUID != hostUID {
		return nil, ErrNotHost
	}
	_, present := room.Players[targetUID]
	updated, err := a.removePlayer(ctx, roomID, targetUID)
	if err != nil {
		return nil, err
	}
	if present {
		log.Info().
			Str("room_id", roomID).
			Str("player_uid", targetUID).
			Msg("player kicked")
		a.publish(ctx, roomID, events.EventTypePlayerKicked, events.PlayerKickedPayload{
			RoomID:    roomID,
			PlayerUID: targetUID,
			KickedAt:  a.clock.Now().UTC(),
		})
	}
	return updated, nil
}

// UpdateLocation records the player's most recent GPS sample. Last write
// wins per player; samples only matter for living players during the
// headstart and active phases, and are quietly dropped otherwise.
func (a *App) UpdateLocation(ctx context.Context, roomID, uid string, loc models.Location) (*models.Room, error) {
	return noChangeOK(a.store.ConditionalUpdate(ctx, roomID, func(r *models.Room) error {
		if r.Status != models.RoomStatusHeadstart && r.Status != models.RoomStatusActive {
			return roomstore.ErrNoChange
		}
		p := r.Player(uid)
		if p == nil || p.IsTerminal() {
			return roomstore.ErrNoChange
		}
		now := a.clock.Now().UTC()
		p.Location = &loc
		p.LastLocationUpdate = &now
		return nil
	}))
}

func (a *App) removePlayer(ctx context.Context, roomID, uid string) (*models.Room, error) {
	return noChangeOK(a.store.ConditionalUpdate(ctx, roomID, func(r *models.Room) error {
		if _, ok := r.Players[uid]; !ok {
			return roomstore.ErrNoChange
		}
		delete(r.Players, uid)
		return nil
	}))
}

func (a *App) publish(ctx context.Context, roomID string, eventType events.EventType, payload interface{}) {
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

// noChangeOK converts the store's no-change signal into plain success.
func noChangeOK(room *models.Room, err error) (*models.Room, error) {
	if errors.Is(err, roomstore.ErrNoChange) {
		return room, nil
	}
	return room, err
}

func validateSettings(s models.Settings) error {
	switch {
	case s.KillerCount < 1:
		return fmt.Errorf("%w: killer count must be at least 1", ErrInvalidSettings)
	case s.RoundMinutes < 1:
		return fmt.Errorf("%w: round length must be at least 1 minute", ErrInvalidSettings)
	case s.HeadstartMinutes < 0:
		return fmt.Errorf("%w: headstart cannot be negative", ErrInvalidSettings)
	case s.EscapeMinutes < 1:
		return fmt.Errorf("%w: escape window must be at least 1 minute", ErrInvalidSettings)
	case s.MaxPlayers <= s.KillerCount:
		return fmt.Errorf("%w: max players must exceed killer count", ErrInvalidSettings)
	}
	if s.Skillchecks != nil {
		if s.Skillchecks.Count < 0 || s.Skillchecks.SearchRadiusM <= 0 {
			return fmt.Errorf("%w: bad skillcheck config", ErrInvalidSettings)
		}
	}
	return nil
}
