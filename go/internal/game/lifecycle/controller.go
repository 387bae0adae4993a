// Package lifecycle implements the room state machine: waiting → headstart
// → active → finished, win-condition evaluation, and the escape sub-phase.
// Every transition is a conditional idempotent patch, so any number of
// clients may drive the same transition concurrently and only the first
// writer has an effect.
package lifecycle

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/manhunt/go/internal/events"
	gameroom "github.com/mcdev12/manhunt/go/internal/game/room"
	"github.com/mcdev12/manhunt/go/internal/game/timer"
	"github.com/mcdev12/manhunt/go/internal/models"
	"github.com/mcdev12/manhunt/go/internal/roomstore"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotHost indicates a host-only operation from a non-host player.
	ErrNotHost = errors.New("only the host may do that")

	// ErrNotEnoughPlayers indicates the room cannot field at least one
	// killer and one survivor.
	ErrNotEnoughPlayers = errors.New("not enough players to start")

	// ErrNotFinished indicates an archive attempt on a room whose game is
	// still running.
	ErrNotFinished = errors.New("room is not finished")
)

// Policy holds the configurable win-condition knobs. The survivor win
// threshold when timers expire is a policy value, not a rule.
type Policy struct {
	// SurvivorWinFraction is the minimum fraction of the survivor pool that
	// must end the game safe (escaped, or still alive at round expiry with
	// objectives done) for survivors to win. 1.0 requires everyone.
	//
	// The denominator is always the full survivor pool, so every
	// elimination counts against the quota: at 1.0, one eliminated
	// survivor hands killers the win even if everyone else escapes. Lower
	// the fraction to let a partial escape carry the team.
	SurvivorWinFraction float64
}

// DefaultPolicy requires the full survivor pool.
func DefaultPolicy() Policy {
	return Policy{SurvivorWinFraction: 1.0}
}

// ResultStore persists the write-once post-game snapshot.
type ResultStore interface {
	SaveResult(ctx context.Context, result *models.GameResult) error
}

// Controller drives room lifecycle transitions through the store.
type Controller struct {
	store     roomstore.Store
	results   ResultStore      // optional
	publisher events.Publisher // optional
	clock     clockwork.Clock
	rng       *rand.Rand
	policy    Policy
}

// NewController creates a lifecycle controller. results and publisher may
// be nil.
func NewController(store roomstore.Store, results ResultStore, publisher events.Publisher, clock clockwork.Clock, rng *rand.Rand, policy Policy) *Controller {
	if policy.SurvivorWinFraction <= 0 {
		policy = DefaultPolicy()
	}
	return &Controller{
		store:     store,
		results:   results,
		publisher: publisher,
		clock:     clock,
		rng:       rng,
		policy:    policy,
	}
}

// StartGame moves a waiting room into headstart. Roles are assigned
// atomically with the transition and are stable afterward. Re-invoking on
// an already started room is a no-op.
func (c *Controller) StartGame(ctx context.Context, roomID, hostUID string) (*models.Room, error) {
	room, err := c.store.ConditionalUpdate(ctx, roomID, func(r *models.Room) error {
		if r.Status != models.RoomStatusWaiting {
			return roomstore.ErrNoChange
		}
		if r.HostUID != hostUID {
			return ErrNotHost
		}
		if len(r.Players) < r.Settings.KillerCount+1 {
			return ErrNotEnoughPlayers
		}

		c.assignRoles(r)
		now := c.clock.Now().UTC()
		r.HeadstartStartedAt = &now
		r.Status = models.RoomStatusHeadstart
		return nil
	})
	if errors.Is(err, roomstore.ErrNoChange) {
		return room, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", roomID).
		Int("players", len(room.Players)).
		Int("killers", len(room.Killers())).
		Msg("game started")
	c.publish(ctx, roomID, events.EventTypeGameStarted, events.GameStartedPayload{
		RoomID:             roomID,
		HeadstartStartedAt: *room.HeadstartStartedAt,
		HeadstartEndsAt:    room.HeadstartStartedAt.Add(room.Settings.HeadstartDuration()),
		PlayerCount:        len(room.Players),
	})
	return room, nil
}

// assignRoles deals KillerCount killers from a seeded shuffle over the
// sorted uid list; everyone else is a survivor. Sorting first keeps the
// deal a pure function of the rng state.
func (c *Controller) assignRoles(r *models.Room) {
	uids := make([]string, 0, len(r.Players))
	for uid := range r.Players {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	c.rng.Shuffle(len(uids), func(i, j int) { uids[i], uids[j] = uids[j], uids[i] })

	for i, uid := range uids {
		p := r.Players[uid]
		if i < r.Settings.KillerCount {
			p.Role = models.RoleKiller
		} else {
			p.Role = models.RoleSurvivor
		}
		p.IsAlive = true
		p.HasEscaped = false
	}
}

// AdvanceHeadstart promotes headstart to active once the headstart window
// has elapsed. The round start timestamp is derived from the stored
// headstart timestamp, not from whichever client's wall clock noticed the
// expiry first; every client therefore agrees on the round deadline to the
// millisecond.
func (c *Controller) AdvanceHeadstart(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := c.store.ConditionalUpdate(ctx, roomID, func(r *models.Room) error {
		if r.Status != models.RoomStatusHeadstart || r.HeadstartStartedAt == nil {
			return roomstore.ErrNoChange
		}
		due := r.HeadstartStartedAt.Add(r.Settings.HeadstartDuration())
		if c.clock.Now().Before(due) {
			return roomstore.ErrNoChange
		}
		r.GameStartedAt = &due
		r.Status = models.RoomStatusActive
		return nil
	})
	if errors.Is(err, roomstore.ErrNoChange) {
		return room, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("room_id", roomID).Time("game_started_at", *room.GameStartedAt).Msg("round started")
	c.publish(ctx, roomID, events.EventTypeRoundStarted, events.RoundStartedPayload{
		RoomID:        roomID,
		GameStartedAt: *room.GameStartedAt,
		RoundEndsAt:   room.GameStartedAt.Add(room.Settings.RoundDuration()),
	})
	return room, nil
}

// HandleRoundExpiry reacts to the round timer reaching zero. With
// incomplete skillchecks still on the board it opens the escape sub-phase
// as a last chance; otherwise the round expiry itself ends the game.
func (c *Controller) HandleRoundExpiry(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := c.store.ConditionalUpdate(ctx, roomID, func(r *models.Room) error {
		if r.Status != models.RoomStatusActive || r.GameStartedAt == nil {
			return roomstore.ErrNoChange
		}
		if timer.Remaining(r, c.clock.Now()).Round > 0 {
			return roomstore.ErrNoChange
		}
		if !r.Settings.SkillchecksEnabled() || r.AllSkillchecksCompleted || r.EscapeRevealed() {
			// Nothing left to reveal; the game-end evaluation decides.
			return roomstore.ErrNoChange
		}
		gameroom.RevealEscapeArea(r, c.clock.Now(), c.rng)
		return nil
	})
	if err != nil && !errors.Is(err, roomstore.ErrNoChange) {
		return nil, err
	}

	if err == nil && room.EscapeRevealed() {
		c.publish(ctx, roomID, events.EventTypeEscapeAreaRevealed, events.EscapeAreaRevealedPayload{
			RoomID:       roomID,
			EscapeAreaID: room.EscapeArea.ID,
			RevealedAt:   *room.EscapeArea.RevealedAt,
			EscapeEndsAt: room.EscapeTimerStartedAt.Add(room.Settings.EscapeDuration()),
		})
	}
	return c.EvaluateGameEnd(ctx, roomID)
}

// HandleEscapeExpiry eliminates every survivor who failed to escape before
// the escape window closed, then runs the game-end evaluation.
func (c *Controller) HandleEscapeExpiry(ctx context.Context, roomID string) (*models.Room, error) {
	_, err := c.store.ConditionalUpdate(ctx, roomID, func(r *models.Room) error {
		if r.Status != models.RoomStatusActive || r.EscapeTimerStartedAt == nil {
			return roomstore.ErrNoChange
		}
		if timer.Remaining(r, c.clock.Now()).Escape > 0 {
			return roomstore.ErrNoChange
		}

		now := c.clock.Now().UTC()
		changed := false
		for _, p := range r.Players {
			if p.IsLivingSurvivor() {
				p.IsAlive = false
				p.EliminatedAt = &now
				p.Location = nil
				p.LastLocationUpdate = nil
				changed = true
			}
		}
		if !changed {
			return roomstore.ErrNoChange
		}
		return nil
	})
	if err != nil && !errors.Is(err, roomstore.ErrNoChange) {
		return nil, err
	}
	return c.EvaluateGameEnd(ctx, roomID)
}

// EvaluateGameEnd runs the win-condition check. It is safe to invoke many
// times per second from many clients: a finished room short-circuits, and
// only the first conditional writer flips the status and persists the
// result.
func (c *Controller) EvaluateGameEnd(ctx context.Context, roomID string) (*models.Room, error) {
	var winner models.Winner
	room, err := c.store.ConditionalUpdate(ctx, roomID, func(r *models.Room) error {
		if r.Status != models.RoomStatusActive {
			return roomstore.ErrNoChange
		}
		w, ended := c.decide(r, c.clock.Now())
		if !ended {
			return roomstore.ErrNoChange
		}
		winner = w
		now := c.clock.Now().UTC()
		r.GameEndedAt = &now
		r.Status = models.RoomStatusFinished
		for _, p := range r.Players {
			p.Location = nil
			p.LastLocationUpdate = nil
		}
		return nil
	})
	if errors.Is(err, roomstore.ErrNoChange) {
		return room, nil
	}
	if err != nil {
		return nil, err
	}

	// We won the finish race; produce the result snapshot synchronously.
	result := BuildResult(room, winner)
	if c.results != nil {
		if err := c.results.SaveResult(ctx, result); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to persist game result")
		}
	}
	log.Info().
		Str("room_id", roomID).
		Str("winners", string(winner)).
		Int("eliminations", len(result.Eliminations)).
		Msg("game ended")
	c.publish(ctx, roomID, events.EventTypeGameEnded, events.GameEndedPayload{
		RoomID:  roomID,
		Winners: string(winner),
		EndedAt: *room.GameEndedAt,
	})
	return room, nil
}

// ArchiveRoom destroys a finished room. The result snapshot persisted at
// game end stays the durable record; the room document is only kept so
// late readers can render the final state, and the host discards it when
// the group is done. Archiving an already-deleted room is a no-op.
func (c *Controller) ArchiveRoom(ctx context.Context, roomID, hostUID string) error {
	room, err := c.store.Get(ctx, roomID)
	if errors.Is(err, roomstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if room.HostUID != hostUID {
		return ErrNotHost
	}
	if room.Status != models.RoomStatusFinished {
		return ErrNotFinished
	}
	if err := c.store.Delete(ctx, roomID); err != nil && !errors.Is(err, roomstore.ErrNotFound) {
		return err
	}
	log.Info().Str("room_id", roomID).Msg("room archived")
	return nil
}

// decide applies the win conditions to the room at the given instant.
func (c *Controller) decide(r *models.Room, now time.Time) (models.Winner, bool) {
	survivors := r.Survivors()
	total := len(survivors)
	if total == 0 {
		return "", false
	}

	escaped, living := 0, 0
	for _, p := range survivors {
		switch {
		case p.HasEscaped:
			escaped++
		case p.IsAlive:
			living++
		}
	}

	// Every survivor reached a terminal state.
	if living == 0 {
		if c.fractionMet(escaped, total) {
			return models.WinnerSurvivors, true
		}
		return models.WinnerKillers, true
	}

	snap := timer.Remaining(r, now)
	roundExpired := snap.RoundStarted && snap.Round == 0

	// Round over with the objectives done (or never enabled): survivors
	// standing at the buzzer count as safe.
	if roundExpired && (!r.Settings.SkillchecksEnabled() || r.AllSkillchecksCompleted) {
		if c.fractionMet(escaped+living, total) {
			return models.WinnerSurvivors, true
		}
		return models.WinnerKillers, true
	}

	return "", false
}

func (c *Controller) fractionMet(safe, total int) bool {
	if safe == 0 {
		return false
	}
	return float64(safe)/float64(total) >= c.policy.SurvivorWinFraction
}

// BuildResult assembles the immutable post-game snapshot from a finished
// room, with eliminations in chronological order.
func BuildResult(room *models.Room, winner models.Winner) *models.GameResult {
	var elims []models.Elimination
	for _, p := range room.Players {
		if p.IsAlive || p.EliminatedAt == nil {
			continue
		}
		elims = append(elims, models.Elimination{
			PlayerUID:    p.UID,
			DisplayName:  p.DisplayName,
			EliminatedBy: p.EliminatedBy,
			EliminatedAt: *p.EliminatedAt,
		})
	}
	sort.Slice(elims, func(i, j int) bool {
		if elims[i].EliminatedAt.Equal(elims[j].EliminatedAt) {
			return elims[i].PlayerUID < elims[j].PlayerUID
		}
		return elims[i].EliminatedAt.Before(elims[j].EliminatedAt)
	})
	for i := range elims {
		elims[i].Order = i + 1
	}

	players := make(map[string]*models.Player, len(room.Players))
	for uid, p := range room.Players {
		cp := *p
		players[uid] = &cp
	}

	result := &models.GameResult{
		RoomID:       room.ID,
		Winners:      winner,
		Eliminations: elims,
		Players:      players,
	}
	if room.GameStartedAt != nil {
		result.StartedAt = *room.GameStartedAt
	}
	if room.GameEndedAt != nil {
		result.EndedAt = *room.GameEndedAt
	}
	return result
}

func (c *Controller) publish(ctx context.Context, roomID string, eventType events.EventType, payload interface{}) {
	if c.publisher == nil {
		return
	}
	evt, err := events.NewEvent(roomID, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msgf("failed to build %s event", eventType)
		return
	}
	if err := c.publisher.Publish(ctx, evt); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msgf("failed to publish %s event", eventType)
	}
}
