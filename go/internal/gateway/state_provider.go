package gateway

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/manhunt/go/internal/game/timer"
	"github.com/mcdev12/manhunt/go/internal/models"
	"github.com/mcdev12/manhunt/go/internal/roomstore"
)

// StateProvider retrieves room state for the REST surface.
type StateProvider interface {
	GetRoomState(ctx context.Context, roomID string) (*RoomStateResponse, error)
	GetRoomResult(ctx context.Context, roomID string) (*models.GameResult, error)
}

// ResultGetter is the slice of the results repository the gateway needs.
type ResultGetter interface {
	GetResult(ctx context.Context, roomID string) (*models.GameResult, error)
}

// TimerState carries server-computed countdowns. Clients rejoining after a
// disconnect trust these over anything they accumulated locally.
type TimerState struct {
	HeadstartRemainingSec *int `json:"headstart_remaining_sec,omitempty"`
	RoundRemainingSec     *int `json:"round_remaining_sec,omitempty"`
	EscapeRemainingSec    *int `json:"escape_remaining_sec,omitempty"`
}

// RoomStateResponse is the full sync snapshot for one room.
type RoomStateResponse struct {
	Room       *models.Room `json:"room"`
	Timers     TimerState   `json:"timers"`
	ServerTime time.Time    `json:"server_time"`
}

// RoomStateProvider serves state from the room store, deriving countdowns
// from the room's absolute timestamps against the server clock.
type RoomStateProvider struct {
	store   roomstore.Store
	results ResultGetter
	clock   clockwork.Clock
}

// NewRoomStateProvider creates a state provider. results may be nil when no
// results database is configured.
func NewRoomStateProvider(store roomstore.Store, results ResultGetter, clock clockwork.Clock) *RoomStateProvider {
	return &RoomStateProvider{store: store, results: results, clock: clock}
}

// GetRoomState loads the room and computes its countdowns server-side.
func (p *RoomStateProvider) GetRoomState(ctx context.Context, roomID string) (*RoomStateResponse, error) {
	room, err := p.store.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now()
	snap := timer.Remaining(room, now)
	resp := &RoomStateResponse{
		Room:       room,
		ServerTime: now.UTC(),
	}
	if snap.HeadstartStarted {
		resp.Timers.HeadstartRemainingSec = seconds(snap.Headstart)
	}
	if snap.RoundStarted {
		resp.Timers.RoundRemainingSec = seconds(snap.Round)
	}
	if snap.EscapeStarted {
		resp.Timers.EscapeRemainingSec = seconds(snap.Escape)
	}
	return resp, nil
}

// GetRoomResult loads the persisted post-game snapshot.
func (p *RoomStateProvider) GetRoomResult(ctx context.Context, roomID string) (*models.GameResult, error) {
	if p.results == nil {
		return nil, roomstore.ErrNotFound
	}
	return p.results.GetResult(ctx, roomID)
}

func seconds(d time.Duration) *int {
	s := int(d / time.Second)
	return &s
}
