package timer

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/manhunt/go/internal/models"
)

// ExpiryKind identifies which phase timer reached zero.
type ExpiryKind int

const (
	ExpiryHeadstart ExpiryKind = iota
	ExpiryRound
	ExpiryEscape
)

func (k ExpiryKind) String() string {
	switch k {
	case ExpiryHeadstart:
		return "headstart"
	case ExpiryRound:
		return "round"
	case ExpiryEscape:
		return "escape"
	default:
		return "unknown"
	}
}

// Ticker re-evaluates the reconciler on a fixed cadence, independent of
// network latency. It only detects expiry; acting on it is the lifecycle
// controller's job, and the controller's handlers are idempotent, so an
// expired timer is re-raised on every tick until the authoritative state
// moves on.
type Ticker struct {
	clock    clockwork.Clock
	interval time.Duration
}

// NewTicker creates a ticker on the given clock. A 1s interval is the
// normal cadence.
func NewTicker(clock clockwork.Clock, interval time.Duration) *Ticker {
	return &Ticker{clock: clock, interval: interval}
}

// Run loops until ctx is cancelled. Each tick it reads the latest room
// snapshot, recomputes the countdowns, reports them via onTick, and raises
// onExpiry for every started timer that has reached zero while the room is
// still in the phase that timer governs.
func (t *Ticker) Run(ctx context.Context, room func() *models.Room, onTick func(Snapshot), onExpiry func(ExpiryKind)) {
	timer := t.clock.NewTimer(t.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
		}
		timer.Reset(t.interval)

		r := room()
		if r == nil {
			continue
		}
		snap := Remaining(r, t.clock.Now())
		if onTick != nil {
			onTick(snap)
		}
		if onExpiry == nil {
			continue
		}
		if r.Status == models.RoomStatusHeadstart && snap.HeadstartStarted && snap.Headstart == 0 {
			onExpiry(ExpiryHeadstart)
		}
		if r.Status == models.RoomStatusActive && snap.RoundStarted && snap.Round == 0 {
			onExpiry(ExpiryRound)
		}
		if r.Status == models.RoomStatusActive && snap.EscapeStarted && snap.Escape == 0 {
			onExpiry(ExpiryEscape)
		}
	}
}
