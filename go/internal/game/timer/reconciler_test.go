package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/manhunt/go/internal/models"
)

func roomAt(headstart, game, escape *time.Time) *models.Room {
	return &models.Room{
		ID:                   "ABC123",
		Status:               models.RoomStatusActive,
		Settings:             models.Settings{HeadstartMinutes: 1, RoundMinutes: 30, EscapeMinutes: 5},
		HeadstartStartedAt:   headstart,
		GameStartedAt:        game,
		EscapeTimerStartedAt: escape,
	}
}

func TestRemainingBeforeAnyPhase(t *testing.T) {
	snap := Remaining(roomAt(nil, nil, nil), time.Unix(1000, 0))
	if snap.HeadstartStarted || snap.RoundStarted || snap.EscapeStarted {
		t.Errorf("no phase started, got %+v", snap)
	}
}

func TestRemainingMidPhase(t *testing.T) {
	start := time.Unix(1000, 0)
	snap := Remaining(roomAt(&start, nil, nil), start.Add(20*time.Second))
	if snap.Headstart != 40*time.Second {
		t.Errorf("Headstart = %v, want 40s", snap.Headstart)
	}
}

func TestRemainingExactlyZeroAtExpiry(t *testing.T) {
	start := time.Unix(1000, 0)
	snap := Remaining(roomAt(&start, nil, nil), start.Add(time.Minute))
	if snap.Headstart != 0 {
		t.Errorf("Headstart at exact expiry = %v, want 0", snap.Headstart)
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	start := time.Unix(1000, 0)
	snap := Remaining(roomAt(&start, &start, &start), start.Add(2*time.Hour))
	if snap.Headstart != 0 || snap.Round != 0 || snap.Escape != 0 {
		t.Errorf("long after expiry, got %+v", snap)
	}
}

func TestRemainingMonotone(t *testing.T) {
	start := time.Unix(1000, 0)
	room := roomAt(&start, &start, nil)

	prev := Remaining(room, start)
	for i := 1; i <= 200; i++ {
		now := start.Add(time.Duration(i) * 17 * time.Second)
		cur := Remaining(room, now)
		if cur.Headstart > prev.Headstart || cur.Round > prev.Round {
			t.Fatalf("remaining increased between ticks: prev=%+v cur=%+v", prev, cur)
		}
		prev = cur
	}
}

func TestTickerRaisesExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	start := clock.Now()
	room := roomAt(&start, nil, nil)
	room.Status = models.RoomStatusHeadstart

	var (
		mu       sync.Mutex
		expiries []ExpiryKind
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tick := NewTicker(clock, time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tick.Run(ctx, func() *models.Room { return room },
			nil,
			func(k ExpiryKind) {
				mu.Lock()
				expiries = append(expiries, k)
				mu.Unlock()
			})
	}()

	// 30s in: headstart still running, no expiry.
	for i := 0; i < 30; i++ {
		clock.BlockUntilContext(ctx, 1)
		clock.Advance(time.Second)
	}
	mu.Lock()
	if len(expiries) != 0 {
		t.Fatalf("expiry raised %v before the headstart ended", expiries)
	}
	mu.Unlock()

	// Cross the 60s mark; expiry must be raised on the next tick.
	for i := 0; i < 31; i++ {
		clock.BlockUntilContext(ctx, 1)
		clock.Advance(time.Second)
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(expiries) == 0 {
		t.Fatal("no expiry raised after the headstart ended")
	}
	for _, k := range expiries {
		if k != ExpiryHeadstart {
			t.Errorf("unexpected expiry kind %v", k)
		}
	}
}
