package roomstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mcdev12/manhunt/go/internal/models"
)

func testRoom(id string) *models.Room {
	return &models.Room{
		ID:      id,
		HostUID: "host",
		Status:  models.RoomStatusWaiting,
		Players: map[string]*models.Player{
			"host": {UID: "host", DisplayName: "Host", IsAlive: true, JoinedAt: time.Unix(0, 0)},
		},
		Settings:  models.Settings{KillerCount: 1, RoundMinutes: 30, HeadstartMinutes: 1, EscapeMinutes: 5, MaxPlayers: 8},
		CreatedAt: time.Unix(0, 0),
	}
}

func TestMemoryStoreGetReturnsClone(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Create(ctx, testRoom("ABC123")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, "ABC123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Players["host"].IsAlive = false

	again, err := s.Get(ctx, "ABC123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !again.Players["host"].IsAlive {
		t.Fatal("mutation of a Get snapshot leaked into the store")
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get unknown room: got %v, want ErrNotFound", err)
	}
}

func TestConditionalUpdateBumpsVersion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Create(ctx, testRoom("ABC123")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := s.ConditionalUpdate(ctx, "ABC123", func(r *models.Room) error {
		r.Status = models.RoomStatusHeadstart
		return nil
	})
	if err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
	if updated.Status != models.RoomStatusHeadstart {
		t.Errorf("Status = %s, want HEADSTART", updated.Status)
	}
}

func TestConditionalUpdateNoChange(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Create(ctx, testRoom("ABC123")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	before, _ := s.Get(ctx, "ABC123")
	got, err := s.ConditionalUpdate(ctx, "ABC123", func(r *models.Room) error {
		return ErrNoChange
	})
	if !errors.Is(err, ErrNoChange) {
		t.Fatalf("ConditionalUpdate: got %v, want ErrNoChange", err)
	}
	if diff := cmp.Diff(before, got); diff != "" {
		t.Errorf("aborted update changed the snapshot (-want +got):\n%s", diff)
	}
}

func TestConditionalUpdateRejectsBackwardStatus(t *testing.T) {
	tests := []struct {
		name string
		from models.RoomStatus
		to   models.RoomStatus
		want error
	}{
		{name: "forward step", from: models.RoomStatusWaiting, to: models.RoomStatusHeadstart, want: nil},
		{name: "same status", from: models.RoomStatusActive, to: models.RoomStatusActive, want: nil},
		{name: "backward", from: models.RoomStatusActive, to: models.RoomStatusWaiting, want: ErrIllegalTransition},
		{name: "skipped phase", from: models.RoomStatusWaiting, to: models.RoomStatusFinished, want: ErrIllegalTransition},
		{name: "out of finished", from: models.RoomStatusFinished, to: models.RoomStatusActive, want: ErrIllegalTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			ctx := context.Background()
			room := testRoom("ABC123")
			room.Status = tt.from
			if err := s.Create(ctx, room); err != nil {
				t.Fatalf("Create: %v", err)
			}

			_, err := s.ConditionalUpdate(ctx, "ABC123", func(r *models.Room) error {
				r.Status = tt.to
				return nil
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("ConditionalUpdate %s->%s: got %v, want %v", tt.from, tt.to, err, tt.want)
			}

			final, _ := s.Get(ctx, "ABC123")
			if tt.want != nil && final.Status != tt.from {
				t.Errorf("rejected transition still wrote: Status = %s", final.Status)
			}
		})
	}
}

func TestConditionalUpdateConcurrentPlayers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	room := testRoom("ABC123")
	room.Players["p2"] = &models.Player{UID: "p2", DisplayName: "Two", IsAlive: true}
	room.Players["p3"] = &models.Player{UID: "p3", DisplayName: "Three", IsAlive: true}
	if err := s.Create(ctx, room); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Two goroutines patch different players; neither write may be lost.
	var wg sync.WaitGroup
	for _, uid := range []string{"p2", "p3"} {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			_, err := s.ConditionalUpdate(ctx, "ABC123", func(r *models.Room) error {
				r.Players[uid].IsAlive = false
				return nil
			})
			if err != nil {
				t.Errorf("ConditionalUpdate(%s): %v", uid, err)
			}
		}(uid)
	}
	wg.Wait()

	final, _ := s.Get(ctx, "ABC123")
	if final.Players["p2"].IsAlive || final.Players["p3"].IsAlive {
		t.Errorf("lost update: p2 alive=%v p3 alive=%v", final.Players["p2"].IsAlive, final.Players["p3"].IsAlive)
	}
	if final.Version != 3 {
		t.Errorf("Version = %d, want 3", final.Version)
	}
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Create(ctx, testRoom("ABC123")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var (
		mu   sync.Mutex
		seen []models.RoomStatus
	)
	unsub, err := s.Subscribe("ABC123", func(r *models.Room) {
		mu.Lock()
		seen = append(seen, r.Status)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := s.ConditionalUpdate(ctx, "ABC123", func(r *models.Room) error {
		r.Status = models.RoomStatusHeadstart
		return nil
	}); err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}

	unsub()

	if _, err := s.ConditionalUpdate(ctx, "ABC123", func(r *models.Room) error {
		r.Status = models.RoomStatusActive
		return nil
	}); err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []models.RoomStatus{models.RoomStatusHeadstart}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("delivered snapshots (-want +got):\n%s", diff)
	}
}
