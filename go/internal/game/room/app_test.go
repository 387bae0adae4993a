package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/manhunt/go/internal/events"
	"github.com/mcdev12/manhunt/go/internal/geo"
	"github.com/mcdev12/manhunt/go/internal/models"
	"github.com/mcdev12/manhunt/go/internal/roomstore"
)

var hostLoc = models.Location{Lat: 52.52, Lng: 13.405}

func defaultSettings() models.Settings {
	return models.Settings{
		KillerCount:      1,
		RoundMinutes:     30,
		HeadstartMinutes: 1,
		EscapeMinutes:    5,
		MaxPlayers:       3,
		Skillchecks:      &models.SkillcheckSettings{Count: 3, SearchRadiusM: 500},
	}
}

func newApp() (*App, *roomstore.MemoryStore) {
	store := roomstore.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Unix(5000, 0))
	return NewApp(store, nil, clock, rand.New(rand.NewSource(1))), store
}

func TestCreateRoom(t *testing.T) {
	app, _ := newApp()
	ctx := context.Background()

	room, err := app.CreateRoom(ctx, JoinRequest{UID: "host", DisplayName: "Host"}, defaultSettings(), hostLoc)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	if !regexp.MustCompile(`^[A-Z2-9]{6}$`).MatchString(room.ID) {
		t.Errorf("room code %q not a 6-char code", room.ID)
	}
	if room.Status != models.RoomStatusWaiting {
		t.Errorf("Status = %s, want WAITING", room.Status)
	}
	if room.Player("host") == nil {
		t.Error("host not joined at creation")
	}
	if len(room.Skillchecks) != 3 {
		t.Fatalf("skillchecks = %d, want 3", len(room.Skillchecks))
	}
	for i, sc := range room.Skillchecks {
		d := geo.Distance(hostLoc, sc.Location)
		if d > 500 {
			t.Errorf("skillcheck %d placed %.0fm out, beyond the 500m search radius", i, d)
		}
		if sc.IsCompleted {
			t.Errorf("skillcheck %d created completed", i)
		}
	}
}

func TestCreateRoomRejectsBadSettings(t *testing.T) {
	app, _ := newApp()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.Settings)
	}{
		{"zero killers", func(s *models.Settings) { s.KillerCount = 0 }},
		{"zero round", func(s *models.Settings) { s.RoundMinutes = 0 }},
		{"negative headstart", func(s *models.Settings) { s.HeadstartMinutes = -1 }},
		{"cap below killers", func(s *models.Settings) { s.MaxPlayers = 1 }},
		{"bad search radius", func(s *models.Settings) { s.Skillchecks.SearchRadiusM = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := defaultSettings()
			sc := *s.Skillchecks
			s.Skillchecks = &sc
			tt.mutate(&s)
			if _, err := app.CreateRoom(ctx, JoinRequest{UID: "host"}, s, hostLoc); !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("got %v, want ErrInvalidSettings", err)
			}
		})
	}
}

func TestJoinRoom(t *testing.T) {
	app, _ := newApp()
	ctx := context.Background()
	room, _ := app.CreateRoom(ctx, JoinRequest{UID: "host"}, defaultSettings(), hostLoc)

	got, err := app.JoinRoom(ctx, room.ID, JoinRequest{UID: "p2", DisplayName: "Two"})
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if got.Player("p2") == nil {
		t.Fatal("p2 missing after join")
	}
	if !got.Player("p2").IsAlive {
		t.Error("joined player not alive")
	}

	if _, err := app.JoinRoom(ctx, room.ID, JoinRequest{UID: "p2"}); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("duplicate join: got %v, want ErrAlreadyJoined", err)
	}

	if _, err := app.JoinRoom(ctx, room.ID, JoinRequest{UID: "p3"}); err != nil {
		t.Fatalf("JoinRoom p3: %v", err)
	}
	if _, err := app.JoinRoom(ctx, room.ID, JoinRequest{UID: "p4"}); !errors.Is(err, ErrRoomFull) {
		t.Errorf("join past cap: got %v, want ErrRoomFull", err)
	}
}

func TestJoinRejectedAfterWaiting(t *testing.T) {
	app, store := newApp()
	ctx := context.Background()
	room, _ := app.CreateRoom(ctx, JoinRequest{UID: "host"}, defaultSettings(), hostLoc)

	if _, err := store.ConditionalUpdate(ctx, room.ID, func(r *models.Room) error {
		r.Status = models.RoomStatusHeadstart
		return nil
	}); err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}

	if _, err := app.JoinRoom(ctx, room.ID, JoinRequest{UID: "late"}); !errors.Is(err, ErrGameInProgress) {
		t.Errorf("late join: got %v, want ErrGameInProgress", err)
	}
}

func TestKickPlayer(t *testing.T) {
	app, _ := newApp()
	ctx := context.Background()
	room, _ := app.CreateRoom(ctx, JoinRequest{UID: "host"}, defaultSettings(), hostLoc)
	if _, err := app.JoinRoom(ctx, room.ID, JoinRequest{UID: "p2"}); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	if _, err := app.KickPlayer(ctx, room.ID, "p2", "host"); !errors.Is(err, ErrNotHost) {
		t.Errorf("non-host kick: got %v, want ErrNotHost", err)
	}

	got, err := app.KickPlayer(ctx, room.ID, "host", "p2")
	if err != nil {
		t.Fatalf("KickPlayer: %v", err)
	}
	if got.Player("p2") != nil {
		t.Error("p2 still present after kick")
	}
}

func TestUpdateLocation(t *testing.T) {
	app, store := newApp()
	ctx := context.Background()
	room, _ := app.CreateRoom(ctx, JoinRequest{UID: "host"}, defaultSettings(), hostLoc)

	// Waiting phase: samples ignored.
	got, err := app.UpdateLocation(ctx, room.ID, "host", hostLoc)
	if err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	if got.Player("host").Location != nil {
		t.Error("location recorded during waiting phase")
	}

	if _, err := store.ConditionalUpdate(ctx, room.ID, func(r *models.Room) error {
		r.Status = models.RoomStatusHeadstart
		return nil
	}); err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}

	loc2 := geo.Destination(hostLoc, 100, 90)
	got, err = app.UpdateLocation(ctx, room.ID, "host", loc2)
	if err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	p := got.Player("host")
	if p.Location == nil || p.Location.Lng != loc2.Lng {
		t.Fatalf("Location = %+v, want %+v", p.Location, loc2)
	}
	if p.LastLocationUpdate == nil {
		t.Error("LastLocationUpdate not set")
	}
}

func TestGenerateCodeShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := GenerateCode()
		if len(code) != 6 {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		for _, c := range code {
			if c == '0' || c == 'O' || c == '1' || c == 'I' || c == 'L' {
				t.Fatalf("code %q contains ambiguous character %q", code, c)
			}
		}
		seen[code] = true
	}
	if len(seen) < 95 {
		t.Errorf("only %d distinct codes in 100 draws", len(seen))
	}
}

func TestScatterSkillchecksDisabled(t *testing.T) {
	s := defaultSettings()
	s.Skillchecks = nil
	if got := ScatterSkillchecks(hostLoc, s, rand.New(rand.NewSource(1))); got != nil {
		t.Errorf("skillchecks scattered with feature disabled: %v", got)
	}
}

func TestRevealEscapeAreaExactlyOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	r := &models.Room{
		ID:       "ABC123",
		Settings: defaultSettings(),
		Skillchecks: []models.Skillcheck{
			{ID: "sc-1", Location: hostLoc},
			{ID: "sc-2", Location: geo.Destination(hostLoc, 300, 45)},
		},
	}

	t1 := time.Unix(6000, 0)
	RevealEscapeArea(r, t1, rng)
	if !r.EscapeRevealed() {
		t.Fatal("not revealed")
	}
	if r.EscapeTimerStartedAt == nil || !r.EscapeTimerStartedAt.Equal(t1.UTC()) {
		t.Fatalf("EscapeTimerStartedAt = %v, want %v", r.EscapeTimerStartedAt, t1)
	}
	firstID := r.EscapeArea.ID

	// Re-applying later must not move the timestamps or replace the area.
	RevealEscapeArea(r, t1.Add(time.Minute), rng)
	if r.EscapeArea.ID != firstID {
		t.Error("reveal replaced the escape area")
	}
	if !r.EscapeTimerStartedAt.Equal(t1.UTC()) {
		t.Error("reveal moved EscapeTimerStartedAt")
	}
}

func TestCreateRoomUniqueCodesUnderCollision(t *testing.T) {
	app, store := newApp()
	ctx := context.Background()

	// Create a pile of rooms; every code must be distinct in the store.
	ids := make(map[string]bool)
	for i := 0; i < 20; i++ {
		room, err := app.CreateRoom(ctx, JoinRequest{UID: fmt.Sprintf("h%d", i)}, defaultSettings(), hostLoc)
		if err != nil {
			t.Fatalf("CreateRoom %d: %v", i, err)
		}
		if ids[room.ID] {
			t.Fatalf("duplicate room code %s", room.ID)
		}
		ids[room.ID] = true
		if _, err := store.Get(ctx, room.ID); err != nil {
			t.Fatalf("created room %s not readable: %v", room.ID, err)
		}
	}
}

// createFailStore fails every insert with a fixed error.
type createFailStore struct {
	*roomstore.MemoryStore
	createErr error
}

func (s *createFailStore) Create(ctx context.Context, room *models.Room) error {
	return s.createErr
}

func TestCreateRoomSurfacesStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	store := &createFailStore{MemoryStore: roomstore.NewMemoryStore(), createErr: boom}
	clock := clockwork.NewFakeClockAt(time.Unix(5000, 0))
	app := NewApp(store, nil, clock, rand.New(rand.NewSource(1)))

	_, err := app.CreateRoom(context.Background(), JoinRequest{UID: "host"}, defaultSettings(), hostLoc)
	if !errors.Is(err, boom) {
		t.Fatalf("CreateRoom with failing store: got %v, want the store error", err)
	}
}

func TestCreateRoomBoundedCollisionRetries(t *testing.T) {
	store := &createFailStore{MemoryStore: roomstore.NewMemoryStore(), createErr: roomstore.ErrAlreadyExists}
	clock := clockwork.NewFakeClockAt(time.Unix(5000, 0))
	app := NewApp(store, nil, clock, rand.New(rand.NewSource(1)))

	_, err := app.CreateRoom(context.Background(), JoinRequest{UID: "host"}, defaultSettings(), hostLoc)
	if err == nil {
		t.Fatal("CreateRoom against a fully colliding store succeeded")
	}
	if errors.Is(err, roomstore.ErrAlreadyExists) {
		t.Fatalf("collision sentinel leaked to the caller: %v", err)
	}
}

// capturePublisher records published events.
type capturePublisher struct {
	events []events.RoomEvent
}

func (p *capturePublisher) Publish(ctx context.Context, event events.RoomEvent) error {
	p.events = append(p.events, event)
	return nil
}

func TestKickPlayerPublishesOnce(t *testing.T) {
	store := roomstore.NewMemoryStore()
	pub := &capturePublisher{}
	clock := clockwork.NewFakeClockAt(time.Unix(5000, 0))
	app := NewApp(store, pub, clock, rand.New(rand.NewSource(1)))
	ctx := context.Background()

	room, err := app.CreateRoom(ctx, JoinRequest{UID: "host"}, defaultSettings(), hostLoc)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := app.JoinRoom(ctx, room.ID, JoinRequest{UID: "p2"}); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	// Kicking twice removes once and announces once.
	for i := 0; i < 2; i++ {
		if _, err := app.KickPlayer(ctx, room.ID, "host", "p2"); err != nil {
			t.Fatalf("KickPlayer: %v", err)
		}
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	evt := pub.events[0]
	if evt.Type != events.EventTypePlayerKicked {
		t.Fatalf("event type = %s, want PlayerKicked", evt.Type)
	}
	payload, err := events.ParsePayload(&evt)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if got := payload.(events.PlayerKickedPayload).PlayerUID; got != "p2" {
		t.Errorf("kicked uid = %q, want p2", got)
	}
}
