package roomstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/manhunt/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ListenerConfig tunes the Postgres change listener.
type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // channel name to LISTEN on
	FallbackInterval time.Duration // how often to poll for missed changes
	PingInterval     time.Duration
}

// DefaultListenerConfig returns the default listener tuning. The 3s
// fallback poll is what keeps an in-progress game alive when push delivery
// drops out.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		DatabaseURL:      "",
		NotifyChannel:    NotifyChannel,
		FallbackInterval: 3 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// Listener bridges Postgres NOTIFY events into per-room subscriber
// callbacks, with a polling fallback for missed notifications. It is the
// Watcher implementation backing the Postgres store.
type Listener struct {
	store    Store
	listener *pq.Listener
	cfg      ListenerConfig

	mu       sync.Mutex
	subs     map[string]map[int]func(*models.Room)
	lastSeen map[string]int64 // room id -> last dispatched version
	nextID   int
}

// NewListener opens the LISTEN connection and returns a listener wired to
// the given store.
func NewListener(store Store, cfg ListenerConfig) (*Listener, error) {
	pl := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := pl.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for room notifications")

	return &Listener{
		store:    store,
		listener: pl,
		cfg:      cfg,
		subs:     make(map[string]map[int]func(*models.Room)),
		lastSeen: make(map[string]int64),
	}, nil
}

// Subscribe registers fn for change snapshots of the room.
func (l *Listener) Subscribe(roomID string, fn func(*models.Room)) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.subs[roomID] == nil {
		l.subs[roomID] = make(map[int]func(*models.Room))
	}
	id := l.nextID
	l.nextID++
	l.subs[roomID][id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs[roomID], id)
		if len(l.subs[roomID]) == 0 {
			delete(l.subs, roomID)
			delete(l.lastSeen, roomID)
		}
	}, nil
}

// Start runs the notification loop until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("room listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// nil notification means the connection was lost; pq
				// reconnects on its own, the fallback poll covers the gap.
				continue
			}
			l.dispatch(ctx, note.Extra)
		case <-fallbackTicker.C:
			l.pollSubscribed(ctx)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// Stop closes the LISTEN connection.
func (l *Listener) Stop() error {
	return l.listener.Close()
}

// dispatch fetches the named room and fans its snapshot out to subscribers
// if the version advanced past what they last saw.
func (l *Listener) dispatch(ctx context.Context, roomID string) {
	l.mu.Lock()
	_, subscribed := l.subs[roomID]
	l.mu.Unlock()
	if !subscribed {
		return
	}

	room, err := l.store.Get(ctx, roomID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to fetch notified room")
		}
		return
	}

	l.mu.Lock()
	if room.Version <= l.lastSeen[roomID] {
		l.mu.Unlock()
		return
	}
	l.lastSeen[roomID] = room.Version
	fns := make([]func(*models.Room), 0, len(l.subs[roomID]))
	for _, fn := range l.subs[roomID] {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(room.Clone())
	}
}

// pollSubscribed re-reads every subscribed room, catching changes whose
// notifications were lost.
func (l *Listener) pollSubscribed(ctx context.Context) {
	l.mu.Lock()
	roomIDs := make([]string, 0, len(l.subs))
	for roomID := range l.subs {
		roomIDs = append(roomIDs, roomID)
	}
	l.mu.Unlock()

	for _, roomID := range roomIDs {
		l.dispatch(ctx, roomID)
	}
}
