package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/mcdev12/manhunt/go/internal/events"
	"github.com/mcdev12/manhunt/go/internal/models"
	"github.com/mcdev12/manhunt/go/internal/roomstore"
	"github.com/rs/zerolog/log"
)

// Service composes the websocket fan-out, the JetStream consumer, the
// store watcher, and the REST state surface.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	stateHandler      *StateHandler

	// watcher pushes full-room snapshots; subscriptions are attached only
	// while a room has at least one websocket viewer.
	watcher     roomstore.Watcher
	watchMu     sync.Mutex
	roomWatches map[string]func()
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService creates the gateway service. watcher may be nil, in which
// case clients only receive the explicit event stream.
func NewService(config Config, stateProvider StateProvider, watcher roomstore.Watcher) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	wsHandler := NewWebSocketHandler(connectionManager)

	eventConsumer, err := NewEventConsumer(connectionManager, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         wsHandler,
		eventConsumer:     eventConsumer,
		stateHandler:      NewStateHandler(stateProvider),
		watcher:           watcher,
		roomWatches:       make(map[string]func()),
	}
	if watcher != nil {
		connectionManager.SetRoomHooks(s.watchRoom, s.unwatchRoom)
	}
	return s, nil
}

// watchRoom attaches a store subscription when a room gains its first
// viewer, pushing every committed write as a RoomUpdated snapshot.
func (s *Service) watchRoom(roomID string) {
	unsubscribe, err := s.watcher.Subscribe(roomID, func(room *models.Room) {
		event, err := events.NewEvent(roomID, events.EventTypeRoomUpdated, room)
		if err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to build room snapshot event")
			return
		}
		s.connectionManager.BroadcastToRoom(roomID, event)
	})
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to watch room")
		return
	}

	s.watchMu.Lock()
	s.roomWatches[roomID] = unsubscribe
	s.watchMu.Unlock()
	log.Debug().Str("room_id", roomID).Msg("room watch attached")
}

// unwatchRoom detaches the store subscription when the room's pool empties.
func (s *Service) unwatchRoom(roomID string) {
	s.watchMu.Lock()
	unsubscribe := s.roomWatches[roomID]
	delete(s.roomWatches, roomID)
	s.watchMu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		log.Debug().Str("room_id", roomID).Msg("room watch detached")
	}
}

// Start runs the gateway until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")

	go s.connectionManager.Start(ctx)

	go func() {
		if err := s.eventConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("room gateway service shutting down")
	return s.Stop()
}

// Stop shuts the gateway down.
func (s *Service) Stop() error {
	s.watchMu.Lock()
	for roomID, unsubscribe := range s.roomWatches {
		unsubscribe()
		delete(s.roomWatches, roomID)
	}
	s.watchMu.Unlock()

	if err := s.eventConsumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	log.Info().Msg("room gateway service stopped")
	return nil
}

// RegisterRoutes registers the websocket and REST routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

// GetStats returns connection statistics.
func (s *Service) GetStats() Stats {
	return s.connectionManager.GetStats()
}

// BroadcastEvent injects an event into the fan-out directly, bypassing
// JetStream. Used in tests and local development.
func (s *Service) BroadcastEvent(roomID string, event events.RoomEvent) {
	s.connectionManager.BroadcastToRoom(roomID, event)
}
