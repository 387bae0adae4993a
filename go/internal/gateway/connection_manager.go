// Package gateway fans room events and state snapshots out to websocket
// clients. It is a read path only; all game mutations go through the
// engine's conditional store writes.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/manhunt/go/internal/events"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages websocket connections, pooled per room.
type ConnectionManager struct {
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage

	// Room pool lifecycle hooks, used to attach and detach the store
	// watcher as rooms gain and lose their first viewer.
	onRoomActive func(roomID string)
	onRoomIdle   func(roomID string)
}

// Connection is one websocket client watching a room.
type Connection struct {
	ID      string
	UserUID string
	RoomID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	// sendMu serializes Send against its close; the broadcast loop may
	// still hold a reference to a connection the pumps are tearing down.
	sendMu sync.Mutex
	closed bool
}

// trySend queues msg without blocking. A closed connection swallows the
// message; a full buffer returns false so the caller can drop the client.
func (c *Connection) trySend(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound channel exactly once.
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ConnectionConfig holds websocket tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a pending fan-out to a room's connections.
type BroadcastMessage struct {
	RoomID  string
	Event   events.RoomEvent
	UserUID string // optional: if set, only this user's connections receive it
}

// DefaultConnectionConfig returns the default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Origin checks are enforced at the CORS layer in front.
			return true
		},
	}
}

// NewConnectionManager creates a connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// SetRoomHooks registers callbacks fired when a room gains its first
// connection and loses its last one. Must be called before Start.
func (cm *ConnectionManager) SetRoomHooks(onActive, onIdle func(roomID string)) {
	cm.onRoomActive = onActive
	cm.onRoomIdle = onIdle
}

// Start processes broadcast messages until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket and registers
// it in the room's pool.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userUID, roomID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserUID:     userUID,
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("uid", userUID).
		Str("room_id", roomID).
		Msg("websocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	first := cm.roomConnections[conn.RoomID] == nil
	if first {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true
	total := len(cm.roomConnections[conn.RoomID])
	cm.mu.Unlock()

	if first && cm.onRoomActive != nil {
		cm.onRoomActive(conn.RoomID)
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID).
		Int("total_connections", total).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	last := false
	if connections, exists := cm.roomConnections[conn.RoomID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			conn.closeSend()
			if len(connections) == 0 {
				delete(cm.roomConnections, conn.RoomID)
				last = true
			}
			log.Info().
				Str("connection_id", conn.ID).
				Str("uid", conn.UserUID).
				Str("room_id", conn.RoomID).
				Msg("connection unregistered")
		}
	}
	cm.mu.Unlock()

	if last && cm.onRoomIdle != nil {
		cm.onRoomIdle(conn.RoomID)
	}
}

// BroadcastToRoom queues an event for every connection watching the room.
func (cm *ConnectionManager) BroadcastToRoom(roomID string, event events.RoomEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Event: event}:
	default:
		log.Warn().Str("room_id", roomID).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToUser queues an event for one user's connections in the room.
func (cm *ConnectionManager) BroadcastToUser(roomID, userUID string, event events.RoomEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Event: event, UserUID: userUID}:
	default:
		log.Warn().
			Str("room_id", roomID).
			Str("uid", userUID).
			Msg("broadcast channel full, dropping user message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.roomConnections[message.RoomID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	// Snapshot the targets so the lock is not held while writing.
	var targets []*Connection
	for conn := range connections {
		if message.UserUID != "" && conn.UserUID != message.UserUID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		if conn.trySend(eventData) {
			continue
		}
		// Slow or dead connection; drop it rather than stall the room.
		log.Warn().
			Str("connection_id", conn.ID).
			Str("uid", conn.UserUID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("room_id", message.RoomID).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// Stats summarizes the active connection pools.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// GetStats returns a snapshot of the active connection pools.
func (cm *ConnectionManager) GetStats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := Stats{RoomConnections: make(map[string]int)}
	for roomID, connections := range cm.roomConnections {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[roomID] = len(connections)
	}
	stats.ActiveRooms = len(cm.roomConnections)
	return stats
}

// writePump drains the send channel to the websocket, pinging on an
// interval to keep the connection alive.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump consumes client frames. Clients only send keepalive traffic;
// game actions never arrive over the websocket.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		log.Debug().
			Str("connection_id", c.ID).
			Str("uid", c.UserUID).
			RawJSON("message", message).
			Msg("received client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
