package gateway

import (
	"testing"
	"time"

	"github.com/mcdev12/manhunt/go/internal/events"
)

func testConnection(id, uid, roomID string, buffer int) *Connection {
	return &Connection{
		ID:          id,
		UserUID:     uid,
		RoomID:      roomID,
		Send:        make(chan []byte, buffer),
		ConnectedAt: time.Unix(0, 0),
	}
}

func mustEvent(t *testing.T, roomID string) events.RoomEvent {
	t.Helper()
	evt, err := events.NewEvent(roomID, events.EventTypeRoomUpdated, nil)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return evt
}

func TestBroadcastRacingTeardownDoesNotPanic(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	stale := testConnection("c1", "u1", "room-1", 1)
	live := testConnection("c2", "u2", "room-1", 4)
	cm.registerConnection(stale)
	cm.registerConnection(live)

	// Pump teardown closed the stale channel while the broadcast loop
	// still holds the connection in its target snapshot.
	stale.closeSend()
	stale.closeSend()

	cm.handleBroadcast(BroadcastMessage{RoomID: "room-1", Event: mustEvent(t, "room-1")})

	select {
	case <-live.Send:
	default:
		t.Fatal("live connection received nothing")
	}
}

func TestUnregisterClosesSendOnce(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	conn := testConnection("c1", "u1", "room-1", 1)
	cm.registerConnection(conn)
	cm.unregisterConnection(conn)
	cm.unregisterConnection(conn)

	if _, open := <-conn.Send; open {
		t.Fatal("send channel still open after unregister")
	}

	stats := cm.GetStats()
	if stats.TotalConnections != 0 || stats.ActiveRooms != 0 {
		t.Errorf("stats after unregister = %+v, want empty", stats)
	}
}
