// Package events defines the room event envelope and payloads shared
// between the engine and the sync gateway.
package events

import (
	"encoding/json"
	"time"
)

// EventType identifies a room event.
type EventType string

const (
	EventTypeGameStarted         EventType = "GameStarted"
	EventTypeRoundStarted        EventType = "RoundStarted"
	EventTypePlayerEliminated    EventType = "PlayerEliminated"
	EventTypePlayerEscaped       EventType = "PlayerEscaped"
	EventTypeSkillcheckCompleted EventType = "SkillcheckCompleted"
	EventTypeEscapeAreaRevealed  EventType = "EscapeAreaRevealed"
	EventTypeGameEnded           EventType = "GameEnded"
	EventTypePlayerKicked        EventType = "PlayerKicked"
	EventTypeRoomUpdated         EventType = "RoomUpdated"
)

// RoomEvent is the envelope for all room events.
type RoomEvent struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// GameStartedPayload is the payload for a GameStarted event. It carries the
// absolute headstart window so clients derive the countdown themselves.
type GameStartedPayload struct {
	RoomID             string    `json:"room_id"`
	HeadstartStartedAt time.Time `json:"headstart_started_at"`
	HeadstartEndsAt    time.Time `json:"headstart_ends_at"`
	PlayerCount        int       `json:"player_count"`
}

// RoundStartedPayload is the payload for a RoundStarted event.
type RoundStartedPayload struct {
	RoomID        string    `json:"room_id"`
	GameStartedAt time.Time `json:"game_started_at"`
	RoundEndsAt   time.Time `json:"round_ends_at"`
}

// PlayerEliminatedPayload is the payload for a PlayerEliminated event.
type PlayerEliminatedPayload struct {
	RoomID       string    `json:"room_id"`
	PlayerUID    string    `json:"player_uid"`
	EliminatedBy string    `json:"eliminated_by,omitempty"`
	EliminatedAt time.Time `json:"eliminated_at"`
}

// PlayerEscapedPayload is the payload for a PlayerEscaped event.
type PlayerEscapedPayload struct {
	RoomID    string    `json:"room_id"`
	PlayerUID string    `json:"player_uid"`
	EscapedAt time.Time `json:"escaped_at"`
}

// SkillcheckCompletedPayload is the payload for a SkillcheckCompleted event.
type SkillcheckCompletedPayload struct {
	RoomID       string    `json:"room_id"`
	SkillcheckID string    `json:"skillcheck_id"`
	CompletedBy  string    `json:"completed_by"`
	CompletedAt  time.Time `json:"completed_at"`
	Remaining    int       `json:"remaining"`
}

// EscapeAreaRevealedPayload is the payload for an EscapeAreaRevealed event.
type EscapeAreaRevealedPayload struct {
	RoomID       string    `json:"room_id"`
	EscapeAreaID string    `json:"escape_area_id"`
	RevealedAt   time.Time `json:"revealed_at"`
	EscapeEndsAt time.Time `json:"escape_ends_at"`
}

// GameEndedPayload is the payload for a GameEnded event.
type GameEndedPayload struct {
	RoomID  string    `json:"room_id"`
	Winners string    `json:"winners"`
	EndedAt time.Time `json:"ended_at"`
}

// PlayerKickedPayload is the payload for a PlayerKicked event.
type PlayerKickedPayload struct {
	RoomID    string    `json:"room_id"`
	PlayerUID string    `json:"player_uid"`
	KickedAt  time.Time `json:"kicked_at"`
}

// ParsePayload parses an event's data into its typed payload struct.
func ParsePayload(event *RoomEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeGameStarted:
		var p GameStartedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeRoundStarted:
		var p RoundStartedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypePlayerEliminated:
		var p PlayerEliminatedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypePlayerEscaped:
		var p PlayerEscapedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeSkillcheckCompleted:
		var p SkillcheckCompletedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeEscapeAreaRevealed:
		var p EscapeAreaRevealedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeGameEnded:
		var p GameEndedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypePlayerKicked:
		var p PlayerKickedPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, nil
	}
}
