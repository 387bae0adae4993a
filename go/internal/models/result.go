package models

import (
	"time"
)

// Winner identifies which side won a finished game.
type Winner string

const (
	WinnerKillers   Winner = "KILLERS"
	WinnerSurvivors Winner = "SURVIVORS"
)

// Elimination is one entry in the ordered elimination history.
type Elimination struct {
	PlayerUID    string    `json:"player_uid"`
	DisplayName  string    `json:"display_name"`
	EliminatedBy string    `json:"eliminated_by,omitempty"`
	EliminatedAt time.Time `json:"eliminated_at"`
	Order        int       `json:"order"`
}

// GameResult is the immutable post-game snapshot, created exactly once per
// room when it transitions to FINISHED.
type GameResult struct {
	RoomID       string             `json:"room_id"`
	Winners      Winner             `json:"winners"`
	Eliminations []Elimination      `json:"eliminations"`
	Players      map[string]*Player `json:"players"`
	StartedAt    time.Time          `json:"started_at"`
	EndedAt      time.Time          `json:"ended_at"`
}
