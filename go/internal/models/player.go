package models

import (
	"time"
)

// Role defines a player's side, assigned at game start and immutable after.
type Role string

const (
	RoleUnassigned Role = ""
	RoleKiller     Role = "KILLER"
	RoleSurvivor   Role = "SURVIVOR"
)

// Location is a GPS coordinate.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Player represents one participant in a room.
//
// IsAlive flips to false at most once (elimination); HasEscaped flips to
// true at most once (escape). The two terminal states are mutually
// exclusive, enforced by the arbiter. Location data is ephemeral and is
// cleared when the player leaves the headstart/active phases.
type Player struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`

	Role       Role `json:"role,omitempty"`
	IsAlive    bool `json:"is_alive"`
	HasEscaped bool `json:"has_escaped"`

	Location           *Location  `json:"location,omitempty"`
	LastLocationUpdate *time.Time `json:"last_location_update,omitempty"`

	EliminatedAt *time.Time `json:"eliminated_at,omitempty"`
	EliminatedBy string     `json:"eliminated_by,omitempty"`
	EscapedAt    *time.Time `json:"escaped_at,omitempty"`

	JoinedAt time.Time `json:"joined_at"`
}

// IsTerminal reports whether the player has reached a terminal state.
func (p *Player) IsTerminal() bool {
	return !p.IsAlive || p.HasEscaped
}

// IsLivingSurvivor reports whether the player is a survivor still in play
// (alive and not yet escaped).
func (p *Player) IsLivingSurvivor() bool {
	return p.Role == RoleSurvivor && p.IsAlive && !p.HasEscaped
}
