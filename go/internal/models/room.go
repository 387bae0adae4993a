package models

import (
	"time"
)

// RoomStatus defines the lifecycle phase of a room.
type RoomStatus string

const (
	RoomStatusWaiting   RoomStatus = "WAITING"
	RoomStatusHeadstart RoomStatus = "HEADSTART"
	RoomStatusActive    RoomStatus = "ACTIVE"
	RoomStatusFinished  RoomStatus = "FINISHED"
)

// statusOrder gives each phase its position in the one-way lifecycle.
var statusOrder = map[RoomStatus]int{
	RoomStatusWaiting:   0,
	RoomStatusHeadstart: 1,
	RoomStatusActive:    2,
	RoomStatusFinished:  3,
}

// CanTransition reports whether moving from one status to the next is a
// legal forward step. Backward transitions are never legal.
func CanTransition(from, to RoomStatus) bool {
	f, ok := statusOrder[from]
	if !ok {
		return false
	}
	t, ok := statusOrder[to]
	if !ok {
		return false
	}
	return t == f+1
}

// SkillcheckSettings holds the optional skillcheck configuration.
type SkillcheckSettings struct {
	Count         int     `json:"count"`
	SearchRadiusM float64 `json:"search_radius_m"`
}

// Settings holds room configuration. Immutable after room creation.
type Settings struct {
	KillerCount      int                 `json:"killer_count"`
	RoundMinutes     int                 `json:"round_minutes"`
	HeadstartMinutes int                 `json:"headstart_minutes"`
	EscapeMinutes    int                 `json:"escape_minutes"`
	MaxPlayers       int                 `json:"max_players"`
	Skillchecks      *SkillcheckSettings `json:"skillchecks,omitempty"`
}

// RoundDuration returns the configured round length.
func (s Settings) RoundDuration() time.Duration {
	return time.Duration(s.RoundMinutes) * time.Minute
}

// HeadstartDuration returns the configured headstart length.
func (s Settings) HeadstartDuration() time.Duration {
	return time.Duration(s.HeadstartMinutes) * time.Minute
}

// EscapeDuration returns the configured escape window length.
func (s Settings) EscapeDuration() time.Duration {
	return time.Duration(s.EscapeMinutes) * time.Minute
}

// SkillchecksEnabled reports whether the room was created with skillchecks.
func (s Settings) SkillchecksEnabled() bool {
	return s.Skillchecks != nil && s.Skillchecks.Count > 0
}

// Skillcheck is one location-gated team objective. The slice of skillchecks
// is created once at room creation and never resized.
type Skillcheck struct {
	ID          string    `json:"id"`
	Location    Location  `json:"location"`
	IsCompleted bool      `json:"is_completed"`
	CompletedBy string    `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// EscapeArea is the revealed geographic target survivors must reach.
// Created lazily when the reveal condition fires.
type EscapeArea struct {
	ID             string     `json:"id"`
	Location       Location   `json:"location"`
	IsRevealed     bool       `json:"is_revealed"`
	RevealedAt     *time.Time `json:"revealed_at,omitempty"`
	EscapedPlayers []string   `json:"escaped_players,omitempty"`
}

// Room is the single shared aggregate for one game session. All timestamps
// are absolute; nil means the corresponding phase has not been reached.
// Remaining time is always derived from these fields plus the current clock,
// never accumulated client-side.
type Room struct {
	ID      string             `json:"id"`
	HostUID string             `json:"host_uid"`
	Status  RoomStatus         `json:"status"`
	Players map[string]*Player `json:"players"`

	Settings Settings `json:"settings"`

	HeadstartStartedAt   *time.Time `json:"headstart_started_at,omitempty"`
	GameStartedAt        *time.Time `json:"game_started_at,omitempty"`
	GameEndedAt          *time.Time `json:"game_ended_at,omitempty"`
	EscapeTimerStartedAt *time.Time `json:"escape_timer_started_at,omitempty"`

	Skillchecks             []Skillcheck `json:"skillchecks,omitempty"`
	EscapeArea              *EscapeArea  `json:"escape_area,omitempty"`
	AllSkillchecksCompleted bool         `json:"all_skillchecks_completed"`

	CreatedAt time.Time `json:"created_at"`

	// Version is the store-level CAS counter, bumped on every write.
	Version int64 `json:"version"`
}

// Player returns the player with the given uid, or nil.
func (r *Room) Player(uid string) *Player {
	if r.Players == nil {
		return nil
	}
	return r.Players[uid]
}

// Survivors returns all players assigned the survivor role.
func (r *Room) Survivors() []*Player {
	var out []*Player
	for _, p := range r.Players {
		if p.Role == RoleSurvivor {
			out = append(out, p)
		}
	}
	return out
}

// Killers returns all players assigned the killer role.
func (r *Room) Killers() []*Player {
	var out []*Player
	for _, p := range r.Players {
		if p.Role == RoleKiller {
			out = append(out, p)
		}
	}
	return out
}

// IncompleteSkillchecks returns the skillchecks not yet completed, in their
// creation order.
func (r *Room) IncompleteSkillchecks() []Skillcheck {
	var out []Skillcheck
	for _, sc := range r.Skillchecks {
		if !sc.IsCompleted {
			out = append(out, sc)
		}
	}
	return out
}

// SkillcheckByID returns a pointer into the room's skillcheck slice, or nil.
func (r *Room) SkillcheckByID(id string) *Skillcheck {
	for i := range r.Skillchecks {
		if r.Skillchecks[i].ID == id {
			return &r.Skillchecks[i]
		}
	}
	return nil
}

// EscapeRevealed reports whether the escape area exists and is revealed.
func (r *Room) EscapeRevealed() bool {
	return r.EscapeArea != nil && r.EscapeArea.IsRevealed
}

// Clone returns a deep copy of the room. Stores hand out clones so callers
// can never mutate shared state outside a conditional update.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Players = make(map[string]*Player, len(r.Players))
	for uid, p := range r.Players {
		pc := *p
		if p.Location != nil {
			loc := *p.Location
			pc.Location = &loc
		}
		pc.EliminatedAt = copyTime(p.EliminatedAt)
		pc.EscapedAt = copyTime(p.EscapedAt)
		pc.LastLocationUpdate = copyTime(p.LastLocationUpdate)
		cp.Players[uid] = &pc
	}
	cp.HeadstartStartedAt = copyTime(r.HeadstartStartedAt)
	cp.GameStartedAt = copyTime(r.GameStartedAt)
	cp.GameEndedAt = copyTime(r.GameEndedAt)
	cp.EscapeTimerStartedAt = copyTime(r.EscapeTimerStartedAt)
	if r.Skillchecks != nil {
		cp.Skillchecks = make([]Skillcheck, len(r.Skillchecks))
		copy(cp.Skillchecks, r.Skillchecks)
		for i := range cp.Skillchecks {
			cp.Skillchecks[i].CompletedAt = copyTime(r.Skillchecks[i].CompletedAt)
		}
	}
	if r.EscapeArea != nil {
		ea := *r.EscapeArea
		ea.RevealedAt = copyTime(r.EscapeArea.RevealedAt)
		if r.EscapeArea.EscapedPlayers != nil {
			ea.EscapedPlayers = append([]string(nil), r.EscapeArea.EscapedPlayers...)
		}
		cp.EscapeArea = &ea
	}
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
