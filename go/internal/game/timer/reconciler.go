// Package timer derives countdown values from the room's absolute
// timestamps. Remaining time is recomputed from scratch on every tick;
// nothing here accumulates "time since last render", which is how clients
// with drifting clocks stay in agreement.
package timer

import (
	"time"

	"github.com/mcdev12/manhunt/go/internal/models"
)

// Snapshot holds the remaining durations for each phase timer. A zero value
// means the timer has expired or its phase has not been reached; Started
// flags distinguish the two.
type Snapshot struct {
	Headstart        time.Duration
	Round            time.Duration
	Escape           time.Duration
	HeadstartStarted bool
	RoundStarted     bool
	EscapeStarted    bool
}

// Remaining computes the phase countdowns as pure functions of the room's
// stored timestamps and now. For any phase,
// remaining = max(0, phaseStart + duration - now).
func Remaining(room *models.Room, now time.Time) Snapshot {
	var s Snapshot
	if room.HeadstartStartedAt != nil {
		s.HeadstartStarted = true
		s.Headstart = remaining(*room.HeadstartStartedAt, room.Settings.HeadstartDuration(), now)
	}
	if room.GameStartedAt != nil {
		s.RoundStarted = true
		s.Round = remaining(*room.GameStartedAt, room.Settings.RoundDuration(), now)
	}
	if room.EscapeTimerStartedAt != nil {
		s.EscapeStarted = true
		s.Escape = remaining(*room.EscapeTimerStartedAt, room.Settings.EscapeDuration(), now)
	}
	return s
}

func remaining(start time.Time, duration time.Duration, now time.Time) time.Duration {
	r := start.Add(duration).Sub(now)
	if r < 0 {
		return 0
	}
	return r
}
