// Package minigame implements the skillcheck timing game. It is purely
// local: no clock of record, no network, no error path. Callers drive it
// with elapsed time and report the terminal outcome to the arbiter.
package minigame

import (
	"math"
	"math/rand"
	"time"
)

// State is the minigame lifecycle state.
type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

// Config tunes the minigame. Zero fields fall back to defaults.
type Config struct {
	RequiredHits int     // hits to succeed
	MaxMisses    int     // misses to fail
	MinSpeedDeg  float64 // needle angular speed range, degrees/sec
	MaxSpeedDeg  float64
	MinArcDeg    float64 // success arc width range, degrees
	MaxArcDeg    float64
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		RequiredHits: 15,
		MaxMisses:    3,
		MinSpeedDeg:  120,
		MaxSpeedDeg:  300,
		MinArcDeg:    20,
		MaxArcDeg:    40,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RequiredHits <= 0 {
		c.RequiredHits = d.RequiredHits
	}
	if c.MaxMisses <= 0 {
		c.MaxMisses = d.MaxMisses
	}
	if c.MinSpeedDeg <= 0 {
		c.MinSpeedDeg = d.MinSpeedDeg
	}
	if c.MaxSpeedDeg <= 0 {
		c.MaxSpeedDeg = d.MaxSpeedDeg
	}
	if c.MinArcDeg <= 0 {
		c.MinArcDeg = d.MinArcDeg
	}
	if c.MaxArcDeg <= 0 {
		c.MaxArcDeg = d.MaxArcDeg
	}
	return c
}

// Minigame is one skillcheck attempt: a needle sweeps a circular track and
// the player must press while it is inside the success arc. Deterministic
// given its random source.
type Minigame struct {
	cfg Config
	rng *rand.Rand

	state    State
	hits     int
	misses   int
	speedDeg float64 // current needle speed, degrees/sec
	arcStart float64 // success arc start angle [0, 360)
	arcWidth float64

	startedElapsed time.Duration // elapsed value when the current sweep began
}

// New creates an idle minigame with the given tuning and random source.
func New(cfg Config, rng *rand.Rand) *Minigame {
	return &Minigame{cfg: cfg.withDefaults(), rng: rng, state: StateIdle}
}

// State returns the current lifecycle state.
func (m *Minigame) State() State { return m.state }

// Hits returns the current hit count.
func (m *Minigame) Hits() int { return m.hits }

// Misses returns the current miss count.
func (m *Minigame) Misses() int { return m.misses }

// Start begins a run from idle. Starting from any other state is a no-op.
func (m *Minigame) Start() {
	if m.state != StateIdle {
		return
	}
	m.state = StateRunning
	m.hits = 0
	m.misses = 0
	m.startedElapsed = 0
	m.randomize()
}

// Reset returns the minigame to idle so it can be reopened.
func (m *Minigame) Reset() {
	m.state = StateIdle
	m.hits = 0
	m.misses = 0
}

// NeedleAngle returns the needle position in degrees [0, 360) at the given
// elapsed time since Start.
func (m *Minigame) NeedleAngle(elapsed time.Duration) float64 {
	swept := m.speedDeg * (elapsed - m.startedElapsed).Seconds()
	return math.Mod(swept, 360)
}

// ArcBounds returns the success arc as [start, start+width) in degrees,
// where start is normalized to [0, 360). The arc may wrap past 360.
func (m *Minigame) ArcBounds() (start, width float64) {
	return m.arcStart, m.arcWidth
}

// Press registers the single player input at the given elapsed time since
// Start. A hit re-randomizes the arc and needle speed; terminal states are
// reached at RequiredHits hits or MaxMisses misses. Press outside running
// is ignored and returns false.
func (m *Minigame) Press(elapsed time.Duration) bool {
	if m.state != StateRunning {
		return false
	}

	hit := inArc(m.NeedleAngle(elapsed), m.arcStart, m.arcWidth)
	if hit {
		m.hits++
		if m.hits >= m.cfg.RequiredHits {
			m.state = StateSucceeded
			return true
		}
		// New sweep: re-randomize and restart the needle from zero.
		m.startedElapsed = elapsed
		m.randomize()
		return true
	}

	m.misses++
	if m.misses >= m.cfg.MaxMisses {
		m.state = StateFailed
	}
	return false
}

func (m *Minigame) randomize() {
	m.speedDeg = m.cfg.MinSpeedDeg + m.rng.Float64()*(m.cfg.MaxSpeedDeg-m.cfg.MinSpeedDeg)
	m.arcWidth = m.cfg.MinArcDeg + m.rng.Float64()*(m.cfg.MaxArcDeg-m.cfg.MinArcDeg)
	m.arcStart = m.rng.Float64() * 360
}

// inArc tests whether angle falls within [start, start+width), handling
// wraparound across 0/360.
func inArc(angle, start, width float64) bool {
	delta := math.Mod(angle-start+360, 360)
	return delta >= 0 && delta < width
}
