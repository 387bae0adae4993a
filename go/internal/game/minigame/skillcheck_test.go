package minigame

import (
	"math/rand"
	"testing"
	"time"
)

// pressTime returns an elapsed value at which the needle sits in the middle
// of the success arc during its first sweep after the last hit.
func pressTime(m *Minigame, base time.Duration) time.Duration {
	start, width := m.ArcBounds()
	target := start + width/2
	return base + time.Duration(float64(time.Second)*target/m.speedDeg)
}

// missTime returns an elapsed value at which the needle sits opposite the
// success arc.
func missTime(m *Minigame, base time.Duration) time.Duration {
	start, width := m.ArcBounds()
	target := start + width/2 + 180
	for target >= 360 {
		target -= 360
	}
	return base + time.Duration(float64(time.Second)*target/m.speedDeg)
}

func TestFifteenWellTimedHitsSucceed(t *testing.T) {
	m := New(DefaultConfig(), rand.New(rand.NewSource(42)))
	m.Start()

	var base time.Duration
	for i := 0; i < 15; i++ {
		at := pressTime(m, base)
		if !m.Press(at) {
			t.Fatalf("hit %d registered as miss (angle %.2f, arc start %.2f width %.2f)",
				i+1, m.NeedleAngle(at), m.arcStart, m.arcWidth)
		}
		base = at
	}

	if m.State() != StateSucceeded {
		t.Fatalf("State = %s after 15 hits, want SUCCEEDED", m.State())
	}
	if m.Hits() != 15 || m.Misses() != 0 {
		t.Errorf("hits=%d misses=%d, want 15/0", m.Hits(), m.Misses())
	}
}

func TestThreeMissesFail(t *testing.T) {
	m := New(DefaultConfig(), rand.New(rand.NewSource(7)))
	m.Start()

	var base time.Duration
	// A few hits first; misses before reaching 15 hits must still fail.
	for i := 0; i < 5; i++ {
		at := pressTime(m, base)
		if !m.Press(at) {
			t.Fatalf("setup hit %d missed", i+1)
		}
		base = at
	}
	for i := 0; i < 3; i++ {
		at := missTime(m, base)
		if m.Press(at) {
			t.Fatalf("miss %d registered as hit", i+1)
		}
	}

	if m.State() != StateFailed {
		t.Fatalf("State = %s after 3 misses, want FAILED", m.State())
	}
}

func TestDeterministicGivenSeed(t *testing.T) {
	a := New(DefaultConfig(), rand.New(rand.NewSource(99)))
	b := New(DefaultConfig(), rand.New(rand.NewSource(99)))
	a.Start()
	b.Start()

	if a.speedDeg != b.speedDeg || a.arcStart != b.arcStart || a.arcWidth != b.arcWidth {
		t.Fatal("same seed produced different initial sweeps")
	}
	for i := 0; i < 10; i++ {
		at := time.Duration(i) * 137 * time.Millisecond
		if a.Press(at) != b.Press(at) {
			t.Fatalf("press %d diverged between identical seeds", i)
		}
		if a.State() != b.State() {
			t.Fatalf("state diverged: %s vs %s", a.State(), b.State())
		}
	}
}

func TestPressIgnoredOutsideRunning(t *testing.T) {
	m := New(DefaultConfig(), rand.New(rand.NewSource(1)))
	if m.Press(time.Second) {
		t.Error("Press before Start registered")
	}
	if m.State() != StateIdle {
		t.Errorf("State = %s, want IDLE", m.State())
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	m := New(DefaultConfig(), rand.New(rand.NewSource(3)))
	m.Start()
	var base time.Duration
	for i := 0; i < 3; i++ {
		at := missTime(m, base)
		m.Press(at)
	}
	if m.State() != StateFailed {
		t.Fatalf("State = %s, want FAILED", m.State())
	}

	m.Reset()
	if m.State() != StateIdle || m.Hits() != 0 || m.Misses() != 0 {
		t.Errorf("after Reset: state=%s hits=%d misses=%d", m.State(), m.Hits(), m.Misses())
	}

	m.Start()
	if m.State() != StateRunning {
		t.Errorf("State after reopen = %s, want RUNNING", m.State())
	}
}

func TestArcWraparound(t *testing.T) {
	tests := []struct {
		name         string
		angle, start float64
		width        float64
		want         bool
	}{
		{"inside simple arc", 30, 20, 30, true},
		{"outside simple arc", 55, 20, 30, false},
		{"inside wrapped arc below 360", 355, 350, 25, true},
		{"inside wrapped arc above 0", 10, 350, 25, true},
		{"outside wrapped arc", 20, 350, 25, false},
		{"at arc start", 350, 350, 25, true},
		{"at arc end exclusive", 15, 350, 25, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inArc(tt.angle, tt.start, tt.width); got != tt.want {
				t.Errorf("inArc(%.0f, %.0f, %.0f) = %v, want %v", tt.angle, tt.start, tt.width, got, tt.want)
			}
		})
	}
}
