// Package proximity turns a survivor's GPS sample stream into enter/exit
// events against the room's skillcheck and escape-area geometry. All state
// here is client-local UX memory; none of it is ever written to the shared
// room.
package proximity

import (
	"github.com/mcdev12/manhunt/go/internal/geo"
	"github.com/mcdev12/manhunt/go/internal/models"
)

// DefaultThresholdM is the prompt radius around a target.
const DefaultThresholdM = 50.0

// TargetKind distinguishes the two prompt target types.
type TargetKind string

const (
	TargetSkillcheck TargetKind = "SKILLCHECK"
	TargetEscape     TargetKind = "ESCAPE"
)

// Target identifies a skillcheck or the escape area.
type Target struct {
	Kind TargetKind
	ID   string
}

// EventKind is the proximity transition direction.
type EventKind int

const (
	// Entered fires once when the player crosses into a target's radius and
	// a prompt is raised for it.
	Entered EventKind = iota
	// Exited fires once when the player leaves the radius of a target whose
	// prompt state was raised.
	Exited
)

// Event is one proximity transition.
type Event struct {
	Kind   EventKind
	Target Target
}

// PromptState is the client-local memory for one target.
type PromptState int

const (
	// PromptNone: not yet approached, or prompt cleared by exit.
	PromptNone PromptState = iota
	// PromptOpen: a blocking prompt is showing. Only one target at a time
	// may hold this state.
	PromptOpen
	// PromptDismissed: player dismissed the prompt; demoted to a persistent
	// background indicator, non-blocking.
	PromptDismissed
	// PromptAccepted: player accepted and the minigame is open.
	PromptAccepted
)

// Config tunes the engine.
type Config struct {
	ThresholdM float64
}

// Engine evaluates one survivor's location samples. It is single-threaded:
// callers invoke Update from the same goroutine that handles UI input.
type Engine struct {
	cfg Config

	inside           map[Target]bool
	prompts          map[Target]PromptState
	locallyCompleted map[string]bool
}

// NewEngine creates an engine with the given tuning.
func NewEngine(cfg Config) *Engine {
	if cfg.ThresholdM <= 0 {
		cfg.ThresholdM = DefaultThresholdM
	}
	e := &Engine{cfg: cfg}
	e.Reset()
	return e
}

// Reset drops all client-local prompt memory. Called whenever the room
// transitions back to waiting for a new game.
func (e *Engine) Reset() {
	e.inside = make(map[Target]bool)
	e.prompts = make(map[Target]PromptState)
	e.locallyCompleted = make(map[string]bool)
}

// State returns the prompt state for a target.
func (e *Engine) State(t Target) PromptState {
	return e.prompts[t]
}

// Dismiss demotes an open prompt to the background indicator.
func (e *Engine) Dismiss(t Target) {
	if e.prompts[t] == PromptOpen {
		e.prompts[t] = PromptDismissed
	}
}

// Accept marks an open or background prompt as accepted (minigame opening).
func (e *Engine) Accept(t Target) {
	if s := e.prompts[t]; s == PromptOpen || s == PromptDismissed {
		e.prompts[t] = PromptAccepted
	}
}

// Close demotes an accepted prompt back to the background indicator, for a
// minigame that ended without completing the skillcheck.
func (e *Engine) Close(t Target) {
	if e.prompts[t] == PromptAccepted {
		e.prompts[t] = PromptDismissed
	}
}

// MarkCompleted records that the player finished a skillcheck locally, so
// it stops prompting even before the store write lands.
func (e *Engine) MarkCompleted(skillcheckID string) {
	e.locallyCompleted[skillcheckID] = true
	t := Target{Kind: TargetSkillcheck, ID: skillcheckID}
	delete(e.prompts, t)
	delete(e.inside, t)
}

// Update evaluates one GPS sample against the room geometry and returns the
// transitions it caused. Killers and terminal players get no events; only
// headstart/active phases are evaluated.
func (e *Engine) Update(room *models.Room, selfUID string, sample models.Location) []Event {
	if room.Status != models.RoomStatusHeadstart && room.Status != models.RoomStatusActive {
		return nil
	}
	self := room.Player(selfUID)
	if self == nil || !self.IsLivingSurvivor() {
		return nil
	}

	var evts []Event
	for _, t := range e.candidates(room, self) {
		evts = append(evts, e.evaluate(t.target, t.loc, sample)...)
	}
	return evts
}

type candidate struct {
	target Target
	loc    models.Location
}

// candidates lists the eligible targets in iteration order: incomplete
// skillchecks first (creation order), then the escape area once revealed.
func (e *Engine) candidates(room *models.Room, self *models.Player) []candidate {
	var out []candidate
	for _, sc := range room.Skillchecks {
		if sc.IsCompleted || e.locallyCompleted[sc.ID] {
			continue
		}
		out = append(out, candidate{
			target: Target{Kind: TargetSkillcheck, ID: sc.ID},
			loc:    sc.Location,
		})
	}
	if room.EscapeRevealed() && !self.HasEscaped {
		out = append(out, candidate{
			target: Target{Kind: TargetEscape, ID: room.EscapeArea.ID},
			loc:    room.EscapeArea.Location,
		})
	}
	return out
}

func (e *Engine) evaluate(t Target, loc, sample models.Location) []Event {
	nowInside := geo.Distance(sample, loc) <= e.cfg.ThresholdM
	wasInside := e.inside[t]

	switch {
	case nowInside && !wasInside:
		e.inside[t] = true
		// First target inside wins; an open or accepted prompt blocks new
		// prompts until it resolves.
		if e.prompts[t] == PromptNone && !e.hasBlockingPrompt() {
			e.prompts[t] = PromptOpen
			return []Event{{Kind: Entered, Target: t}}
		}
	case !nowInside && wasInside:
		e.inside[t] = false
		if e.prompts[t] != PromptNone {
			e.prompts[t] = PromptNone
			return []Event{{Kind: Exited, Target: t}}
		}
	}
	return nil
}

func (e *Engine) hasBlockingPrompt() bool {
	for _, s := range e.prompts {
		if s == PromptOpen || s == PromptAccepted {
			return true
		}
	}
	return false
}
