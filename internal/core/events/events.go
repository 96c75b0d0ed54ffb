// Package events defines the symbolic boundary events a session emits.
//
// Events say what happened (a slot ended, the cooldown began) and leave it to
// collaborators to decide how that is realized as sound or on screen.
package events

import (
	"time"

	"duet/internal/core/model"
)

// Kind identifies a boundary event.
type Kind string

const (
	KindSessionStart  Kind = "session_start"
	KindSlotStart     Kind = "slot_start"
	KindSlotEnd       Kind = "slot_end"
	KindTransitionEnd Kind = "transition_end"
	KindClosingStart  Kind = "closing_start"
	KindCooldownStart Kind = "cooldown_start"
	KindCooldownEnd   Kind = "cooldown_end"

	// KindTipsAvailable is raised when a phase begins and the guidance
	// provider has tips for it. It is never sent to the audio sink.
	KindTipsAvailable Kind = "tips_available"
)

// IsAudio reports whether the event is an audio cue.
func (kind Kind) IsAudio() bool {
	switch kind {
	case KindSessionStart, KindSlotStart, KindSlotEnd, KindTransitionEnd,
		KindClosingStart, KindCooldownStart, KindCooldownEnd:
		return true
	default:
		return false
	}
}

// Event is a single boundary occurrence within a session.
type Event struct {
	Kind       Kind
	SessionID  string
	PhaseIndex int
	Phase      model.PhaseType
	Elapsed    time.Duration
	Tips       []string
	At         time.Time
}

// StartCue returns the event raised when a phase of the given type begins.
func StartCue(phaseType model.PhaseType) (Kind, bool) {
	switch phaseType {
	case model.PhaseSlotA, model.PhaseSlotB:
		return KindSlotStart, true
	case model.PhaseClosingA:
		return KindClosingStart, true
	case model.PhaseCooldown:
		return KindCooldownStart, true
	case model.PhasePrep, model.PhaseTransition, model.PhaseClosingB:
		return "", false
	default:
		panic("events: unknown phase type " + phaseType.String())
	}
}

// EndCue returns the event raised when a phase of the given type ends. The
// end of the final phase is always KindCooldownEnd and is not covered here.
func EndCue(phaseType model.PhaseType) (Kind, bool) {
	switch phaseType {
	case model.PhaseSlotA, model.PhaseSlotB:
		return KindSlotEnd, true
	case model.PhaseTransition:
		return KindTransitionEnd, true
	case model.PhasePrep, model.PhaseClosingA, model.PhaseClosingB, model.PhaseCooldown:
		return "", false
	default:
		panic("events: unknown phase type " + phaseType.String())
	}
}
