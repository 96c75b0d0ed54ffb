package model

import (
	"fmt"
	"strings"
)

// PhaseType identifies the kind of timed segment in a session.
type PhaseType int

const (
	PhasePrep PhaseType = iota + 1
	PhaseSlotA
	PhaseSlotB
	PhaseTransition
	PhaseClosingA
	PhaseClosingB
	PhaseCooldown
)

// AllPhaseTypes returns every phase type in declaration order.
func AllPhaseTypes() []PhaseType {
	return []PhaseType{
		PhasePrep,
		PhaseSlotA,
		PhaseSlotB,
		PhaseTransition,
		PhaseClosingA,
		PhaseClosingB,
		PhaseCooldown,
	}
}

// Speaker is the participant who holds the floor during a phase.
type Speaker int

const (
	SpeakerNone Speaker = iota
	SpeakerA
	SpeakerB
)

func (speaker Speaker) String() string {
	switch speaker {
	case SpeakerA:
		return "A"
	case SpeakerB:
		return "B"
	default:
		return ""
	}
}

// DurationRange is an inclusive range of allowed phase durations in seconds.
type DurationRange struct {
	Min int
	Max int
}

// Contains reports whether seconds lies inside the range.
func (durationRange DurationRange) Contains(seconds int) bool {
	return seconds >= durationRange.Min && seconds <= durationRange.Max
}

// Valid reports whether the phase type is one of the declared constants.
func (phaseType PhaseType) Valid() bool {
	return phaseType >= PhasePrep && phaseType <= PhaseCooldown
}

func (phaseType PhaseType) String() string {
	switch phaseType {
	case PhasePrep:
		return "prep"
	case PhaseSlotA:
		return "slot_a"
	case PhaseSlotB:
		return "slot_b"
	case PhaseTransition:
		return "transition"
	case PhaseClosingA:
		return "closing_a"
	case PhaseClosingB:
		return "closing_b"
	case PhaseCooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("phase_type(%d)", int(phaseType))
	}
}

// Label returns a short human readable name.
func (phaseType PhaseType) Label() string {
	switch phaseType {
	case PhasePrep:
		return "Preparation"
	case PhaseSlotA:
		return "Speaker A"
	case PhaseSlotB:
		return "Speaker B"
	case PhaseTransition:
		return "Transition"
	case PhaseClosingA:
		return "Closing A"
	case PhaseClosingB:
		return "Closing B"
	case PhaseCooldown:
		return "Cooldown"
	default:
		panic(unknownPhaseType(phaseType))
	}
}

// Limits returns the allowed duration range for the phase type.
func (phaseType PhaseType) Limits() DurationRange {
	switch phaseType {
	case PhasePrep:
		return DurationRange{Min: 30, Max: 600}
	case PhaseSlotA, PhaseSlotB:
		return DurationRange{Min: 300, Max: 1800}
	case PhaseTransition:
		return DurationRange{Min: 30, Max: 300}
	case PhaseClosingA, PhaseClosingB:
		return DurationRange{Min: 60, Max: 600}
	case PhaseCooldown:
		return DurationRange{Min: 300, Max: 1800}
	default:
		panic(unknownPhaseType(phaseType))
	}
}

// Speaker returns who speaks during the phase.
func (phaseType PhaseType) Speaker() Speaker {
	switch phaseType {
	case PhaseSlotA, PhaseClosingA:
		return SpeakerA
	case PhaseSlotB, PhaseClosingB:
		return SpeakerB
	case PhasePrep, PhaseTransition, PhaseCooldown:
		return SpeakerNone
	default:
		panic(unknownPhaseType(phaseType))
	}
}

// Color returns the display color as a hex string.
func (phaseType PhaseType) Color() string {
	switch phaseType {
	case PhasePrep:
		return "#9AA5B1"
	case PhaseSlotA:
		return "#3A86FF"
	case PhaseSlotB:
		return "#FB5607"
	case PhaseTransition:
		return "#8338EC"
	case PhaseClosingA:
		return "#72A8FF"
	case PhaseClosingB:
		return "#FF8C4A"
	case PhaseCooldown:
		return "#2A9D8F"
	default:
		panic(unknownPhaseType(phaseType))
	}
}

// IsSpeaking reports whether the phase is a speaking slot.
func (phaseType PhaseType) IsSpeaking() bool {
	return phaseType == PhaseSlotA || phaseType == PhaseSlotB
}

// ParsePhaseType parses the lowercase wire name of a phase type.
func ParsePhaseType(value string) (PhaseType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, phaseType := range AllPhaseTypes() {
		if phaseType.String() == normalized {
			return phaseType, nil
		}
	}
	return 0, fmt.Errorf("unknown phase type %q", value)
}

// MarshalText implements encoding.TextMarshaler.
func (phaseType PhaseType) MarshalText() ([]byte, error) {
	if !phaseType.Valid() {
		return nil, unknownPhaseType(phaseType)
	}
	return []byte(phaseType.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (phaseType *PhaseType) UnmarshalText(text []byte) error {
	parsed, err := ParsePhaseType(string(text))
	if err != nil {
		return err
	}
	*phaseType = parsed
	return nil
}

func unknownPhaseType(phaseType PhaseType) error {
	return fmt.Errorf("unknown phase type %d", int(phaseType))
}
