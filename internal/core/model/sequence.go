package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// PhaseDescriptor describes a single timed phase of a sequence.
type PhaseDescriptor struct {
	ID              string    `yaml:"id" json:"id"`
	Type            PhaseType `yaml:"type" json:"type"`
	DurationSeconds int       `yaml:"duration_seconds" json:"duration_seconds"`
}

// Duration returns the target duration of the phase.
func (phase PhaseDescriptor) Duration() time.Duration {
	return time.Duration(phase.DurationSeconds) * time.Second
}

// GuidanceLevel controls how much tip content is surfaced between speaking phases.
type GuidanceLevel int

const (
	GuidanceNone GuidanceLevel = iota
	GuidanceMinimal
	GuidanceStandard
	GuidanceDetailed
)

// AllGuidanceLevels returns the guidance levels from least to most verbose.
func AllGuidanceLevels() []GuidanceLevel {
	return []GuidanceLevel{GuidanceNone, GuidanceMinimal, GuidanceStandard, GuidanceDetailed}
}

func (level GuidanceLevel) String() string {
	switch level {
	case GuidanceNone:
		return "none"
	case GuidanceMinimal:
		return "minimal"
	case GuidanceStandard:
		return "standard"
	case GuidanceDetailed:
		return "detailed"
	default:
		return fmt.Sprintf("guidance_level(%d)", int(level))
	}
}

// ParseGuidanceLevel parses the lowercase name of a guidance level.
func ParseGuidanceLevel(value string) (GuidanceLevel, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, level := range AllGuidanceLevels() {
		if level.String() == normalized {
			return level, nil
		}
	}
	return GuidanceNone, fmt.Errorf("unknown guidance level %q", value)
}

// MarshalText implements encoding.TextMarshaler.
func (level GuidanceLevel) MarshalText() ([]byte, error) {
	if level < GuidanceNone || level > GuidanceDetailed {
		return nil, fmt.Errorf("unknown guidance level %d", int(level))
	}
	return []byte(level.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (level *GuidanceLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseGuidanceLevel(string(text))
	if err != nil {
		return err
	}
	*level = parsed
	return nil
}

// PhaseSequence is an ordered list of phases, also called a mode.
type PhaseSequence struct {
	ID            string            `yaml:"id" json:"id"`
	Name          string            `yaml:"name" json:"name"`
	Phases        []PhaseDescriptor `yaml:"phases" json:"phases"`
	GuidanceLevel GuidanceLevel     `yaml:"guidance_level" json:"guidance_level"`
	Locked        bool              `yaml:"locked,omitempty" json:"locked,omitempty"`
}

// Clone returns a copy that shares no memory with the receiver.
func (sequence PhaseSequence) Clone() PhaseSequence {
	sequence.Phases = slices.Clone(sequence.Phases)
	return sequence
}

// Phase returns the phase at index, or false when index is out of range.
func (sequence PhaseSequence) Phase(index int) (PhaseDescriptor, bool) {
	if index < 0 || index >= len(sequence.Phases) {
		return PhaseDescriptor{}, false
	}
	return sequence.Phases[index], true
}

// TotalDuration returns the sum of all phase durations.
func TotalDuration(sequence PhaseSequence) time.Duration {
	var total time.Duration
	for _, phase := range sequence.Phases {
		total += phase.Duration()
	}
	return total
}

// RoundCount returns the number of complete SlotA/SlotB pairings.
func RoundCount(sequence PhaseSequence) int {
	slotA, slotB := countSlots(sequence.Phases)
	return min(slotA, slotB)
}

// RoundAt returns the 1-based round that the phase at index belongs to.
// Only speaking slots and the transitions between them belong to a round;
// every other phase, and any slot beyond the matched count, reports 0.
func RoundAt(sequence PhaseSequence, index int) int {
	if index < 0 || index >= len(sequence.Phases) {
		return 0
	}
	phaseType := sequence.Phases[index].Type
	if !phaseType.IsSpeaking() && phaseType != PhaseTransition {
		return 0
	}
	slotA, slotB := countSlots(sequence.Phases[:index+1])
	round := max(slotA, slotB)
	if round == 0 || round > RoundCount(sequence) {
		return 0
	}
	return round
}

func countSlots(phases []PhaseDescriptor) (int, int) {
	var slotA, slotB int
	for _, phase := range phases {
		switch phase.Type {
		case PhaseSlotA:
			slotA++
		case PhaseSlotB:
			slotB++
		}
	}
	return slotA, slotB
}
