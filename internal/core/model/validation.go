package model

import (
	"errors"
	"fmt"
)

// ViolationCode categorizes a sequence validation failure.
type ViolationCode string

const (
	ViolationEmpty              ViolationCode = "empty"
	ViolationMissingSlotA       ViolationCode = "missing_slot_a"
	ViolationMissingSlotB       ViolationCode = "missing_slot_b"
	ViolationUnknownPhaseType   ViolationCode = "unknown_phase_type"
	ViolationDurationOutOfRange ViolationCode = "duration_out_of_range"
)

// Violation describes one reason a sequence cannot be started.
// PhaseIndex is -1 for sequence-level violations.
type Violation struct {
	Code            ViolationCode
	PhaseIndex      int
	PhaseType       PhaseType
	DurationSeconds int
	Allowed         DurationRange
}

func (violation Violation) Error() string {
	switch violation.Code {
	case ViolationEmpty:
		return "sequence has no phases"
	case ViolationMissingSlotA:
		return "sequence has no slot_a phase"
	case ViolationMissingSlotB:
		return "sequence has no slot_b phase"
	case ViolationUnknownPhaseType:
		return fmt.Sprintf("phase %d: %s", violation.PhaseIndex, violation.PhaseType)
	case ViolationDurationOutOfRange:
		return fmt.Sprintf("phase %d (%s): duration %ds outside %d-%ds",
			violation.PhaseIndex, violation.PhaseType, violation.DurationSeconds,
			violation.Allowed.Min, violation.Allowed.Max)
	default:
		return string(violation.Code)
	}
}

// Validate collects every rule the sequence breaks. An empty result means the
// sequence can be started.
func Validate(sequence PhaseSequence) []Violation {
	var violations []Violation
	if len(sequence.Phases) == 0 {
		violations = append(violations, Violation{Code: ViolationEmpty, PhaseIndex: -1})
	}

	slotA, slotB := countSlots(sequence.Phases)
	if slotA == 0 {
		violations = append(violations, Violation{Code: ViolationMissingSlotA, PhaseIndex: -1})
	}
	if slotB == 0 {
		violations = append(violations, Violation{Code: ViolationMissingSlotB, PhaseIndex: -1})
	}

	for index, phase := range sequence.Phases {
		if !phase.Type.Valid() {
			violations = append(violations, Violation{
				Code:       ViolationUnknownPhaseType,
				PhaseIndex: index,
				PhaseType:  phase.Type,
			})
			continue
		}
		limits := phase.Type.Limits()
		if !limits.Contains(phase.DurationSeconds) {
			violations = append(violations, Violation{
				Code:            ViolationDurationOutOfRange,
				PhaseIndex:      index,
				PhaseType:       phase.Type,
				DurationSeconds: phase.DurationSeconds,
				Allowed:         limits,
			})
		}
	}
	return violations
}

// Err joins all validation violations into one error, or returns nil.
func (sequence PhaseSequence) Err() error {
	violations := Validate(sequence)
	if len(violations) == 0 {
		return nil
	}
	errs := make([]error, 0, len(violations))
	for _, violation := range violations {
		errs = append(errs, violation)
	}
	return errors.Join(errs...)
}
