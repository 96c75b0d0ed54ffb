package session

import (
	"time"

	"github.com/jinzhu/copier"

	"duet/internal/core/model"
)

// Status is the lifecycle state of the engine.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusPaused
	StatusFinished
)

func (status Status) String() string {
	switch status {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Active reports whether a session is in progress.
func (status Status) Active() bool {
	return status == StatusRunning || status == StatusPaused
}

// State is a snapshot of the run. Subscribers receive their own copy and may
// keep or modify it freely.
//
// StartedAt and PausedAt are zero when unset. ElapsedSessionTime excludes
// paused spans.
type State struct {
	Status               Status
	SessionID            string
	ActiveSequence       *model.PhaseSequence
	CurrentPhaseIndex    int
	Round                int
	RemainingTimeInPhase time.Duration
	ElapsedSessionTime   time.Duration
	StartedAt            time.Time
	PausedAt             time.Time
	TotalPausedDuration  time.Duration
}

// CurrentPhase returns the descriptor of the current phase, if any.
func (state State) CurrentPhase() (model.PhaseDescriptor, bool) {
	if state.ActiveSequence == nil {
		return model.PhaseDescriptor{}, false
	}
	return state.ActiveSequence.Phase(state.CurrentPhaseIndex)
}

// RemainingSession returns the time left until the session ends.
func (state State) RemainingSession() time.Duration {
	if state.ActiveSequence == nil {
		return 0
	}
	return max(0, model.TotalDuration(*state.ActiveSequence)-state.ElapsedSessionTime)
}

// Clone returns a deep copy of the snapshot.
func (state State) Clone() State {
	clone := state
	if state.ActiveSequence != nil {
		sequence := new(model.PhaseSequence)
		if err := copier.CopyWithOption(sequence, state.ActiveSequence, copier.Option{DeepCopy: true}); err != nil {
			*sequence = state.ActiveSequence.Clone()
		}
		clone.ActiveSequence = sequence
	}
	return clone
}
