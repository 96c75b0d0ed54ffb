package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"duet/internal/core/session"
)

// Recorder writes a history row whenever an observed session finishes or is
// stopped early.
type Recorder struct {
	history *History
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	last     session.State
	recorded string
}

// NewRecorder creates a Recorder writing to history.
func NewRecorder(history *History, log *slog.Logger) *Recorder {
	if log == nil {
		log = logger
	}
	return &Recorder{history: history, logger: log, now: time.Now}
}

// Attach subscribes the recorder to engine and returns the unsubscribe
// function.
func (recorder *Recorder) Attach(engine *session.Engine) func() {
	return engine.Subscribe(recorder.Observe)
}

// Observe consumes one engine snapshot.
func (recorder *Recorder) Observe(state session.State) {
	recorder.mu.Lock()
	previous := recorder.last
	recorder.last = state

	var record *SessionRecord
	switch {
	case state.Status == session.StatusFinished && recorder.recorded != state.SessionID:
		record = recorder.recordFrom(state, OutcomeCompleted)
	case previous.Status.Active() && state.SessionID != previous.SessionID && recorder.recorded != previous.SessionID:
		record = recorder.recordFrom(previous, OutcomeAbandoned)
	}
	if record != nil {
		recorder.recorded = record.SessionID
	}
	recorder.mu.Unlock()

	if record == nil {
		return
	}
	if err := recorder.history.Record(context.Background(), *record); err != nil {
		recorder.logger.Warn("failed to record session", "session_id", record.SessionID, "error", err)
		return
	}
	recorder.logger.Debug("session recorded", "session_id", record.SessionID, "outcome", string(record.Outcome))
}

func (recorder *Recorder) recordFrom(state session.State, outcome Outcome) *SessionRecord {
	ended := recorder.now()
	paused := state.TotalPausedDuration
	if state.Status == session.StatusPaused && !state.PausedAt.IsZero() {
		paused += max(0, ended.Sub(state.PausedAt))
	}

	record := &SessionRecord{
		SessionID: state.SessionID,
		StartedAt: state.StartedAt,
		EndedAt:   ended,
		Elapsed:   state.ElapsedSessionTime,
		Paused:    paused,
		Outcome:   outcome,
	}
	if sequence := state.ActiveSequence; sequence != nil {
		record.ModeID = sequence.ID
		record.ModeName = sequence.Name
		record.PhaseCount = len(sequence.Phases)
	}
	if outcome == OutcomeCompleted {
		record.PhasesCompleted = record.PhaseCount
	} else {
		record.PhasesCompleted = state.CurrentPhaseIndex
	}
	return record
}
