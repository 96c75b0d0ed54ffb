// Package session runs a timed multi-phase conversation.
//
// The Engine owns the run state. A Clock reports elapsed running time, and on
// every tick the engine derives the current phase and the time left in it,
// emits boundary events as phases end and begin, and publishes exactly one
// snapshot to subscribers.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"duet/internal/core/clock"
	"duet/internal/core/events"
	"duet/internal/core/model"
)

// Engine is a state machine that walks a PhaseSequence in real time.
type Engine struct {
	mu       sync.Mutex
	clock    Clock
	audio    AudioSink
	guidance GuidanceProvider
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	state State
	// phaseStart is the session time at which the current phase began.
	phaseStart time.Duration
	// generation changes on every start and stop so ticks from an earlier
	// run are recognized and dropped.
	generation uint64

	ctx         context.Context
	span        trace.Span
	transitions metric.Int64Counter
	failures    metric.Int64Counter
	droppedCues metric.Int64Counter

	cueBuffer int
	cues      chan cue
	cuesDone  chan struct{}
	closed    bool
	dropped   atomic.Int64

	subscribers      []subscriber
	nextSubscriberID int
	pending          []delivery
	dispatching      bool
}

// New creates an idle Engine.
func New(opts ...Option) *Engine {
	engine := &Engine{
		logger:    logger,
		now:       time.Now,
		newID:     newSessionID,
		ctx:       context.Background(),
		cueBuffer: DefaultCueBuffer,
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.clock == nil {
		engine.clock = clock.New()
	}

	var err error
	engine.transitions, err = meter.Int64Counter("duet.session.transitions",
		metric.WithDescription("Phase transitions taken by running sessions"))
	if err != nil {
		engine.logger.Warn("failed to create transitions counter", "error", err)
	}
	engine.failures, err = meter.Int64Counter("duet.collaborator.failures",
		metric.WithDescription("Audio and guidance calls that failed or panicked"))
	if err != nil {
		engine.logger.Warn("failed to create failures counter", "error", err)
	}
	engine.droppedCues, err = meter.Int64Counter("duet.session.cues_dropped",
		metric.WithDescription("Audio cues discarded because the sink fell behind"))
	if err != nil {
		engine.logger.Warn("failed to create dropped cues counter", "error", err)
	}
	if engine.audio != nil {
		engine.startCueWorker()
	}
	return engine
}

// Subscribe registers an observer of state snapshots. The observer is given
// the current snapshot before Subscribe returns, also when called from inside
// another callback. The returned function removes it.
func (engine *Engine) Subscribe(onState func(State)) func() {
	gate := &sync.Mutex{}
	gate.Lock()
	defer gate.Unlock()

	engine.mu.Lock()
	unsubscribe := engine.subscribeLocked(subscriber{onState: onState, gate: gate})
	entry, _ := engine.lookupLocked(engine.nextSubscriberID)
	snapshot := engine.state.Clone()
	engine.mu.Unlock()

	engine.invoke(entry, delivery{subscriberID: entry.id, state: &snapshot})
	return unsubscribe
}

// SubscribeEvents registers an observer of boundary events. Events and
// snapshots share one ordered queue.
func (engine *Engine) SubscribeEvents(onEvent func(events.Event)) func() {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.subscribeLocked(subscriber{onEvent: onEvent})
}

// State returns a copy of the current snapshot.
func (engine *Engine) State() State {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.state.Clone()
}

// Start stops any current run and begins the given sequence from its first
// phase. It returns false when the sequence fails validation, in which case
// the engine is left idle.
func (engine *Engine) Start(sequence model.PhaseSequence) bool {
	engine.mu.Lock()
	engine.stopLocked()

	if violations := model.Validate(sequence); len(violations) > 0 {
		engine.logger.Warn("refusing to start invalid sequence",
			"mode", sequence.ID, "violations", len(violations), "first", violations[0].Error())
		engine.mu.Unlock()
		engine.flush()
		return false
	}

	active := sequence.Clone()
	first := active.Phases[0]
	engine.generation++
	engine.phaseStart = 0
	engine.state = State{
		Status:               StatusRunning,
		SessionID:            engine.newID(),
		ActiveSequence:       &active,
		CurrentPhaseIndex:    0,
		Round:                model.RoundAt(active, 0),
		RemainingTimeInPhase: first.Duration(),
		StartedAt:            engine.now(),
	}
	engine.ctx, engine.span = tracer.Start(context.Background(), "session.run",
		trace.WithAttributes(
			attribute.String("session.id", engine.state.SessionID),
			attribute.String("mode.id", active.ID),
			attribute.Int("phase.count", len(active.Phases)),
		))
	engine.logger.Info("session started",
		"session_id", engine.state.SessionID, "mode", active.ID, "phases", len(active.Phases),
		"total", model.TotalDuration(active))

	engine.emitLocked(events.KindSessionStart, 0, 0, nil)
	engine.enterPhaseLocked(0)

	generation := engine.generation
	engine.clock.Start(func(elapsed time.Duration) {
		engine.handleTick(generation, elapsed)
	})
	engine.publishLocked()
	engine.mu.Unlock()

	engine.flush()
	return true
}

// Pause freezes a running session.
func (engine *Engine) Pause() {
	engine.mu.Lock()
	if engine.state.Status != StatusRunning {
		engine.mu.Unlock()
		return
	}
	engine.clock.Pause()
	engine.state.Status = StatusPaused
	engine.state.PausedAt = engine.now()
	engine.span.AddEvent("paused")
	engine.logger.Debug("session paused", "session_id", engine.state.SessionID,
		"elapsed", engine.state.ElapsedSessionTime)
	engine.publishLocked()
	engine.mu.Unlock()

	engine.flush()
}

// Resume continues a paused session.
func (engine *Engine) Resume() {
	engine.mu.Lock()
	if engine.state.Status != StatusPaused {
		engine.mu.Unlock()
		return
	}
	engine.state.TotalPausedDuration += max(0, engine.now().Sub(engine.state.PausedAt))
	engine.state.PausedAt = time.Time{}
	engine.state.Status = StatusRunning
	engine.clock.Resume()
	engine.span.AddEvent("resumed")
	engine.logger.Debug("session resumed", "session_id", engine.state.SessionID,
		"paused_total", engine.state.TotalPausedDuration)
	engine.publishLocked()
	engine.mu.Unlock()

	engine.flush()
}

// Stop abandons any run and returns the engine to idle. Calling it while idle
// has no effect beyond stopping the clock.
func (engine *Engine) Stop() {
	engine.mu.Lock()
	engine.stopLocked()
	engine.mu.Unlock()

	engine.flush()
}

// Tips returns the guidance for the current phase at the active sequence's
// level.
func (engine *Engine) Tips() []string {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	phase, ok := engine.state.CurrentPhase()
	if !ok {
		return nil
	}
	return engine.tipsLocked(phase.Type)
}

// RandomTip returns one tip for the current phase.
func (engine *Engine) RandomTip() (string, bool) {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	phase, ok := engine.state.CurrentPhase()
	if !ok || engine.guidance == nil {
		return "", false
	}

	var (
		tip   string
		found bool
	)
	engine.guard("guidance", func() error {
		tip, found = engine.guidance.RandomTip(phase.Type, engine.state.ActiveSequence.GuidanceLevel)
		return nil
	})
	return tip, found
}

func (engine *Engine) stopLocked() {
	engine.clock.Stop()
	if engine.state.Status == StatusIdle {
		return
	}

	if engine.state.Status.Active() {
		engine.span.SetAttributes(attribute.String("session.outcome", "abandoned"))
		engine.span.End()
	}
	engine.logger.Info("session stopped",
		"session_id", engine.state.SessionID, "status", engine.state.Status.String(),
		"elapsed", engine.state.ElapsedSessionTime)

	engine.generation++
	engine.phaseStart = 0
	engine.state = State{}
	engine.ctx = context.Background()
	engine.span = nil
	engine.publishLocked()
}

func (engine *Engine) handleTick(generation uint64, elapsed time.Duration) {
	engine.mu.Lock()
	if generation != engine.generation || engine.state.Status != StatusRunning {
		engine.mu.Unlock()
		return
	}
	engine.advanceLocked(elapsed)
	engine.publishLocked()
	engine.mu.Unlock()

	engine.flush()
}

// advanceLocked moves the run to the given session time, taking as many
// transitions as it spans.
func (engine *Engine) advanceLocked(elapsed time.Duration) {
	if elapsed > engine.state.ElapsedSessionTime {
		engine.state.ElapsedSessionTime = elapsed
	}
	elapsed = engine.state.ElapsedSessionTime

	for engine.state.Status == StatusRunning {
		phase := engine.state.ActiveSequence.Phases[engine.state.CurrentPhaseIndex]
		remaining := phase.Duration() - (elapsed - engine.phaseStart)
		if remaining > 0 {
			engine.state.RemainingTimeInPhase = remaining
			return
		}
		engine.transitionLocked()
	}
}

// transitionLocked completes the current phase and enters the next one, or
// finishes the session after the last phase.
func (engine *Engine) transitionLocked() {
	sequence := engine.state.ActiveSequence
	index := engine.state.CurrentPhaseIndex
	completed := sequence.Phases[index]
	boundary := engine.phaseStart + completed.Duration()

	if kind, ok := events.EndCue(completed.Type); ok {
		engine.emitLocked(kind, index, boundary, nil)
	}

	if index == len(sequence.Phases)-1 {
		engine.clock.Stop()
		engine.emitLocked(events.KindCooldownEnd, index, boundary, nil)
		engine.state.Status = StatusFinished
		engine.state.RemainingTimeInPhase = 0
		engine.span.SetAttributes(attribute.String("session.outcome", "completed"))
		engine.span.End()
		engine.logger.Info("session finished",
			"session_id", engine.state.SessionID, "elapsed", engine.state.ElapsedSessionTime,
			"paused_total", engine.state.TotalPausedDuration)
		return
	}

	engine.phaseStart = boundary
	engine.state.CurrentPhaseIndex = index + 1
	engine.state.Round = model.RoundAt(*sequence, index+1)
	engine.state.RemainingTimeInPhase = sequence.Phases[index+1].Duration()
	if engine.transitions != nil {
		engine.transitions.Add(engine.ctx, 1,
			metric.WithAttributes(attribute.String("phase.type", sequence.Phases[index+1].Type.String())))
	}
	engine.enterPhaseLocked(index + 1)
}

// enterPhaseLocked raises the start cue and tips for the phase at index.
func (engine *Engine) enterPhaseLocked(index int) {
	phase := engine.state.ActiveSequence.Phases[index]
	engine.logger.Debug("phase entered",
		"session_id", engine.state.SessionID, "index", index, "phase", phase.Type.String(),
		"round", engine.state.Round)

	if kind, ok := events.StartCue(phase.Type); ok {
		engine.emitLocked(kind, index, engine.phaseStart, nil)
	}
	if tips := engine.tipsLocked(phase.Type); len(tips) > 0 {
		engine.emitLocked(events.KindTipsAvailable, index, engine.phaseStart, tips)
	}
}

// emitLocked raises an event. at is the session time of the boundary.
func (engine *Engine) emitLocked(kind events.Kind, index int, at time.Duration, tips []string) {
	phase := engine.state.ActiveSequence.Phases[index]
	event := events.Event{
		Kind:       kind,
		SessionID:  engine.state.SessionID,
		PhaseIndex: index,
		Phase:      phase.Type,
		Elapsed:    at,
		Tips:       tips,
		At:         engine.now(),
	}
	engine.span.AddEvent(string(kind), trace.WithAttributes(
		attribute.Int("phase.index", index),
		attribute.String("phase.type", phase.Type.String()),
	))

	if kind.IsAudio() {
		engine.queueCueLocked(event)
	}
	engine.enqueueEventLocked(event)
}

func (engine *Engine) tipsLocked(phaseType model.PhaseType) []string {
	if engine.guidance == nil || engine.state.ActiveSequence == nil {
		return nil
	}

	var tips []string
	engine.guard("guidance", func() error {
		tips = engine.guidance.TipsForPhase(phaseType, engine.state.ActiveSequence.GuidanceLevel)
		return nil
	})
	return append([]string(nil), tips...)
}

// guard runs a guidance call, containing its errors and panics.
func (engine *Engine) guard(collaborator string, call func() error) {
	if err := contain(call); err != nil {
		engine.reportFailure(engine.ctx, collaborator, engine.state.SessionID, err)
	}
}
