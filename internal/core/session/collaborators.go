package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"duet/internal/core/clock"
	"duet/internal/core/events"
	"duet/internal/core/model"
)

// Clock is the time source driving a run.
type Clock interface {
	Start(onTick clock.TickFunc)
	Pause()
	Resume()
	Stop()
}

// AudioSink realizes boundary events as sound. Play runs on the engine's cue
// goroutine, never under the engine lock, so a slow sink only delays later
// cues. Errors and panics are logged and otherwise ignored.
type AudioSink interface {
	Play(ctx context.Context, event events.Event) error
}

// GuidanceProvider supplies tips for a phase at a given guidance level.
type GuidanceProvider interface {
	TipsForPhase(phaseType model.PhaseType, level model.GuidanceLevel) []string
	RandomTip(phaseType model.PhaseType, level model.GuidanceLevel) (string, bool)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the default drift-corrected clock.
func WithClock(source Clock) Option {
	return func(engine *Engine) {
		if source != nil {
			engine.clock = source
		}
	}
}

// WithAudioSink sets the sink boundary cues are sent to.
func WithAudioSink(sink AudioSink) Option {
	return func(engine *Engine) {
		engine.audio = sink
	}
}

// WithCueBuffer sets how many cues may wait for a slow audio sink.
func WithCueBuffer(size int) Option {
	return func(engine *Engine) {
		if size > 0 {
			engine.cueBuffer = size
		}
	}
}

// WithGuidance sets the tip provider.
func WithGuidance(provider GuidanceProvider) Option {
	return func(engine *Engine) {
		engine.guidance = provider
	}
}

// WithLogger replaces the instrumentation logger.
func WithLogger(log *slog.Logger) Option {
	return func(engine *Engine) {
		if log != nil {
			engine.logger = log
		}
	}
}

// WithNow replaces the wall-clock source used for timestamps and pause
// accounting.
func WithNow(now func() time.Time) Option {
	return func(engine *Engine) {
		if now != nil {
			engine.now = now
		}
	}
}

// WithIDGenerator replaces the session identifier generator.
func WithIDGenerator(generate func() string) Option {
	return func(engine *Engine) {
		if generate != nil {
			engine.newID = generate
		}
	}
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
