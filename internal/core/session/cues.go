package session

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"duet/internal/core/events"
)

// DefaultCueBuffer is how many audio cues may wait for the sink before new
// ones are dropped.
const DefaultCueBuffer = 32

type cue struct {
	ctx   context.Context
	event events.Event
}

// startCueWorker launches the goroutine that hands cues to the audio sink.
// The sink is never called with the engine lock held.
func (engine *Engine) startCueWorker() {
	engine.cues = make(chan cue, engine.cueBuffer)
	engine.cuesDone = make(chan struct{})
	go func() {
		defer close(engine.cuesDone)
		for next := range engine.cues {
			engine.play(next)
		}
	}()
}

// queueCueLocked hands an event to the cue worker without waiting. A full
// buffer drops the event.
func (engine *Engine) queueCueLocked(event events.Event) {
	if engine.cues == nil || engine.closed {
		return
	}
	select {
	case engine.cues <- cue{ctx: engine.ctx, event: event}:
	default:
		engine.dropped.Add(1)
		engine.logger.Warn("audio cue dropped",
			"session_id", event.SessionID, "cue", string(event.Kind), "buffer", cap(engine.cues))
		if engine.droppedCues != nil {
			engine.droppedCues.Add(engine.ctx, 1, metric.WithAttributes(attribute.String("cue", string(event.Kind))))
		}
	}
}

func (engine *Engine) play(next cue) {
	if err := contain(func() error { return engine.audio.Play(next.ctx, next.event) }); err != nil {
		engine.reportFailure(next.ctx, "audio", next.event.SessionID, err)
	}
}

// DroppedCues reports how many audio cues were discarded because the sink
// fell behind.
func (engine *Engine) DroppedCues() int64 {
	return engine.dropped.Load()
}

// Close stops any run and waits until queued cues have been played. The
// engine stays usable but no longer sends cues to the audio sink.
func (engine *Engine) Close() {
	engine.Stop()

	engine.mu.Lock()
	if engine.closed || engine.cues == nil {
		engine.closed = true
		engine.mu.Unlock()
		return
	}
	engine.closed = true
	close(engine.cues)
	engine.mu.Unlock()

	<-engine.cuesDone
}

// contain runs a collaborator call, turning a panic into an error.
func contain(call func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return call()
}

func (engine *Engine) reportFailure(ctx context.Context, collaborator, sessionID string, err error) {
	engine.logger.Warn("collaborator failed",
		"collaborator", collaborator, "session_id", sessionID, "error", err)
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, collaborator+" failed")
	}
	if engine.failures != nil {
		engine.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("collaborator", collaborator)))
	}
}
