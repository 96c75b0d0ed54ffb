// Package audio turns session boundary events into cues.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"duet/internal/core/events"
)

const DefaultQueueSize = 16

var (
	ErrQueueFull = errors.New("audio queue full")
	ErrClosed    = errors.New("audio sink closed")
)

// Player realizes a single cue. Calls happen one at a time on the sink's
// worker goroutine, so a Player may block for the length of the sound.
type Player interface {
	PlayCue(ctx context.Context, event events.Event) error
}

// PlayerFunc adapts a function to Player.
type PlayerFunc func(ctx context.Context, event events.Event) error

func (fn PlayerFunc) PlayCue(ctx context.Context, event events.Event) error {
	return fn(ctx, event)
}

type cue struct {
	ctx   context.Context
	event events.Event
}

// QueueSink accepts cues without blocking and plays them in order on a
// worker goroutine. When the queue is full new cues are dropped.
type QueueSink struct {
	player  Player
	logger  *slog.Logger
	size    int
	queue   chan cue
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64

	dropCounter metric.Int64Counter
}

// Option configures a QueueSink.
type Option func(*QueueSink)

// WithQueueSize sets the number of cues that may wait for the player.
func WithQueueSize(size int) Option {
	return func(sink *QueueSink) {
		if size > 0 {
			sink.size = size
		}
	}
}

// WithLogger replaces the instrumentation logger.
func WithLogger(log *slog.Logger) Option {
	return func(sink *QueueSink) {
		if log != nil {
			sink.logger = log
		}
	}
}

// NewQueueSink starts a sink that plays through player.
func NewQueueSink(player Player, opts ...Option) *QueueSink {
	sink := &QueueSink{
		player: player,
		logger: logger,
		size:   DefaultQueueSize,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sink)
	}
	sink.queue = make(chan cue, sink.size)

	var err error
	sink.dropCounter, err = meter.Int64Counter("duet.audio.dropped",
		metric.WithDescription("Cues dropped because the queue was full"))
	if err != nil {
		sink.logger.Warn("failed to create dropped counter", "error", err)
	}

	go sink.run()
	return sink
}

// Play queues the event. It never blocks.
func (sink *QueueSink) Play(ctx context.Context, event events.Event) error {
	sink.mu.RLock()
	defer sink.mu.RUnlock()
	if sink.closed {
		return ErrClosed
	}

	select {
	case sink.queue <- cue{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		sink.dropped.Add(1)
		if sink.dropCounter != nil {
			sink.dropCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("cue", string(event.Kind))))
		}
		return fmt.Errorf("%w: dropped %s", ErrQueueFull, event.Kind)
	}
}

// Dropped returns how many cues were discarded.
func (sink *QueueSink) Dropped() int64 {
	return sink.dropped.Load()
}

// Close stops accepting cues, plays the ones already queued and waits for
// the worker to exit.
func (sink *QueueSink) Close() {
	sink.mu.Lock()
	if !sink.closed {
		sink.closed = true
		close(sink.queue)
	}
	sink.mu.Unlock()

	<-sink.done
}

func (sink *QueueSink) run() {
	defer close(sink.done)
	for next := range sink.queue {
		if err := sink.playSafely(next); err != nil {
			sink.logger.Warn("cue failed", "cue", string(next.event.Kind), "error", err)
		}
	}
}

func (sink *QueueSink) playSafely(next cue) (err error) {
	ctx, span := tracer.Start(next.ctx, "play cue")
	defer span.End()
	span.SetAttributes(attribute.String("cue", string(next.event.Kind)))

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("player panicked: %v", recovered)
		}
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err = sink.player.PlayCue(ctx, next.event); err != nil {
		return fmt.Errorf("player failed: %w", err)
	}
	return nil
}
