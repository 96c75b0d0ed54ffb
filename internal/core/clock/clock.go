// Package clock provides a drift-corrected ticking clock.
//
// Elapsed time is always derived by subtracting instants, never by summing
// tick intervals, so scheduling jitter never accumulates. time.Now readings
// carry the monotonic clock, which keeps the result immune to wall-clock
// adjustments.
package clock

import (
	"sync"
	"time"
)

const (
	// DefaultInterval is the tick period used when none is configured.
	DefaultInterval = 100 * time.Millisecond
	// MinInterval is the shortest tick period the clock accepts.
	MinInterval = 16 * time.Millisecond
)

// TickFunc receives the elapsed running time on every tick.
type TickFunc func(elapsed time.Duration)

// Option configures a Clock.
type Option func(*Clock)

// WithInterval sets the tick period. Values below MinInterval are raised to it.
func WithInterval(interval time.Duration) Option {
	return func(clock *Clock) {
		if interval <= 0 {
			interval = DefaultInterval
		}
		clock.interval = max(interval, MinInterval)
	}
}

// WithNow replaces the time source.
func WithNow(now func() time.Time) Option {
	return func(clock *Clock) {
		if now != nil {
			clock.now = now
		}
	}
}

// Clock reports time elapsed since a logical start, excluding paused spans,
// and delivers it periodically to a callback.
type Clock struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time

	running     bool
	paused      bool
	startedAt   time.Time
	pausedAt    time.Time
	stoppedAt   time.Time
	pausedTotal time.Duration

	onTick     TickFunc
	target     time.Duration
	onComplete func()
	completed  bool

	generation uint64
	stopCh     chan struct{}
}

// New creates a stopped clock.
func New(opts ...Option) *Clock {
	clock := &Clock{
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(clock)
	}
	return clock
}

// Interval returns the configured tick period.
func (clock *Clock) Interval() time.Duration {
	return clock.interval
}

// Start begins a new run, stopping any previous one. The callback fires once
// immediately and then every interval until Stop.
func (clock *Clock) Start(onTick TickFunc) {
	clock.StartWithTarget(onTick, 0, nil)
}

// StartWithTarget is Start with a completion deadline. Once elapsed time
// reaches target, onComplete fires exactly once and the clock stops itself.
// A target of zero disables completion.
func (clock *Clock) StartWithTarget(onTick TickFunc, target time.Duration, onComplete func()) {
	clock.mu.Lock()
	clock.stopLocked()

	clock.generation++
	clock.running = true
	clock.paused = false
	clock.startedAt = clock.now()
	clock.pausedAt = time.Time{}
	clock.stoppedAt = time.Time{}
	clock.pausedTotal = 0
	clock.onTick = onTick
	clock.target = target
	clock.onComplete = onComplete
	clock.completed = false

	stopCh := make(chan struct{})
	clock.stopCh = stopCh
	generation := clock.generation
	clock.mu.Unlock()

	go clock.run(generation, stopCh)
}

// Pause freezes elapsed time and tick delivery. It is a no-op unless running.
func (clock *Clock) Pause() {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	if !clock.running || clock.paused {
		return
	}
	clock.paused = true
	clock.pausedAt = clock.now()
}

// Resume continues a paused run. The paused span never counts as elapsed.
func (clock *Clock) Resume() {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	if !clock.running || !clock.paused {
		return
	}
	clock.pausedTotal += max(0, clock.now().Sub(clock.pausedAt))
	clock.paused = false
	clock.pausedAt = time.Time{}
}

// Stop halts tick delivery and releases the ticker. It is safe to call from
// inside the tick callback and more than once.
func (clock *Clock) Stop() {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.stopLocked()
}

// Running reports whether a run is in progress, paused or not.
func (clock *Clock) Running() bool {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.running
}

// Paused reports whether the current run is paused.
func (clock *Clock) Paused() bool {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.paused
}

// Elapsed returns running time since start, excluding paused spans.
func (clock *Clock) Elapsed() time.Duration {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.elapsedLocked()
}

func (clock *Clock) elapsedLocked() time.Duration {
	if clock.startedAt.IsZero() {
		return 0
	}
	var reference time.Time
	switch {
	case clock.paused:
		reference = clock.pausedAt
	case !clock.running:
		reference = clock.stoppedAt
	default:
		reference = clock.now()
	}
	return max(0, reference.Sub(clock.startedAt)-clock.pausedTotal)
}

func (clock *Clock) stopLocked() {
	if !clock.running {
		return
	}
	if clock.paused {
		clock.stoppedAt = clock.pausedAt
	} else {
		clock.stoppedAt = clock.now()
	}
	clock.running = false
	clock.paused = false
	clock.generation++
	if clock.stopCh != nil {
		close(clock.stopCh)
		clock.stopCh = nil
	}
}

func (clock *Clock) run(generation uint64, stopCh <-chan struct{}) {
	clock.fire(generation)

	ticker := time.NewTicker(clock.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			clock.fire(generation)
		}
	}
}

func (clock *Clock) fire(generation uint64) {
	clock.mu.Lock()
	if generation != clock.generation || !clock.running || clock.paused {
		clock.mu.Unlock()
		return
	}
	elapsed := clock.elapsedLocked()
	onTick := clock.onTick

	var onComplete func()
	if clock.target > 0 && elapsed >= clock.target && !clock.completed {
		clock.completed = true
		onComplete = clock.onComplete
		clock.stopLocked()
	}
	clock.mu.Unlock()

	if onTick != nil {
		onTick(elapsed)
	}
	if onComplete != nil {
		onComplete()
	}
}
