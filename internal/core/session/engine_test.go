package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duet/internal/core/clock"
	"duet/internal/core/events"
	"duet/internal/core/model"
)

type fakeClock struct {
	mu      sync.Mutex
	onTick  clock.TickFunc
	starts  int
	pauses  int
	resumes int
	stops   int
}

func (fake *fakeClock) Start(onTick clock.TickFunc) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.onTick = onTick
	fake.starts++
}

func (fake *fakeClock) Pause() {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.pauses++
}

func (fake *fakeClock) Resume() {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.resumes++
}

func (fake *fakeClock) Stop() {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.stops++
}

func (fake *fakeClock) callback() clock.TickFunc {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.onTick
}

func (fake *fakeClock) Tick(elapsed time.Duration) {
	fake.callback()(elapsed)
}

type fakeNow struct {
	mu      sync.Mutex
	current time.Time
}

func (fake *fakeNow) Now() time.Time {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.current
}

func (fake *fakeNow) Advance(delta time.Duration) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.current = fake.current.Add(delta)
}

type recordingSink struct {
	mu     sync.Mutex
	kinds  []events.Kind
	err    error
	panics bool
}

func (sink *recordingSink) Play(_ context.Context, event events.Event) error {
	sink.mu.Lock()
	sink.kinds = append(sink.kinds, event.Kind)
	err, panics := sink.err, sink.panics
	sink.mu.Unlock()
	if panics {
		panic("speaker unplugged")
	}
	return err
}

func (sink *recordingSink) fail(err error, panics bool) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.err = err
	sink.panics = panics
}

func (sink *recordingSink) played() []events.Kind {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	return append([]events.Kind(nil), sink.kinds...)
}

// blockingSink holds every Play call until release is closed.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingSink() *blockingSink {
	return &blockingSink{entered: make(chan struct{}, 64), release: make(chan struct{})}
}

func (sink *blockingSink) Play(_ context.Context, _ events.Event) error {
	sink.entered <- struct{}{}
	<-sink.release
	return nil
}

type staticGuidance struct {
	tips   map[model.PhaseType][]string
	panics bool
}

func (guidance staticGuidance) TipsForPhase(phaseType model.PhaseType, _ model.GuidanceLevel) []string {
	if guidance.panics {
		panic("catalog missing")
	}
	return guidance.tips[phaseType]
}

func (guidance staticGuidance) RandomTip(phaseType model.PhaseType, level model.GuidanceLevel) (string, bool) {
	tips := guidance.TipsForPhase(phaseType, level)
	if len(tips) == 0 {
		return "", false
	}
	return tips[0], true
}

func phase(phaseType model.PhaseType, seconds int) model.PhaseDescriptor {
	return model.PhaseDescriptor{ID: phaseType.String(), Type: phaseType, DurationSeconds: seconds}
}

func shortSequence() model.PhaseSequence {
	return model.PhaseSequence{
		ID:   "short",
		Name: "Short",
		Phases: []model.PhaseDescriptor{
			phase(model.PhaseSlotA, 300),
			phase(model.PhaseSlotB, 300),
			phase(model.PhaseTransition, 30),
			phase(model.PhaseClosingA, 60),
			phase(model.PhaseCooldown, 300),
		},
		GuidanceLevel: model.GuidanceStandard,
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeClock, *fakeNow) {
	t.Helper()
	ticker := &fakeClock{}
	now := &fakeNow{current: time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)}
	ids := 0
	base := []Option{
		WithClock(ticker),
		WithNow(now.Now),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("session-%d", ids)
		}),
	}
	return New(append(base, opts...)...), ticker, now
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (log *stateLog) record(state State) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.states = append(log.states, state)
}

func (log *stateLog) count() int {
	log.mu.Lock()
	defer log.mu.Unlock()
	return len(log.states)
}

func (log *stateLog) last() State {
	log.mu.Lock()
	defer log.mu.Unlock()
	return log.states[len(log.states)-1]
}

func TestEventTrace(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)

	var trace bytes.Buffer
	engine.SubscribeEvents(func(event events.Event) {
		fmt.Fprintf(&trace, "event kind=%s index=%d type=%s at=%s\n",
			event.Kind, event.PhaseIndex, event.Phase, event.Elapsed)
	})
	engine.Subscribe(func(state State) {
		fmt.Fprintf(&trace, "state status=%s index=%d round=%d remaining=%s elapsed=%s\n",
			state.Status, state.CurrentPhaseIndex, state.Round, state.RemainingTimeInPhase, state.ElapsedSessionTime)
	})

	require.True(t, engine.Start(shortSequence()))
	for _, seconds := range []int{300, 450, 630, 700, 990, 1000} {
		ticker.Tick(time.Duration(seconds) * time.Second)
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "event_trace", trace.Bytes())
}

func TestStartPublishesInitialSnapshot(t *testing.T) {
	engine, ticker, now := newTestEngine(t)
	log := &stateLog{}
	engine.Subscribe(log.record)

	require.True(t, engine.Start(shortSequence()))

	state := log.last()
	assert.Equal(t, StatusRunning, state.Status)
	assert.Equal(t, "session-1", state.SessionID)
	assert.Equal(t, 0, state.CurrentPhaseIndex)
	assert.Equal(t, 300*time.Second, state.RemainingTimeInPhase)
	assert.Equal(t, time.Duration(0), state.ElapsedSessionTime)
	assert.Equal(t, now.Now(), state.StartedAt)
	assert.True(t, state.PausedAt.IsZero())
	assert.Equal(t, 1, ticker.starts)
}

func TestRemainingTimeWithinPhase(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	require.True(t, engine.Start(shortSequence()))

	ticker.Tick(100 * time.Second)

	state := engine.State()
	assert.Equal(t, 0, state.CurrentPhaseIndex)
	assert.Equal(t, 200*time.Second, state.RemainingTimeInPhase)
	assert.Equal(t, 100*time.Second, state.ElapsedSessionTime)
	assert.Equal(t, 890*time.Second, state.RemainingSession())
}

func TestStartRejectsInvalidSequence(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	var seen []events.Kind
	engine.SubscribeEvents(func(event events.Event) { seen = append(seen, event.Kind) })

	invalid := model.PhaseSequence{Phases: []model.PhaseDescriptor{phase(model.PhaseSlotA, 300)}}
	assert.False(t, engine.Start(invalid))
	assert.Equal(t, StatusIdle, engine.State().Status)
	assert.Empty(t, seen)
}

func TestInvalidStartStopsCurrentSession(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	require.True(t, engine.Start(shortSequence()))
	ticker.Tick(10 * time.Second)

	assert.False(t, engine.Start(model.PhaseSequence{}))

	state := engine.State()
	assert.Equal(t, StatusIdle, state.Status)
	assert.Nil(t, state.ActiveSequence)
	assert.Empty(t, state.SessionID)
}

func TestPauseAndResumeAccounting(t *testing.T) {
	engine, ticker, now := newTestEngine(t)
	require.True(t, engine.Start(shortSequence()))
	ticker.Tick(100 * time.Second)

	engine.Pause()
	paused := engine.State()
	assert.Equal(t, StatusPaused, paused.Status)
	assert.Equal(t, now.Now(), paused.PausedAt)

	now.Advance(50 * time.Millisecond)
	engine.Resume()
	ticker.Tick(150 * time.Second)

	state := engine.State()
	assert.Equal(t, StatusRunning, state.Status)
	assert.True(t, state.PausedAt.IsZero())
	assert.Equal(t, 50*time.Millisecond, state.TotalPausedDuration)
	assert.Equal(t, 150*time.Second, state.RemainingTimeInPhase)
	assert.Equal(t, 1, ticker.pauses)
	assert.Equal(t, 1, ticker.resumes)
}

func TestPauseAndResumeRequireMatchingStatus(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	log := &stateLog{}
	engine.Subscribe(log.record)

	engine.Pause()
	engine.Resume()
	assert.Equal(t, 1, log.count())

	require.True(t, engine.Start(shortSequence()))
	engine.Resume()
	engine.Pause()
	engine.Pause()
	assert.Equal(t, 3, log.count())
	assert.Equal(t, 1, ticker.pauses)
	assert.Equal(t, 0, ticker.resumes)
}

func TestTicksWhilePausedAreIgnored(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	require.True(t, engine.Start(shortSequence()))
	ticker.Tick(100 * time.Second)
	engine.Pause()

	ticker.Tick(400 * time.Second)

	state := engine.State()
	assert.Equal(t, 0, state.CurrentPhaseIndex)
	assert.Equal(t, 100*time.Second, state.ElapsedSessionTime)
}

func TestStopIsIdempotent(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	log := &stateLog{}
	engine.Subscribe(log.record)
	require.True(t, engine.Start(shortSequence()))

	engine.Stop()
	engine.Stop()

	assert.Equal(t, 3, log.count())
	assert.Equal(t, State{}, log.last())
	assert.GreaterOrEqual(t, ticker.stops, 2)
}

func TestStaleTicksAreDropped(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	require.True(t, engine.Start(shortSequence()))
	stale := ticker.callback()

	require.True(t, engine.Start(shortSequence()))
	stale(400 * time.Second)

	state := engine.State()
	assert.Equal(t, "session-2", state.SessionID)
	assert.Equal(t, 0, state.CurrentPhaseIndex)
	assert.Equal(t, 300*time.Second, state.RemainingTimeInPhase)

	engine.Stop()
	ticker.callback()(500 * time.Second)
	assert.Equal(t, StatusIdle, engine.State().Status)
}

func TestOnePublishPerTick(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	log := &stateLog{}
	require.True(t, engine.Start(shortSequence()))
	engine.Subscribe(log.record)
	before := log.count()

	ticker.Tick(700 * time.Second)

	assert.Equal(t, before+1, log.count())
	assert.Equal(t, 4, log.last().CurrentPhaseIndex)
}

func TestElapsedNeverDecreases(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	require.True(t, engine.Start(shortSequence()))

	ticker.Tick(320 * time.Second)
	ticker.Tick(310 * time.Second)

	state := engine.State()
	assert.Equal(t, 320*time.Second, state.ElapsedSessionTime)
	assert.Equal(t, 1, state.CurrentPhaseIndex)
	assert.Equal(t, 280*time.Second, state.RemainingTimeInPhase)
}

func TestFinishedSessionIgnoresTicksAndCanRestart(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	require.True(t, engine.Start(shortSequence()))
	ticker.Tick(2000 * time.Second)

	finished := engine.State()
	assert.Equal(t, StatusFinished, finished.Status)
	assert.Equal(t, 4, finished.CurrentPhaseIndex)
	assert.Equal(t, time.Duration(0), finished.RemainingTimeInPhase)

	ticker.Tick(3000 * time.Second)
	assert.Equal(t, finished, engine.State())

	require.True(t, engine.Start(shortSequence()))
	assert.Equal(t, StatusRunning, engine.State().Status)
}

func TestRoundTracking(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	sequence := model.PhaseSequence{
		ID: "rounds",
		Phases: []model.PhaseDescriptor{
			phase(model.PhasePrep, 60),
			phase(model.PhaseSlotA, 300),
			phase(model.PhaseSlotB, 300),
			phase(model.PhaseTransition, 30),
			phase(model.PhaseSlotA, 300),
			phase(model.PhaseSlotB, 300),
			phase(model.PhaseCooldown, 300),
		},
	}
	require.True(t, engine.Start(sequence))

	rounds := map[time.Duration]int{
		30 * time.Second:   0,
		100 * time.Second:  1,
		400 * time.Second:  1,
		670 * time.Second:  1,
		700 * time.Second:  2,
		1000 * time.Second: 2,
		1300 * time.Second: 0,
	}
	for _, elapsed := range []time.Duration{30, 100, 400, 670, 700, 1000, 1300} {
		ticker.Tick(elapsed * time.Second)
		assert.Equal(t, rounds[elapsed*time.Second], engine.State().Round, "at %s", elapsed*time.Second)
	}
}

func TestAudioSinkReceivesCuesOnly(t *testing.T) {
	sink := &recordingSink{}
	guidance := staticGuidance{tips: map[model.PhaseType][]string{
		model.PhaseSlotA: {"Speak from experience."},
	}}
	engine, ticker, _ := newTestEngine(t, WithAudioSink(sink), WithGuidance(guidance))

	var seen []events.Event
	engine.SubscribeEvents(func(event events.Event) { seen = append(seen, event) })
	require.True(t, engine.Start(shortSequence()))
	ticker.Tick(300 * time.Second)
	engine.Close()

	assert.Equal(t, []events.Kind{
		events.KindSessionStart, events.KindSlotStart, events.KindSlotEnd, events.KindSlotStart,
	}, sink.played())

	require.Len(t, seen, 5)
	assert.Equal(t, events.KindTipsAvailable, seen[2].Kind)
	assert.Equal(t, []string{"Speak from experience."}, seen[2].Tips)
	assert.Equal(t, "session-1", seen[2].SessionID)
}

func TestFailingCollaboratorsDoNotStopSession(t *testing.T) {
	sink := &recordingSink{panics: true}
	engine, ticker, _ := newTestEngine(t,
		WithAudioSink(sink),
		WithGuidance(staticGuidance{panics: true}),
	)
	t.Cleanup(engine.Close)
	require.True(t, engine.Start(shortSequence()))
	ticker.Tick(630 * time.Second)

	state := engine.State()
	assert.Equal(t, 3, state.CurrentPhaseIndex)
	assert.Nil(t, engine.Tips())
	_, ok := engine.RandomTip()
	assert.False(t, ok)

	sink.fail(errors.New("device busy"), false)
	ticker.Tick(990 * time.Second)
	assert.Equal(t, StatusFinished, engine.State().Status)
}

func TestSingleTickRunsToFinished(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	var kinds []events.Kind
	engine.SubscribeEvents(func(event events.Event) { kinds = append(kinds, event.Kind) })
	log := &stateLog{}
	engine.Subscribe(log.record)
	require.True(t, engine.Start(shortSequence()))
	require.Equal(t, []events.Kind{events.KindSessionStart, events.KindSlotStart}, kinds)
	before := log.count()

	ticker.Tick(990 * time.Second)

	assert.Equal(t, []events.Kind{
		events.KindSlotEnd,
		events.KindSlotStart,
		events.KindSlotEnd,
		events.KindTransitionEnd,
		events.KindClosingStart,
		events.KindCooldownStart,
		events.KindCooldownEnd,
	}, kinds[2:])
	assert.Equal(t, before+1, log.count())

	state := log.last()
	assert.Equal(t, StatusFinished, state.Status)
	assert.Equal(t, 4, state.CurrentPhaseIndex)
	assert.Equal(t, time.Duration(0), state.RemainingTimeInPhase)
}

func TestSlowAudioSinkDoesNotBlockEngine(t *testing.T) {
	sink := newBlockingSink()
	engine, ticker, _ := newTestEngine(t, WithAudioSink(sink))
	require.True(t, engine.Start(shortSequence()))
	<-sink.entered

	ticked := make(chan struct{})
	go func() {
		defer close(ticked)
		ticker.Tick(990 * time.Second)
	}()
	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "tick waited for the audio sink")
	}
	assert.Equal(t, StatusFinished, engine.State().Status)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		engine.Stop()
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "Stop waited for the audio sink")
	}

	close(sink.release)
	engine.Close()
}

func TestAudioCuesDroppedWhenSinkFallsBehind(t *testing.T) {
	sink := newBlockingSink()
	engine, ticker, _ := newTestEngine(t, WithAudioSink(sink), WithCueBuffer(1))
	require.True(t, engine.Start(shortSequence()))
	<-sink.entered

	ticker.Tick(990 * time.Second)

	assert.Equal(t, StatusFinished, engine.State().Status)
	assert.GreaterOrEqual(t, engine.DroppedCues(), int64(6))

	close(sink.release)
	engine.Close()
}

func TestAudioSinkMayStopEngine(t *testing.T) {
	stopping := &stoppingSink{}
	engine, ticker, _ := newTestEngine(t, WithAudioSink(stopping))
	stopping.engine = engine
	t.Cleanup(engine.Close)

	require.True(t, engine.Start(shortSequence()))
	ticker.Tick(300 * time.Second)

	require.Eventually(t, func() bool {
		return engine.State().Status == StatusIdle
	}, 2*time.Second, 10*time.Millisecond)
}

type stoppingSink struct {
	engine *Engine
}

func (sink *stoppingSink) Play(_ context.Context, event events.Event) error {
	if event.Kind == events.KindSlotEnd {
		sink.engine.Stop()
	}
	return nil
}

func TestSubscriberMayStopEngine(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	log := &stateLog{}
	engine.Subscribe(func(state State) {
		log.record(state)
		if state.Status == StatusRunning && state.CurrentPhaseIndex == 1 {
			engine.Stop()
		}
	})
	require.True(t, engine.Start(shortSequence()))

	ticker.Tick(310 * time.Second)

	assert.Equal(t, StatusIdle, engine.State().Status)
	assert.Equal(t, StatusIdle, log.last().Status)
	assert.Equal(t, 4, log.count())
}

func TestSubscribeCatchesUpDuringConcurrentDelivery(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	engine.Subscribe(func(state State) {
		if state.ElapsedSessionTime == 10*time.Second {
			close(entered)
			<-release
		}
	})
	require.True(t, engine.Start(shortSequence()))

	ticked := make(chan struct{})
	go func() {
		defer close(ticked)
		ticker.Tick(10 * time.Second)
	}()
	<-entered

	log := &stateLog{}
	engine.Subscribe(log.record)
	require.Equal(t, 1, log.count())
	assert.Equal(t, 10*time.Second, log.last().ElapsedSessionTime)

	close(release)
	<-ticked
	assert.Equal(t, 1, log.count())
}

func TestSubscribeFromCallbackCatchesUpImmediately(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	require.True(t, engine.Start(shortSequence()))

	inner := &stateLog{}
	var caughtUp int
	engine.Subscribe(func(state State) {
		if state.CurrentPhaseIndex == 1 && caughtUp == 0 {
			engine.Subscribe(inner.record)
			caughtUp = inner.count()
		}
	})

	ticker.Tick(310 * time.Second)

	assert.Equal(t, 1, caughtUp)
	assert.Equal(t, 1, inner.last().CurrentPhaseIndex)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	engine, ticker, _ := newTestEngine(t)
	log := &stateLog{}
	unsubscribe := engine.Subscribe(log.record)
	require.True(t, engine.Start(shortSequence()))

	unsubscribe()
	ticker.Tick(10 * time.Second)

	assert.Equal(t, 2, log.count())
}

func TestSnapshotsAreIndependentCopies(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	var received State
	engine.Subscribe(func(state State) { received = state })
	require.True(t, engine.Start(shortSequence()))

	require.NotNil(t, received.ActiveSequence)
	received.ActiveSequence.Phases[0].DurationSeconds = 1
	received.ActiveSequence.Name = "changed"

	state := engine.State()
	assert.Equal(t, 300, state.ActiveSequence.Phases[0].DurationSeconds)
	assert.Equal(t, "Short", state.ActiveSequence.Name)
}

func TestTips(t *testing.T) {
	guidance := staticGuidance{tips: map[model.PhaseType][]string{
		model.PhaseSlotB: {"Listen without planning a reply.", "Notice your breathing."},
	}}
	engine, ticker, _ := newTestEngine(t, WithGuidance(guidance))

	assert.Nil(t, engine.Tips())
	require.True(t, engine.Start(shortSequence()))
	assert.Empty(t, engine.Tips())

	ticker.Tick(300 * time.Second)
	assert.Equal(t, []string{"Listen without planning a reply.", "Notice your breathing."}, engine.Tips())
	tip, ok := engine.RandomTip()
	require.True(t, ok)
	assert.Equal(t, "Listen without planning a reply.", tip)
}

func TestEngineWithRealClock(t *testing.T) {
	engine := New(WithClock(clock.New(clock.WithInterval(clock.MinInterval))))
	require.True(t, engine.Start(shortSequence()))
	t.Cleanup(engine.Stop)

	require.Eventually(t, func() bool {
		return engine.State().ElapsedSessionTime > 0
	}, 2*time.Second, 10*time.Millisecond)

	state := engine.State()
	assert.Equal(t, 0, state.CurrentPhaseIndex)
	assert.Less(t, state.RemainingTimeInPhase, 300*time.Second)
	assert.NotEmpty(t, state.SessionID)
}
