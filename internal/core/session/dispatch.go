package session

import (
	"fmt"
	"sync"

	"duet/internal/core/events"
)

type subscriber struct {
	id      int
	onState func(State)
	onEvent func(events.Event)
	// gate holds back queued deliveries until the catch-up snapshot has been
	// handed over.
	gate *sync.Mutex
}

// delivery is a queued notification for one subscriber. Exactly one of state
// and event is set.
type delivery struct {
	subscriberID int
	state        *State
	event        *events.Event
}

// subscribeLocked registers a subscriber and returns its removal function.
func (engine *Engine) subscribeLocked(entry subscriber) func() {
	engine.nextSubscriberID++
	entry.id = engine.nextSubscriberID
	engine.subscribers = append(engine.subscribers, entry)

	return func() {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		for index, existing := range engine.subscribers {
			if existing.id == entry.id {
				engine.subscribers = append(engine.subscribers[:index], engine.subscribers[index+1:]...)
				return
			}
		}
	}
}

func (engine *Engine) lookupLocked(id int) (subscriber, bool) {
	for _, entry := range engine.subscribers {
		if entry.id == id {
			return entry, true
		}
	}
	return subscriber{}, false
}

// publishLocked queues the current snapshot for every state subscriber.
func (engine *Engine) publishLocked() {
	for _, entry := range engine.subscribers {
		if entry.onState == nil {
			continue
		}
		snapshot := engine.state.Clone()
		engine.pending = append(engine.pending, delivery{subscriberID: entry.id, state: &snapshot})
	}
}

// enqueueEventLocked queues an event for every event subscriber.
func (engine *Engine) enqueueEventLocked(event events.Event) {
	for _, entry := range engine.subscribers {
		if entry.onEvent == nil {
			continue
		}
		copied := event
		copied.Tips = append([]string(nil), event.Tips...)
		engine.pending = append(engine.pending, delivery{subscriberID: entry.id, event: &copied})
	}
}

// flush delivers queued notifications in order with the lock released, so
// subscribers may call back into the engine. Calls made from inside a
// callback only queue; the outermost flush delivers them.
func (engine *Engine) flush() {
	engine.mu.Lock()
	if engine.dispatching {
		engine.mu.Unlock()
		return
	}
	engine.dispatching = true
	for len(engine.pending) > 0 {
		next := engine.pending[0]
		engine.pending[0] = delivery{}
		engine.pending = engine.pending[1:]
		entry, ok := engine.lookupLocked(next.subscriberID)
		if !ok {
			continue
		}
		engine.mu.Unlock()
		engine.deliver(entry, next)
		engine.mu.Lock()
	}
	engine.pending = nil
	engine.dispatching = false
	engine.mu.Unlock()
}

func (engine *Engine) deliver(entry subscriber, next delivery) {
	if entry.gate != nil {
		entry.gate.Lock()
		defer entry.gate.Unlock()
	}
	engine.invoke(entry, next)
}

func (engine *Engine) invoke(entry subscriber, next delivery) {
	defer func() {
		if recovered := recover(); recovered != nil {
			engine.logger.Error("subscriber panicked", "subscriber", entry.id, "error", fmt.Sprint(recovered))
		}
	}()
	switch {
	case next.state != nil:
		entry.onState(*next.state)
	case next.event != nil:
		entry.onEvent(*next.event)
	}
}
