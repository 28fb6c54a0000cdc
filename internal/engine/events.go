// Package engine drives workflow runs through their state machine.
//
// A run owns one goroutine that walks the run's step records in order,
// dispatching each to the step interpreter, handling conditional branching,
// and recovering failures through AI self-healing and operator resolutions.
// Progress is fanned out to subscribers through the event bus.
//
// Import rules:
//   - CAN import: internal/ai, internal/browser, internal/config,
//     internal/constants, internal/domain, internal/errors,
//     internal/logging, internal/steps, internal/store, std lib
//   - MUST NOT import: internal/server, internal/scheduler, internal/cli
package engine

import (
	"sync"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
)

// Bus fans a run's progress events out to its subscribers. Each subscriber
// owns a bounded queue; when a queue is full the oldest entries are dropped
// and a heartbeat is queued in their place so slow readers can tell the
// stream has a gap. Publishing never blocks on a subscriber.
type Bus struct {
	mu        sync.Mutex
	subs      map[string][]chan domain.Event
	queueSize int
}

// NewBus creates an event bus whose subscriber queues hold queueSize events.
// A non-positive queueSize falls back to the default.
func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = constants.EventQueueSize
	}
	return &Bus{
		subs:      make(map[string][]chan domain.Event),
		queueSize: queueSize,
	}
}

// Subscribe registers a new subscriber for the run's events and returns its
// queue. The subscriber receives every event published after this call.
// The channel is closed by Unsubscribe.
func (b *Bus) Subscribe(runID string) <-chan domain.Event {
	ch := make(chan domain.Event, b.queueSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[runID] = append(b.subs[runID], ch)
	return ch
}

// Unsubscribe removes the subscriber and closes its channel. The run's
// registry entry is dropped when the last subscriber leaves. Unsubscribing
// a channel that is not registered is a no-op.
func (b *Bus) Unsubscribe(runID string, ch <-chan domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queues := b.subs[runID]
	for i, q := range queues {
		if q != ch {
			continue
		}
		b.subs[runID] = append(queues[:i], queues[i+1:]...)
		close(q)
		break
	}
	if len(b.subs[runID]) == 0 {
		delete(b.subs, runID)
	}
}

// Publish delivers the event to every subscriber of its run. Events for
// runs with no subscribers are discarded.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[ev.RunID] {
		b.deliver(ch, ev)
	}
}

// deliver enqueues ev without blocking. Caller holds b.mu, so this is the
// only sender; receivers may drain concurrently, which only frees room.
func (b *Bus) deliver(ch chan domain.Event, ev domain.Event) {
	select {
	case ch <- ev:
		return
	default:
	}

	// Queue full. Drop the two oldest entries, then queue a heartbeat ahead
	// of ev when room allows so the reader can tell events were lost.
	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		default:
		}
	}
	if cap(ch)-len(ch) >= 2 {
		ch <- domain.NewHeartbeat(ev.RunID)
	}
	select {
	case ch <- ev:
	default:
	}
}

// Subscribers reports how many subscribers the run currently has.
func (b *Bus) Subscribers(runID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[runID])
}
