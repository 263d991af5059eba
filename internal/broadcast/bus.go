// Package broadcast implements the fan-out bus that decouples the periodic
// driver from an arbitrary number of WebSocket subscribers. Each subscriber
// owns a bounded channel; sends are non-blocking and drop the oldest
// buffered message on overflow, so one slow consumer never stalls the
// others.
package broadcast

import (
	"sync"
	"sync/atomic"

	"odin-marketfeed/internal/metrics"
)

// bufferSize is the per-subscriber channel capacity. 1000 balances memory
// per subscriber against tolerance for a transient consumer stall.
const bufferSize = 1000

// Subscriber is a transient receiver handed to a connection handler at
// WebSocket upgrade and dropped on disconnect.
type Subscriber struct {
	id   uint64
	recv chan []byte
	bus  *Bus
}

// Recv returns the channel a connection handler should range over to
// forward messages verbatim as text frames.
func (s *Subscriber) Recv() <-chan []byte {
	return s.recv
}

// Close unregisters the subscriber. Safe to call more than once.
func (s *Subscriber) Close() {
	s.bus.unregister(s.id)
}

// Bus is a process-local multi-producer/multi-subscriber channel of opaque
// messages. Producers never block indefinitely: if a subscriber's buffer is
// full, the oldest buffered message for that subscriber is dropped to make
// room for the newest.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan []byte
	nextID  uint64
	closed  bool
	metrics *metrics.Registry
}

// New creates an empty Bus. metricsRegistry may be nil in tests.
func New(metricsRegistry *metrics.Registry) *Bus {
	return &Bus{
		subs:    make(map[uint64]chan []byte),
		metrics: metricsRegistry,
	}
}

// Subscribe registers a new subscriber and returns its receiver handle.
// Subscribing to a closed bus returns a handle whose channel is already
// closed, so the caller's receive loop exits immediately.
func (b *Bus) Subscribe() *Subscriber {
	id := atomic.AddUint64(&b.nextID, 1)
	ch := make(chan []byte, bufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return &Subscriber{id: id, recv: ch, bus: b}
	}
	b.subs[id] = ch
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.Connections.Inc()
	}

	return &Subscriber{id: id, recv: ch, bus: b}
}

func (b *Bus) unregister(id uint64) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		close(ch)
		if b.metrics != nil {
			b.metrics.Connections.Dec()
		}
	}
}

// Broadcast sends msg to every current subscriber and returns the
// subscriber count observed at send time. Zero subscribers is not an error.
// Each subscriber observes messages in the order Broadcast was called for
// them; a full subscriber buffer drops its oldest message to admit the new
// one, so a slow consumer sees a gap rather than blocking the producer.
func (b *Bus) Broadcast(msg []byte) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.MessagesPublished.Inc()
	}

	for _, ch := range b.subs {
		select {
		case ch <- msg:
			if b.metrics != nil {
				b.metrics.MessagesDelivered.Inc()
			}
		default:
			// Buffer full: drop the oldest message to make room, then
			// retry once. If a concurrent receiver drained it first, the
			// retry still benefits from the freed slot.
			select {
			case <-ch:
				if b.metrics != nil {
					b.metrics.BroadcastDropped.Inc()
				}
			default:
			}
			select {
			case ch <- msg:
				if b.metrics != nil {
					b.metrics.MessagesDelivered.Inc()
				}
			default:
				if b.metrics != nil {
					b.metrics.BroadcastDropped.Inc()
				}
			}
		}
	}

	return len(b.subs)
}

// SubscriberCount returns the current number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down: every registered subscriber channel is closed
// (their receive loops see a closed channel and return) and further
// broadcasts become no-ops. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
		if b.metrics != nil {
			b.metrics.Connections.Dec()
		}
	}
}
