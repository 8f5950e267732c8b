// internal/game/bus.go
package game

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// broadcastBuffer is how many events a broadcast subscriber may fall behind
// before it starts losing the oldest ones.
const broadcastBuffer = 100

// Bus fans lobby events out to connected sockets. It carries two surfaces:
// broadcast events every subscriber receives, and private per-player queues
// for events only one client may see (hands, snapshots, kicks).
type Bus struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	private map[uuid.UUID]*PrivateQueue
	closed  bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[*Subscription]struct{}),
		private: make(map[uuid.UUID]*PrivateQueue),
	}
}

// Subscription is one consumer's view of the broadcast stream. Events
// produced before Subscribe was called are never delivered.
type Subscription struct {
	bus    *Bus
	ch     chan ServerEvent
	lagged atomic.Int64
	once   sync.Once
}

// Subscribe registers a new broadcast consumer. On a closed bus the returned
// subscription's channel is already closed.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{bus: b, ch: make(chan ServerEvent, broadcastBuffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Events returns the subscriber's receive channel. It is closed when the
// subscription or the whole bus shuts down.
func (s *Subscription) Events() <-chan ServerEvent {
	return s.ch
}

// Lagged returns how many events were dropped since the last call and resets
// the counter. A non-zero value means the consumer's view has gaps.
func (s *Subscription) Lagged() int64 {
	return s.lagged.Swap(0)
}

// Close unsubscribes and closes the event channel. Safe to call twice.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	_, registered := s.bus.subs[s]
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	if registered {
		s.once.Do(func() { close(s.ch) })
	}
}

// Broadcast delivers ev to every subscriber. A subscriber whose buffer is
// full loses its oldest pending event instead of blocking the producer; the
// loss is tallied on the subscription.
func (b *Bus) Broadcast(ev ServerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.ch <- ev:
			continue
		default:
		}
		select {
		case <-s.ch:
			s.lagged.Add(1)
		default:
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// PrivateQueue is an unbounded single-consumer queue of private events. The
// producer never blocks; the consumer drains with TryNext and parks on Wake.
type PrivateQueue struct {
	mu     sync.Mutex
	items  []PrivateServerEvent
	wake   chan struct{}
	closed bool
}

func newPrivateQueue() *PrivateQueue {
	return &PrivateQueue{wake: make(chan struct{}, 1)}
}

func (q *PrivateQueue) push(ev PrivateServerEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.notify()
}

func (q *PrivateQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// TryNext pops the next queued event without blocking.
func (q *PrivateQueue) TryNext() (PrivateServerEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return PrivateServerEvent{}, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	return ev, true
}

// Wake signals that new events may be available or the queue closed. Wakeups
// can be spurious; callers must re-check TryNext and Done.
func (q *PrivateQueue) Wake() <-chan struct{} {
	return q.wake
}

// Done reports whether the queue is closed and fully drained. Events queued
// before the close are still delivered.
func (q *PrivateQueue) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

func (q *PrivateQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

// SubscribePrivate opens the private queue for player id. Any previous queue
// for the same player is closed first, so a reconnect supersedes the stale
// socket's consumer. On a closed bus the returned queue is already done.
func (b *Bus) SubscribePrivate(id uuid.UUID) *PrivateQueue {
	q := newPrivateQueue()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		q.close()
		return q
	}
	prev := b.private[id]
	b.private[id] = q
	b.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	return q
}

// EmitPrivate queues ev for player id. Events for players without an open
// queue are dropped.
func (b *Bus) EmitPrivate(id uuid.UUID, ev PrivateServerEvent) {
	b.mu.Lock()
	q := b.private[id]
	b.mu.Unlock()
	if q != nil {
		q.push(ev)
	}
}

// IsCurrent reports whether q is still the active private queue for id. A
// session whose queue was superseded must not treat its own death as the
// player disconnecting.
func (b *Bus) IsCurrent(id uuid.UUID, q *PrivateQueue) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.private[id] == q
}

// RemovePrivate closes and forgets player id's private queue. Queued events
// are still delivered to the consumer before it observes the close.
func (b *Bus) RemovePrivate(id uuid.UUID) {
	b.mu.Lock()
	q := b.private[id]
	delete(b.private, id)
	b.mu.Unlock()
	if q != nil {
		q.close()
	}
}

// Close shuts down both surfaces. Broadcast channels are closed immediately;
// private queues deliver what they already hold, then report done.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*Subscription]struct{})
	queues := make([]*PrivateQueue, 0, len(b.private))
	for _, q := range b.private {
		queues = append(queues, q)
	}
	b.private = make(map[uuid.UUID]*PrivateQueue)
	b.mu.Unlock()

	for _, s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
	for _, q := range queues {
		q.close()
	}
}
