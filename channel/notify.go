package channel

import (
	"sync"

	"github.com/google/uuid"
)

// NotifyPolicy decides which successful writes notify subscribers.
type NotifyPolicy int

const (
	// Every successful write notifies every subscriber once.
	NotifyEveryWrite NotifyPolicy = iota

	// Only writes into an empty channel notify.
	NotifyOnEmpty
)

func (p NotifyPolicy) String() string {
	switch p {
	case NotifyEveryWrite:
		return "every-write"
	case NotifyOnEmpty:
		return "on-empty"
	default:
		return "unknown"
	}
}

// Notification tells a subscriber that data is available.
type Notification struct {
	Handle   uuid.UUID // Subscribed handle
	Band     Readiness // Always PollIn
	Occupied int       // Pending bytes right after the write
	Seq      uint64    // Per channel write sequence
}

// Notifier receives notifications. Notify runs on a goroutine owned by the
// subscription, never on the writer's goroutine.
//
// Unsubscribe, Handle.Close and ByteChannel.Close wait for a running Notify to
// return. Notify must therefore not call them on its own subscription
// directly; hand the call off to another goroutine instead.
type Notifier interface {
	Notify(Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// registry holds the subscriptions of a channel, keyed by handle. It is
// guarded by the channel's mutex.
type registry map[uuid.UUID]*subscription

func (r registry) add(id uuid.UUID, target Notifier) (replaced *subscription) {
	replaced = r[id]
	r[id] = newSubscription(id, target)
	return
}

func (r registry) remove(id uuid.UUID) (s *subscription) {
	if s = r[id]; s != nil {
		delete(r, id)
	}

	return
}

func (r registry) removeAll() (subs []*subscription) {
	subs = make([]*subscription, 0, len(r))

	for id, s := range r {
		subs = append(subs, s)
		delete(r, id)
	}

	return
}

// notifySubscribers queues one notification per subscriber. Must be called
// with mu held; it never blocks.
func (ch *ByteChannel) notifySubscribers() {
	if len(ch.subs) == 0 {
		return
	}

	seq := ch.stats.Writes

	for id, s := range ch.subs {
		s.push(Notification{
			Handle:   id,
			Band:     PollIn,
			Occupied: ch.len(),
			Seq:      seq,
		})
	}

	ch.stats.Notifications += uint64(len(ch.subs))
	ch.metrics.recordNotifications(len(ch.subs))
}

// subscribe checks the handle under mu. Handle.Close marks the handle closed
// before it unsubscribes under mu, so a subscription can never outlive it.
func (ch *ByteChannel) subscribe(h *Handle, target Notifier) error {
	id := h.id
	ch.mu.Lock()

	if ch.closed || h.closed.Load() {
		ch.mu.Unlock()
		return ErrClosed
	}

	replaced := ch.subs.add(id, target)
	ch.metrics.updateSubscribers(len(ch.subs))
	ch.mu.Unlock()

	if replaced != nil {
		replaced.stop()
	}

	ch.log.Debug("subscribed", "handle", id)

	return nil
}

func (ch *ByteChannel) unsubscribe(id uuid.UUID) {
	ch.mu.Lock()
	s := ch.subs.remove(id)
	ch.metrics.updateSubscribers(len(ch.subs))
	ch.mu.Unlock()

	if s != nil {
		s.stop()
		ch.log.Debug("unsubscribed", "handle", id)
	}
}

// subscription delivers notifications to its target from a dedicated
// goroutine. The queue is unbounded so pushing never waits for the target.
type subscription struct {
	id      uuid.UUID
	target  Notifier
	mu      sync.Mutex
	cond    sync.Cond
	queue   []Notification
	stopped bool
	done    chan struct{}
}

func newSubscription(id uuid.UUID, target Notifier) *subscription {
	s := &subscription{
		id:     id,
		target: target,
		done:   make(chan struct{}),
	}

	s.cond.L = &s.mu

	go s.deliver()

	return s
}

func (s *subscription) push(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.queue = append(s.queue, n)
	s.cond.Signal()
}

func (s *subscription) next() (n Notification, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 && !s.stopped {
		s.cond.Wait()
	}

	if s.stopped {
		return
	}

	n = s.queue[0]
	s.queue[0] = Notification{}
	s.queue = s.queue[1:]

	return n, true
}

func (s *subscription) deliver() {
	defer close(s.done)

	for {
		n, ok := s.next()

		if !ok {
			return
		}

		s.target.Notify(n)
	}
}

// stop drops undelivered notifications and waits for a delivery in progress
// to return. It must not be called from within the target's Notify.
func (s *subscription) stop() {
	s.mu.Lock()
	s.stopped = true
	s.queue = nil
	s.cond.Signal()
	s.mu.Unlock()

	<-s.done
}
