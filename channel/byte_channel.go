package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ByteChannel is a fixed-capacity FIFO of bytes shared by any number of
// handles. Every access to the buffer, the waiter counts, the subscribers and
// the poll waiters happens under mu. The lock is never held while a caller is
// suspended: sync.Cond releases it for the duration of Wait.
type ByteChannel struct {
	buf            *byteBuffer
	readCond       sync.Cond // Awaited by readers, notified by writers.
	writeCond      sync.Cond // Awaited by writers, notified by readers and Clear.
	idleCond       sync.Cond // Awaited by Close, notified when the last waiter leaves.
	mu             sync.Mutex
	readersWaiting int
	writersWaiting int
	handles        int
	subs           registry
	pollers        map[*PollWaiter]struct{}
	stats          Stats
	policy         NotifyPolicy
	metrics        *channelMetrics
	log            *slog.Logger
	closed         bool
}

// NewByteChannel allocates a channel that holds up to capacity pending bytes.
// If the buffer cannot be allocated the error wraps ErrResourceExhausted and no
// channel is returned.
func NewByteChannel(capacity int, opts ...Option) (ch *ByteChannel, err error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidArgument, capacity)
	}

	o := applyOptions(opts...)

	ch = &ByteChannel{
		subs:    make(registry),
		pollers: make(map[*PollWaiter]struct{}),
		policy:  o.policy,
		log:     o.logger,
	}

	ch.readCond.L = &ch.mu
	ch.writeCond.L = &ch.mu
	ch.idleCond.L = &ch.mu

	if ch.buf, err = newByteBuffer(capacity, o.storage); err != nil {
		return nil, err
	}

	ch.stats.Capacity = capacity

	if o.metricsReg != nil {
		if ch.metrics, err = newChannelMetrics(o.metricsReg, o.metricsName, capacity); err != nil {
			ch.buf.release()
			return nil, fmt.Errorf("register metrics: %w", err)
		}

		ch.metrics.updateSize(0, capacity)
	}

	ch.log.Info("channel created", "capacity", capacity, "storage", o.storage.String(), "notify", o.policy.String())

	return
}

func (ch *ByteChannel) read(ctx context.Context, p []byte, blocking bool) (n int, err error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return 0, ErrClosed
	}

	if len(p) == 0 {
		return 0, nil
	}

	if ch.empty() {
		if !blocking {
			ch.stats.WouldBlock++
			ch.metrics.recordWouldBlock()
			return 0, ErrWouldBlock
		}

		if err = ch.waitUntil(ctx, &ch.readCond, &ch.readersWaiting, ch.notEmpty); err != nil {
			return
		}
	}

	n = ch.buf.pull(p)
	ch.stats.BytesRead += uint64(n)
	ch.stats.Reads++
	ch.metrics.recordRead(n, ch.len(), ch.cap())

	// Space was freed
	ch.writeCond.Broadcast()
	ch.wakePollers()

	return
}

func (ch *ByteChannel) write(ctx context.Context, p []byte, blocking bool) (n int, err error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return 0, ErrClosed
	}

	if len(p) == 0 {
		return 0, nil
	}

	if ch.full() {
		if !blocking {
			ch.stats.WouldBlock++
			ch.metrics.recordWouldBlock()
			return 0, ErrWouldBlock
		}

		if err = ch.waitUntil(ctx, &ch.writeCond, &ch.writersWaiting, ch.spaceLeft); err != nil {
			return
		}
	}

	prev := ch.len()
	n = ch.buf.push(p)
	ch.stats.BytesWritten += uint64(n)
	ch.stats.Writes++
	ch.metrics.recordWrite(n, ch.len(), ch.cap())

	// Data became available
	ch.readCond.Broadcast()
	ch.wakePollers()

	if ch.policy == NotifyEveryWrite || prev == 0 {
		ch.notifySubscribers()
	}

	return
}

// waitUntil suspends the caller on cond until ready holds, ctx is done or the
// channel closes. The caller is counted in waiting for as long as it is
// suspended, and is removed again on every exit path. Must be called with mu
// held; returns with mu held.
func (ch *ByteChannel) waitUntil(ctx context.Context, cond *sync.Cond, waiting *int, ready func() bool) error {
	if ctx.Err() != nil {
		ch.stats.Interrupted++
		ch.metrics.recordInterrupted()
		return interrupted(ctx)
	}

	stop := context.AfterFunc(ctx, func() {
		ch.mu.Lock()
		cond.Broadcast()
		ch.mu.Unlock()
	})
	defer stop()

	*waiting++
	ch.metrics.updateWaiting(ch.readersWaiting, ch.writersWaiting)

	defer func() {
		*waiting--
		ch.metrics.updateWaiting(ch.readersWaiting, ch.writersWaiting)

		if ch.closed && ch.readersWaiting+ch.writersWaiting == 0 {
			ch.idleCond.Broadcast()
		}
	}()

	for {
		if ch.closed {
			return ErrClosed
		}

		if ready() {
			return nil
		}

		if ctx.Err() != nil {
			ch.stats.Interrupted++
			ch.metrics.recordInterrupted()
			return interrupted(ctx)
		}

		cond.Wait()
	}
}

// Clear drops all pending bytes. Writers blocked on a full channel are woken.
func (ch *ByteChannel) Clear() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return ErrClosed
	}

	ch.buf.reset()
	ch.stats.Clears++
	ch.metrics.recordClear(ch.cap())

	ch.writeCond.Broadcast()
	ch.wakePollers()

	ch.log.Debug("channel cleared")

	return nil
}

// Close wakes every blocked caller with ErrClosed, waits for them to leave,
// stops all subscriptions and releases the buffer. Calling Close more than
// once is a no-op.
func (ch *ByteChannel) Close() (err error) {
	ch.mu.Lock()

	if ch.closed {
		ch.mu.Unlock()
		return nil
	}

	ch.closed = true
	ch.readCond.Broadcast()
	ch.writeCond.Broadcast()
	ch.wakePollers()
	ch.pollers = nil

	for ch.readersWaiting+ch.writersWaiting > 0 {
		ch.idleCond.Wait()
	}

	subs := ch.subs.removeAll()
	ch.metrics.updateSubscribers(0)
	err = ch.buf.release()
	written, read := ch.stats.BytesWritten, ch.stats.BytesRead

	ch.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}

	ch.metrics.unregister()
	ch.log.Info("channel closed", "bytes_written", written, "bytes_read", read)

	return
}

// Closed reports whether Close has been called.
func (ch *ByteChannel) Closed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.closed
}

func (ch *ByteChannel) Empty() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.empty()
}

func (ch *ByteChannel) empty() bool {
	return ch.len() <= 0
}

func (ch *ByteChannel) notEmpty() bool {
	return !ch.empty()
}

func (ch *ByteChannel) Full() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.full()
}

func (ch *ByteChannel) full() bool {
	return !ch.spaceLeft()
}

func (ch *ByteChannel) SpaceLeft() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.spaceLeft()
}

func (ch *ByteChannel) spaceLeft() bool {
	return ch.len() < ch.cap()
}

// Len returns the number of pending bytes.
func (ch *ByteChannel) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.len()
}

func (ch *ByteChannel) len() int {
	if ch.buf == nil {
		return 0
	}

	return ch.buf.len()
}

// Cap returns the fixed capacity. It stays valid after Close.
func (ch *ByteChannel) Cap() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.cap()
}

func (ch *ByteChannel) cap() int {
	return ch.stats.Capacity
}

func (ch *ByteChannel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.state()
}

func (ch *ByteChannel) state() State {
	switch {
	case ch.empty():
		return StateEmpty
	case ch.full():
		return StateFull
	default:
		return StatePartial
	}
}

// Stats returns a consistent snapshot of the channel counters.
func (ch *ByteChannel) Stats() Stats {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	s := ch.stats
	s.Occupied = ch.len()
	s.ReadersWaiting = ch.readersWaiting
	s.WritersWaiting = ch.writersWaiting
	s.Subscribers = len(ch.subs)
	s.Handles = ch.handles

	return s
}
