package channel

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
)

// Flag modifies how a handle behaves.
type Flag int

const (
	// ONonblock makes reads on an empty and writes on a full channel fail
	// with ErrWouldBlock instead of suspending.
	ONonblock Flag = 1 << iota
)

var (
	_ io.Reader = (*Handle)(nil)
	_ io.Writer = (*Handle)(nil)
	_ io.Seeker = (*Handle)(nil)
	_ io.Closer = (*Handle)(nil)
)

// Handle is a caller's session on a shared ByteChannel, the analogue of an
// open file descriptor. Opening a handle does not allocate a new channel.
// Blocking calls on a handle are interrupted when the context given to Open
// is done or when the handle is closed.
type Handle struct {
	id       uuid.UUID
	ch       *ByteChannel
	ctx      context.Context
	cancel   context.CancelCauseFunc
	nonblock atomic.Bool
	closed   atomic.Bool
}

// Open returns a new handle on the channel.
func (ch *ByteChannel) Open(ctx context.Context, flags Flag) (h *Handle, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return nil, ErrClosed
	}

	h = &Handle{
		id: uuid.New(),
		ch: ch,
	}

	h.ctx, h.cancel = context.WithCancelCause(ctx)
	h.nonblock.Store(flags&ONonblock != 0)
	ch.handles++

	ch.log.Debug("handle opened", "handle", h.id, "nonblock", h.Nonblock())

	return
}

func (h *Handle) ID() uuid.UUID {
	return h.id
}

func (h *Handle) Channel() *ByteChannel {
	return h.ch
}

func (h *Handle) Nonblock() bool {
	return h.nonblock.Load()
}

func (h *Handle) SetNonblock(nonblock bool) {
	h.nonblock.Store(nonblock)
}

// Read reads up to len(p) pending bytes. It returns at least one byte, or an
// error: ErrWouldBlock on an empty channel in non-blocking mode, ErrInterrupted
// if the wait was cancelled, ErrClosed after Close.
func (h *Handle) Read(p []byte) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}

	return h.ch.read(h.ctx, p, !h.Nonblock())
}

// ReadContext is Read with an additional per-call interrupt.
func (h *Handle) ReadContext(ctx context.Context, p []byte) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}

	ctx, cancel := h.join(ctx)
	defer cancel()

	return h.ch.read(ctx, p, !h.Nonblock())
}

// Write appends as much of p as fits. A short write is not an error; the
// caller resubmits the remainder.
func (h *Handle) Write(p []byte) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}

	return h.ch.write(h.ctx, p, !h.Nonblock())
}

// WriteContext is Write with an additional per-call interrupt.
func (h *Handle) WriteContext(ctx context.Context, p []byte) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}

	ctx, cancel := h.join(ctx)
	defer cancel()

	return h.ch.write(ctx, p, !h.Nonblock())
}

// WriteAll writes p completely, resubmitting after short writes. In
// non-blocking mode it stops at the first ErrWouldBlock.
func (h *Handle) WriteAll(p []byte) (n int, err error) {
	for n < len(p) {
		var m int

		m, err = h.Write(p[n:])
		n += m

		if err != nil {
			return
		}
	}

	return
}

// Seek always fails; a FIFO has no position.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}

	return 0, fmt.Errorf("%w: channel is not seekable", ErrInvalidArgument)
}

// Poll reports current readiness without blocking. If w is not nil it is
// registered to be woken on the next state change of the channel.
func (h *Handle) Poll(w *PollWaiter) Readiness {
	if h.closed.Load() {
		return PollNval
	}

	return h.ch.poll(w)
}

// Subscribe registers target for data-available notifications. Subscribing
// again replaces the previous target.
func (h *Handle) Subscribe(target Notifier) error {
	if h.closed.Load() {
		return ErrClosed
	}

	if target == nil {
		return fmt.Errorf("%w: nil notifier", ErrInvalidArgument)
	}

	return h.ch.subscribe(h, target)
}

// Unsubscribe removes the handle's subscription, if any. Undelivered
// notifications are dropped.
func (h *Handle) Unsubscribe() {
	h.ch.unsubscribe(h.id)
}

// Close interrupts blocked calls on this handle with ErrClosed as cause and
// removes its subscription. Further calls fail with ErrClosed.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	h.cancel(ErrClosed)
	h.ch.unsubscribe(h.id)

	h.ch.mu.Lock()
	h.ch.handles--
	h.ch.mu.Unlock()

	h.ch.log.Debug("handle closed", "handle", h.id)

	return nil
}

// join returns a context that is done when either ctx or the handle's own
// context is.
func (h *Handle) join(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil || ctx == h.ctx {
		return h.ctx, func() {}
	}

	joined, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(h.ctx, func() {
		cancel(context.Cause(h.ctx))
	})

	return joined, func() {
		stop()
		cancel(nil)
	}
}
