package channel

import (
	"context"
	"strings"
	"sync"
)

// Readiness is a set of poll bits in the conventional encoding.
type Readiness uint32

const (
	PollIn     Readiness = 0x001
	PollPri    Readiness = 0x002
	PollOut    Readiness = 0x004
	PollErr    Readiness = 0x008
	PollHup    Readiness = 0x010 // Channel closed
	PollNval   Readiness = 0x020 // Handle closed
	PollRdNorm Readiness = 0x040
	PollWrNorm Readiness = 0x100
)

func (r Readiness) Readable() bool {
	return r&PollIn != 0
}

func (r Readiness) Writable() bool {
	return r&PollOut != 0
}

func (r Readiness) String() string {
	if r == 0 {
		return "0"
	}

	names := []struct {
		bit  Readiness
		name string
	}{
		{PollIn, "IN"},
		{PollPri, "PRI"},
		{PollOut, "OUT"},
		{PollErr, "ERR"},
		{PollHup, "HUP"},
		{PollNval, "NVAL"},
		{PollRdNorm, "RDNORM"},
		{PollWrNorm, "WRNORM"},
	}

	var parts []string

	for _, n := range names {
		if r&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}

	return strings.Join(parts, "|")
}

// poll evaluates readiness and, if w is not nil, registers w to be woken on
// the next state change. It never blocks.
func (ch *ByteChannel) poll(w *PollWaiter) (mask Readiness) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return PollHup
	}

	if w != nil && w.register(ch) {
		ch.pollers[w] = struct{}{}
	}

	if !ch.empty() {
		mask |= PollIn | PollRdNorm
	}

	if ch.spaceLeft() {
		mask |= PollOut | PollWrNorm
	}

	return
}

// wakePollers signals every registered poll waiter. Must be called with mu
// held.
func (ch *ByteChannel) wakePollers() {
	for w := range ch.pollers {
		w.wake(ch)
	}
}

// PollWaiter is woken whenever the state of a channel it was registered with
// changes. Wakeups coalesce: C holds at most one pending signal.
type PollWaiter struct {
	c       chan struct{}
	onWake  func(*ByteChannel)
	mu      sync.Mutex
	chans   map[*ByteChannel]struct{}
	stopped bool
}

func NewPollWaiter() *PollWaiter {
	return &PollWaiter{
		c:     make(chan struct{}, 1),
		chans: make(map[*ByteChannel]struct{}),
	}
}

func (w *PollWaiter) C() <-chan struct{} {
	return w.c
}

// register runs under ch.mu. It reports false once the waiter is stopped.
func (w *PollWaiter) register(ch *ByteChannel) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return false
	}

	w.chans[ch] = struct{}{}
	return true
}

func (w *PollWaiter) unregister(ch *ByteChannel) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.chans, ch)
}

func (w *PollWaiter) wake(ch *ByteChannel) {
	if w.onWake != nil {
		w.onWake(ch)
	}

	w.signal()
}

func (w *PollWaiter) signal() {
	select {
	case w.c <- struct{}{}:
	default:
	}
}

// Stop deregisters the waiter from every channel it was registered with.
// Polling with a stopped waiter no longer registers it.
func (w *PollWaiter) Stop() {
	w.mu.Lock()
	chans := w.chans
	w.chans = make(map[*ByteChannel]struct{})
	w.stopped = true
	w.mu.Unlock()

	for ch := range chans {
		ch.mu.Lock()
		delete(ch.pollers, w)
		ch.mu.Unlock()
	}
}

// PollEvent is a readiness report for one handle.
type PollEvent struct {
	Handle *Handle
	Events Readiness
}

type pollEntry struct {
	h     *Handle
	mask  Readiness
	edge  bool
	armed bool
}

// pollCandidate is an entry as seen at the start of a collect round.
type pollCandidate struct {
	e     *pollEntry
	mask  Readiness
	edge  bool
	armed bool
}

// Poller multiplexes readiness of many handles. Level-triggered entries are
// reported as long as they are ready; edge-triggered entries once per state
// change of their channel.
type Poller struct {
	mu      sync.Mutex
	entries map[*Handle]*pollEntry
	waiter  *PollWaiter
	closed  bool
}

func NewPoller() *Poller {
	p := &Poller{
		entries: make(map[*Handle]*pollEntry),
		waiter:  NewPollWaiter(),
	}

	p.waiter.onWake = p.arm

	return p
}

// arm runs under the woken channel's mutex, so it must not call back into
// the channel.
func (p *Poller) arm(ch *ByteChannel) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.h.ch == ch {
			e.armed = true
		}
	}
}

func (p *Poller) Add(h *Handle, mask Readiness, edge bool) error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}

	if _, ok := p.entries[h]; ok {
		p.mu.Unlock()
		return ErrInvalidArgument
	}

	p.entries[h] = &pollEntry{h: h, mask: mask, edge: edge, armed: true}
	p.mu.Unlock()

	h.Poll(p.waiter)
	p.waiter.signal()

	return nil
}

func (p *Poller) Modify(h *Handle, mask Readiness, edge bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	e, ok := p.entries[h]

	if !ok {
		return ErrInvalidArgument
	}

	e.mask, e.edge, e.armed = mask, edge, true
	p.waiter.signal()

	return nil
}

func (p *Poller) Remove(h *Handle) error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}

	if _, ok := p.entries[h]; !ok {
		p.mu.Unlock()
		return ErrInvalidArgument
	}

	delete(p.entries, h)
	p.mu.Unlock()

	p.release(h.ch)

	return nil
}

// release deregisters the waiter from ch once no entry watches it. The check
// runs under ch.mu so a concurrent Add on the same channel is not lost.
func (p *Poller) release(ch *ByteChannel) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.h.ch == ch {
			return
		}
	}

	delete(ch.pollers, p.waiter)
	p.waiter.unregister(ch)
}

// Wait blocks until at least one entry is ready or ctx is done. If maxEvents
// is positive at most maxEvents events are returned; remaining edges stay
// armed.
func (p *Poller) Wait(ctx context.Context, maxEvents int) ([]PollEvent, error) {
	for {
		events, err := p.collect(maxEvents)

		if err != nil || len(events) > 0 {
			return events, err
		}

		select {
		case <-p.waiter.C():
		case <-ctx.Done():
			return nil, interrupted(ctx)
		}
	}
}

func (p *Poller) collect(maxEvents int) (events []PollEvent, err error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	// Disarm before evaluating, so a change racing with the evaluation
	// re-arms the entry for the next round.
	candidates := make([]pollCandidate, 0, len(p.entries))

	for _, e := range p.entries {
		candidates = append(candidates, pollCandidate{e: e, mask: e.mask, edge: e.edge, armed: e.armed})

		if e.edge {
			e.armed = false
		}
	}

	p.mu.Unlock()

	var gone []*Handle

	for i, c := range candidates {
		if maxEvents > 0 && len(events) == maxEvents {
			p.rearm(candidates[i:])
			break
		}

		if c.edge && !c.armed {
			continue
		}

		r := c.e.h.Poll(p.waiter)

		if r&PollNval != 0 {
			gone = append(gone, c.e.h)
			continue
		}

		if r &= c.mask | PollHup | PollErr; r != 0 {
			events = append(events, PollEvent{Handle: c.e.h, Events: r})
		}
	}

	if gone != nil {
		p.mu.Lock()

		for _, h := range gone {
			delete(p.entries, h)
		}

		p.mu.Unlock()

		for _, h := range gone {
			p.release(h.ch)
		}
	}

	return
}

func (p *Poller) rearm(candidates []pollCandidate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range candidates {
		if c.armed {
			c.e.armed = true
		}
	}
}

// Close deregisters the poller from all channels and fails pending and
// future Wait calls with ErrClosed.
func (p *Poller) Close() error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil
	}

	p.closed = true
	p.entries = nil
	p.mu.Unlock()

	p.waiter.Stop()
	p.waiter.signal()

	return nil
}
