package channel

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClearEmptiesChannel(t *testing.T) {
	ch := newTestChannel(t, 8)
	h := openHandle(t, ch, ONonblock)

	_, err := h.Write([]byte("abcde"))
	require.NoError(t, err)
	assert.Equal(t, StatePartial, ch.State())

	require.NoError(t, h.Control(OpClear))
	assert.Equal(t, StateEmpty, ch.State())
	assert.Zero(t, ch.Len())
	assert.Equal(t, uint64(1), ch.Stats().Clears)

	// Clearing an empty channel is fine too.
	require.NoError(t, h.Control(OpClear))

	_, err = h.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestClearUnblocksWriter(t *testing.T) {
	ch := newTestChannel(t, DefaultCapacity)
	w := openHandle(t, ch, 0)
	admin := openHandle(t, ch, 0)

	n, err := w.Write(pattern(DefaultCapacity))
	require.NoError(t, err)
	require.Equal(t, DefaultCapacity, n)

	done := make(chan result, 1)

	go func() {
		n, err := w.Write(pattern(DefaultCapacity))
		done <- result{n, err}
	}()

	waitForWaiters(t, ch, 0, 1)
	require.NoError(t, admin.Control(OpClear))

	res := await(t, done)
	require.NoError(t, res.err)
	assert.Equal(t, DefaultCapacity, res.n)
	assert.Equal(t, StateFull, ch.State())
}

func TestClearDoesNotWakeReaders(t *testing.T) {
	ch := newTestChannel(t, 8)
	r := openHandle(t, ch, 0)
	admin := openHandle(t, ch, 0)

	done := make(chan result, 1)

	go func() {
		n, err := r.Read(make([]byte, 1))
		done <- result{n, err}
	}()

	waitForWaiters(t, ch, 1, 0)
	require.NoError(t, admin.Control(OpClear))
	waitForWaiters(t, ch, 1, 0)

	_, err := admin.Write([]byte("z"))
	require.NoError(t, err)

	res := await(t, done)
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.n)
}

func TestControlUnknownOp(t *testing.T) {
	ch := newTestChannel(t, 8)
	h := openHandle(t, ch, ONonblock)

	_, err := h.Write([]byte("abc"))
	require.NoError(t, err)

	assert.ErrorIs(t, h.Control(Op(2)), ErrInvalidArgument)
	assert.ErrorIs(t, h.Control(Op(0)), ErrInvalidArgument)
	assert.Equal(t, 3, ch.Len())
	assert.Zero(t, ch.Stats().Clears)
}

func TestControlOnClosedHandle(t *testing.T) {
	ch := newTestChannel(t, 8)
	h := openHandle(t, ch, 0)

	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Control(OpClear), ErrClosed)
}

func TestParseOp(t *testing.T) {
	op, err := ParseOp("clear")
	require.NoError(t, err)
	assert.Equal(t, OpClear, op)
	assert.Equal(t, "clear", op.String())

	_, err = ParseOp("flush")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "op(7)", Op(7).String())
}

func TestSeekNotSupported(t *testing.T) {
	ch := newTestChannel(t, 8)
	h := openHandle(t, ch, 0)

	for _, whence := range []int{io.SeekStart, io.SeekCurrent, io.SeekEnd} {
		_, err := h.Seek(0, whence)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestStateCycle(t *testing.T) {
	ch := newTestChannel(t, 2)
	h := openHandle(t, ch, ONonblock)

	states := []State{ch.State()}

	for _, step := range []func() error{
		func() error { _, err := h.Write([]byte("a")); return err },
		func() error { _, err := h.Write([]byte("b")); return err },
		func() error { _, err := h.Read(make([]byte, 1)); return err },
		func() error { return h.Control(OpClear) },
	} {
		require.NoError(t, step())
		states = append(states, ch.State())
	}

	assert.Equal(t, []State{StateEmpty, StatePartial, StateFull, StatePartial, StateEmpty}, states)
	assert.Equal(t, "full", StateFull.String())
}
