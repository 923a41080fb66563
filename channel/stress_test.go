package channel

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Frames never tear: the capacity and every transfer are multiples of
// frameSize, so the occupied count always is too.
const frameSize = 4

func frame(tag byte, seq uint16) []byte {
	return []byte{tag, byte(seq >> 8), byte(seq), ^tag}
}

func TestConcurrentTaggedStream(t *testing.T) {
	const (
		writers   = 4
		readers   = 3
		perWriter = 5000
		total     = writers * perWriter * frameSize
	)

	ch := newTestChannel(t, 16*frameSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	var (
		read atomic.Int64
		mu   sync.Mutex
		seen [writers][perWriter]int
	)

	for i := 0; i < writers; i++ {
		tag := byte(i)

		// Writers stop with the group if a reader or the checker fails.
		h, err := ch.Open(gctx, 0)
		require.NoError(t, err)
		t.Cleanup(func() { h.Close() })

		g.Go(func() error {
			rnd := rand.New(rand.NewSource(int64(tag)))

			for seq := 0; seq < perWriter; {
				if err := gctx.Err(); err != nil {
					return err
				}

				h.SetNonblock(rnd.Intn(2) == 0)
				n, err := h.Write(frame(tag, uint16(seq)))

				switch {
				case errors.Is(err, ErrWouldBlock):
					runtime.Gosched()
					continue
				case err != nil:
					return err
				case n != frameSize:
					return fmt.Errorf("writer %d: torn frame of %d bytes", tag, n)
				}

				seq++
			}

			return nil
		})
	}

	for i := 0; i < readers; i++ {
		h := openHandle(t, ch, 0)
		seed := int64(100 + i)

		g.Go(func() error {
			rnd := rand.New(rand.NewSource(seed))
			last := [writers]int{-1, -1, -1, -1}
			var got [][2]int

			defer func() {
				mu.Lock()
				defer mu.Unlock()

				for _, f := range got {
					seen[f[0]][f[1]]++
				}
			}()

			for gctx.Err() == nil {
				h.SetNonblock(rnd.Intn(2) == 0)
				buf := make([]byte, frameSize*(1+rnd.Intn(8)))
				n, err := h.ReadContext(gctx, buf)

				switch {
				case errors.Is(err, ErrWouldBlock):
					runtime.Gosched()
					continue
				case errors.Is(err, ErrInterrupted):
					return nil
				case err != nil:
					return err
				case n%frameSize != 0:
					return fmt.Errorf("torn read of %d bytes", n)
				}

				for f := buf[:n]; len(f) > 0; f = f[frameSize:] {
					tag, seq := int(f[0]), int(f[1])<<8|int(f[2])

					if f[3] != ^f[0] || tag >= writers || seq >= perWriter {
						return fmt.Errorf("corrupt frame % x", f[:frameSize])
					}

					// Each reader sees any one writer's frames in order.
					if seq <= last[tag] {
						return fmt.Errorf("writer %d: seq %d after %d", tag, seq, last[tag])
					}

					last[tag] = seq
					got = append(got, [2]int{tag, seq})
				}

				if read.Add(int64(n)) == total {
					cancel()
				}
			}

			return nil
		})
	}

	g.Go(func() error {
		for gctx.Err() == nil {
			s := ch.Stats()

			if s.Occupied < 0 || s.Occupied > s.Capacity || s.Occupied%frameSize != 0 {
				return fmt.Errorf("occupied %d out of range", s.Occupied)
			}

			if s.BytesWritten-s.BytesRead != uint64(s.Occupied) {
				return errors.New("bytes in flight do not match occupied")
			}
		}

		return nil
	})

	require.NoError(t, g.Wait())
	assert.Equal(t, int64(total), read.Load())

	// Every frame arrived exactly once: nothing lost, nothing duplicated.
	for tag := range seen {
		for seq, n := range seen[tag] {
			if n != 1 {
				t.Errorf("writer %d seq %d seen %d times", tag, seq, n)
			}
		}
	}

	assert.True(t, ch.Empty())
}

func TestConcurrentSingleReaderKeepsOrder(t *testing.T) {
	const total = 50000

	ch := newTestChannel(t, 128)
	w := openHandle(t, ch, 0)
	r := openHandle(t, ch, 0)

	var g errgroup.Group

	g.Go(func() error {
		_, err := w.WriteAll(pattern(total))
		return err
	})

	got := make([]byte, 0, total)
	buf := make([]byte, 100)

	for len(got) < total {
		n, err := r.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, pattern(total), got)
}

func TestConcurrentClearKeepsInvariant(t *testing.T) {
	ch := newTestChannel(t, 32)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < 2; i++ {
		h := openHandle(t, ch, 0)

		g.Go(func() error {
			for gctx.Err() == nil {
				if _, err := h.WriteContext(gctx, []byte("0123456789")); err != nil && !IsTemporary(err) {
					return err
				}
			}

			return nil
		})
	}

	admin := openHandle(t, ch, 0)

	g.Go(func() error {
		defer cancel()

		for i := 0; i < 1000; i++ {
			if err := admin.Control(OpClear); err != nil {
				return err
			}

			if n := ch.Len(); n < 0 || n > ch.Cap() {
				return errors.New("occupied out of range")
			}
		}

		return nil
	})

	require.NoError(t, g.Wait())
	assert.Equal(t, uint64(1000), ch.Stats().Clears)
}
