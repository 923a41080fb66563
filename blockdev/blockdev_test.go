package blockdev

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T, sectors, blockSize int) *Device {
	t.Helper()

	d, err := New(sectors, blockSize)
	require.NoError(t, err)

	t.Cleanup(func() {
		d.Close()
	})

	return d
}

func sector(b byte) []byte {
	return bytes.Repeat([]byte{b}, KernelSectorSize)
}

func TestNewInvalid(t *testing.T) {
	_, err := New(0, KernelSectorSize)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(16, 1000)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSizes(t *testing.T) {
	d := newTestDevice(t, 128, 1024)

	assert.Equal(t, int64(128*1024), d.Size())
	assert.Equal(t, 1024, d.BlockSize())
	assert.Equal(t, uint64(256), d.Capacity())
	assert.Equal(t, Geometry{Cylinders: 2, Heads: 4, Sectors: 16, Start: 4}, d.Geometry())
}

func TestSubmitSegments(t *testing.T) {
	d := newTestDevice(t, 8, KernelSectorSize)

	err := d.Submit(Request{
		Sector:   2,
		Write:    true,
		Segments: [][]byte{sector('a'), append(sector('b'), sector('c')...)},
	})
	require.NoError(t, err)

	first, rest := make([]byte, KernelSectorSize), make([]byte, 2*KernelSectorSize)

	require.NoError(t, d.Submit(Request{Sector: 2, Segments: [][]byte{first, rest}}))
	assert.Equal(t, sector('a'), first)
	assert.Equal(t, append(sector('b'), sector('c')...), rest)

	// Sector 3 holds the second segment's first half.
	one := make([]byte, KernelSectorSize)
	require.NoError(t, d.Submit(Request{Sector: 3, Segments: [][]byte{one}}))
	assert.Equal(t, sector('b'), one)
}

func TestSubmitUnaligned(t *testing.T) {
	d := newTestDevice(t, 8, KernelSectorSize)

	err := d.Submit(Request{Write: true, Segments: [][]byte{make([]byte, 100)}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSubmitBeyondEnd(t *testing.T) {
	d := newTestDevice(t, 4, KernelSectorSize)

	err := d.Submit(Request{
		Sector:   3,
		Write:    true,
		Segments: [][]byte{sector('x'), sector('y')},
	})
	assert.ErrorIs(t, err, ErrOutOfRange)

	// The first segment fit and stays written.
	buf := make([]byte, KernelSectorSize)
	require.NoError(t, d.Submit(Request{Sector: 3, Segments: [][]byte{buf}}))
	assert.Equal(t, sector('x'), buf)

	err = d.Submit(Request{Sector: 100, Segments: [][]byte{buf}})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestSubmitHugeSector(t *testing.T) {
	d := newTestDevice(t, 4, KernelSectorSize)

	for _, sec := range []uint64{1 << 55, 1<<64 - 1} {
		err := d.Submit(Request{Sector: sec, Write: true, Segments: [][]byte{sector(0xab)}})
		assert.ErrorIs(t, err, ErrOutOfRange, "sector %d", sec)
	}

	// Nothing wrapped around to the start of the device.
	buf := make([]byte, KernelSectorSize)
	require.NoError(t, d.Submit(Request{Sector: 0, Segments: [][]byte{buf}}))
	assert.Equal(t, make([]byte, KernelSectorSize), buf)
}
