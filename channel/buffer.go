package channel

import (
	"fmt"

	"github.com/edsrzf/mmap-go"
)

// Storage selects where the pending bytes of a channel live.
type Storage int

const (
	StorageHeap Storage = iota
	StorageMapped
)

func (s Storage) String() string {
	switch s {
	case StorageHeap:
		return "heap"
	case StorageMapped:
		return "mapped"
	default:
		return "unknown"
	}
}

// ParseStorage is the inverse of Storage.String.
func ParseStorage(s string) (Storage, error) {
	switch s {
	case "", "heap":
		return StorageHeap, nil
	case "mapped", "mmap":
		return StorageMapped, nil
	}

	return 0, fmt.Errorf("%w: unknown storage %q", ErrInvalidArgument, s)
}

// byteBuffer is a fixed-capacity queue of bytes. Reads compact the remaining
// bytes to the front, so the pending data is always data[:length].
// It does no locking of its own.
type byteBuffer struct {
	data   []byte
	mapped mmap.MMap
	length int
}

func newByteBuffer(capacity int, storage Storage) (b *byteBuffer, err error) {
	b = new(byteBuffer)

	switch storage {
	case StorageHeap:
		b.data = make([]byte, capacity)
	case StorageMapped:
		if b.mapped, err = mmap.MapRegion(nil, capacity, mmap.RDWR, mmap.ANON, 0); err != nil {
			return nil, fmt.Errorf("%w: map %d bytes: %w", ErrResourceExhausted, capacity, err)
		}

		b.data = b.mapped
	default:
		return nil, fmt.Errorf("%w: unknown storage %d", ErrInvalidArgument, storage)
	}

	return
}

func (b *byteBuffer) len() int {
	return b.length
}

func (b *byteBuffer) cap() int {
	return len(b.data)
}

func (b *byteBuffer) free() int {
	return len(b.data) - b.length
}

// push appends as much of p as fits and returns the number of bytes taken.
func (b *byteBuffer) push(p []byte) int {
	n := copy(b.data[b.length:], p)
	b.length += n
	return n
}

// pull moves up to len(p) bytes from the head into p.
func (b *byteBuffer) pull(p []byte) int {
	n := copy(p, b.data[:b.length])
	copy(b.data, b.data[n:b.length])
	b.length -= n
	return n
}

func (b *byteBuffer) reset() {
	b.length = 0
}

func (b *byteBuffer) release() (err error) {
	if b.mapped != nil {
		err = b.mapped.Unmap()
		b.mapped = nil
	}

	b.data = nil
	b.length = 0
	return
}
