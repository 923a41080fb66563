package memregion

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// Allocate an anonymous memory region of the given size in bytes.
func New(size int) (r *Region, err error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidArgument, size)
	}

	r = &Region{size: int64(size)}

	if r.data, err = mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0); err != nil {
		return nil, err
	}

	return
}

// Initialize a file-backed memory region. If the file doesn't exist it is
// created with the given size. If it exists, its size must match.
func NewFile(filepath string, size int) (r *Region, err error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidArgument, size)
	}

	r = &Region{size: int64(size)}
	info, err := os.Stat(filepath)

	if err == nil {
		if info.Size() != r.size {
			return nil, fmt.Errorf("%w: file size %d, expected %d", ErrInvalidArgument, info.Size(), r.size)
		}

		if r.file, err = os.OpenFile(filepath, os.O_RDWR, 0); err != nil {
			return
		}
	} else if os.IsNotExist(err) {
		if r.file, err = os.Create(filepath); err != nil {
			return
		}

		if err = r.file.Truncate(r.size); err != nil {
			r.file.Close()
			return
		}
	} else {
		return
	}

	if r.data, err = mmap.Map(r.file, mmap.RDWR, 0); err != nil {
		r.file.Close()
		return
	}

	return
}

// Memory region with random access. A single mutex serializes all access;
// nothing blocks.
type Region struct {
	mu     sync.Mutex
	data   mmap.MMap
	file   *os.File
	size   int64
	closed bool
}

var (
	_ io.ReaderAt = (*Region)(nil)
	_ io.WriterAt = (*Region)(nil)
)

func (r *Region) Size() int64 {
	return r.size
}

// ReadAt reads from the region at off. Reads past the end are clamped and
// return io.EOF.
func (r *Region) ReadAt(p []byte, off int64) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}

	if off < 0 {
		return 0, ErrInvalidArgument
	}

	if off >= r.size {
		return 0, io.EOF
	}

	if n = copy(p, r.data[off:]); n < len(p) {
		err = io.EOF
	}

	return
}

// WriteAt writes to the region at off. Writes past the end are clamped and
// return ErrNoSpace.
func (r *Region) WriteAt(p []byte, off int64) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}

	if off < 0 {
		return 0, ErrInvalidArgument
	}

	if off >= r.size {
		if len(p) == 0 {
			return 0, nil
		}

		return 0, ErrNoSpace
	}

	if n = copy(r.data[off:], p); n < len(p) {
		err = ErrNoSpace
	}

	return
}

func (r *Region) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	return r.data.Flush()
}

func (r *Region) Close() (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true

	if r.file != nil {
		if err = r.data.Flush(); err != nil {
			return
		}
	}

	if err = r.data.Unmap(); err != nil {
		return
	}

	if r.file != nil {
		return r.file.Close()
	}

	return
}

// Open returns a cursor with its own position, starting at 0.
func (r *Region) Open() *Cursor {
	return &Cursor{r: r}
}

// Cursor reads and writes a region sequentially, like an open file.
type Cursor struct {
	r   *Region
	mu  sync.Mutex
	pos int64
}

var (
	_ io.ReadWriteSeeker = (*Cursor)(nil)
)

func (c *Cursor) Read(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err = c.r.ReadAt(p, c.pos)
	c.pos += int64(n)

	if n > 0 && err == io.EOF {
		err = nil
	}

	return
}

func (c *Cursor) Write(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err = c.r.WriteAt(p, c.pos)
	c.pos += int64(n)

	return
}

// Seek moves the position. The result must stay within [0, Size()].
func (c *Cursor) Seek(offset int64, whence int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pos int64

	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = c.pos + offset
	case io.SeekEnd:
		pos = c.r.size + offset
	default:
		return c.pos, ErrInvalidArgument
	}

	if pos < 0 || pos > c.r.size {
		return c.pos, ErrInvalidArgument
	}

	c.pos = pos
	return pos, nil
}

func (c *Cursor) Pos() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pos
}
