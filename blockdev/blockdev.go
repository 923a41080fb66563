// Package blockdev is a RAM disk that serves segment transfer requests
// against a memory region.
package blockdev

import (
	"fmt"

	"github.com/webbmaffian/go-gbl/memregion"
)

// Requests address the device in units of this size, whatever the device's
// own block size is.
const KernelSectorSize = 512

type deviceError string

func (err deviceError) Error() string {
	return string(err)
}

const (
	ErrInvalidArgument = deviceError("invalid argument")
	ErrOutOfRange      = deviceError("transfer beyond end of device")
)

// Request transfers Segments in order, starting at Sector.
type Request struct {
	Sector   uint64
	Write    bool
	Segments [][]byte
}

// Geometry is the legacy CHS description of a disk.
type Geometry struct {
	Cylinders uint16
	Heads     uint8
	Sectors   uint8
	Start     uint64
}

type Device struct {
	store     *memregion.Region
	sectors   int
	blockSize int
}

// New creates a device of sectors blocks of blockSize bytes each. The block
// size must be a positive multiple of KernelSectorSize.
func New(sectors int, blockSize int) (d *Device, err error) {
	if sectors <= 0 {
		return nil, fmt.Errorf("%w: sectors must be positive", ErrInvalidArgument)
	}

	if blockSize <= 0 || blockSize%KernelSectorSize != 0 {
		return nil, fmt.Errorf("%w: block size %d is not a multiple of %d", ErrInvalidArgument, blockSize, KernelSectorSize)
	}

	d = &Device{
		sectors:   sectors,
		blockSize: blockSize,
	}

	if d.store, err = memregion.New(sectors * blockSize); err != nil {
		return nil, err
	}

	return
}

func (d *Device) Size() int64 {
	return d.store.Size()
}

func (d *Device) BlockSize() int {
	return d.blockSize
}

// Capacity is the device size in KernelSectorSize units.
func (d *Device) Capacity() uint64 {
	return uint64(d.store.Size() / KernelSectorSize)
}

func (d *Device) Geometry() Geometry {
	return Geometry{
		Cylinders: uint16((d.sectors &^ 0x3f) >> 6),
		Heads:     4,
		Sectors:   16,
		Start:     4,
	}
}

// Submit runs the segments of req in order. Each segment advances the sector
// by its length. A segment that would cross the end of the device fails the
// request with ErrOutOfRange before touching it; earlier segments stay done.
func (d *Device) Submit(req Request) error {
	sector := req.Sector

	for i, seg := range req.Segments {
		if len(seg)%KernelSectorSize != 0 {
			return fmt.Errorf("%w: segment %d length %d is not a multiple of %d", ErrInvalidArgument, i, len(seg), KernelSectorSize)
		}

		if err := d.transfer(sector, seg, req.Write); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}

		sector += uint64(len(seg) / KernelSectorSize)
	}

	return nil
}

func (d *Device) transfer(sector uint64, buf []byte, write bool) (err error) {
	// Checked before multiplying so a huge sector cannot wrap the offset.
	if sector > d.Capacity() {
		return fmt.Errorf("%w: sector %d capacity %d", ErrOutOfRange, sector, d.Capacity())
	}

	offset := sector * KernelSectorSize
	size := uint64(d.store.Size())

	if offset > size || uint64(len(buf)) > size-offset {
		return fmt.Errorf("%w: offset %d length %d size %d", ErrOutOfRange, offset, len(buf), size)
	}

	if write {
		_, err = d.store.WriteAt(buf, int64(offset))
	} else {
		_, err = d.store.ReadAt(buf, int64(offset))
	}

	return
}

func (d *Device) Close() error {
	return d.store.Close()
}
