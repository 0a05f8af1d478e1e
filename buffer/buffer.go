package buffer

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/notargets/SubBufCheck/device"
	"github.com/notargets/gocca"
)

// Parent is a device allocation followed by a guard band. Kernels only ever
// see the first Size bytes; the guard band is where a canary based detector
// expects stray writes to land.
type Parent struct {
	Mem        *gocca.OCCAMemory
	Size       int64
	GuardBytes int64
	Flags      Flags
}

// NewParent allocates size+guardBytes bytes on the device
func NewParent(dev *gocca.OCCADevice, size, guardBytes int64, flags Flags) (*Parent, error) {
	if dev == nil {
		return nil, device.Check("create buffer", errors.New("nil device"))
	}
	if size <= 0 || size%WordSize != 0 {
		return nil, device.Check("create buffer",
			fmt.Errorf("buffer size %d must be a positive multiple of %d", size, WordSize))
	}
	if guardBytes < 0 || guardBytes%WordSize != 0 {
		return nil, device.Check("create buffer",
			fmt.Errorf("guard band %d must be a non-negative multiple of %d", guardBytes, WordSize))
	}

	mem := dev.Malloc(size+guardBytes, nil, nil)
	if mem == nil {
		return nil, device.Check("create buffer",
			fmt.Errorf("device allocation of %d bytes failed", size+guardBytes))
	}
	return &Parent{Mem: mem, Size: size, GuardBytes: guardBytes, Flags: flags}, nil
}

// TotalBytes is the allocation size including the guard band
func (p *Parent) TotalBytes() int64 { return p.Size + p.GuardBytes }

// Words is the number of uint32 entries in the allocation including the guard band
func (p *Parent) Words() int { return int(p.TotalBytes() / WordSize) }

// SubBuffer creates a view over region of the parent
func (p *Parent) SubBuffer(region Region, flags Flags) (*SubBuffer, error) {
	if err := region.Validate(p.Size); err != nil {
		return nil, device.Check("create sub-buffer", err)
	}
	if !p.Flags.allows(flags) {
		return nil, device.Check("create sub-buffer",
			fmt.Errorf("%s sub-buffer inside %s parent", flags, p.Flags))
	}
	return &SubBuffer{Parent: p, Region: region, Flags: flags}, nil
}

// Poison fills the whole allocation, guard band included, with pattern
func (p *Parent) Poison(pattern uint32) {
	words := make([]uint32, p.Words())
	for i := range words {
		words[i] = pattern
	}
	p.Mem.CopyFrom(unsafe.Pointer(&words[0]), p.TotalBytes())
}

// Snapshot copies the whole allocation, guard band included, back to the host
func (p *Parent) Snapshot() []uint32 {
	words := make([]uint32, p.Words())
	p.Mem.CopyTo(unsafe.Pointer(&words[0]), p.TotalBytes())
	return words
}

// Free releases the device allocation
func (p *Parent) Free() {
	if p.Mem != nil {
		p.Mem.Free()
		p.Mem = nil
	}
}

// SubBuffer is a view over a region of a Parent. It owns no device memory.
type SubBuffer struct {
	Parent *Parent
	Region Region
	Flags  Flags
}

// Mem is the device memory kernels receive for this view; kernels add
// OriginElements to their index
func (s *SubBuffer) Mem() *gocca.OCCAMemory { return s.Parent.Mem }

// OriginElements is the region origin in uint32 entries
func (s *SubBuffer) OriginElements() int64 { return s.Region.Origin / WordSize }

// Elements is the number of uint32 entries in the view
func (s *SubBuffer) Elements() int64 { return s.Region.Elements() }

// ReadBack copies the view's contents to the host
func (s *SubBuffer) ReadBack() []uint32 {
	n := s.Elements()
	out := make([]uint32, n)
	if n == 0 {
		return out
	}
	s.Parent.Mem.CopyToWithOffset(unsafe.Pointer(&out[0]), n*WordSize, s.Region.Origin)
	return out
}
