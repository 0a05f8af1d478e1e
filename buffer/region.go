package buffer

import "fmt"

// WordSize is the size in bytes of the uint32 entries the kernels write
const WordSize = 4

// Flags describe how a kernel may access a buffer
type Flags int

const (
	ReadWrite Flags = iota
	ReadOnly
	WriteOnly
)

func (f Flags) String() string {
	switch f {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	default:
		return "read-write"
	}
}

// Writable reports whether a kernel may store through a buffer with these flags
func (f Flags) Writable() bool { return f != ReadOnly }

// allows reports whether a sub-buffer created with sub may live in a parent with f
func (f Flags) allows(sub Flags) bool {
	switch f {
	case ReadOnly:
		return sub == ReadOnly
	case WriteOnly:
		return sub == WriteOnly
	default:
		return true
	}
}

// Region is a byte range inside a parent buffer
type Region struct {
	Origin int64
	Size   int64
}

// End is one past the last byte of the region
func (r Region) End() int64 { return r.Origin + r.Size }

// Elements is the number of whole uint32 entries the region holds
func (r Region) Elements() int64 { return r.Size / WordSize }

// Validate checks that the region is non-empty, word aligned and lies inside
// a parent of parentSize bytes
func (r Region) Validate(parentSize int64) error {
	switch {
	case r.Size <= 0:
		return fmt.Errorf("region size %d must be positive", r.Size)
	case r.Origin < 0:
		return fmt.Errorf("region origin %d is negative", r.Origin)
	case r.Origin%WordSize != 0:
		return fmt.Errorf("region origin %d is not %d-byte aligned", r.Origin, WordSize)
	case r.End() > parentSize || r.End() < r.Origin:
		return fmt.Errorf("region [%d, %d) exceeds parent of %d bytes",
			r.Origin, r.End(), parentSize)
	}
	return nil
}
