package runner

import (
	"fmt"
	"math"

	"github.com/notargets/SubBufCheck/buffer"
)

// Plan is the launch arithmetic for one scenario
type Plan struct {
	BufferSize   int64
	GuardBytes   int64
	Region       buffer.Region
	Entries      int64 // uint32 entries in the sub-buffer
	WorkItems    int64 // entries plus any extra, clamped to the launch limit
	BytesWritten int64
	LenArg       int // bound to the kernel's len
}

// SubSize is the sub-buffer size in bytes
func (p Plan) SubSize() int64 { return p.Region.Size }

// ClampWorkItems limits n to what a single launch can address
func ClampWorkItems(n, limit int64) int64 {
	if n > limit {
		return limit
	}
	return n
}

// lenArg truncates the sub-buffer byte size to the 32 bit unsigned value a
// launch binds, then fits it into the kernel's int
func lenArg(subSize int64) int {
	v := uint32(subSize)
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// NewPlan lays out a sub-buffer over the first quarter of a bufferSize parent
// and launches one work item per entry plus extra
func NewPlan(bufferSize, guardBytes, limit, extra int64) (Plan, error) {
	region := buffer.Region{Origin: 0, Size: bufferSize / 4}
	if err := region.Validate(bufferSize); err != nil {
		return Plan{}, fmt.Errorf("bad sub-buffer for %d byte buffer: %w", bufferSize, err)
	}
	if limit <= 0 {
		return Plan{}, fmt.Errorf("work item limit %d must be positive", limit)
	}
	if extra < 0 {
		return Plan{}, fmt.Errorf("extra work items %d is negative", extra)
	}

	entries := region.Elements()
	items := entries
	if extra > 0 && items <= math.MaxInt64-extra {
		items += extra
	}
	items = ClampWorkItems(items, limit)

	return Plan{
		BufferSize:   bufferSize,
		GuardBytes:   guardBytes,
		Region:       region,
		Entries:      entries,
		WorkItems:    items,
		BytesWritten: items * buffer.WordSize,
		LenArg:       lenArg(region.Size),
	}, nil
}

// Writes is how many entries inside the sub-buffer the launch stores to
func (p Plan) Writes() int64 {
	if p.WorkItems < p.Entries {
		return p.WorkItems
	}
	return p.Entries
}
