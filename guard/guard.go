// Package guard inspects a host snapshot of a poisoned parent buffer after a
// kernel has run and reports every word a kernel wrote outside its sub-buffer.
package guard

import (
	"fmt"
	"strings"

	"github.com/notargets/SubBufCheck/buffer"
)

// DefaultPoison is the sentinel written over the parent before launch
const DefaultPoison uint32 = 0xDEADBEEF

// Zone names the part of the allocation a word belongs to
type Zone int

const (
	ZoneSubBuffer Zone = iota
	ZoneParentHead
	ZoneParentTail
	ZoneGuardBand
)

func (z Zone) String() string {
	switch z {
	case ZoneParentHead:
		return "parent-head"
	case ZoneParentTail:
		return "parent-tail"
	case ZoneGuardBand:
		return "guard-band"
	default:
		return "sub-buffer"
	}
}

// Layout describes where the sub-buffer sits in the snapshot
type Layout struct {
	ParentSize int64
	GuardBytes int64
	Region     buffer.Region
}

// ZoneOf classifies a byte offset
func (l Layout) ZoneOf(offset int64) Zone {
	switch {
	case offset >= l.ParentSize:
		return ZoneGuardBand
	case offset < l.Region.Origin:
		return ZoneParentHead
	case offset >= l.Region.End():
		return ZoneParentTail
	default:
		return ZoneSubBuffer
	}
}

// Violation is a word outside the sub-buffer that lost its sentinel
type Violation struct {
	Offset int64 // bytes from the start of the parent
	Zone   Zone
	Got    uint32
}

func (v Violation) String() string {
	return fmt.Sprintf("%s write at byte %d (got %#x)", v.Zone, v.Offset, v.Got)
}

// Mismatch is a word inside the sub-buffer whose value is not what the
// kernel should have stored
type Mismatch struct {
	Index int64
	Want  uint32
	Got   uint32
}

// Report is the outcome of a guard check
type Report struct {
	Violations []Violation
	Mismatches []Mismatch
	ZoneCounts map[Zone]int
	Checked    int
}

// Overflow reports whether anything outside the sub-buffer was written
func (r *Report) Overflow() bool { return len(r.Violations) > 0 }

// First returns the lowest addressed violation
func (r *Report) First() (Violation, bool) {
	if len(r.Violations) == 0 {
		return Violation{}, false
	}
	return r.Violations[0], true
}

// Summary is a one line description suitable for logs
func (r *Report) Summary() string {
	if !r.Overflow() && len(r.Mismatches) == 0 {
		return fmt.Sprintf("clean: %d words checked", r.Checked)
	}
	var parts []string
	for _, z := range []Zone{ZoneParentHead, ZoneParentTail, ZoneGuardBand} {
		if n := r.ZoneCounts[z]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", z, n))
		}
	}
	s := fmt.Sprintf("%d overflow words", len(r.Violations))
	if len(parts) > 0 {
		s += " (" + strings.Join(parts, " ") + ")"
	}
	if first, ok := r.First(); ok {
		s += ", first " + first.String()
	}
	if len(r.Mismatches) > 0 {
		s += fmt.Sprintf(", %d wrong values inside sub-buffer", len(r.Mismatches))
	}
	return s
}

// Check walks snapshot word by word. Words outside the sub-buffer must still
// hold poison. The first written entries of the sub-buffer must hold their
// own index and the rest of the sub-buffer must still hold poison.
func Check(snapshot []uint32, layout Layout, poison uint32, written int64) (*Report, error) {
	want := (layout.ParentSize + layout.GuardBytes) / buffer.WordSize
	if int64(len(snapshot)) != want {
		return nil, fmt.Errorf("snapshot has %d words, layout needs %d", len(snapshot), want)
	}
	if err := layout.Region.Validate(layout.ParentSize); err != nil {
		return nil, err
	}
	if written < 0 || written > layout.Region.Elements() {
		return nil, fmt.Errorf("written count %d outside sub-buffer of %d entries",
			written, layout.Region.Elements())
	}

	rep := &Report{ZoneCounts: make(map[Zone]int), Checked: len(snapshot)}
	originWord := layout.Region.Origin / buffer.WordSize
	for i, got := range snapshot {
		offset := int64(i) * buffer.WordSize
		zone := layout.ZoneOf(offset)
		if zone != ZoneSubBuffer {
			if got != poison {
				rep.Violations = append(rep.Violations, Violation{Offset: offset, Zone: zone, Got: got})
				rep.ZoneCounts[zone]++
			}
			continue
		}

		idx := int64(i) - originWord
		expected := poison
		if idx < written {
			expected = uint32(idx)
		}
		if got != expected {
			rep.Mismatches = append(rep.Mismatches, Mismatch{Index: idx, Want: expected, Got: got})
		}
	}
	return rep, nil
}
