package buffer

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/notargets/SubBufCheck/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegion_Validate(t *testing.T) {
	tests := []struct {
		name    string
		region  Region
		wantErr bool
	}{
		{"QuarterAtZero", Region{Origin: 0, Size: 2048}, false},
		{"WholeParent", Region{Origin: 0, Size: 8192}, false},
		{"TailQuarter", Region{Origin: 6144, Size: 2048}, false},
		{"Empty", Region{Origin: 0, Size: 0}, true},
		{"Negative", Region{Origin: -4, Size: 16}, true},
		{"Misaligned", Region{Origin: 2, Size: 16}, true},
		{"PastEnd", Region{Origin: 8000, Size: 256}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.region.Validate(8192)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegion_Elements(t *testing.T) {
	assert.Equal(t, int64(512), Region{Size: 2048}.Elements())
	assert.Equal(t, int64(2), Region{Size: 11}.Elements())
	assert.Equal(t, int64(2060), Region{Origin: 12, Size: 2048}.End())
}

func TestFlags_Compatibility(t *testing.T) {
	assert.True(t, ReadWrite.allows(ReadOnly))
	assert.True(t, ReadWrite.allows(WriteOnly))
	assert.True(t, ReadOnly.allows(ReadOnly))
	assert.False(t, ReadOnly.allows(ReadWrite))
	assert.False(t, WriteOnly.allows(ReadOnly))
	assert.False(t, ReadOnly.Writable())
	assert.Equal(t, "read-write", ReadWrite.String())
}

func TestNewParent_InvalidSizes(t *testing.T) {
	dev := device.CreateTestDevice()
	defer dev.Free()

	_, err := NewParent(dev, 0, 0, ReadWrite)
	assert.Error(t, err)
	_, err = NewParent(dev, 10, 0, ReadWrite)
	assert.Error(t, err)
	_, err = NewParent(dev, 64, 3, ReadWrite)
	assert.Error(t, err)

	_, err = NewParent(nil, 64, 0, ReadWrite)
	var ce *device.CallError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "create buffer", ce.Op)
}

func TestParent_PoisonSnapshot(t *testing.T) {
	dev := device.CreateTestDevice()
	defer dev.Free()

	p, err := NewParent(dev, 256, 64, ReadWrite)
	require.NoError(t, err)
	defer p.Free()

	assert.Equal(t, int64(320), p.TotalBytes())
	assert.Equal(t, 80, p.Words())

	p.Poison(0xDEADBEEF)
	words := p.Snapshot()
	require.Len(t, words, 80)
	for i, w := range words {
		if w != 0xDEADBEEF {
			t.Fatalf("word %d: expected poison, got %#x", i, w)
		}
	}
}

func TestSubBuffer_View(t *testing.T) {
	dev := device.CreateTestDevice()
	defer dev.Free()

	p, err := NewParent(dev, 256, 0, ReadWrite)
	require.NoError(t, err)
	defer p.Free()
	p.Poison(0)

	sub, err := p.SubBuffer(Region{Origin: 64, Size: 64}, ReadWrite)
	require.NoError(t, err)
	assert.Equal(t, int64(16), sub.Elements())
	assert.Equal(t, int64(16), sub.OriginElements())
	assert.Same(t, p.Mem, sub.Mem())

	vals := []uint32{7, 8, 9}
	p.Mem.CopyFromWithOffset(unsafe.Pointer(&vals[0]), int64(len(vals))*WordSize, sub.Region.Origin)
	got := sub.ReadBack()
	require.Len(t, got, 16)
	assert.Equal(t, []uint32{7, 8, 9, 0}, got[:4])

	// The write landed at the region origin inside the parent
	words := p.Snapshot()
	assert.Equal(t, uint32(7), words[16])
	assert.Equal(t, uint32(0), words[15])
}

func TestParent_SubBufferRejects(t *testing.T) {
	dev := device.CreateTestDevice()
	defer dev.Free()

	p, err := NewParent(dev, 256, 0, ReadOnly)
	require.NoError(t, err)
	defer p.Free()

	_, err = p.SubBuffer(Region{Origin: 0, Size: 512}, ReadOnly)
	assert.Error(t, err)

	_, err = p.SubBuffer(Region{Origin: 0, Size: 64}, ReadWrite)
	assert.Error(t, err)
}
