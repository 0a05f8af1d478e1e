package kernel

import (
	"fmt"
	"math"
	"strings"

	"github.com/notargets/SubBufCheck/buffer"
	"github.com/notargets/SubBufCheck/device"
	"github.com/notargets/gocca"
)

// DefaultWorkGroup is the @inner loop width used when none is configured
const DefaultWorkGroup = 256

// WriteIndexName is the entry point of WriteIndexSource
const WriteIndexName = "test"

// WriteIndexSource is the kernel every scenario launches. Work item i stores
// i into its slot of the sub-buffer as long as i is below len. A read-only
// sub-buffer is passed const and the store is compiled out.
const WriteIndexSource = `
@kernel void test(BUF_QUAL uint_t *cl_mem_buffer, const int len) {
	for (int grp = 0; grp < NUM_GROUPS; ++grp; @outer) {
		for (int lid = 0; lid < WORK_GROUP; ++lid; @inner) {
			const long gid = (long)grp * WORK_GROUP + lid;
			if (gid < WORK_ITEMS) {
				const uint_t i = (uint_t)gid;
				if (gid < len) {
#if BUF_WRITABLE
					cl_mem_buffer[SUB_ORIGIN + i] = i;
#else
					(void)i;
#endif
				}
			}
		}
	}
}
`

// Config fixes the launch shape baked into the kernel preamble
type Config struct {
	WorkItems int64 // total work items
	WorkGroup int   // @inner width
	SubOrigin int64        // sub-buffer origin in uint32 entries
	Access    buffer.Flags // access the kernel gets to the buffer argument
}

// Builder generates the preamble for a launch shape
type Builder struct {
	WorkItems int64
	WorkGroup int
	NumGroups int64
	SubOrigin int64
	Access    buffer.Flags

	// Generated code
	KernelPreamble string
}

// NewBuilder validates cfg and creates a Builder
func NewBuilder(cfg Config) (*Builder, error) {
	wg := cfg.WorkGroup
	if wg == 0 {
		wg = DefaultWorkGroup
	}
	if wg < 0 {
		return nil, fmt.Errorf("work group %d must be positive", wg)
	}
	if cfg.WorkItems <= 0 {
		return nil, fmt.Errorf("work items %d must be positive", cfg.WorkItems)
	}
	if cfg.SubOrigin < 0 {
		return nil, fmt.Errorf("sub-buffer origin %d is negative", cfg.SubOrigin)
	}

	groups := cfg.WorkItems / int64(wg)
	if cfg.WorkItems%int64(wg) != 0 {
		groups++
	}
	// @outer indices are C ints
	if groups > math.MaxInt32 {
		return nil, fmt.Errorf("%d work items need %d groups of %d, more than a kernel can index",
			cfg.WorkItems, groups, wg)
	}

	return &Builder{
		WorkItems: cfg.WorkItems,
		WorkGroup: wg,
		NumGroups: groups,
		SubOrigin: cfg.SubOrigin,
		Access:    cfg.Access,
	}, nil
}

// GeneratePreamble generates the type definitions and launch constants
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder

	sb.WriteString("typedef unsigned int uint_t;\n")
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("#define WORK_ITEMS %dL\n", kb.WorkItems))
	sb.WriteString(fmt.Sprintf("#define WORK_GROUP %d\n", kb.WorkGroup))
	sb.WriteString(fmt.Sprintf("#define NUM_GROUPS %d\n", kb.NumGroups))
	sb.WriteString(fmt.Sprintf("#define SUB_ORIGIN %dL\n", kb.SubOrigin))
	sb.WriteString("\n")

	if kb.Access.Writable() {
		sb.WriteString("#define BUF_QUAL\n")
		sb.WriteString("#define BUF_WRITABLE 1\n")
	} else {
		sb.WriteString("#define BUF_QUAL const\n")
		sb.WriteString("#define BUF_WRITABLE 0\n")
	}
	sb.WriteString("\n")

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

// Source returns the preamble followed by kernelSource
func (kb *Builder) Source(kernelSource string) string {
	return kb.GeneratePreamble() + "\n" + kernelSource
}

// Build compiles kernelName from kernelSource with the builder's preamble
func Build(dev *gocca.OCCADevice, kb *Builder, kernelSource, kernelName string) (*gocca.OCCAKernel, error) {
	fullSource := kb.Source(kernelSource)

	var k *gocca.OCCAKernel
	var err error

	if dev.Mode() == device.ModeOpenMP {
		// OpenMP does not pick up OCCA's default -O3
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		k, err = dev.BuildKernelFromString(fullSource, kernelName, props)
	} else {
		k, err = dev.BuildKernelFromString(fullSource, kernelName, nil)
	}

	if err != nil {
		return nil, device.Check("build program", fmt.Errorf("kernel %s: %w", kernelName, err))
	}
	if k == nil {
		return nil, device.Check("create kernel", fmt.Errorf("kernel build returned nil for %s", kernelName))
	}
	return k, nil
}
