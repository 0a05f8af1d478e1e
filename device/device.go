package device

import (
	"fmt"
	"strings"

	"github.com/notargets/gocca"
)

// Type mirrors the OpenCL device type filter accepted on the command line
type Type int

const (
	TypeDefault Type = iota
	TypeCPU
	TypeGPU
	TypeAccelerator
	TypeAll
)

func (t Type) String() string {
	switch t {
	case TypeCPU:
		return "cpu"
	case TypeGPU:
		return "gpu"
	case TypeAccelerator:
		return "accelerator"
	case TypeAll:
		return "all"
	default:
		return "default"
	}
}

// ParseType converts a command line device type name to a Type
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return TypeDefault, nil
	case "cpu":
		return TypeCPU, nil
	case "gpu":
		return TypeGPU, nil
	case "accelerator", "acc":
		return TypeAccelerator, nil
	case "all":
		return TypeAll, nil
	}
	return TypeDefault, fmt.Errorf("unknown device type %q", s)
}

// Backend modes understood by OCCA
const (
	ModeOpenCL = "OpenCL"
	ModeCUDA   = "CUDA"
	ModeOpenMP = "OpenMP"
	ModeSerial = "Serial"
)

// Selection identifies the device a run should use
type Selection struct {
	Mode       string // empty means walk the fallback chain for Type
	PlatformID int
	DeviceID   int
	Type       Type
}

// Props renders the OCCA device properties for a single backend mode
func (s Selection) Props(mode string) string {
	switch mode {
	case ModeOpenCL:
		return fmt.Sprintf(`{"mode": "OpenCL", "platform_id": %d, "device_id": %d}`,
			s.PlatformID, s.DeviceID)
	case ModeCUDA:
		return fmt.Sprintf(`{"mode": "CUDA", "device_id": %d}`, s.DeviceID)
	default:
		return fmt.Sprintf(`{"mode": "%s"}`, mode)
	}
}

// Candidates returns the backend modes to try, in order
func (s Selection) Candidates() []string {
	if s.Mode != "" {
		return []string{s.Mode}
	}
	switch s.Type {
	case TypeGPU:
		return []string{ModeOpenCL, ModeCUDA}
	case TypeAccelerator:
		return []string{ModeOpenCL}
	case TypeCPU:
		return []string{ModeOpenCL, ModeOpenMP, ModeSerial}
	default:
		return []string{ModeOpenCL, ModeCUDA, ModeOpenMP, ModeSerial}
	}
}

// newDevice is swapped out in tests
var newDevice = gocca.NewDevice

// Open creates the first device in the selection's candidate list that OCCA
// accepts. The error lists every backend that was tried.
func Open(sel Selection) (*gocca.OCCADevice, error) {
	var failures []string
	for _, mode := range sel.Candidates() {
		device, err := newDevice(sel.Props(mode))
		if err == nil {
			return device, nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", mode, err))
	}
	return nil, fmt.Errorf("no usable device for type %s (%s)",
		sel.Type, strings.Join(failures, "; "))
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	backends := []string{
		`{"mode": "OpenMP"}`,
		`{"mode": "CUDA", "device_id": 0}`,
		`{"mode": "Serial"}`,
	}

	for _, props := range backends {
		device, err := gocca.NewDevice(props)
		if err == nil {
			return device
		}
	}

	// Serial is always compiled into OCCA
	panic("Failed to create any Device")
}
