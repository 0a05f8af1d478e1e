package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/notargets/SubBufCheck/detector"
	"github.com/notargets/SubBufCheck/device"
	"github.com/notargets/SubBufCheck/guard"
	"gopkg.in/yaml.v3"
)

// DefaultBufferSize is the parent buffer size used by every scenario unless overridden
const DefaultBufferSize = 8192

// Config holds everything a run needs besides the scenario name
type Config struct {
	BufferSize   int64  `yaml:"buffer_size"`
	GuardBytes   int64  `yaml:"guard_bytes"`
	MaxWorkItems int64  `yaml:"max_work_items"` // 0 means the host limit
	WorkGroup    int    `yaml:"work_group"`
	Repeat       int    `yaml:"repeat"`
	Poison       uint32 `yaml:"poison"`

	Device   DeviceConfig   `yaml:"device"`
	Detector DetectorConfig `yaml:"detector"`
}

// DeviceConfig selects the compute device
type DeviceConfig struct {
	Mode     string `yaml:"mode"`
	Platform int    `yaml:"platform"`
	Device   int    `yaml:"device"`
	Type     string `yaml:"type"`
}

// DetectorConfig points at an external overflow detector's log
type DetectorConfig struct {
	LogPath string `yaml:"log_path"`
	Pattern string `yaml:"pattern"`
}

// DefaultConfig returns the configuration of the reference run
func DefaultConfig() *Config {
	return &Config{
		BufferSize: DefaultBufferSize,
		GuardBytes: 1024,
		WorkGroup:  256,
		Repeat:     1,
		Poison:     guard.DefaultPoison,
		Device: DeviceConfig{
			Type: "default",
		},
		Detector: DetectorConfig{
			Pattern: detector.DefaultPattern,
		},
	}
}

// Load reads a YAML file over the defaults and applies environment overrides.
// An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	ints := map[string]*int64{
		"SUBBUF_BUFFER_SIZE": &c.BufferSize,
		"SUBBUF_GUARD_BYTES": &c.GuardBytes,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	if v := os.Getenv("SUBBUF_DEVICE_MODE"); v != "" {
		c.Device.Mode = v
	}
	if v := os.Getenv("SUBBUF_DETECTOR_LOG"); v != "" {
		c.Detector.LogPath = v
	}
	return nil
}

// Validate checks the configuration for values no run could use
func (c *Config) Validate() error {
	if c.BufferSize <= 0 || c.BufferSize%4 != 0 {
		return fmt.Errorf("buffer_size %d must be a positive multiple of 4", c.BufferSize)
	}
	// a quarter sub-buffer must hold at least one entry
	if c.BufferSize/4 < 4 {
		return fmt.Errorf("buffer_size %d is too small for a sub-buffer", c.BufferSize)
	}
	if c.GuardBytes < 0 || c.GuardBytes%4 != 0 {
		return fmt.Errorf("guard_bytes %d must be a non-negative multiple of 4", c.GuardBytes)
	}
	if c.MaxWorkItems < 0 {
		return fmt.Errorf("max_work_items %d is negative", c.MaxWorkItems)
	}
	if c.WorkGroup <= 0 {
		return fmt.Errorf("work_group %d must be positive", c.WorkGroup)
	}
	if c.Repeat <= 0 {
		return fmt.Errorf("repeat %d must be positive", c.Repeat)
	}
	if c.Device.Platform < 0 || c.Device.Device < 0 {
		return fmt.Errorf("platform and device indices must be non-negative")
	}
	if _, err := device.ParseType(c.Device.Type); err != nil {
		return err
	}
	return nil
}

// WorkItemLimit is the cap on a single launch: the configured maximum, or
// the host's size limit when none is set
func (c *Config) WorkItemLimit() int64 {
	if c.MaxWorkItems > 0 {
		return c.MaxWorkItems
	}
	return math.MaxInt
}

// Selection converts the device section into a device.Selection
func (c *Config) Selection() (device.Selection, error) {
	typ, err := device.ParseType(c.Device.Type)
	if err != nil {
		return device.Selection{}, err
	}
	return device.Selection{
		Mode:       normalizeMode(c.Device.Mode),
		PlatformID: c.Device.Platform,
		DeviceID:   c.Device.Device,
		Type:       typ,
	}, nil
}

func normalizeMode(mode string) string {
	switch strings.ToLower(mode) {
	case "":
		return ""
	case "opencl":
		return device.ModeOpenCL
	case "cuda":
		return device.ModeCUDA
	case "openmp":
		return device.ModeOpenMP
	case "serial":
		return device.ModeSerial
	}
	return mode
}
