package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/notargets/SubBufCheck/device"
	"github.com/notargets/SubBufCheck/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(DefaultBufferSize), cfg.BufferSize)
	assert.Equal(t, guard.DefaultPoison, cfg.Poison)
	assert.Equal(t, int64(math.MaxInt), cfg.WorkItemLimit())

	cfg.MaxWorkItems = 64
	assert.Equal(t, int64(64), cfg.WorkItemLimit())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subbuf.yaml")
	yml := `
buffer_size: 65536
repeat: 3
device:
  mode: opencl
  platform: 1
  device: 2
  type: gpu
detector:
  log_path: /tmp/detector.log
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(65536), cfg.BufferSize)
	assert.Equal(t, 3, cfg.Repeat)
	// Untouched keys keep their defaults
	assert.Equal(t, int64(1024), cfg.GuardBytes)
	assert.Equal(t, "/tmp/detector.log", cfg.Detector.LogPath)

	sel, err := cfg.Selection()
	require.NoError(t, err)
	assert.Equal(t, device.Selection{
		Mode:       device.ModeOpenCL,
		PlatformID: 1,
		DeviceID:   2,
		Type:       device.TypeGPU,
	}, sel)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buffer_size: [1"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SUBBUF_BUFFER_SIZE", "0x4000")
	t.Setenv("SUBBUF_DEVICE_MODE", "Serial")
	t.Setenv("SUBBUF_DETECTOR_LOG", "armor.log")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(16384), cfg.BufferSize)
	assert.Equal(t, "Serial", cfg.Device.Mode)
	assert.Equal(t, "armor.log", cfg.Detector.LogPath)

	t.Setenv("SUBBUF_GUARD_BYTES", "lots")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	mutate := map[string]func(*Config){
		"Unaligned":  func(c *Config) { c.BufferSize = 8190 },
		"Tiny":       func(c *Config) { c.BufferSize = 8 },
		"Guard":      func(c *Config) { c.GuardBytes = 2 },
		"MaxItems":   func(c *Config) { c.MaxWorkItems = -1 },
		"WorkGroup":  func(c *Config) { c.WorkGroup = 0 },
		"Repeat":     func(c *Config) { c.Repeat = 0 },
		"Platform":   func(c *Config) { c.Device.Platform = -1 },
		"DeviceType": func(c *Config) { c.Device.Type = "fpga" },
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			fn(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
