package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/notargets/SubBufCheck/device"
	"github.com/notargets/gocca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Positional(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--type", "gpu", "--buffer-size", "16384"}))
	opts := &options{devType: "gpu", bufferSize: 16384}

	cfg, err := loadConfig(cmd, opts, []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Device.Platform)
	assert.Equal(t, 2, cfg.Device.Device)
	assert.Equal(t, "gpu", cfg.Device.Type)
	assert.Equal(t, int64(16384), cfg.BufferSize)
	// Flags that were not given leave the defaults alone
	assert.Equal(t, 1, cfg.Repeat)
}

func TestLoadConfig_BadIndex(t *testing.T) {
	cmd := newRootCmd()
	_, err := loadConfig(cmd, &options{}, []string{"zero"})
	assert.Error(t, err)

	_, err = loadConfig(cmd, &options{}, []string{"-1"})
	assert.Error(t, err)
}

func TestLoadConfig_InvalidFlag(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--type", "fpga"}))
	_, err := loadConfig(cmd, &options{devType: "fpga"}, nil)
	assert.Error(t, err)
}

func TestRootCmd_TooManyArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"0", "0", "0"})
	cmd.SetOut(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestRootCmd_GoodSubBuffer(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"0", "0", "--mode", "Serial"})
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Done Running Good sub buffer Test.")
}

func TestRootCmd_UnknownScenario(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--scenario", "missing"})
	assert.Error(t, cmd.Execute())
}

func TestRootCmd_NoDevice(t *testing.T) {
	saved := openDevice
	openDevice = func(device.Selection) (*gocca.OCCADevice, error) {
		return nil, errors.New("no usable device for type gpu")
	}
	defer func() { openDevice = saved }()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--type", "gpu"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	var ce *device.CallError
	require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
	assert.Equal(t, "setup device", ce.Op)
	assert.Equal(t, "main.go", ce.File)
	assert.Contains(t, err.Error(), "no usable device for type gpu")
}
