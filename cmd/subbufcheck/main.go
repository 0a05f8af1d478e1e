// Command subbufcheck launches a kernel that writes inside a sub-buffer and
// checks that no buffer overflow is reported for it.
//
//	subbufcheck [platform_index] [device_index] [flags]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/notargets/SubBufCheck/config"
	"github.com/notargets/SubBufCheck/device"
	"github.com/notargets/SubBufCheck/runner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// errFailed marks a run that completed but did not meet its expectation
var errFailed = errors.New("scenario expectation not met")

// openDevice is swapped out in tests
var openDevice = device.Open

type options struct {
	configPath  string
	devType     string
	mode        string
	bufferSize  int64
	scenario    string
	repeat      int
	detectorLog string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "subbufcheck [platform_index] [device_index]",
		Short: "Sub-buffer without overflow",
		Long: `Allocates a device buffer, creates a sub-buffer over its first quarter and
launches a kernel whose work items each write their own index inside the
sub-buffer. The run fails if any overflow is reported, either by the guard
band check or by an external detector's log.`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	f.StringVarP(&opts.devType, "type", "t", "", "device type: default, cpu, gpu, accelerator, all")
	f.StringVarP(&opts.mode, "mode", "m", "", "OCCA backend mode (OpenCL, CUDA, OpenMP, Serial)")
	f.Int64Var(&opts.bufferSize, "buffer-size", 0, "parent buffer size in bytes")
	f.StringVarP(&opts.scenario, "scenario", "s", runner.GoodSubBuffer.Name, "scenario to run")
	f.IntVar(&opts.repeat, "repeat", 0, "number of launches")
	f.StringVar(&opts.detectorLog, "detector-log", "", "external overflow detector log to scan")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

// loadConfig layers positional arguments and flags over the config file
func loadConfig(cmd *cobra.Command, opts *options, args []string) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	indices := []*int{&cfg.Device.Platform, &cfg.Device.Device}
	names := []string{"platform_index", "device_index"}
	for i, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%s %q is not a non-negative integer", names[i], arg)
		}
		*indices[i] = n
	}

	f := cmd.Flags()
	if f.Changed("type") {
		cfg.Device.Type = opts.devType
	}
	if f.Changed("mode") {
		cfg.Device.Mode = opts.mode
	}
	if f.Changed("buffer-size") {
		cfg.BufferSize = opts.bufferSize
	}
	if f.Changed("repeat") {
		cfg.Repeat = opts.repeat
	}
	if f.Changed("detector-log") {
		cfg.Detector.LogPath = opts.detectorLog
	}
	return cfg, cfg.Validate()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

func run(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := loadConfig(cmd, opts, args)
	if err != nil {
		return err
	}
	sc, err := runner.LookupScenario(opts.scenario)
	if err != nil {
		return err
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	sel, err := cfg.Selection()
	if err != nil {
		return err
	}
	dev, err := openDevice(sel)
	if err != nil {
		return device.Check("setup device", err)
	}
	defer dev.Free()
	logger.Info("device ready",
		zap.String("mode", dev.Mode()),
		zap.Int("platform", sel.PlatformID),
		zap.Int("device", sel.DeviceID),
		zap.Stringer("type", sel.Type))

	kr := runner.NewRunner(dev, cfg, logger)
	defer kr.Free()
	kr.Out = cmd.OutOrStdout()

	res, err := kr.Run(cmd.Context(), sc)
	if err != nil {
		return err
	}
	if !res.Passed() {
		logger.Error("unexpected result",
			zap.String("run_id", res.RunID),
			zap.Bool("expected_overflow", sc.ExpectOverflow),
			zap.Bool("overflow", res.Overflow()),
			zap.String("guard", res.Guard.Summary()))
		return errFailed
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "subbufcheck: %v\n", err)
		os.Exit(1)
	}
}
