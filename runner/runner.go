package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/notargets/SubBufCheck/buffer"
	"github.com/notargets/SubBufCheck/config"
	"github.com/notargets/SubBufCheck/detector"
	"github.com/notargets/SubBufCheck/device"
	"github.com/notargets/SubBufCheck/guard"
	"github.com/notargets/SubBufCheck/kernel"
	"github.com/notargets/gocca"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Runner drives scenarios against one device
type Runner struct {
	Device  *gocca.OCCADevice
	Config  *config.Config
	Kernels map[string]*gocca.OCCAKernel
	Out     io.Writer // report banners

	log *zap.Logger
}

// LaunchStats summarises launch-to-completion latency over all repeats
type LaunchStats struct {
	N      int
	Mean   time.Duration
	StdDev time.Duration
}

// Result is everything a scenario run observed
type Result struct {
	RunID    string
	Scenario Scenario
	Plan     Plan
	Guard    *guard.Report
	Detector *detector.Result // nil when no detector log is configured
	Launch   LaunchStats
}

// Overflow reports whether the guard check or the external detector flagged
// an overflow
func (r *Result) Overflow() bool {
	return r.Guard.Overflow() || r.Detector.Reported()
}

// Passed reports whether the run matched the scenario's expectation and the
// sub-buffer holds what the kernel should have written
func (r *Result) Passed() bool {
	return r.Overflow() == r.Scenario.ExpectOverflow && len(r.Guard.Mismatches) == 0
}

// NewRunner creates a Runner. A nil logger disables logging.
func NewRunner(dev *gocca.OCCADevice, cfg *config.Config, logger *zap.Logger) *Runner {
	if dev == nil {
		panic("NewRunner: nil Device")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		Device:  dev,
		Config:  cfg,
		Kernels: make(map[string]*gocca.OCCAKernel),
		Out:     os.Stdout,
		log:     logger,
	}
}

// Run executes sc: allocate the parent, carve out the sub-buffer, build and
// bind the kernel, launch it Config.Repeat times and check the parent for
// stray writes after the last launch
func (kr *Runner) Run(ctx context.Context, sc Scenario) (*Result, error) {
	cfg := kr.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	plan, err := NewPlan(cfg.BufferSize, cfg.GuardBytes, cfg.WorkItemLimit(), sc.ExtraWorkItems)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log := kr.log.With(zap.String("run_id", runID), zap.String("scenario", sc.Name),
		zap.String("mode", kr.Device.Mode()))

	fmt.Fprintf(kr.Out, "\n\nRunning %s Test...\n", sc.Title)
	fmt.Fprintf(kr.Out, "    Using buffer size: %d\n", plan.BufferSize)

	parent, err := buffer.NewParent(kr.Device, plan.BufferSize, plan.GuardBytes, buffer.ReadWrite)
	if err != nil {
		return nil, err
	}
	defer parent.Free()

	sub, err := parent.SubBuffer(plan.Region, sc.SubFlags)
	if err != nil {
		return nil, err
	}
	log.Debug("sub-buffer created",
		zap.Int64("origin", plan.Region.Origin),
		zap.Int64("size", plan.Region.Size),
		zap.Stringer("flags", sub.Flags),
		zap.Int64("guard_bytes", plan.GuardBytes))

	k, err := kr.buildKernel(plan, sub)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(kr.Out, "Launching %d work items to write up to %d entries.\n",
		plan.WorkItems, plan.Entries)
	fmt.Fprintf(kr.Out, "This will write %d out of %d bytes in the buffer.\n",
		plan.BytesWritten, plan.BufferSize)

	latencies := make([]float64, 0, cfg.Repeat)
	for i := 0; i < cfg.Repeat; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run %s cancelled after %d launches: %w", runID, i, err)
		}
		parent.Poison(cfg.Poison)

		start := time.Now()
		if err := launch(k, kernelArgs(sub, plan)...); err != nil {
			return nil, err
		}
		kr.Device.Finish()
		elapsed := time.Since(start)

		latencies = append(latencies, float64(elapsed))
		log.Debug("launch complete", zap.Int("launch", i), zap.Duration("elapsed", elapsed))
	}

	written := plan.Writes()
	if !sub.Flags.Writable() {
		written = 0
	}
	report, err := guard.Check(parent.Snapshot(), guard.Layout{
		ParentSize: plan.BufferSize,
		GuardBytes: plan.GuardBytes,
		Region:     plan.Region,
	}, cfg.Poison, written)
	if err != nil {
		return nil, fmt.Errorf("guard check: %w", err)
	}

	if ce := log.Check(zap.DebugLevel, "sub-buffer contents"); ce != nil {
		entries := sub.ReadBack()
		ce.Write(zap.Int64("written", written), zap.Uint32s("head", entries[:min(len(entries), 8)]))
	}

	ext, err := detector.ScanFile(cfg.Detector.LogPath, cfg.Detector.Pattern)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:    runID,
		Scenario: sc,
		Plan:     plan,
		Guard:    report,
		Detector: ext,
		Launch:   summarize(latencies),
	}

	fields := []zap.Field{
		zap.Bool("overflow", res.Overflow()),
		zap.Bool("passed", res.Passed()),
		zap.String("guard", report.Summary()),
		zap.Duration("launch_mean", res.Launch.Mean),
	}
	if ext.Reported() {
		fields = append(fields, zap.Int("detector_reports", len(ext.Findings)))
	}
	log.Info("scenario finished", fields...)

	fmt.Fprintf(kr.Out, "Done Running %s Test.\n", sc.Title)
	return res, nil
}

// buildKernel compiles the write-index kernel for plan's launch shape
func (kr *Runner) buildKernel(plan Plan, sub *buffer.SubBuffer) (*gocca.OCCAKernel, error) {
	kb, err := kernel.NewBuilder(kernel.Config{
		WorkItems: plan.WorkItems,
		WorkGroup: kr.Config.WorkGroup,
		SubOrigin: sub.OriginElements(),
		Access:    sub.Flags,
	})
	if err != nil {
		return nil, device.Check("setup kernel", err)
	}

	// The launch shape is compiled in, so a previous build is stale
	if old, ok := kr.Kernels[kernel.WriteIndexName]; ok {
		old.Free()
		delete(kr.Kernels, kernel.WriteIndexName)
	}

	k, err := kernel.Build(kr.Device, kb, kernel.WriteIndexSource, kernel.WriteIndexName)
	if err != nil {
		return nil, err
	}
	kr.Kernels[kernel.WriteIndexName] = k
	return k, nil
}

// kernelArgs are the kernel's runtime arguments: the sub-buffer and its length bound
func kernelArgs(sub *buffer.SubBuffer, plan Plan) []interface{} {
	return []interface{}{sub.Mem(), plan.LenArg}
}

// launch binds args and enqueues k; a rejected argument or launch is fatal
func launch(k *gocca.OCCAKernel, args ...interface{}) error {
	if err := k.RunWithArgs(args...); err != nil {
		return device.Check("enqueue kernel", err)
	}
	return nil
}

func summarize(latencies []float64) LaunchStats {
	if len(latencies) == 0 {
		return LaunchStats{}
	}
	mean, std := stat.MeanStdDev(latencies, nil)
	if len(latencies) < 2 {
		std = 0
	}
	return LaunchStats{
		N:      len(latencies),
		Mean:   time.Duration(mean),
		StdDev: time.Duration(std),
	}
}

// Free releases all compiled kernels
func (kr *Runner) Free() {
	for name, k := range kr.Kernels {
		k.Free()
		delete(kr.Kernels, name)
	}
}
