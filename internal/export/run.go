package export

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/born-ml/pnnxgen/internal/backend/cpu"
	"github.com/born-ml/pnnxgen/internal/models"
	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/runtime"
	"github.com/born-ml/pnnxgen/internal/trace"
)

// DefaultTolerance is the largest absolute difference Run accepts between
// the model and the reloaded pnnx graph.
const DefaultTolerance = 1e-5

// ExportConfig selects what Run exports.
type ExportConfig struct {
	// Model is one of models.Names().
	Model string

	// Weights is the pnnx.bin archive holding the model parameters. When
	// empty the model is initialized from Seed instead.
	Weights string

	// OutputDir receives <model>.onnx, <model>.pnnx.param and <model>.pnnx.bin.
	OutputDir string

	// Seed drives the sample input and, without Weights, the initialization.
	Seed int64

	Verify    bool
	Tolerance float64

	ScratchDir string
	Workers    int

	// Version is recorded as the ONNX producer version.
	Version string

	Logger *slog.Logger
}

// Result lists the written files and the traced output.
type Result struct {
	ONNXPath  string
	ParamPath string
	BinPath   string
	Output    []float32

	// MaxDiff is the largest absolute difference found by verification.
	MaxDiff float64
	Elapsed time.Duration
}

func (c ExportConfig) loadOptions() []pnnx.LoadOption {
	var opts []pnnx.LoadOption
	if c.Workers > 0 {
		opts = append(opts, pnnx.WithWorkers(c.Workers))
	}
	if c.ScratchDir != "" {
		opts = append(opts, pnnx.WithScratchDir(c.ScratchDir))
	}
	return opts
}

// Run builds cfg.Model, traces it on the seeded sample input and writes it
// in both formats. With cfg.Verify the pnnx pair is executed by the runtime
// and compared with the traced output.
func Run(ctx context.Context, cfg ExportConfig) (*Result, error) {
	start := time.Now()
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("model", cfg.Model)
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}

	b := cpu.New()
	var (
		m   models.Model[*cpu.CPUBackend]
		err error
	)
	if cfg.Weights != "" {
		log.Info("loading weights", "archive", cfg.Weights, "workers", cfg.Workers)
		m, err = models.Open(ctx, cfg.Model, cfg.Weights, b, cfg.loadOptions()...)
	} else {
		log.Warn("no weights archive, initializing from seed", "seed", cfg.Seed)
		m, err = models.New(cfg.Model, cfg.Seed, b)
	}
	if err != nil {
		return nil, err
	}

	x := models.SeededInput(cfg.Seed, b)
	rec := trace.NewRecorder()
	out, err := m.Trace(x, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to trace %s: %w", cfg.Model, err)
	}
	tr := rec.Trace()
	log.Debug("traced", "nodes", len(tr.Nodes), "operands", len(tr.Operands), "output", out.Shape().String())

	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	res := &Result{
		ONNXPath:  filepath.Join(cfg.OutputDir, cfg.Model+".onnx"),
		ParamPath: filepath.Join(cfg.OutputDir, cfg.Model+".pnnx.param"),
		BinPath:   filepath.Join(cfg.OutputDir, cfg.Model+".pnnx.bin"),
		Output:    out.Data(),
	}

	if err := writeONNX(tr, res.ONNXPath, ONNXOptions{GraphName: cfg.Model, ProducerVersion: cfg.Version}); err != nil {
		return nil, err
	}
	log.Info("wrote onnx", "path", res.ONNXPath)

	if err := PNNX(tr, res.ParamPath, res.BinPath); err != nil {
		return nil, err
	}
	log.Info("wrote pnnx", "param", res.ParamPath, "bin", res.BinPath)

	if cfg.Verify {
		g := runtime.New(res.ParamPath, res.BinPath, b,
			runtime.WithLogger(log),
			runtime.WithLoadOptions(cfg.loadOptions()...))
		if err := g.Build(ctx, "pnnx_input_0", "pnnx_output_0"); err != nil {
			return nil, fmt.Errorf("failed to build exported graph: %w", err)
		}
		y, err := g.Forward(ctx, x)
		if err != nil {
			return nil, fmt.Errorf("failed to run exported graph: %w", err)
		}
		res.MaxDiff, err = maxAbsDiff(res.Output, y.Data())
		if err != nil {
			return nil, err
		}
		if res.MaxDiff > cfg.Tolerance {
			return nil, fmt.Errorf("%w: max abs diff %g exceeds %g", ErrVerify, res.MaxDiff, cfg.Tolerance)
		}
		log.Info("verified", "max_abs_diff", res.MaxDiff)
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

func writeONNX(tr *trace.Trace, path string, opts ONNXOptions) (err error) {
	//nolint:gosec // G304: output path comes from the caller by design
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create onnx file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close onnx file: %w", cerr)
		}
	}()
	return ONNX(tr, f, opts)
}

func maxAbsDiff(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d values, want %d", ErrVerify, len(b), len(a))
	}
	var d float64
	for i := range a {
		diff := math.Abs(float64(a[i]) - float64(b[i]))
		if math.IsNaN(diff) {
			return math.Inf(1), nil
		}
		d = math.Max(d, diff)
	}
	return d, nil
}
