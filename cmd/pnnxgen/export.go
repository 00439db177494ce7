package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/born-ml/pnnxgen/internal/backend/cpu"
	"github.com/born-ml/pnnxgen/internal/config"
	"github.com/born-ml/pnnxgen/internal/export"
	"github.com/born-ml/pnnxgen/internal/models"
)

// exportFlags registers the export settings on fs with cfg as defaults, so
// flags override the config file.
func exportFlags(fs *flag.FlagSet, cfg *config.Config) *config.Config {
	out := *cfg
	fs.StringVar(&out.Model, "model", cfg.Model, "model name: conv_relu or test_net")
	fs.StringVar(&out.Weights, "weights", cfg.Weights, "pnnx.bin weights archive (empty: initialize from seed)")
	fs.StringVar(&out.OutputDir, "out", cfg.OutputDir, "output directory")
	fs.Int64Var(&out.Seed, "seed", cfg.Seed, "seed of the sample input")
	fs.BoolVar(&out.Verify, "verify", cfg.Verify, "run the exported pnnx graph and compare outputs")
	fs.Float64Var(&out.Tolerance, "tolerance", cfg.Tolerance, "verification tolerance")
	fs.IntVar(&out.Workers, "workers", cfg.Workers, "parallel archive reads (0: one per CPU)")
	fs.StringVar(&out.ScratchDir, "scratch-dir", cfg.ScratchDir, "stage archive entries through temp files in this directory")
	return &out
}

func (a *app) exportConfig(cfg *config.Config) export.ExportConfig {
	return export.ExportConfig{
		Model:      cfg.Model,
		Weights:    cfg.Weights,
		OutputDir:  cfg.OutputDir,
		Seed:       cfg.Seed,
		Verify:     cfg.Verify,
		Tolerance:  cfg.Tolerance,
		ScratchDir: cfg.ScratchDir,
		Workers:    cfg.Workers,
		Version:    version,
		Logger:     a.log,
	}
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cfg := exportFlags(fs, a.cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := export.Run(ctx, a.exportConfig(cfg))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s\n%s\n%s\n", res.ONNXPath, res.ParamPath, res.BinPath)
	fmt.Fprintf(a.stdout, "output: %v\n", res.Output)
	return nil
}

func (a *app) weights(args []string) error {
	fs := flag.NewFlagSet("weights", flag.ContinueOnError)
	var (
		model = fs.String("model", a.cfg.Model, "model name")
		seed  = fs.Int64("seed", a.cfg.Seed, "initialization seed")
		out   = fs.String("o", "", "archive path (default <model>.pnnx.bin)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = *model + ".pnnx.bin"
	}

	m, err := models.New(*model, *seed, cpu.New())
	if err != nil {
		return err
	}
	if err := models.WriteArchive(m, path); err != nil {
		return fmt.Errorf("failed to write weights: %w", err)
	}
	a.log.Info("wrote weights", "model", *model, "seed", *seed, "path", path)
	fmt.Fprintln(a.stdout, path)
	return nil
}

// watch re-runs export after every config or weights change. Reloads are
// serialized; one that arrives during an export runs after it.
func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.configPath == "" {
		return errors.New("watch needs -config")
	}

	reloads := make(chan *config.Config, 1)
	w, err := config.NewWatcher(a.configPath, func(cfg *config.Config, err error) {
		if err != nil {
			a.log.Error("failed to reload config", "error", err)
			return
		}
		select {
		case reloads <- cfg:
		default:
			// A pending reload reads the newest snapshot anyway.
		}
	}, config.WithFiles(a.cfg.Weights), config.WithLogger(a.log))
	if err != nil {
		return err
	}
	defer w.Close()

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	a.runWatched(ctx, w.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case <-reloads:
			cfg := w.Snapshot()
			if err := w.Watch(cfg.Weights); err != nil {
				a.log.Warn("failed to watch weights", "path", cfg.Weights, "error", err)
			}
			a.runWatched(ctx, cfg)
		}
	}
}

func (a *app) runWatched(ctx context.Context, cfg *config.Config) {
	res, err := export.Run(ctx, a.exportConfig(cfg))
	if err != nil {
		a.log.Error("export failed", "model", cfg.Model, "error", err)
		return
	}
	a.log.Info("export done", "model", cfg.Model, "dir", cfg.OutputDir, "elapsed", res.Elapsed)
}
