// Command pnnxgen builds the reference networks from a pnnx.bin weights
// archive, exports them to ONNX and pnnx, and runs exported pnnx graphs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/born-ml/pnnxgen/internal/config"
	"github.com/born-ml/pnnxgen/internal/logger"
)

const version = "v0.1.0-dev"

const usage = `pnnxgen - pnnx weights loader and exporter

Usage:
  pnnxgen [-config file] [-log-file file] <command> [flags]

Commands:
  export    Build a model from its weights and write ONNX and pnnx files
  weights   Write a freshly initialized weights archive for a model
  infer     Run a pnnx param/bin pair on a seeded or CSV input
  inspect   List archive entries, pnnx operators or ONNX nodes
  watch     Re-run export whenever the config or weights change
  version   Show version
`

// app carries what every command needs.
type app struct {
	cfg        *config.Config
	configPath string
	log        *slog.Logger
	stdout     io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "pnnxgen:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("pnnxgen", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	var (
		flagConfig  = global.String("config", "", "path to a YAML config file")
		flagLogFile = global.String("log-file", "", "also write JSON logs to this rotated file")
	)
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return flag.ErrHelp
	}

	cfg := config.Default()
	if *flagConfig != "" {
		var err error
		if cfg, err = config.LoadAndValidate(*flagConfig); err != nil {
			return err
		}
	}

	logFile := cfg.Log.File
	if *flagLogFile != "" {
		logFile = *flagLogFile
	}
	log, closer := logger.New("", logger.WithOutput(stderr), logger.WithLevel(cfg.Log.SlogLevel()), logger.WithLogFile(logFile))
	defer closer.Close()
	slog.SetDefault(log)

	a := &app{cfg: cfg, configPath: *flagConfig, log: log, stdout: stdout}
	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "export":
		return a.export(ctx, rest)
	case "weights":
		return a.weights(rest)
	case "infer":
		return a.infer(ctx, rest)
	case "inspect":
		return a.inspect(rest)
	case "watch":
		return a.watch(ctx, rest)
	case "version":
		fmt.Fprintf(stdout, "pnnxgen %s\n", version)
		return nil
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
