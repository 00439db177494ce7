package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/born-ml/pnnxgen/internal/backend/cpu"
	"github.com/born-ml/pnnxgen/internal/dataload"
	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/runtime"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

type cpuTensor = *tensor.Tensor[float32, *cpu.CPUBackend]

func (a *app) infer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("infer", flag.ContinueOnError)
	var (
		param   = fs.String("param", "", "pnnx.param file")
		bin     = fs.String("bin", "", "pnnx.bin file (default: param with .bin)")
		input   = fs.String("input", "pnnx_input_0", "input operator name")
		output  = fs.String("output", "pnnx_output_0", "output operator name")
		csvPath = fs.String("csv", "", "read the input from this CSV file instead of the seed")
		sep     = fs.String("sep", ",", "CSV separator")
		shape   = fs.String("shape", "", "input shape, e.g. 1,3,4,4 (default: declared input shape)")
		seed    = fs.Int64("seed", a.cfg.Seed, "seed of the random input")
		workers = fs.Int("workers", a.cfg.Workers, "parallel archive reads")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *param == "" {
		return errors.New("infer needs -param")
	}
	if *bin == "" {
		*bin = strings.TrimSuffix(*param, ".param") + ".bin"
	}

	b := cpu.New()
	var loadOpts []pnnx.LoadOption
	if *workers > 0 {
		loadOpts = append(loadOpts, pnnx.WithWorkers(*workers))
	}
	g := runtime.New(*param, *bin, b, runtime.WithLogger(a.log), runtime.WithLoadOptions(loadOpts...))
	if err := g.Build(ctx, *input, *output); err != nil {
		return err
	}

	want, err := inputShape(g, *input, *shape)
	if err != nil {
		return err
	}

	var x cpuTensor
	if *csvPath != "" {
		r := []rune(*sep)
		if len(r) != 1 {
			return fmt.Errorf("separator must be one character, got %q", *sep)
		}
		m, err := dataload.LoadCSV(*csvPath, r[0])
		if err != nil {
			return err
		}
		if x, err = dataload.Tensor(m, want, b); err != nil {
			return err
		}
	} else {
		x = tensor.Rand[float32](want, rand.New(rand.NewSource(*seed)), b)
	}

	y, err := g.Forward(ctx, x)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "shape: %s\n", y.Shape())
	fmt.Fprintf(a.stdout, "output: %v\n", y.Data())
	return nil
}

// inputShape parses dims, or falls back to the shape declared on the input
// operator's operand when it is fully static.
func inputShape(g *runtime.Graph[*cpu.CPUBackend], input, dims string) (tensor.Shape, error) {
	if dims != "" {
		var s tensor.Shape
		for _, f := range strings.Split(dims, ",") {
			d, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil || d <= 0 {
				return nil, fmt.Errorf("invalid shape %q", dims)
			}
			s = append(s, d)
		}
		return s, nil
	}

	for _, op := range g.Operators() {
		if op.Name != input || op.Output == nil {
			continue
		}
		s := op.Output.Shape
		if !op.Output.Typed || len(s) == 0 {
			return nil, fmt.Errorf("input %s has no declared shape; pass -shape", input)
		}
		for _, d := range s {
			if d < 0 {
				return nil, fmt.Errorf("input %s shape %s is dynamic; pass -shape", input, s)
			}
		}
		return s.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", runtime.ErrOperatorNotFound, input)
}
