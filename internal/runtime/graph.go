// Package runtime executes pnnx graphs.
//
// A Graph goes through three states:
//
//	g := runtime.New("model.pnnx.param", "model.pnnx.bin", backend)
//	err := g.Init(ctx)                                    // StateNeedBuild
//	err = g.Build(ctx, "pnnx_input_0", "pnnx_output_0")   // StateComplete
//	out, err := g.Forward(ctx, input)
//
// Forward walks the operators breadth-first from the input operator. An
// operator runs once every one of its input operands has been produced.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

// State is the lifecycle stage of a Graph.
type State int

// Graph states.
const (
	StateNeedInit State = iota
	StateNeedBuild
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateNeedInit:
		return "need_init"
	case StateNeedBuild:
		return "need_build"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type options struct {
	logger   *slog.Logger
	registry any
	loadOpts []pnnx.LoadOption
}

// Option configures a Graph.
type Option func(*options)

// WithLogger logs operator execution at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegistry replaces DefaultRegistry.
func WithRegistry[B tensor.Backend](r *Registry[B]) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithLoadOptions passes options to the parameter loader used by Init.
func WithLoadOptions(opts ...pnnx.LoadOption) Option {
	return func(o *options) {
		o.loadOpts = append(o.loadOpts, opts...)
	}
}

// Graph is an executable pnnx graph.
type Graph[B tensor.Backend] struct {
	paramPath string
	binPath   string
	source    *pnnx.Graph

	backend  B
	registry *Registry[B]
	logger   *slog.Logger
	loadOpts []pnnx.LoadOption

	state     State
	operators []*Operator[B]
	input     *Operator[B]
	output    *Operator[B]
}

// New creates a graph that Init loads from a param file and its weight archive.
func New[B tensor.Backend](paramPath, binPath string, backend B, opts ...Option) *Graph[B] {
	g := newGraph(backend, opts)
	g.paramPath = paramPath
	g.binPath = binPath
	return g
}

// NewFromPNNX creates a graph over an already loaded pnnx graph.
func NewFromPNNX[B tensor.Backend](pg *pnnx.Graph, backend B, opts ...Option) *Graph[B] {
	g := newGraph(backend, opts)
	g.source = pg
	return g
}

func newGraph[B tensor.Backend](backend B, opts []Option) *Graph[B] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	g := &Graph[B]{
		backend:  backend,
		registry: DefaultRegistry[B](),
		logger:   o.logger,
		loadOpts: o.loadOpts,
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	if o.registry != nil {
		r, ok := o.registry.(*Registry[B])
		if !ok {
			panic(fmt.Sprintf("runtime: registry %T does not match backend %T", o.registry, backend))
		}
		g.registry = r
	}
	return g
}

// State returns the lifecycle stage.
func (g *Graph[B]) State() State {
	return g.state
}

// Operators returns the operators in definition order. Empty before Init.
func (g *Graph[B]) Operators() []*Operator[B] {
	return g.operators
}

// Init loads the pnnx graph if needed and converts it into runtime operators.
func (g *Graph[B]) Init(ctx context.Context) error {
	if g.source == nil {
		if g.paramPath == "" || g.binPath == "" {
			return ErrEmptyPath
		}
		pg, err := pnnx.LoadGraph(ctx, g.paramPath, g.binPath, g.loadOpts...)
		if err != nil {
			return fmt.Errorf("failed to load graph: %w", err)
		}
		g.source = pg
	}
	if len(g.source.Operators) == 0 {
		return ErrEmptyGraph
	}

	operands := make(map[*pnnx.Operand]*Operand[B], len(g.source.Operands))
	operand := func(r *pnnx.Operand) *Operand[B] {
		if ro, ok := operands[r]; ok {
			return ro
		}
		ro := &Operand[B]{Name: r.Name, Shape: r.Shape.Clone(), DType: r.DType, Typed: r.Typed}
		operands[r] = ro
		return ro
	}

	ops := make(map[*pnnx.Operator]*Operator[B], len(g.source.Operators))
	g.operators = nil
	for _, src := range g.source.Operators {
		if len(src.Outputs) > 1 {
			return fmt.Errorf("operator %s: %w: %d outputs, only one is supported", src.Name, ErrUnsupportedOperand, len(src.Outputs))
		}
		op := &Operator[B]{
			Name:             src.Name,
			Type:             src.Type,
			Params:           src.Params,
			Attrs:            src.Attrs,
			InputsByProducer: make(map[string]*Operand[B], len(src.Inputs)),
		}
		for _, in := range src.Inputs {
			ro := operand(in)
			op.Inputs = append(op.Inputs, ro)
			if in.Producer != nil {
				op.InputsByProducer[in.Producer.Name] = ro
			}
		}
		if len(src.Outputs) == 1 {
			op.Output = operand(src.Outputs[0])
			op.Output.Producer = op
		}
		ops[src] = op
		g.operators = append(g.operators, op)
	}

	for _, src := range g.source.Operators {
		op := ops[src]
		if op.Output == nil {
			continue
		}
		seen := make(map[*Operator[B]]bool)
		for _, c := range src.Outputs[0].Consumers {
			next := ops[c]
			op.Output.Consumers = append(op.Output.Consumers, next)
			if !seen[next] {
				seen[next] = true
				op.Successors = append(op.Successors, next)
			}
		}
	}

	g.input, g.output = nil, nil
	g.state = StateNeedBuild
	return nil
}

// Build creates a layer for every operator between the named input and
// output operators. It runs Init first if needed.
func (g *Graph[B]) Build(ctx context.Context, inputName, outputName string) error {
	if g.state == StateNeedInit {
		if err := g.Init(ctx); err != nil {
			return err
		}
	}

	input, err := g.find(inputName, pnnx.OpInput)
	if err != nil {
		return err
	}
	output, err := g.find(outputName, pnnx.OpOutput)
	if err != nil {
		return err
	}
	if input.Output == nil {
		return fmt.Errorf("input %s: %w: no output operand", inputName, ErrUnsupportedOperand)
	}
	if len(output.Inputs) != 1 {
		return fmt.Errorf("output %s: %w: %d inputs", outputName, ErrUnsupportedOperand, len(output.Inputs))
	}

	for _, op := range g.operators {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, r := range op.Inputs {
			if err := checkOperand(r); err != nil {
				return fmt.Errorf("operator %s: %w", op.Name, err)
			}
		}
		if op.Type == pnnx.OpInput || op.Type == pnnx.OpOutput {
			continue
		}
		l, err := g.registry.Create(op, g.backend)
		if err != nil {
			return err
		}
		op.layer = l
	}

	g.input, g.output = input, output
	g.state = StateComplete
	return nil
}

func (g *Graph[B]) find(name, opType string) (*Operator[B], error) {
	for _, op := range g.operators {
		if op.Name == name {
			if op.Type != opType {
				return nil, fmt.Errorf("%w: %s is %s, want %s", ErrOperatorNotFound, name, op.Type, opType)
			}
			return op, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
}

func checkOperand[B tensor.Backend](r *Operand[B]) error {
	if !r.Typed {
		return nil
	}
	if r.DType != tensor.Float32 {
		return fmt.Errorf("%w: %s is %s, only float32 is supported", ErrUnsupportedOperand, r.Name, r.DType)
	}
	if n := len(r.Shape); n < 2 || n > 4 {
		return fmt.Errorf("%w: %s has rank %d, supported ranks are 2 to 4", ErrUnsupportedOperand, r.Name, n)
	}
	return nil
}

// Forward runs the graph on input and returns the value reaching the
// output operator. It may be called repeatedly.
func (g *Graph[B]) Forward(ctx context.Context, input *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	if g.state != StateComplete {
		return nil, ErrNotBuilt
	}
	if !matchShape(g.input.Output, input.Shape()) {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrInputShape, input.Shape(), g.input.Output.Shape)
	}

	for _, op := range g.operators {
		op.meet = 0
		if op.Output != nil {
			op.Output.value = nil
		}
	}

	queue := []*Operator[B]{g.input}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		op := queue[0]
		queue = queue[1:]

		if op == g.output {
			result := op.Inputs[0].value
			g.logger.Debug("graph output", "operator", op.Name, "shape", result.Shape().String())
			return result, nil
		}

		var out *tensor.Tensor[float32, B]
		if op == g.input {
			out = input
		} else {
			if op.layer == nil {
				return nil, fmt.Errorf("operator %s (%s): %w", op.Name, op.Type, ErrNotBuilt)
			}
			args := make([]*tensor.Tensor[float32, B], len(op.Inputs))
			for i, r := range op.Inputs {
				args[i] = r.value
			}
			var err error
			if out, err = op.layer.Forward(args); err != nil {
				return nil, fmt.Errorf("operator %s (%s): %w", op.Name, op.Type, err)
			}
			if !matchShape(op.Output, out.Shape()) {
				return nil, fmt.Errorf("operator %s (%s): %w: got %s, want %s",
					op.Name, op.Type, ErrOutputShape, out.Shape(), op.Output.Shape)
			}
		}
		g.logger.Debug("operator done", "operator", op.Name, "type", op.Type, "shape", out.Shape().String())

		if op.Output == nil {
			continue
		}
		op.Output.value = out
		for _, next := range op.Output.Consumers {
			next.meet++
			if next.meet == len(next.Inputs) {
				queue = append(queue, next)
			}
		}
	}
	return nil, ErrOutputNotReached
}

// matchShape reports whether shape fits the declared operand shape.
// A declared -1 matches any size; an untyped operand matches anything.
func matchShape[B tensor.Backend](r *Operand[B], shape tensor.Shape) bool {
	if !r.Typed {
		return true
	}
	if len(r.Shape) != len(shape) {
		return false
	}
	for i, d := range r.Shape {
		if d != -1 && d != shape[i] {
			return false
		}
	}
	return true
}
