// Package trace records one concrete forward evaluation of a model as a flat
// list of operator calls, ready to be exported to an interchange format.
package trace

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

// ErrUnknownTensor is returned when a recorded call consumes a tensor that
// was neither a graph input nor the output of an earlier call.
var ErrUnknownTensor = errors.New("tensor was not produced inside the trace")

// Op describes a module as a pnnx operator: its type, hyper-parameters and
// weight attributes.
type Op struct {
	Type   string
	Params map[string]pnnx.Parameter
	Attrs  map[string]*tensor.RawTensor
}

// Describer is implemented by every module that can be traced.
type Describer interface {
	Describe() Op
}

// DescriberFunc adapts a function to Describer.
type DescriberFunc func() Op

// Describe implements Describer.
func (f DescriberFunc) Describe() Op { return f() }

// Expression describes an element-wise pnnx expression such as "add(@0,@1)".
func Expression(expr string) Describer {
	return DescriberFunc(func() Op {
		return Op{
			Type:   pnnx.OpExpression,
			Params: map[string]pnnx.Parameter{"expr": pnnx.StringParam(expr)},
		}
	})
}

// Node is one recorded operator call.
type Node struct {
	Type    string
	Name    string
	Params  map[string]pnnx.Parameter
	Attrs   map[string]*tensor.RawTensor
	Inputs  []string
	Outputs []string
}

// Operand is a tensor flowing between nodes.
type Operand struct {
	Name  string
	Shape tensor.Shape
	DType tensor.DataType
}

// Trace is the result of a recording.
type Trace struct {
	Nodes    []*Node
	Operands []*Operand
}

// Operand returns the operand called name, or nil.
func (tr *Trace) Operand(name string) *Operand {
	for _, r := range tr.Operands {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Inputs returns the pnnx.Input nodes.
func (tr *Trace) Inputs() []*Node { return tr.nodesOfType(pnnx.OpInput) }

// Outputs returns the pnnx.Output nodes.
func (tr *Trace) Outputs() []*Node { return tr.nodesOfType(pnnx.OpOutput) }

func (tr *Trace) nodesOfType(typ string) []*Node {
	var out []*Node
	for _, n := range tr.Nodes {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// Recorder builds a Trace. Operands are named 0, 1, 2... in the order the
// tensors first appear.
type Recorder struct {
	tr      Trace
	names   map[*tensor.RawTensor]string
	inputs  int
	outputs int
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{names: make(map[*tensor.RawTensor]string)}
}

// Input registers t as a graph input.
func (r *Recorder) Input(t *tensor.RawTensor) {
	name := r.operand(t)
	r.tr.Nodes = append(r.tr.Nodes, &Node{
		Type:    pnnx.OpInput,
		Name:    "pnnx_input_" + strconv.Itoa(r.inputs),
		Outputs: []string{name},
	})
	r.inputs++
}

// Record appends a call of d that consumed inputs and produced output.
func (r *Recorder) Record(name string, d Describer, inputs []*tensor.RawTensor, output *tensor.RawTensor) error {
	in, err := r.lookup(name, inputs)
	if err != nil {
		return err
	}

	op := d.Describe()
	r.tr.Nodes = append(r.tr.Nodes, &Node{
		Type:    op.Type,
		Name:    name,
		Params:  op.Params,
		Attrs:   op.Attrs,
		Inputs:  in,
		Outputs: []string{r.operand(output)},
	})
	return nil
}

// Output registers t as a graph output.
func (r *Recorder) Output(t *tensor.RawTensor) error {
	in, err := r.lookup("output", []*tensor.RawTensor{t})
	if err != nil {
		return err
	}
	r.tr.Nodes = append(r.tr.Nodes, &Node{
		Type:   pnnx.OpOutput,
		Name:   "pnnx_output_" + strconv.Itoa(r.outputs),
		Inputs: in,
	})
	r.outputs++
	return nil
}

// Trace returns the recording so far.
func (r *Recorder) Trace() *Trace {
	return &r.tr
}

func (r *Recorder) lookup(node string, ts []*tensor.RawTensor) ([]string, error) {
	names := make([]string, len(ts))
	for i, t := range ts {
		name, ok := r.names[t]
		if !ok {
			return nil, fmt.Errorf("%s input %d: %w", node, i, ErrUnknownTensor)
		}
		names[i] = name
	}
	return names, nil
}

func (r *Recorder) operand(t *tensor.RawTensor) string {
	if name, ok := r.names[t]; ok {
		return name
	}
	name := strconv.Itoa(len(r.tr.Operands))
	r.names[t] = name
	r.tr.Operands = append(r.tr.Operands, &Operand{
		Name:  name,
		Shape: t.Shape().Clone(),
		DType: t.DType(),
	})
	return name
}
