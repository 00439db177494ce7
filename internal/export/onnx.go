package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/born-ml/pnnxgen/internal/onnx"
	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/runtime"
	"github.com/born-ml/pnnxgen/internal/tensor"
	"github.com/born-ml/pnnxgen/internal/trace"
)

// ONNX defaults.
const (
	IRVersion = 7
	Opset     = 13
	Producer  = "pnnxgen"
)

// Names of the graph input and output in both exported formats.
const (
	InputName  = "in0"
	OutputName = "out0"
)

// ONNXOptions customizes the ModelProto header.
type ONNXOptions struct {
	GraphName       string
	ProducerVersion string
	DocString       string
}

// ONNX encodes tr as an ONNX model and writes it to w.
func ONNX(tr *trace.Trace, w io.Writer, opts ONNXOptions) error {
	m, err := ONNXModel(tr, opts)
	if err != nil {
		return err
	}
	return onnx.Write(w, m)
}

// ONNXModel converts tr into an ONNX ModelProto without encoding it.
func ONNXModel(tr *trace.Trace, opts ONNXOptions) (*onnx.ModelProto, error) {
	names, err := boundaryNames(tr)
	if err != nil {
		return nil, err
	}
	name := opts.GraphName
	if name == "" {
		name = "main_graph"
	}

	c := &onnxConverter{tr: tr, names: names, g: &onnx.GraphProto{Name: name}}
	for _, n := range tr.Nodes {
		if err := c.node(n); err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", n.Name, n.Type, err)
		}
	}

	return &onnx.ModelProto{
		IRVersion:       IRVersion,
		ProducerName:    Producer,
		ProducerVersion: opts.ProducerVersion,
		DocString:       opts.DocString,
		Graph:           c.g,
		OpsetImport:     []onnx.OperatorSetID{{Version: Opset}},
	}, nil
}

// boundaryNames maps the operands at the graph boundary to InputName and
// OutputName. Inner operands keep their trace names.
func boundaryNames(tr *trace.Trace) (map[string]string, error) {
	ins, outs := tr.Inputs(), tr.Outputs()
	if len(ins) != 1 || len(outs) != 1 {
		return nil, fmt.Errorf("%w: got %d inputs and %d outputs, want 1 and 1", ErrEmptyTrace, len(ins), len(outs))
	}
	names := map[string]string{ins[0].Outputs[0]: InputName}
	if _, ok := names[outs[0].Inputs[0]]; !ok {
		names[outs[0].Inputs[0]] = OutputName
	}
	return names, nil
}

type onnxConverter struct {
	tr    *trace.Trace
	names map[string]string
	g     *onnx.GraphProto
}

func (c *onnxConverter) name(operand string) string {
	if n, ok := c.names[operand]; ok {
		return n
	}
	return operand
}

func (c *onnxConverter) operand(name string) (*trace.Operand, error) {
	r := c.tr.Operand(name)
	if r == nil {
		return nil, fmt.Errorf("operand %s not in trace", name)
	}
	return r, nil
}

func (c *onnxConverter) emit(opType, name string, inputs []string, output string, attrs ...onnx.AttributeProto) {
	c.g.Nodes = append(c.g.Nodes, onnx.NodeProto{
		Name:       name,
		OpType:     opType,
		Inputs:     inputs,
		Outputs:    []string{output},
		Attributes: attrs,
	})
}

func (c *onnxConverter) node(n *trace.Node) error {
	switch n.Type {
	case pnnx.OpInput:
		r, err := c.operand(n.Outputs[0])
		if err != nil {
			return err
		}
		c.g.Inputs = append(c.g.Inputs, onnx.ValueInfo(InputName, r.DType, r.Shape))
		return nil

	case pnnx.OpOutput:
		r, err := c.operand(n.Inputs[0])
		if err != nil {
			return err
		}
		if c.name(r.Name) != OutputName {
			// The input flows straight to the output.
			c.emit("Identity", n.Name, []string{c.name(r.Name)}, OutputName)
		}
		c.g.Outputs = append(c.g.Outputs, onnx.ValueInfo(OutputName, r.DType, r.Shape))
		return nil
	}

	if len(n.Outputs) != 1 {
		return fmt.Errorf("%w: %d outputs", ErrUnsupported, len(n.Outputs))
	}
	in := make([]string, len(n.Inputs))
	for i, r := range n.Inputs {
		in[i] = c.name(r)
	}
	out := c.name(n.Outputs[0])

	switch n.Type {
	case "nn.Conv2d":
		return c.conv(n, in, out)
	case "nn.ReLU":
		c.emit("Relu", n.Name, in, out)
	case "nn.Sigmoid":
		c.emit("Sigmoid", n.Name, in, out)
	case "nn.MaxPool2d":
		return c.maxPool(n, in, out)
	case "nn.AdaptiveAvgPool2d":
		return c.adaptiveAvgPool(n, in, out)
	case "torch.flatten":
		return c.flatten(n, in, out)
	case "nn.Linear":
		return c.linear(n, in, out)
	case pnnx.OpExpression:
		return c.expression(n, in, out)
	default:
		return fmt.Errorf("%w: operator type %s", ErrUnsupported, n.Type)
	}
	return nil
}

// weights adds the named attributes of n as initializers and returns their
// names. Missing optional attributes are skipped.
func (c *onnxConverter) weights(n *trace.Node, attrs ...string) ([]string, error) {
	var names []string
	for i, a := range attrs {
		raw, ok := n.Attrs[a]
		if !ok {
			if i == 0 {
				return nil, fmt.Errorf("missing attribute %s", a)
			}
			continue
		}
		if raw.DType() != tensor.Float32 {
			return nil, fmt.Errorf("%w: attribute %s is %s", ErrUnsupported, a, raw.DType())
		}
		key := pnnx.AttrKey(n.Name, a)
		c.g.Initializers = append(c.g.Initializers, onnx.TensorFromRaw(key, raw))
		names = append(names, key)
	}
	return names, nil
}

func pair(n *trace.Node, key string, def int) ([]int64, error) {
	p, ok := n.Params[key]
	if !ok {
		return []int64{int64(def), int64(def)}, nil
	}
	v, err := p.Ints(2)
	if err != nil {
		return nil, err
	}
	if len(v) != 2 {
		return nil, fmt.Errorf("%w: %s has %d values", ErrUnsupported, key, len(v))
	}
	return []int64{int64(v[0]), int64(v[1])}, nil
}

// pads expands (ph, pw) into ONNX begin/end order.
func pads(p []int64) []int64 {
	return []int64{p[0], p[1], p[0], p[1]}
}

func (c *onnxConverter) conv(n *trace.Node, in []string, out string) error {
	if mode, ok := n.Params["padding_mode"]; ok && mode.S != "zeros" {
		return fmt.Errorf("%w: padding_mode %s", ErrUnsupported, mode.S)
	}
	w, err := c.weights(n, "weight", "bias")
	if err != nil {
		return err
	}
	kernel, err := pair(n, "kernel_size", 0)
	if err != nil {
		return err
	}
	if kernel[0] == 0 {
		s := n.Attrs["weight"].Shape()
		kernel = []int64{int64(s[2]), int64(s[3])}
	}
	stride, err := pair(n, "stride", 1)
	if err != nil {
		return err
	}
	padding, err := pair(n, "padding", 0)
	if err != nil {
		return err
	}
	dilation, err := pair(n, "dilation", 1)
	if err != nil {
		return err
	}
	groups := 1
	if p, ok := n.Params["groups"]; ok {
		groups = p.I
	}

	c.emit("Conv", n.Name, append(in, w...), out,
		onnx.IntsAttr("kernel_shape", kernel...),
		onnx.IntsAttr("strides", stride...),
		onnx.IntsAttr("pads", pads(padding)...),
		onnx.IntsAttr("dilations", dilation...),
		onnx.IntAttr("group", int64(groups)),
	)
	return nil
}

func (c *onnxConverter) maxPool(n *trace.Node, in []string, out string) error {
	if p, ok := n.Params["ceil_mode"]; ok && p.B {
		return fmt.Errorf("%w: ceil_mode", ErrUnsupported)
	}
	kernel, err := pair(n, "kernel_size", 0)
	if err != nil {
		return err
	}
	stride := kernel
	if _, ok := n.Params["stride"]; ok {
		if stride, err = pair(n, "stride", 1); err != nil {
			return err
		}
	}
	padding, err := pair(n, "padding", 0)
	if err != nil {
		return err
	}
	c.emit("MaxPool", n.Name, in, out,
		onnx.IntsAttr("kernel_shape", kernel...),
		onnx.IntsAttr("strides", stride...),
		onnx.IntsAttr("pads", pads(padding)...),
	)
	return nil
}

// adaptiveAvgPool lowers to AveragePool, which is only exact when every
// output cell covers an equal, non-overlapping window.
func (c *onnxConverter) adaptiveAvgPool(n *trace.Node, in []string, out string) error {
	size, err := pair(n, "output_size", 0)
	if err != nil {
		return err
	}
	src, err := c.operand(n.Inputs[0])
	if err != nil {
		return err
	}
	if len(src.Shape) != 4 {
		return fmt.Errorf("%w: input rank %d", ErrUnsupported, len(src.Shape))
	}
	h, w := int64(src.Shape[2]), int64(src.Shape[3])
	if size[0] <= 0 || size[1] <= 0 || h%size[0] != 0 || w%size[1] != 0 {
		return fmt.Errorf("%w: adaptive pool %dx%d to %dx%d", ErrUnsupported, h, w, size[0], size[1])
	}
	kernel := []int64{h / size[0], w / size[1]}
	c.emit("AveragePool", n.Name, in, out,
		onnx.IntsAttr("kernel_shape", kernel...),
		onnx.IntsAttr("strides", kernel...),
	)
	return nil
}

func (c *onnxConverter) flatten(n *trace.Node, in []string, out string) error {
	src, err := c.operand(n.Inputs[0])
	if err != nil {
		return err
	}
	start, end := n.Params["start_dim"].I, n.Params["end_dim"].I
	if start != 1 || (end != -1 && end != len(src.Shape)-1) {
		return fmt.Errorf("%w: flatten(%d,%d)", ErrUnsupported, start, end)
	}
	c.emit("Flatten", n.Name, in, out, onnx.IntAttr("axis", 1))
	return nil
}

func (c *onnxConverter) linear(n *trace.Node, in []string, out string) error {
	w, err := c.weights(n, "weight", "bias")
	if err != nil {
		return err
	}
	c.emit("Gemm", n.Name, append(in, w...), out,
		onnx.FloatAttr("alpha", 1),
		onnx.FloatAttr("beta", 1),
		onnx.IntAttr("transB", 1),
	)
	return nil
}

// expression unrolls a pnnx expression into binary Add and Mul nodes. The
// last node writes out; intermediates are named <node>_<k>.
func (c *onnxConverter) expression(n *trace.Node, in []string, out string) error {
	root, err := runtime.ParseExpression(n.Params["expr"].S)
	if err != nil {
		return err
	}

	var stack []string
	tmp := 0
	rpn := runtime.ReversePolish(root)
	for i, e := range rpn {
		if e.Kind == runtime.ExprInput {
			if e.Index >= len(in) {
				return fmt.Errorf("expression uses @%d with %d inputs", e.Index, len(in))
			}
			stack = append(stack, in[e.Index])
			continue
		}
		if len(stack) < 2 {
			return fmt.Errorf("malformed expression %q", n.Params["expr"].S)
		}
		a, b := stack[len(stack)-2], stack[len(stack)-1]
		stack = stack[:len(stack)-2]

		dst, name := out, n.Name
		if i != len(rpn)-1 {
			dst = n.Name + "_" + strconv.Itoa(tmp)
			name = dst
			tmp++
		}
		opType := "Add"
		if e.Kind == runtime.ExprMul {
			opType = "Mul"
		}
		c.emit(opType, name, []string{a, b}, dst)
		stack = append(stack, dst)
	}

	if len(rpn) == 1 {
		c.emit("Identity", n.Name, stack, out)
	}
	return nil
}
