package pnnx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/pnnxgen/internal/tensor"
)

// Magic is the first line of every .pnnx.param file.
const Magic = 7767517

// Well-known operator types.
const (
	OpInput      = "pnnx.Input"
	OpOutput     = "pnnx.Output"
	OpExpression = "pnnx.Expression"
)

// Graph is a parsed pnnx model.
type Graph struct {
	Operators []*Operator
	Operands  []*Operand
}

// Operator is one node of the graph.
type Operator struct {
	Type    string
	Name    string
	Inputs  []*Operand
	Outputs []*Operand

	// InputNames optionally labels each input ("$input=0" in the param file).
	InputNames []string

	Params map[string]Parameter
	Attrs  map[string]*Attribute
}

// Operand is an edge of the graph: a tensor produced by one operator and
// consumed by zero or more others.
type Operand struct {
	Name      string
	Shape     tensor.Shape // -1 marks a dynamic dimension
	DType     tensor.DataType
	Typed     bool // false when the param file declares the type as null
	Producer  *Operator
	Consumers []*Operator
}

// Attribute is a weight blob attached to an operator.
// Data is nil until the graph is loaded together with its archive.
type Attribute struct {
	DType tensor.DataType
	Shape tensor.Shape
	Data  []byte
}

// NewAttribute copies t into an attribute.
func NewAttribute(t *tensor.RawTensor) *Attribute {
	return &Attribute{
		DType: t.DType(),
		Shape: t.Shape().Clone(),
		Data:  append([]byte(nil), t.Data()...),
	}
}

// Raw returns the attribute as a tensor.
func (a *Attribute) Raw() (*tensor.RawTensor, error) {
	if a.Data == nil {
		return nil, fmt.Errorf("attribute %s%s has no data", a.Shape, a.DType.PNNXName())
	}
	return tensor.FromBytes(a.Shape, a.DType, a.Data)
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// NewOperator appends an operator.
func (g *Graph) NewOperator(opType, name string) *Operator {
	op := &Operator{
		Type:   opType,
		Name:   name,
		Params: make(map[string]Parameter),
		Attrs:  make(map[string]*Attribute),
	}
	g.Operators = append(g.Operators, op)
	return op
}

// NewOperand appends an operand.
func (g *Graph) NewOperand(name string, shape tensor.Shape, dtype tensor.DataType) *Operand {
	r := &Operand{Name: name, Shape: shape.Clone(), DType: dtype, Typed: true}
	g.Operands = append(g.Operands, r)
	return r
}

// Operand returns the operand with the given name, or nil.
func (g *Graph) Operand(name string) *Operand {
	for _, r := range g.Operands {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Operator returns the operator with the given name, or nil.
func (g *Graph) Operator(name string) *Operator {
	for _, op := range g.Operators {
		if op.Name == name {
			return op
		}
	}
	return nil
}

// Connect wires r as the next input of op.
func (op *Operator) Connect(r *Operand) {
	op.Inputs = append(op.Inputs, r)
	r.Consumers = append(r.Consumers, op)
}

// Produce registers r as the next output of op.
func (op *Operator) Produce(r *Operand) {
	op.Outputs = append(op.Outputs, r)
	r.Producer = op
}

// ParamType tags the value held by a Parameter.
type ParamType int

// Parameter types, numbered as in the pnnx format.
const (
	ParamNone ParamType = iota
	ParamBool
	ParamInt
	ParamFloat
	ParamString
	ParamInts
	ParamFloats
	ParamStrings
)

// Parameter is a scalar or list operator parameter.
type Parameter struct {
	Type ParamType
	B    bool
	I    int
	F    float32
	S    string
	AI   []int
	AF   []float32
	AS   []string
}

// BoolParam returns a bool parameter.
func BoolParam(b bool) Parameter { return Parameter{Type: ParamBool, B: b} }

// IntParam returns an int parameter.
func IntParam(i int) Parameter { return Parameter{Type: ParamInt, I: i} }

// FloatParam returns a float parameter.
func FloatParam(f float32) Parameter { return Parameter{Type: ParamFloat, F: f} }

// StringParam returns a string parameter.
func StringParam(s string) Parameter { return Parameter{Type: ParamString, S: s} }

// IntsParam returns an int list parameter.
func IntsParam(v ...int) Parameter { return Parameter{Type: ParamInts, AI: v} }

// FloatsParam returns a float list parameter.
func FloatsParam(v ...float32) Parameter { return Parameter{Type: ParamFloats, AF: v} }

// StringsParam returns a string list parameter.
func StringsParam(v ...string) Parameter { return Parameter{Type: ParamStrings, AS: v} }

// ParseParameter parses the textual value of a key=value pair.
func ParseParameter(value string) Parameter {
	if value == "" || value == "None" || value == "()" || value == "[]" {
		return Parameter{Type: ParamNone}
	}
	if value == "True" || value == "False" {
		return BoolParam(value == "True")
	}

	if (value[0] == '(' && value[len(value)-1] == ')') || (value[0] == '[' && value[len(value)-1] == ']') {
		elems := strings.Split(value[1:len(value)-1], ",")
		for i := range elems {
			elems[i] = strings.TrimSpace(elems[i])
		}
		return parseList(elems)
	}

	if i, err := strconv.Atoi(value); err == nil {
		return IntParam(i)
	}
	if looksNumeric(value) {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return FloatParam(float32(f))
		}
	}
	return StringParam(value)
}

func parseList(elems []string) Parameter {
	ints := make([]int, 0, len(elems))
	for _, e := range elems {
		i, err := strconv.Atoi(e)
		if err != nil {
			ints = nil
			break
		}
		ints = append(ints, i)
	}
	if ints != nil {
		return IntsParam(ints...)
	}

	floats := make([]float32, 0, len(elems))
	for _, e := range elems {
		if !looksNumeric(e) {
			floats = nil
			break
		}
		f, err := strconv.ParseFloat(e, 32)
		if err != nil {
			floats = nil
			break
		}
		floats = append(floats, float32(f))
	}
	if floats != nil {
		return FloatsParam(floats...)
	}
	return StringsParam(elems...)
}

// looksNumeric rejects words such as "inf" or "nan" that ParseFloat accepts
// but pnnx writes as strings.
func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.'
}

// String renders p the way pnnx writes it.
func (p Parameter) String() string {
	switch p.Type {
	case ParamBool:
		if p.B {
			return "True"
		}
		return "False"
	case ParamInt:
		return strconv.Itoa(p.I)
	case ParamFloat:
		return formatFloat(p.F)
	case ParamString:
		return p.S
	case ParamInts:
		parts := make([]string, len(p.AI))
		for i, v := range p.AI {
			parts[i] = strconv.Itoa(v)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case ParamFloats:
		parts := make([]string, len(p.AF))
		for i, v := range p.AF {
			parts[i] = formatFloat(v)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case ParamStrings:
		return "(" + strings.Join(p.AS, ",") + ")"
	default:
		return "None"
	}
}

func formatFloat(f float32) string {
	return fmt.Sprintf("%e", f)
}

// Ints returns the parameter as an int list. A scalar int is widened to a
// list of n copies, matching how pnnx accepts kernel_size=3 for (3,3).
func (p Parameter) Ints(n int) ([]int, error) {
	switch p.Type {
	case ParamInts:
		return p.AI, nil
	case ParamInt:
		out := make([]int, n)
		for i := range out {
			out[i] = p.I
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %s is not an int list", p)
	}
}
