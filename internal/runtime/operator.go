package runtime

import (
	"fmt"

	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

// Operand is a runtime edge. Its value is filled while a forward pass runs.
type Operand[B tensor.Backend] struct {
	Name      string
	Shape     tensor.Shape
	DType     tensor.DataType
	Typed     bool
	Producer  *Operator[B]
	Consumers []*Operator[B] // one entry per consuming input slot

	value *tensor.Tensor[float32, B]
}

// Operator is a runtime node.
type Operator[B tensor.Backend] struct {
	Name   string
	Type   string
	Params map[string]pnnx.Parameter
	Attrs  map[string]*pnnx.Attribute

	// Inputs holds the input operands in argument order; InputsByProducer
	// keys the same operands by the name of the operator producing them.
	Inputs           []*Operand[B]
	InputsByProducer map[string]*Operand[B]

	Output     *Operand[B] // nil for pnnx.Output
	Successors []*Operator[B]

	layer Layer[B]
	meet  int
}

func (op *Operator[B]) intParam(key string) (int, error) {
	p, ok := op.Params[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidParam, key)
	}
	if p.Type != pnnx.ParamInt {
		return 0, fmt.Errorf("%w: %s=%s is not an int", ErrInvalidParam, key, p)
	}
	return p.I, nil
}

// pairParam reads a two element int parameter. A scalar is used for both
// axes. def is returned when the parameter is absent; nil makes it required.
func (op *Operator[B]) pairParam(key string, def *[2]int) ([2]int, error) {
	p, ok := op.Params[key]
	if !ok {
		if def == nil {
			return [2]int{}, fmt.Errorf("%w: missing %s", ErrInvalidParam, key)
		}
		return *def, nil
	}
	v, err := p.Ints(2)
	if err != nil {
		return [2]int{}, fmt.Errorf("%w: %s: %v", ErrInvalidParam, key, err)
	}
	if len(v) != 2 {
		return [2]int{}, fmt.Errorf("%w: %s=%s must have 2 elements", ErrInvalidParam, key, p)
	}
	return [2]int{v[0], v[1]}, nil
}

func (op *Operator[B]) boolParam(key string, def bool) (bool, error) {
	p, ok := op.Params[key]
	if !ok {
		return def, nil
	}
	if p.Type != pnnx.ParamBool {
		return false, fmt.Errorf("%w: %s=%s is not a bool", ErrInvalidParam, key, p)
	}
	return p.B, nil
}

// attr returns attribute key converted to float32.
func (op *Operator[B]) attr(key string) (*tensor.RawTensor, error) {
	a, ok := op.Attrs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingAttr, key)
	}
	raw, err := a.Raw()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingAttr, key, err)
	}
	if raw.DType() == tensor.Float32 {
		return raw, nil
	}
	return raw.ToFloat32()
}
