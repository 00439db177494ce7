package nn

import (
	"fmt"

	"github.com/born-ml/pnnxgen/internal/tensor"
)

// Parameter is a named weight tensor of a module.
//
//	weight := nn.NewParameter("conv1.weight", weightTensor)
//	w := weight.Tensor()
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

// NewParameter wraps an initialized tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// ParameterFromRaw wraps a loaded float32 buffer without copying it.
func ParameterFromRaw[B tensor.Backend](name string, raw *tensor.RawTensor, backend B) (*Parameter[B], error) {
	t, err := tensor.FromRaw[float32](raw, backend)
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %w", name, err)
	}
	return NewParameter(name, t), nil
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// checkRaw validates a replacement weight against the expected shape.
func checkRaw(what string, raw *tensor.RawTensor, want tensor.Shape) error {
	if raw == nil {
		return fmt.Errorf("missing %s", what)
	}
	if !raw.Shape().Equal(want) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", what, want, raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("%s dtype mismatch: expected float32, got %v", what, raw.DType())
	}
	return nil
}
