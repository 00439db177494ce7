// Package nn implements the neural network modules used by the reference
// models and by the pnnx runtime layers.
//
//   - Module interface: Forward plus Parameters
//   - Parameter: a named weight tensor
//   - Conv2D, Linear: layers with weights
//   - ReLU, Sigmoid, MaxPool2D, AdaptiveAvgPool2D, Flatten: stateless layers
//   - Sequential: container for stacking layers
//
// Every module also describes itself as a pnnx operator (trace.Describer) so
// a forward pass can be exported.
package nn

import (
	"github.com/born-ml/pnnxgen/internal/tensor"
	"github.com/born-ml/pnnxgen/internal/trace"
)

// Module is the base interface for all neural network components.
//
//	model := nn.NewSequential[Backend](
//	    nn.NewConv2D(cfg, rng, backend),
//	    nn.NewReLU[Backend](),
//	)
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module. Invalid input shapes panic,
	// like the backend kernels underneath.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns the weight tensors of this module, or nil.
	Parameters() []*Parameter[B]
}

// TracedModule is a Module that can be recorded into a trace.
type TracedModule[B tensor.Backend] interface {
	Module[B]
	trace.Describer
}

// StateDicter is implemented by modules whose weights can be exported and
// replaced by name.
type StateDicter interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}
