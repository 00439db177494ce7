package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
	"github.com/born-ml/pnnxgen/internal/trace"
)

// Linear is a fully connected layer: y = x @ W^T + b.
//
// Input shape:  [batch, in_features]
// Output shape: [batch, out_features]
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B] // [out_features, in_features]
	bias        *Parameter[B] // [out_features] or nil
	backend     B
}

// NewLinear creates a Linear layer with Xavier weights drawn from rng and
// zero bias.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, useBias bool, rng *rand.Rand, backend B) *Linear[B] {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("linear: invalid features in=%d, out=%d", inFeatures, outFeatures))
	}

	l := &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, rng, backend)),
		backend:     backend,
	}
	if useBias {
		l.bias = NewParameter("bias", Zeros(tensor.Shape{outFeatures}, backend))
	}
	return l
}

// LinearFromParams creates a Linear layer around loaded weights. The feature
// counts come from the weight shape [out_features, in_features]; bias may be nil.
func LinearFromParams[B tensor.Backend](weight, bias *tensor.RawTensor, backend B) (*Linear[B], error) {
	if weight == nil || len(weight.Shape()) != 2 {
		return nil, fmt.Errorf("linear: weight must be 2D [out_features, in_features]")
	}
	out, in := weight.Shape()[0], weight.Shape()[1]
	if err := checkRaw("linear weight", weight, tensor.Shape{out, in}); err != nil {
		return nil, err
	}

	l := &Linear[B]{inFeatures: in, outFeatures: out, backend: backend}
	var err error
	if l.weight, err = ParameterFromRaw("weight", weight, backend); err != nil {
		return nil, err
	}
	if bias != nil {
		if err := checkRaw("linear bias", bias, tensor.Shape{out}); err != nil {
			return nil, err
		}
		if l.bias, err = ParameterFromRaw("bias", bias, backend); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Forward computes x @ W^T + b.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 2 {
		panic(fmt.Sprintf("Linear.Forward: expected 2D input [batch, features], got shape %v", inputShape))
	}
	if inputShape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, inputShape[1]))
	}

	output := input.MatMul(l.weight.Tensor().T())

	if l.bias != nil {
		output = output.Add(l.bias.Tensor().Reshape(1, l.outFeatures))
	}
	return output
}

// Parameters returns weight and, if present, bias.
func (l *Linear[B]) Parameters() []*Parameter[B] {
	if l.bias != nil {
		return []*Parameter[B]{l.weight, l.bias}
	}
	return []*Parameter[B]{l.weight}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] { return l.weight }

// Bias returns the bias parameter, or nil.
func (l *Linear[B]) Bias() *Parameter[B] { return l.bias }

// InFeatures returns the input feature count.
func (l *Linear[B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output feature count.
func (l *Linear[B]) OutFeatures() int { return l.outFeatures }

// StateDict returns the weights keyed "weight" and "bias".
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := map[string]*tensor.RawTensor{"weight": l.weight.Tensor().Raw()}
	if l.bias != nil {
		stateDict["bias"] = l.bias.Tensor().Raw()
	}
	return stateDict
}

// LoadStateDict copies weights into the layer after validating shape and dtype.
func (l *Linear[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := checkRaw("weight", stateDict["weight"], tensor.Shape{l.outFeatures, l.inFeatures}); err != nil {
		return err
	}
	if l.bias != nil {
		if err := checkRaw("bias", stateDict["bias"], tensor.Shape{l.outFeatures}); err != nil {
			return err
		}
		copy(l.bias.Tensor().Data(), stateDict["bias"].AsFloat32())
	}
	copy(l.weight.Tensor().Data(), stateDict["weight"].AsFloat32())
	return nil
}

// Describe implements trace.Describer as nn.Linear.
func (l *Linear[B]) Describe() trace.Op {
	return trace.Op{
		Type: "nn.Linear",
		Params: map[string]pnnx.Parameter{
			"in_features":  pnnx.IntParam(l.inFeatures),
			"out_features": pnnx.IntParam(l.outFeatures),
			"bias":         pnnx.BoolParam(l.bias != nil),
		},
		Attrs: l.StateDict(),
	}
}
