package models

import (
	"math/rand"

	"github.com/born-ml/pnnxgen/internal/nn"
	"github.com/born-ml/pnnxgen/internal/tensor"
	"github.com/born-ml/pnnxgen/internal/trace"
)

// convConfig is the geometry shared by every convolution of the reference
// models: 3 -> 3 channels, 3x3 kernel, stride 1, padding 1.
func convConfig() nn.Conv2DConfig {
	cfg := nn.DefaultConv2DConfig(3, 3, 3)
	cfg.Padding = [2]int{1, 1}
	return cfg
}

// convReLU is conv1 -> conv2 -> relu.
type convReLU[B tensor.Backend] struct {
	conv1, conv2 *nn.Conv2D[B]
	relu         *nn.ReLU[B]
}

func newConvReLU[B tensor.Backend](params map[string]*tensor.RawTensor, backend B) (*convReLU[B], error) {
	conv1, err := loadConv(params, "conv1", backend)
	if err != nil {
		return nil, err
	}
	conv2, err := loadConv(params, "conv2", backend)
	if err != nil {
		return nil, err
	}
	return &convReLU[B]{conv1: conv1, conv2: conv2, relu: nn.NewReLU[B]()}, nil
}

func initConvReLU[B tensor.Backend](rng *rand.Rand, backend B) *convReLU[B] {
	return &convReLU[B]{
		conv1: nn.NewConv2D(convConfig(), rng, backend),
		conv2: nn.NewConv2D(convConfig(), rng, backend),
		relu:  nn.NewReLU[B](),
	}
}

func loadConv[B tensor.Backend](params map[string]*tensor.RawTensor, layer string, backend B) (*nn.Conv2D[B], error) {
	return nn.Conv2DFromParams(convConfig(), params[layer+".weight"], params[layer+".bias"], backend)
}

func (m *convReLU[B]) Name() string { return ConvReLU }

func (m *convReLU[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return m.relu.Forward(m.conv2.Forward(m.conv1.Forward(input)))
}

func (m *convReLU[B]) Trace(input *tensor.Tensor[float32, B], rec *trace.Recorder) (*tensor.Tensor[float32, B], error) {
	t := newTracer[B](rec, input)
	h := t.call("conv1", m.conv1, input)
	h = t.call("conv2", m.conv2, h)
	h = t.call("relu", m.relu, h)
	return t.finish(h)
}

func (m *convReLU[B]) StateDict() map[string]*tensor.RawTensor {
	return mergeStateDicts(map[string]nn.StateDicter{"conv1": m.conv1, "conv2": m.conv2})
}
