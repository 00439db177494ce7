package models

import (
	"math/rand"

	"github.com/born-ml/pnnxgen/internal/nn"
	"github.com/born-ml/pnnxgen/internal/tensor"
	"github.com/born-ml/pnnxgen/internal/trace"
)

// testNet is conv1 -> conv2 -> (+ input) -> relu -> avgpool(2,2) ->
// flatten -> linear(12 -> 4).
type testNet[B tensor.Backend] struct {
	conv1, conv2 *nn.Conv2D[B]
	relu         *nn.ReLU[B]
	avgpool      *nn.AdaptiveAvgPool2D[B]
	flatten      *nn.Flatten[B]
	linear       *nn.Linear[B]
}

func newTestNet[B tensor.Backend](params map[string]*tensor.RawTensor, backend B) (*testNet[B], error) {
	conv1, err := loadConv(params, "conv1", backend)
	if err != nil {
		return nil, err
	}
	conv2, err := loadConv(params, "conv2", backend)
	if err != nil {
		return nil, err
	}
	linear, err := nn.LinearFromParams(params["linear.weight"], params["linear.bias"], backend)
	if err != nil {
		return nil, err
	}
	return assembleTestNet(conv1, conv2, linear, backend), nil
}

func initTestNet[B tensor.Backend](rng *rand.Rand, backend B) *testNet[B] {
	return assembleTestNet(
		nn.NewConv2D(convConfig(), rng, backend),
		nn.NewConv2D(convConfig(), rng, backend),
		nn.NewLinear(12, 4, true, rng, backend),
		backend,
	)
}

func assembleTestNet[B tensor.Backend](conv1, conv2 *nn.Conv2D[B], linear *nn.Linear[B], backend B) *testNet[B] {
	return &testNet[B]{
		conv1:   conv1,
		conv2:   conv2,
		relu:    nn.NewReLU[B](),
		avgpool: nn.NewAdaptiveAvgPool2D(2, 2, backend),
		flatten: nn.NewFlatten[B](1, -1),
		linear:  linear,
	}
}

func (m *testNet[B]) Name() string { return TestNet }

func (m *testNet[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	h := m.conv2.Forward(m.conv1.Forward(input))
	h = m.relu.Forward(h.Add(input))
	h = m.flatten.Forward(m.avgpool.Forward(h))
	return m.linear.Forward(h)
}

func (m *testNet[B]) Trace(input *tensor.Tensor[float32, B], rec *trace.Recorder) (*tensor.Tensor[float32, B], error) {
	t := newTracer[B](rec, input)
	h := t.call("conv1", m.conv1, input)
	h = t.call("conv2", m.conv2, h)

	sum := h.Add(input)
	t.record("pnnx_expr_0", trace.Expression("add(@0,@1)"), []*tensor.Tensor[float32, B]{h, input}, sum)

	h = t.call("relu", m.relu, sum)
	h = t.call("avgpool", m.avgpool, h)
	h = t.call("torch.flatten_0", m.flatten, h)
	h = t.call("linear", m.linear, h)
	return t.finish(h)
}

func (m *testNet[B]) StateDict() map[string]*tensor.RawTensor {
	return mergeStateDicts(map[string]nn.StateDicter{"conv1": m.conv1, "conv2": m.conv2, "linear": m.linear})
}
