package nn_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pnnxgen/internal/backend/cpu"
	"github.com/born-ml/pnnxgen/internal/nn"
	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

func fromSlice(t *testing.T, backend *cpu.CPUBackend, shape tensor.Shape, data ...float32) *tensor.Tensor[float32, *cpu.CPUBackend] {
	t.Helper()
	out, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	return out
}

func rawOf(t *testing.T, shape tensor.Shape, data ...float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.FromBytes(shape, tensor.Float32, tensor.Float32Bytes(data))
	require.NoError(t, err)
	return raw
}

func TestParameter(t *testing.T) {
	backend := cpu.New()

	data := fromSlice(t, backend, tensor.Shape{3}, 1, 2, 3)
	param := nn.NewParameter("test_param", data)

	assert.Equal(t, "test_param", param.Name())
	assert.Same(t, data, param.Tensor())

	raw := rawOf(t, tensor.Shape{2}, 4, 5)
	p2, err := nn.ParameterFromRaw("bias", raw, backend)
	require.NoError(t, err)
	assert.Same(t, raw, p2.Tensor().Raw(), "loaded buffers are wrapped, not copied")

	i32, err := tensor.NewRaw(tensor.Shape{2}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	_, err = nn.ParameterFromRaw("bad", i32, backend)
	assert.Error(t, err)
}

func TestConv2D_Creation(t *testing.T) {
	backend := cpu.New()

	cfg := nn.DefaultConv2DConfig(1, 6, 5)
	conv := nn.NewConv2D(cfg, rand.New(rand.NewSource(1)), backend)

	assert.Equal(t, cfg, conv.Config())
	assert.True(t, conv.Weight().Tensor().Shape().Equal(tensor.Shape{6, 1, 5, 5}))
	assert.True(t, conv.Bias().Tensor().Shape().Equal(tensor.Shape{6}))
	assert.Len(t, conv.Parameters(), 2)

	// Xavier bound for fan_in=25, fan_out=150.
	bound := float32(math.Sqrt(6.0 / 175.0))
	for _, v := range conv.Weight().Tensor().Data() {
		assert.LessOrEqual(t, float32(math.Abs(float64(v))), bound)
	}
	for _, v := range conv.Bias().Tensor().Data() {
		assert.Equal(t, float32(0), v)
	}
}

func TestConv2D_SeededInitIsDeterministic(t *testing.T) {
	backend := cpu.New()
	cfg := nn.DefaultConv2DConfig(3, 3, 3)

	a := nn.NewConv2D(cfg, rand.New(rand.NewSource(7)), backend)
	b := nn.NewConv2D(cfg, rand.New(rand.NewSource(7)), backend)
	assert.Equal(t, a.Weight().Tensor().Data(), b.Weight().Tensor().Data())
}

func TestConv2D_InvalidConfigPanics(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(0))

	bad := nn.DefaultConv2DConfig(3, 4, 3)
	bad.Groups = 2
	assert.Panics(t, func() { nn.NewConv2D(bad, rng, backend) })

	bad = nn.DefaultConv2DConfig(0, 4, 3)
	assert.Panics(t, func() { nn.NewConv2D(bad, rng, backend) })

	bad = nn.DefaultConv2DConfig(3, 3, 3)
	bad.Stride = [2]int{0, 1}
	assert.Panics(t, func() { nn.NewConv2D(bad, rng, backend) })
}

func TestConv2DFromParams_Forward(t *testing.T) {
	backend := cpu.New()

	cfg := nn.DefaultConv2DConfig(1, 1, 2)
	weight := rawOf(t, tensor.Shape{1, 1, 2, 2}, 1, 0, 0, 1)
	bias := rawOf(t, tensor.Shape{1}, 0.5)

	conv, err := nn.Conv2DFromParams(cfg, weight, bias, backend)
	require.NoError(t, err)

	input := fromSlice(t, backend, tensor.Shape{1, 1, 3, 3}, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	out := conv.Forward(input)

	assert.True(t, out.Shape().Equal(tensor.Shape{1, 1, 2, 2}))
	assert.Equal(t, []float32{6.5, 8.5, 12.5, 14.5}, out.Data())
	assert.Equal(t, [2]int{2, 2}, conv.ComputeOutputSize(3, 3))
}

func TestConv2DFromParams_Validation(t *testing.T) {
	backend := cpu.New()
	cfg := nn.DefaultConv2DConfig(3, 3, 3)

	good := rawOf(t, cfg.WeightShape(), make([]float32, 81)...)
	_, err := nn.Conv2DFromParams(cfg, good, nil, backend)
	assert.Error(t, err, "bias=true needs a bias")

	wrong := rawOf(t, tensor.Shape{3, 3, 3, 2}, make([]float32, 54)...)
	_, err = nn.Conv2DFromParams(cfg, wrong, rawOf(t, tensor.Shape{3}, 0, 0, 0), backend)
	assert.ErrorContains(t, err, "shape mismatch")

	noBias := cfg
	noBias.Bias = false
	_, err = nn.Conv2DFromParams(noBias, good, rawOf(t, tensor.Shape{3}, 0, 0, 0), backend)
	assert.Error(t, err)

	conv, err := nn.Conv2DFromParams(noBias, good, nil, backend)
	require.NoError(t, err)
	assert.Len(t, conv.Parameters(), 1)
}

func TestConv2D_Describe(t *testing.T) {
	backend := cpu.New()
	cfg := nn.DefaultConv2DConfig(3, 3, 3)
	cfg.Padding = [2]int{1, 1}
	conv := nn.NewConv2D(cfg, rand.New(rand.NewSource(0)), backend)

	op := conv.Describe()
	assert.Equal(t, "nn.Conv2d", op.Type)
	assert.Equal(t, pnnx.IntsParam(1, 1), op.Params["padding"])
	assert.Equal(t, pnnx.IntsParam(3, 3), op.Params["kernel_size"])
	assert.Equal(t, pnnx.StringParam("zeros"), op.Params["padding_mode"])
	assert.Equal(t, pnnx.BoolParam(true), op.Params["bias"])
	require.Contains(t, op.Attrs, "weight")
	assert.True(t, op.Attrs["weight"].Shape().Equal(tensor.Shape{3, 3, 3, 3}))
}

func TestConv2D_StateDict(t *testing.T) {
	backend := cpu.New()
	cfg := nn.DefaultConv2DConfig(1, 2, 1)
	conv := nn.NewConv2D(cfg, rand.New(rand.NewSource(0)), backend)

	err := conv.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": rawOf(t, tensor.Shape{2, 1, 1, 1}, 3, 4),
		"bias":   rawOf(t, tensor.Shape{2}, 1, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, conv.Weight().Tensor().Data())
	assert.Equal(t, []float32{1, 2}, conv.Bias().Tensor().Data())

	err = conv.LoadStateDict(map[string]*tensor.RawTensor{"weight": rawOf(t, tensor.Shape{2}, 3, 4)})
	assert.Error(t, err)
}

func TestLinear_Forward(t *testing.T) {
	backend := cpu.New()

	weight := rawOf(t, tensor.Shape{2, 3}, 1, 0, 0, 0, 1, 1)
	bias := rawOf(t, tensor.Shape{2}, 10, 20)
	linear, err := nn.LinearFromParams(weight, bias, backend)
	require.NoError(t, err)

	assert.Equal(t, 3, linear.InFeatures())
	assert.Equal(t, 2, linear.OutFeatures())

	input := fromSlice(t, backend, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	out := linear.Forward(input)

	assert.True(t, out.Shape().Equal(tensor.Shape{2, 2}))
	assert.Equal(t, []float32{11, 25, 14, 31}, out.Data())

	assert.Panics(t, func() { linear.Forward(fromSlice(t, backend, tensor.Shape{1, 2}, 1, 2)) })
}

func TestLinear_CreationAndStateDict(t *testing.T) {
	backend := cpu.New()
	linear := nn.NewLinear(12, 4, true, rand.New(rand.NewSource(0)), backend)

	assert.True(t, linear.Weight().Tensor().Shape().Equal(tensor.Shape{4, 12}))
	assert.Len(t, linear.Parameters(), 2)

	sd := linear.StateDict()
	assert.Len(t, sd, 2)

	err := linear.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": rawOf(t, tensor.Shape{12, 4}, make([]float32, 48)...),
		"bias":   rawOf(t, tensor.Shape{4}, 0, 0, 0, 0),
	})
	assert.ErrorContains(t, err, "weight shape mismatch")

	_, err = nn.LinearFromParams(rawOf(t, tensor.Shape{4}, 1, 2, 3, 4), nil, backend)
	assert.Error(t, err)

	op := linear.Describe()
	assert.Equal(t, "nn.Linear", op.Type)
	assert.Equal(t, pnnx.IntParam(12), op.Params["in_features"])
}

func TestActivations(t *testing.T) {
	backend := cpu.New()
	input := fromSlice(t, backend, tensor.Shape{4}, -2, -1, 0, 1)

	relu := nn.NewReLU[*cpu.CPUBackend]()
	assert.Equal(t, []float32{0, 0, 0, 1}, relu.Forward(input).Data())
	assert.Nil(t, relu.Parameters())
	assert.Equal(t, "nn.ReLU", relu.Describe().Type)

	sig := nn.NewSigmoid[*cpu.CPUBackend]()
	out := sig.Forward(input).Data()
	assert.InDelta(t, 0.5, out[2], 1e-6)
	assert.InDelta(t, 1/(1+math.Exp(2)), out[0], 1e-6)
}

func TestMaxPool2D(t *testing.T) {
	backend := cpu.New()

	data := make([]float32, 16)
	for i := range data {
		data[i] = float32(i + 1)
	}
	input := fromSlice(t, backend, tensor.Shape{1, 1, 4, 4}, data...)

	pool := nn.NewMaxPool2D([2]int{2, 2}, [2]int{2, 2}, [2]int{0, 0}, backend)
	out := pool.Forward(input)
	assert.Equal(t, []float32{6, 8, 14, 16}, out.Data())
	assert.Equal(t, [2]int{2, 2}, pool.ComputeOutputSize(4, 4))

	op := pool.Describe()
	assert.Equal(t, "nn.MaxPool2d", op.Type)
	assert.Equal(t, pnnx.BoolParam(false), op.Params["ceil_mode"])

	assert.Panics(t, func() { nn.NewMaxPool2D([2]int{2, 2}, [2]int{2, 2}, [2]int{2, 2}, backend) })
}

func TestAdaptiveAvgPool2D(t *testing.T) {
	backend := cpu.New()

	data := make([]float32, 16)
	for i := range data {
		data[i] = float32(i + 1)
	}
	input := fromSlice(t, backend, tensor.Shape{1, 1, 4, 4}, data...)

	pool := nn.NewAdaptiveAvgPool2D(2, 2, backend)
	assert.Equal(t, []float32{3.5, 5.5, 11.5, 13.5}, pool.Forward(input).Data())
	assert.Equal(t, pnnx.IntsParam(2, 2), pool.Describe().Params["output_size"])
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		start, end int
		in, want   tensor.Shape
	}{
		{1, -1, tensor.Shape{1, 3, 2, 2}, tensor.Shape{1, 12}},
		{2, -1, tensor.Shape{1, 3, 2, 2}, tensor.Shape{1, 3, 4}},
		{1, 3, tensor.Shape{2, 3, 2, 2}, tensor.Shape{2, 12}},
		{0, -1, tensor.Shape{2, 3}, tensor.Shape{6}},
	}

	for _, tt := range tests {
		f := nn.NewFlatten[*cpu.CPUBackend](tt.start, tt.end)
		got, err := f.OutputShape(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := nn.NewFlatten[*cpu.CPUBackend](3, 1).OutputShape(tensor.Shape{1, 2, 3, 4})
	assert.Error(t, err)
	_, err = nn.NewFlatten[*cpu.CPUBackend](1, 4).OutputShape(tensor.Shape{1, 2, 3, 4})
	assert.Error(t, err)

	backend := cpu.New()
	input := fromSlice(t, backend, tensor.Shape{1, 2, 1, 2}, 1, 2, 3, 4)
	out := nn.NewFlatten[*cpu.CPUBackend](1, -1).Forward(input)
	assert.True(t, out.Shape().Equal(tensor.Shape{1, 4}))
	assert.Equal(t, []float32{1, 2, 3, 4}, out.Data())
}

func TestSequential(t *testing.T) {
	backend := cpu.New()

	linear, err := nn.LinearFromParams(rawOf(t, tensor.Shape{2, 2}, 1, 0, 0, -1), nil, backend)
	require.NoError(t, err)

	model := nn.NewSequential[*cpu.CPUBackend](linear, nn.NewReLU[*cpu.CPUBackend]())
	assert.Equal(t, 2, model.Len())

	out := model.Forward(fromSlice(t, backend, tensor.Shape{1, 2}, 3, 4))
	assert.Equal(t, []float32{3, 0}, out.Data())
	assert.Len(t, model.Parameters(), 1)

	sd := model.StateDict()
	require.Contains(t, sd, "0.weight")

	err = model.LoadStateDict(map[string]*tensor.RawTensor{"0.weight": rawOf(t, tensor.Shape{2, 2}, 2, 0, 0, 2)})
	require.NoError(t, err)
	out = model.Forward(fromSlice(t, backend, tensor.Shape{1, 2}, 3, 4))
	assert.Equal(t, []float32{6, 8}, out.Data())

	assert.Panics(t, func() { model.Module(5) })
}
