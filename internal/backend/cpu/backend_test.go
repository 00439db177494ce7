package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pnnxgen/internal/parallel"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

// rawF32 builds a float32 tensor of the given shape from data.
func rawF32(t *testing.T, shape tensor.Shape, data ...float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), data)
	return raw
}

// seq returns [1, 2, ..., n].
func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i + 1)
	}
	return out
}

func TestCPUBackend_New(t *testing.T) {
	backend := New()
	require.NotNil(t, backend)
	assert.Equal(t, "CPU", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())
}

func TestCPUBackend_Add(t *testing.T) {
	backend := New()

	a := rawF32(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	b := rawF32(t, tensor.Shape{2, 2}, 10, 20, 30, 40)

	out := backend.Add(a, b)
	assert.Equal(t, []float32{11, 22, 33, 44}, out.AsFloat32())

	// Inputs are left untouched.
	assert.Equal(t, []float32{1, 2, 3, 4}, a.AsFloat32())
	assert.False(t, out.SharesBuffer(a))
}

func TestCPUBackend_AddBroadcast(t *testing.T) {
	backend := New()

	a := rawF32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	bias := rawF32(t, tensor.Shape{3}, 10, 20, 30)

	out := backend.Add(a, bias)
	assert.True(t, out.Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.AsFloat32())

	col := rawF32(t, tensor.Shape{2, 1}, 100, 200)
	out = backend.Add(a, col)
	assert.Equal(t, []float32{101, 102, 103, 204, 205, 206}, out.AsFloat32())
}

func TestCPUBackend_Mul(t *testing.T) {
	backend := New()

	a := rawF32(t, tensor.Shape{3}, 1, 2, 3)
	b := rawF32(t, tensor.Shape{3}, 2, 3, 4)
	assert.Equal(t, []float32{2, 6, 12}, backend.Mul(a, b).AsFloat32())
}

func TestCPUBackend_AddFloat64(t *testing.T) {
	backend := New()

	a, err := tensor.NewRaw(tensor.Shape{2}, tensor.Float64, tensor.CPU)
	require.NoError(t, err)
	copy(a.AsFloat64(), []float64{0.5, 1.5})

	out := backend.Add(a, a)
	assert.Equal(t, []float64{1, 3}, out.AsFloat64())
}

func TestCPUBackend_BinaryPanics(t *testing.T) {
	backend := New()

	a := rawF32(t, tensor.Shape{2, 3}, seq(6)...)
	b := rawF32(t, tensor.Shape{4}, seq(4)...)
	assert.Panics(t, func() { backend.Add(a, b) })

	i32, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	assert.Panics(t, func() { backend.Add(a, i32) })
	assert.Panics(t, func() { backend.Mul(i32, i32) })
}

func TestCPUBackend_MatMul(t *testing.T) {
	backend := New()

	a := rawF32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	b := rawF32(t, tensor.Shape{3, 2}, 7, 8, 9, 10, 11, 12)

	out := backend.MatMul(a, b)
	assert.True(t, out.Shape().Equal(tensor.Shape{2, 2}))
	assert.Equal(t, []float32{58, 64, 139, 154}, out.AsFloat32())

	assert.Panics(t, func() { backend.MatMul(a, a) })
}

func TestCPUBackend_Reshape(t *testing.T) {
	backend := New()

	a := rawF32(t, tensor.Shape{2, 3}, seq(6)...)
	out := backend.Reshape(a, tensor.Shape{3, 2})

	assert.True(t, out.Shape().Equal(tensor.Shape{3, 2}))
	assert.Equal(t, seq(6), out.AsFloat32())
	assert.False(t, out.SharesBuffer(a))

	assert.Panics(t, func() { backend.Reshape(a, tensor.Shape{4, 2}) })
}

func TestCPUBackend_Transpose(t *testing.T) {
	backend := New()

	a := rawF32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	out := backend.Transpose(a)
	assert.True(t, out.Shape().Equal(tensor.Shape{3, 2}))
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.AsFloat32())

	// [1,2,2] -> permute (2,0,1)
	c := rawF32(t, tensor.Shape{1, 2, 2}, 1, 2, 3, 4)
	out = backend.Transpose(c, 2, 0, 1)
	assert.True(t, out.Shape().Equal(tensor.Shape{2, 1, 2}))
	assert.Equal(t, []float32{1, 3, 2, 4}, out.AsFloat32())

	assert.Panics(t, func() { backend.Transpose(a, 0, 0) })
	assert.Panics(t, func() { backend.Transpose(a, 0) })
}

func TestCPUBackend_Activations(t *testing.T) {
	backend := New()

	x := rawF32(t, tensor.Shape{4}, -2, -0.5, 0, 3)
	assert.Equal(t, []float32{0, 0, 0, 3}, backend.ReLU(x).AsFloat32())

	sig := backend.Sigmoid(rawF32(t, tensor.Shape{1}, 0)).AsFloat32()
	assert.InDelta(t, 0.5, sig[0], 1e-7)

	// ReLU does not write into its input.
	assert.Equal(t, float32(-2), x.AsFloat32()[0])
}

func TestCPUBackend_ParallelConfigMatchesSequential(t *testing.T) {
	seqBackend := New(WithParallel(parallel.Config{Enabled: false}))
	parBackend := New(WithParallel(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}))

	input := rawF32(t, tensor.Shape{2, 4, 6, 6}, seq(2*4*6*6)...)
	kernel := rawF32(t, tensor.Shape{6, 2, 3, 3}, seq(6*2*3*3)...)
	params := tensor.Conv2DParams{Stride: [2]int{1, 1}, Padding: [2]int{1, 1}, Dilation: [2]int{1, 1}, Groups: 2}

	want := seqBackend.Conv2D(input, kernel, params).AsFloat32()
	got := parBackend.Conv2D(input, kernel, params).AsFloat32()
	assert.Equal(t, want, got)
}
