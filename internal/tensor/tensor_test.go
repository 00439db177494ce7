package tensor_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pnnxgen/internal/backend/cpu"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dtype tensor.DataType
		size  int
	}{
		{tensor.Float32, 4},
		{tensor.Float64, 8},
		{tensor.Float16, 2},
		{tensor.Int32, 4},
		{tensor.Int64, 8},
		{tensor.Int16, 2},
		{tensor.Int8, 1},
		{tensor.Uint8, 1},
		{tensor.Bool, 1},
	}

	for _, tt := range tests {
		if got := tt.dtype.Size(); got != tt.size {
			t.Errorf("%s.Size() = %d, want %d", tt.dtype, got, tt.size)
		}
	}
}

func TestDataTypePNNXCodes(t *testing.T) {
	for _, dt := range []tensor.DataType{
		tensor.Float32, tensor.Float64, tensor.Float16, tensor.Int32,
		tensor.Int64, tensor.Int16, tensor.Int8, tensor.Uint8, tensor.Bool,
	} {
		back, err := tensor.FromPNNXCode(dt.PNNXCode())
		require.NoError(t, err)
		assert.Equal(t, dt, back)

		parsed, err := tensor.ParseDataType(dt.PNNXName())
		require.NoError(t, err)
		assert.Equal(t, dt, parsed)
	}

	assert.Equal(t, 1, tensor.Float32.PNNXCode())
	_, err := tensor.FromPNNXCode(0)
	assert.Error(t, err)
	_, err = tensor.ParseDataType("c64")
	assert.Error(t, err)
}

func TestParseShape(t *testing.T) {
	s, err := tensor.ParseShape("(1,3,4,4)")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3, 4, 4}, s)
	assert.Equal(t, "(1,3,4,4)", s.String())

	s, err = tensor.ParseShape("(?,12)")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{-1, 12}, s)

	_, err = tensor.ParseShape("1,3")
	assert.Error(t, err)
	_, err = tensor.ParseShape("(1,x)")
	assert.Error(t, err)
}

func TestShapeByteSizeOverflow(t *testing.T) {
	n, ok := tensor.Shape{3, 3, 3, 3}.ByteSize(4)
	assert.True(t, ok)
	assert.Equal(t, 324, n)

	_, ok = tensor.Shape{1 << 62}.ByteSize(4)
	assert.False(t, ok)
	assert.Error(t, tensor.Shape{1 << 32, 1 << 32}.Validate())

	_, err := tensor.NewRaw(tensor.Shape{1 << 62}, tensor.Float32, tensor.CPU)
	assert.Error(t, err)
}

func TestBroadcastShapes(t *testing.T) {
	out, needs, err := tensor.BroadcastShapes(tensor.Shape{1, 3, 4, 4}, tensor.Shape{1, 3, 1, 1})
	require.NoError(t, err)
	assert.True(t, needs)
	assert.Equal(t, tensor.Shape{1, 3, 4, 4}, out)

	_, needs, err = tensor.BroadcastShapes(tensor.Shape{2, 2}, tensor.Shape{2, 2})
	require.NoError(t, err)
	assert.False(t, needs)

	_, _, err = tensor.BroadcastShapes(tensor.Shape{3, 4}, tensor.Shape{3, 5})
	assert.Error(t, err)
}

func TestFromBytesCopies(t *testing.T) {
	src := tensor.Float32Bytes([]float32{1, 2, 3})
	raw, err := tensor.FromBytes(tensor.Shape{3}, tensor.Float32, src)
	require.NoError(t, err)

	src[0] = 0xFF
	assert.Equal(t, []float32{1, 2, 3}, raw.AsFloat32())

	_, err = tensor.FromBytes(tensor.Shape{4}, tensor.Float32, tensor.Float32Bytes([]float32{1, 2, 3}))
	assert.Error(t, err)
}

func TestDeepCopyAndView(t *testing.T) {
	raw, err := tensor.FromBytes(tensor.Shape{2, 2}, tensor.Float32, tensor.Float32Bytes([]float32{1, 2, 3, 4}))
	require.NoError(t, err)

	cp := raw.DeepCopy()
	assert.False(t, cp.SharesBuffer(raw))
	cp.AsFloat32()[0] = 9
	assert.Equal(t, float32(1), raw.AsFloat32()[0])

	view, err := raw.WithShape(tensor.Shape{4})
	require.NoError(t, err)
	assert.True(t, view.SharesBuffer(raw))
	assert.Equal(t, tensor.Shape{4}, view.Shape())

	_, err = raw.WithShape(tensor.Shape{3})
	assert.Error(t, err)
}

func TestToFloat32(t *testing.T) {
	half := tensor.Float16FromFloat32([]float32{1.5, -2, 0.25})
	raw, err := tensor.FromBytes(tensor.Shape{3}, tensor.Float16, half)
	require.NoError(t, err)

	f32, err := raw.ToFloat32()
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2, 0.25}, f32.AsFloat32())

	i8, err := tensor.FromBytes(tensor.Shape{2}, tensor.Int8, []byte{0xFF, 0x02})
	require.NoError(t, err)
	f32, err = i8.ToFloat32()
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, 2}, f32.AsFloat32())
}

func TestRandIsSeeded(t *testing.T) {
	backend := cpu.New()

	a := tensor.Rand[float32](tensor.Shape{1, 3, 4, 4}, rand.New(rand.NewSource(0)), backend)
	b := tensor.Rand[float32](tensor.Shape{1, 3, 4, 4}, rand.New(rand.NewSource(0)), backend)
	c := tensor.Rand[float32](tensor.Shape{1, 3, 4, 4}, rand.New(rand.NewSource(1)), backend)

	assert.Equal(t, a.Data(), b.Data())
	assert.NotEqual(t, a.Data(), c.Data())
	for _, v := range a.Data() {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.Less(t, v, float32(1))
	}
}

func TestTensorAtSet(t *testing.T) {
	backend := cpu.New()
	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
	x.Set(5, 1, 2)
	assert.Equal(t, float32(5), x.At(1, 2))
	assert.Equal(t, float32(5), x.Data()[5])

	assert.Panics(t, func() { x.At(2, 0) })
	assert.Panics(t, func() { x.At(0) })
}

func TestTensorOps(t *testing.T) {
	backend := cpu.New()
	a, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)
	b, err := tensor.FromSlice([]float32{10, 20}, tensor.Shape{1, 2}, backend)
	require.NoError(t, err)

	assert.Equal(t, []float32{11, 22, 13, 24}, a.Add(b).Data())
	assert.Equal(t, []float32{10, 40, 30, 80}, a.Mul(b).Data())
	assert.Equal(t, []float32{1, 3, 2, 4}, a.T().Data())
	assert.Equal(t, tensor.Shape{4}, a.Reshape(4).Shape())

	prod := a.MatMul(a)
	assert.InDelta(t, 7, prod.At(0, 0), 1e-6)
	assert.InDelta(t, 22, prod.At(1, 1), 1e-6)

	_, err = tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{2, 2}, backend)
	assert.Error(t, err)
}

func TestFromRawChecksDType(t *testing.T) {
	backend := cpu.New()
	raw, err := tensor.NewRaw(tensor.Shape{2}, tensor.Float64, tensor.CPU)
	require.NoError(t, err)

	_, err = tensor.FromRaw[float32](raw, backend)
	assert.Error(t, err)

	x, err := tensor.FromRaw[float64](raw, backend)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(x.Data()[0]))
}
