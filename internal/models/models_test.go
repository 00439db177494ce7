package models

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pnnxgen/internal/backend/cpu"
	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
	"github.com/born-ml/pnnxgen/internal/trace"
)

type backend = *cpu.CPUBackend

// writeEntries writes an archive holding exactly entries.
func writeEntries(t *testing.T, entries map[string][]float32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weights.pnnx.bin")
	w, err := pnnx.CreateArchive(path)
	require.NoError(t, err)
	for k, v := range entries {
		require.NoError(t, w.AddBytes(k, tensor.Float32Bytes(v)))
	}
	require.NoError(t, w.Close())
	return path
}

// constEntries returns every descriptor of a model filled with fn(key, i).
func constEntries(t *testing.T, name string, fn func(key string, i int) float32) map[string][]float32 {
	t.Helper()
	descs, err := Descriptors(name)
	require.NoError(t, err)
	entries := make(map[string][]float32)
	for _, d := range descs {
		v := make([]float32, d.Shape.NumElements())
		for i := range v {
			v[i] = fn(d.Key, i)
		}
		entries[d.Key] = v
	}
	return entries
}

func TestDescriptors(t *testing.T) {
	descs, err := Descriptors(TestNet)
	require.NoError(t, err)

	got := make([]string, len(descs))
	for i, d := range descs {
		got[i] = d.String()
	}
	want := []string{
		"conv1.bias=(3)f32",
		"conv1.weight=(3,3,3,3)f32",
		"conv2.bias=(3)f32",
		"conv2.weight=(3,3,3,3)f32",
		"linear.bias=(4)f32",
		"linear.weight=(4,12)f32",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("descriptors mismatch (-want +got):\n%s", diff)
	}

	descs, err = Descriptors(ConvReLU)
	require.NoError(t, err)
	assert.Len(t, descs, 4)

	_, err = Descriptors("resnet")
	require.ErrorIs(t, err, ErrUnknownModel)
	assert.Equal(t, []string{ConvReLU, TestNet}, Names())
}

func TestOpen_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b := cpu.New()

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			orig, err := New(name, 42, b)
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), name+".pnnx.bin")
			require.NoError(t, WriteArchive(orig, path))

			loaded, err := Open(ctx, name, path, b)
			require.NoError(t, err)
			assert.Equal(t, name, loaded.Name())

			x := SeededInput(0, b)
			assert.Equal(t, orig.Forward(x).Data(), loaded.Forward(x).Data())

			for k, v := range orig.StateDict() {
				got := loaded.StateDict()[k]
				require.NotNil(t, got, k)
				assert.Equal(t, v.AsFloat32(), got.AsFloat32(), k)
			}
		})
	}
}

func TestForward_Deterministic(t *testing.T) {
	ctx := context.Background()
	b := cpu.New()
	path := writeEntries(t, constEntries(t, TestNet, func(key string, i int) float32 {
		return float32((i*7+len(key))%11-5) / 10
	}))

	tests := []struct {
		name      string
		wantShape tensor.Shape
	}{
		{ConvReLU, tensor.Shape{1, 3, 4, 4}},
		{TestNet, tensor.Shape{1, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// conv_relu ignores the linear entries of the archive.
			m1, err := Open(ctx, tt.name, path, b)
			require.NoError(t, err)
			m2, err := Open(ctx, tt.name, path, b)
			require.NoError(t, err)

			out1 := m1.Forward(SeededInput(0, b))
			out2 := m2.Forward(SeededInput(0, b))
			assert.Equal(t, tt.wantShape, out1.Shape())
			assert.Equal(t, out1.Data(), out2.Data())

			other := m1.Forward(SeededInput(1, b))
			assert.NotEqual(t, out1.Data(), other.Data())
		})
	}
}

func TestConvReLU_IdentityKernels(t *testing.T) {
	b := cpu.New()
	// Each output channel copies its own input channel through the centre tap.
	entries := constEntries(t, ConvReLU, func(key string, i int) float32 {
		if key == "conv1.bias" || key == "conv2.bias" {
			return 0
		}
		oc, ic, kh, kw := i/27, i/9%3, i/3%3, i%3
		if oc == ic && kh == 1 && kw == 1 {
			return 1
		}
		return 0
	})
	m, err := Open(context.Background(), ConvReLU, writeEntries(t, entries), b)
	require.NoError(t, err)

	x := SeededInput(0, b)
	assert.InDeltaSlice(t, x.Data(), m.Forward(x).Data(), 1e-6)
}

func TestTestNet_ZeroWeights(t *testing.T) {
	b := cpu.New()
	entries := constEntries(t, TestNet, func(key string, _ int) float32 {
		if key == "linear.bias" {
			return 0.5
		}
		return 0
	})
	m, err := Open(context.Background(), TestNet, writeEntries(t, entries), b)
	require.NoError(t, err)

	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, m.Forward(SeededInput(3, b)).Data())
}

func TestBuild_Failures(t *testing.T) {
	ctx := context.Background()
	b := cpu.New()

	t.Run("missing key", func(t *testing.T) {
		entries := constEntries(t, TestNet, func(string, int) float32 { return 1 })
		delete(entries, "linear.bias")
		m, err := Open(ctx, TestNet, writeEntries(t, entries), b)
		require.ErrorIs(t, err, pnnx.ErrKeyNotFound)
		assert.Nil(t, m)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		entries := constEntries(t, ConvReLU, func(string, int) float32 { return 1 })
		entries["conv2.weight"] = entries["conv2.weight"][:26]
		m, err := Open(ctx, ConvReLU, writeEntries(t, entries), b)
		require.ErrorIs(t, err, pnnx.ErrShapeMismatch)
		assert.Nil(t, m)
	})

	t.Run("missing archive", func(t *testing.T) {
		m, err := Open(ctx, ConvReLU, filepath.Join(t.TempDir(), "none.pnnx.bin"), b)
		require.ErrorIs(t, err, pnnx.ErrIO)
		assert.Nil(t, m)
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := Open(ctx, "vgg", "unused.pnnx.bin", b)
		require.ErrorIs(t, err, ErrUnknownModel)
		_, err = New("vgg", 0, b)
		require.ErrorIs(t, err, ErrUnknownModel)
	})

	t.Run("canceled", func(t *testing.T) {
		path := writeEntries(t, constEntries(t, ConvReLU, func(string, int) float32 { return 1 }))
		a, err := pnnx.OpenArchive(path)
		require.NoError(t, err)
		defer a.Close()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		m, err := Build(cctx, ConvReLU, a, b)
		require.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, m)
	})
}

func TestTrace_TestNet(t *testing.T) {
	b := cpu.New()
	m, err := New(TestNet, 1, b)
	require.NoError(t, err)

	x := SeededInput(0, b)
	rec := trace.NewRecorder()
	out, err := m.Trace(x, rec)
	require.NoError(t, err)
	assert.Equal(t, m.Forward(x).Data(), out.Data())

	tr := rec.Trace()
	type nodeView struct {
		Type, Name      string
		Inputs, Outputs []string
	}
	got := make([]nodeView, len(tr.Nodes))
	for i, n := range tr.Nodes {
		got[i] = nodeView{n.Type, n.Name, n.Inputs, n.Outputs}
	}
	want := []nodeView{
		{"pnnx.Input", "pnnx_input_0", nil, []string{"0"}},
		{"nn.Conv2d", "conv1", []string{"0"}, []string{"1"}},
		{"nn.Conv2d", "conv2", []string{"1"}, []string{"2"}},
		{"pnnx.Expression", "pnnx_expr_0", []string{"2", "0"}, []string{"3"}},
		{"nn.ReLU", "relu", []string{"3"}, []string{"4"}},
		{"nn.AdaptiveAvgPool2d", "avgpool", []string{"4"}, []string{"5"}},
		{"torch.flatten", "torch.flatten_0", []string{"5"}, []string{"6"}},
		{"nn.Linear", "linear", []string{"6"}, []string{"7"}},
		{"pnnx.Output", "pnnx_output_0", []string{"7"}, nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, tensor.Shape{1, 3, 2, 2}, tr.Operand("5").Shape)
	assert.Equal(t, tensor.Shape{1, 12}, tr.Operand("6").Shape)
	assert.Contains(t, tr.Nodes[7].Attrs, "weight")
	assert.Contains(t, tr.Nodes[7].Attrs, "bias")
}

func TestTrace_ConvReLU(t *testing.T) {
	b := cpu.New()
	m, err := New(ConvReLU, 1, b)
	require.NoError(t, err)

	rec := trace.NewRecorder()
	_, err = m.Trace(SeededInput(0, b), rec)
	require.NoError(t, err)

	var types []string
	for _, n := range rec.Trace().Nodes {
		types = append(types, n.Type)
	}
	assert.Equal(t, []string{"pnnx.Input", "nn.Conv2d", "nn.Conv2d", "nn.ReLU", "pnnx.Output"}, types)
}

func TestSeededInput(t *testing.T) {
	b := cpu.New()
	a := SeededInput(0, b)
	assert.Equal(t, InputShape, a.Shape())
	assert.Equal(t, a.Data(), SeededInput(0, b).Data())
	assert.NotEqual(t, a.Data(), SeededInput(1, b).Data())
	for _, v := range a.Data() {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.Less(t, v, float32(1))
	}
}
