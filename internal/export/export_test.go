package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pnnxgen/internal/backend/cpu"
	"github.com/born-ml/pnnxgen/internal/models"
	"github.com/born-ml/pnnxgen/internal/onnx"
	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
	"github.com/born-ml/pnnxgen/internal/trace"
)

func traceModel(t *testing.T, name string) *trace.Trace {
	t.Helper()
	b := cpu.New()
	m, err := models.New(name, 7, b)
	require.NoError(t, err)
	rec := trace.NewRecorder()
	_, err = m.Trace(models.SeededInput(0, b), rec)
	require.NoError(t, err)
	return rec.Trace()
}

func raw(t *testing.T, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	return r
}

// single records in -> d -> out and returns the trace.
func single(t *testing.T, d trace.Describer, inShape, outShape []int) *trace.Trace {
	t.Helper()
	x, y := raw(t, inShape...), raw(t, outShape...)
	rec := trace.NewRecorder()
	rec.Input(x)
	require.NoError(t, rec.Record("op", d, []*tensor.RawTensor{x}, y))
	require.NoError(t, rec.Output(y))
	return rec.Trace()
}

func typed(typ string, params map[string]pnnx.Parameter) trace.Describer {
	return trace.DescriberFunc(func() trace.Op { return trace.Op{Type: typ, Params: params} })
}

func TestONNXModel_TestNet(t *testing.T) {
	m, err := ONNXModel(traceModel(t, models.TestNet), ONNXOptions{GraphName: "test_net"})
	require.NoError(t, err)

	assert.Equal(t, int64(IRVersion), m.IRVersion)
	assert.Equal(t, int64(Opset), m.Opset())
	assert.Equal(t, Producer, m.ProducerName)

	type nodeView struct {
		OpType, Name    string
		Inputs, Outputs []string
	}
	var got []nodeView
	for _, n := range m.Graph.Nodes {
		got = append(got, nodeView{n.OpType, n.Name, n.Inputs, n.Outputs})
	}
	want := []nodeView{
		{"Conv", "conv1", []string{"in0", "conv1.weight", "conv1.bias"}, []string{"1"}},
		{"Conv", "conv2", []string{"1", "conv2.weight", "conv2.bias"}, []string{"2"}},
		{"Add", "pnnx_expr_0", []string{"2", "in0"}, []string{"3"}},
		{"Relu", "relu", []string{"3"}, []string{"4"}},
		{"AveragePool", "avgpool", []string{"4"}, []string{"5"}},
		{"Flatten", "torch.flatten_0", []string{"5"}, []string{"6"}},
		{"Gemm", "linear", []string{"6", "linear.weight", "linear.bias"}, []string{"out0"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}

	conv := &m.Graph.Nodes[0]
	assert.Equal(t, []int64{3, 3}, conv.Attr("kernel_shape").Ints)
	assert.Equal(t, []int64{1, 1, 1, 1}, conv.Attr("pads").Ints)
	assert.Equal(t, int64(1), conv.Attr("group").I)
	assert.Equal(t, []int64{2, 2}, m.Graph.Nodes[4].Attr("kernel_shape").Ints)
	assert.Equal(t, int64(1), m.Graph.Nodes[6].Attr("transB").I)

	require.Len(t, m.Graph.Initializers, 6)
	w, err := m.Graph.Initializer("linear.weight").Raw()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 12}, w.Shape())

	require.Len(t, m.Graph.Inputs, 1)
	require.Len(t, m.Graph.Outputs, 1)
	assert.Equal(t, "in0", m.Graph.Inputs[0].Name)
	assert.Equal(t, tensor.Shape{1, 3, 4, 4}, m.Graph.Inputs[0].Shape())
	assert.Equal(t, tensor.Shape{1, 4}, m.Graph.Outputs[0].Shape())

	var buf bytes.Buffer
	require.NoError(t, ONNX(traceModel(t, models.TestNet), &buf, ONNXOptions{GraphName: "test_net"}))
	decoded, err := onnx.Decode(buf.Bytes())
	require.NoError(t, err)
	if diff := cmp.Diff(m, decoded); diff != "" {
		t.Errorf("decoded model mismatch (-want +got):\n%s", diff)
	}
}

func TestONNXModel_Expression(t *testing.T) {
	x, y := raw(t, 1, 2), raw(t, 1, 2)
	rec := trace.NewRecorder()
	rec.Input(x)
	require.NoError(t, rec.Record("e", trace.Expression("mul(add(@0,@1),@0)"), []*tensor.RawTensor{x, x}, y))
	require.NoError(t, rec.Output(y))

	m, err := ONNXModel(rec.Trace(), ONNXOptions{})
	require.NoError(t, err)
	require.Len(t, m.Graph.Nodes, 2)
	assert.Equal(t, "Add", m.Graph.Nodes[0].OpType)
	assert.Equal(t, []string{"e_0"}, m.Graph.Nodes[0].Outputs)
	assert.Equal(t, "Mul", m.Graph.Nodes[1].OpType)
	assert.Equal(t, []string{"e_0", "in0"}, m.Graph.Nodes[1].Inputs)
	assert.Equal(t, []string{"out0"}, m.Graph.Nodes[1].Outputs)
	assert.Equal(t, "main_graph", m.Graph.Name)
}

func TestONNXModel_Passthrough(t *testing.T) {
	x := raw(t, 1, 3)
	rec := trace.NewRecorder()
	rec.Input(x)
	require.NoError(t, rec.Output(x))

	m, err := ONNXModel(rec.Trace(), ONNXOptions{})
	require.NoError(t, err)
	require.Len(t, m.Graph.Nodes, 1)
	assert.Equal(t, "Identity", m.Graph.Nodes[0].OpType)
	assert.Equal(t, []string{"in0"}, m.Graph.Nodes[0].Inputs)
	assert.Equal(t, []string{"out0"}, m.Graph.Nodes[0].Outputs)
}

func TestONNXModel_Errors(t *testing.T) {
	tests := []struct {
		name    string
		tr      func(t *testing.T) *trace.Trace
		wantErr error
	}{
		{
			name:    "empty trace",
			tr:      func(*testing.T) *trace.Trace { return &trace.Trace{} },
			wantErr: ErrEmptyTrace,
		},
		{
			name: "unknown operator",
			tr: func(t *testing.T) *trace.Trace {
				return single(t, typed("nn.GELU", nil), []int{1, 4}, []int{1, 4})
			},
			wantErr: ErrUnsupported,
		},
		{
			name: "non-divisible adaptive pool",
			tr: func(t *testing.T) *trace.Trace {
				return single(t, typed("nn.AdaptiveAvgPool2d", map[string]pnnx.Parameter{
					"output_size": pnnx.IntsParam(3, 3),
				}), []int{1, 1, 4, 4}, []int{1, 1, 3, 3})
			},
			wantErr: ErrUnsupported,
		},
		{
			name: "flatten from dim 2",
			tr: func(t *testing.T) *trace.Trace {
				return single(t, typed("torch.flatten", map[string]pnnx.Parameter{
					"start_dim": pnnx.IntParam(2), "end_dim": pnnx.IntParam(-1),
				}), []int{1, 2, 3, 3}, []int{1, 2, 9})
			},
			wantErr: ErrUnsupported,
		},
		{
			name: "ceil mode max pool",
			tr: func(t *testing.T) *trace.Trace {
				return single(t, typed("nn.MaxPool2d", map[string]pnnx.Parameter{
					"kernel_size": pnnx.IntsParam(2, 2), "ceil_mode": pnnx.BoolParam(true),
				}), []int{1, 1, 3, 3}, []int{1, 1, 2, 2})
			},
			wantErr: ErrUnsupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ONNXModel(tt.tr(t), ONNXOptions{})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestONNXModel_MaxPoolDefaults(t *testing.T) {
	m, err := ONNXModel(single(t, typed("nn.MaxPool2d", map[string]pnnx.Parameter{
		"kernel_size": pnnx.IntsParam(2, 3),
	}), []int{1, 1, 4, 6}, []int{1, 1, 2, 2}), ONNXOptions{})
	require.NoError(t, err)

	pool := &m.Graph.Nodes[0]
	assert.Equal(t, []int64{2, 3}, pool.Attr("strides").Ints)
	assert.Equal(t, []int64{0, 0, 0, 0}, pool.Attr("pads").Ints)
}

func TestPNNXGraph(t *testing.T) {
	g, err := PNNXGraph(traceModel(t, models.TestNet))
	require.NoError(t, err)

	require.Len(t, g.Operators, 9)
	in := g.Operator("pnnx_input_0")
	require.NotNil(t, in)
	assert.Equal(t, InputName, in.Outputs[0].Name)
	assert.Equal(t, OutputName, g.Operator("pnnx_output_0").Inputs[0].Name)

	// The input feeds conv1 and the residual add.
	assert.Len(t, g.Operand(InputName).Consumers, 2)

	linear := g.Operator("linear")
	require.Contains(t, linear.Attrs, "weight")
	assert.Equal(t, tensor.Shape{4, 12}, linear.Attrs["weight"].Shape)
	assert.Len(t, linear.Attrs["weight"].Data, 4*12*4)
	assert.Equal(t, pnnx.IntParam(12), linear.Params["in_features"])

	descs, err := g.AttrDescriptors()
	require.NoError(t, err)
	assert.Len(t, descs, 6)
}

func TestPNNX_WritesLoadablePair(t *testing.T) {
	dir := t.TempDir()
	param, bin := filepath.Join(dir, "m.pnnx.param"), filepath.Join(dir, "m.pnnx.bin")
	require.NoError(t, PNNX(traceModel(t, models.ConvReLU), param, bin))

	g, err := pnnx.LoadGraph(context.Background(), param, bin)
	require.NoError(t, err)
	conv := g.Operator("conv2")
	require.NotNil(t, conv)
	w, err := conv.Attrs["weight"].Raw()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 3, 3, 3}, w.Shape())
}

func TestRun(t *testing.T) {
	for _, name := range models.Names() {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			res, err := Run(context.Background(), ExportConfig{
				Model:     name,
				OutputDir: dir,
				Seed:      3,
				Verify:    true,
				Version:   "test",
			})
			require.NoError(t, err)
			assert.LessOrEqual(t, res.MaxDiff, DefaultTolerance)

			for _, p := range []string{res.ONNXPath, res.ParamPath, res.BinPath} {
				info, err := os.Stat(p)
				require.NoError(t, err, p)
				assert.Positive(t, info.Size(), p)
			}

			m, err := onnx.ReadFile(res.ONNXPath)
			require.NoError(t, err)
			assert.Equal(t, "test", m.ProducerVersion)
			assert.Equal(t, name, m.Graph.Name)
		})
	}
}

func TestRun_WithWeights(t *testing.T) {
	b := cpu.New()
	m, err := models.New(models.TestNet, 5, b)
	require.NoError(t, err)
	weights := filepath.Join(t.TempDir(), "weights.pnnx.bin")
	require.NoError(t, models.WriteArchive(m, weights))

	ctx := context.Background()
	fromArchive, err := Run(ctx, ExportConfig{
		Model:      models.TestNet,
		Weights:    weights,
		OutputDir:  t.TempDir(),
		Seed:       5,
		Verify:     true,
		Workers:    2,
		ScratchDir: t.TempDir(),
	})
	require.NoError(t, err)

	fromSeed, err := Run(ctx, ExportConfig{Model: models.TestNet, OutputDir: t.TempDir(), Seed: 5})
	require.NoError(t, err)
	assert.Equal(t, fromSeed.Output, fromArchive.Output)
	assert.Len(t, fromArchive.Output, 4)
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Run(ctx, ExportConfig{Model: "alexnet", OutputDir: t.TempDir()})
	require.ErrorIs(t, err, models.ErrUnknownModel)

	_, err = Run(ctx, ExportConfig{
		Model:     models.ConvReLU,
		Weights:   filepath.Join(t.TempDir(), "missing.pnnx.bin"),
		OutputDir: t.TempDir(),
	})
	require.ErrorIs(t, err, pnnx.ErrIO)
}

func TestMaxAbsDiff(t *testing.T) {
	d, err := maxAbsDiff([]float32{1, 2, 3}, []float32{1, 2.5, 2})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)

	_, err = maxAbsDiff([]float32{1}, []float32{1, 2})
	require.ErrorIs(t, err, ErrVerify)
}
