package trace

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

func raw(t *testing.T, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	return r
}

type fakeConv struct{ weight *tensor.RawTensor }

func (f fakeConv) Describe() Op {
	return Op{
		Type:   "nn.Conv2d",
		Params: map[string]pnnx.Parameter{"groups": pnnx.IntParam(1)},
		Attrs:  map[string]*tensor.RawTensor{"weight": f.weight},
	}
}

func TestRecorder(t *testing.T) {
	x := raw(t, 1, 3, 4, 4)
	c := raw(t, 1, 3, 4, 4)
	s := raw(t, 1, 3, 4, 4)
	w := raw(t, 3, 3, 3, 3)

	rec := NewRecorder()
	rec.Input(x)
	require.NoError(t, rec.Record("conv1", fakeConv{weight: w}, []*tensor.RawTensor{x}, c))
	require.NoError(t, rec.Record("pnnx_expr_0", Expression("add(@0,@1)"), []*tensor.RawTensor{c, x}, s))
	require.NoError(t, rec.Output(s))

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
		{pnnx.OpInput, "pnnx_input_0", nil, []string{"0"}},
		{"nn.Conv2d", "conv1", []string{"0"}, []string{"1"}},
		{pnnx.OpExpression, "pnnx_expr_0", []string{"1", "0"}, []string{"2"}},
		{pnnx.OpOutput, "pnnx_output_0", []string{"2"}, nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, tr.Operands, 3)
	assert.Equal(t, tensor.Shape{1, 3, 4, 4}, tr.Operand("2").Shape)
	assert.Equal(t, tensor.Float32, tr.Operand("2").DType)
	assert.Nil(t, tr.Operand("3"))

	assert.Same(t, w, tr.Nodes[1].Attrs["weight"])
	assert.Equal(t, pnnx.IntParam(1), tr.Nodes[1].Params["groups"])
	assert.Equal(t, "add(@0,@1)", tr.Nodes[2].Params["expr"].S)

	require.Len(t, tr.Inputs(), 1)
	require.Len(t, tr.Outputs(), 1)
	assert.Equal(t, "pnnx_output_0", tr.Outputs()[0].Name)
}

func TestRecorder_UnknownTensor(t *testing.T) {
	rec := NewRecorder()
	x := raw(t, 1, 4)
	rec.Input(x)

	err := rec.Record("relu", DescriberFunc(func() Op { return Op{Type: "nn.ReLU"} }),
		[]*tensor.RawTensor{raw(t, 1, 4)}, raw(t, 1, 4))
	require.ErrorIs(t, err, ErrUnknownTensor)
	assert.Contains(t, err.Error(), "relu input 0")

	require.ErrorIs(t, rec.Output(raw(t, 1, 4)), ErrUnknownTensor)
	assert.Len(t, rec.Trace().Nodes, 1)
}

func TestRecorder_ShapeSnapshot(t *testing.T) {
	x := raw(t, 2, 3)
	rec := NewRecorder()
	rec.Input(x)

	shape := x.Shape()
	shape[0] = 99
	assert.Equal(t, tensor.Shape{2, 3}, rec.Trace().Operand("0").Shape)
}
