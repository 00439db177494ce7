package runtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pnnxgen/internal/backend/cpu"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

func TestParseExpression(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@0", "@0"},
		{"add(@0,@1)", "add(@0,@1)"},
		{"  mul(@1, @0)", "mul(@1,@0)"},
		{"add(mul(@0,@1),@2)", "add(mul(@0,@1),@2)"},
		{"add(@0,add(@0,@12))", "add(@0,add(@0,@12))"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			root, err := ParseExpression(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, root.String())
		})
	}
}

func TestParseExpression_Errors(t *testing.T) {
	tests := []struct {
		in      string
		wantPos int
	}{
		{"", 0},
		{"add", 3},
		{"add(@0)", 6},
		{"add(@0,@1", 9},
		{"add(@0,@1))", 10},
		{"sub(@0,@1)", 0},
		{"add(@,@1)", 4},
		{"add(@0;@1)", 6},
		{"(@0)", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseExpression(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidExpression))

			var exprErr *ExprError
			require.ErrorAs(t, err, &exprErr)
			assert.Equal(t, tt.wantPos, exprErr.Pos, exprErr.Msg)
		})
	}
}

func TestReversePolish(t *testing.T) {
	root, err := ParseExpression("add(mul(@0,@1),@2)")
	require.NoError(t, err)

	rpn := ReversePolish(root)
	got := make([]string, len(rpn))
	for i, n := range rpn {
		if n.Kind == ExprInput {
			got[i] = n.String()
		} else {
			got[i] = n.Kind.String()
		}
	}
	assert.Equal(t, []string{"@0", "@1", "mul", "@2", "add"}, got)
	assert.Equal(t, 2, maxIndex(rpn))
	assert.Nil(t, ReversePolish(nil))
}

func TestExpressionLayer(t *testing.T) {
	b := cpu.New()
	shape := tensor.Shape{1, 1, 2, 2}
	in := func(v ...float32) *tensor.Tensor[float32, *cpu.CPUBackend] {
		x, err := tensor.FromSlice(v, shape, b)
		require.NoError(t, err)
		return x
	}
	a := in(1, 2, 3, 4)
	c := in(10, 20, 30, 40)
	d := in(2, 2, 2, 2)

	l, err := newExpressionLayer("mul(add(@0,@1),@2)", b)
	require.NoError(t, err)
	out, err := l.Forward([]*tensor.Tensor[float32, *cpu.CPUBackend]{a, c, d})
	require.NoError(t, err)
	assert.Equal(t, []float32{22, 44, 66, 88}, out.Data())
	assert.Equal(t, []float32{1, 2, 3, 4}, a.Data(), "inputs must not change")

	_, err = l.Forward([]*tensor.Tensor[float32, *cpu.CPUBackend]{a, c})
	require.ErrorIs(t, err, ErrArity)

	mismatch := tensor.Zeros[float32](tensor.Shape{1, 3, 2, 2}, b)
	l, err = newExpressionLayer("add(@0,@1)", b)
	require.NoError(t, err)
	_, err = l.Forward([]*tensor.Tensor[float32, *cpu.CPUBackend]{mismatch, tensor.Zeros[float32](tensor.Shape{1, 2, 2, 2}, b)})
	require.ErrorIs(t, err, ErrLayerFailed)
}
