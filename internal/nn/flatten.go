package nn

import (
	"fmt"

	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
	"github.com/born-ml/pnnxgen/internal/trace"
)

// Flatten merges dimensions startDim..endDim (inclusive) into one.
// Negative dims count from the end, so Flatten(1, -1) turns [N,C,H,W] into
// [N, C*H*W] and Flatten(2, -1) into [N, C, H*W].
type Flatten[B tensor.Backend] struct {
	startDim, endDim int
}

// NewFlatten creates a flatten layer.
func NewFlatten[B tensor.Backend](startDim, endDim int) *Flatten[B] {
	return &Flatten[B]{startDim: startDim, endDim: endDim}
}

// OutputShape returns the flattened shape, or an error if the dims are out
// of range for shape.
func (f *Flatten[B]) OutputShape(shape tensor.Shape) (tensor.Shape, error) {
	rank := len(shape)
	start, end := f.startDim, f.endDim
	if start < 0 {
		start += rank
	}
	if end < 0 {
		end += rank
	}
	if start < 0 || end >= rank || start > end {
		return nil, fmt.Errorf("flatten: dims (%d,%d) out of range for rank %d", f.startDim, f.endDim, rank)
	}

	out := make(tensor.Shape, 0, rank-(end-start))
	out = append(out, shape[:start]...)
	merged := 1
	for _, d := range shape[start : end+1] {
		merged *= d
	}
	out = append(out, merged)
	out = append(out, shape[end+1:]...)
	return out, nil
}

// Forward reshapes the input.
func (f *Flatten[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape, err := f.OutputShape(input.Shape())
	if err != nil {
		panic(err.Error())
	}
	return input.Reshape(shape...)
}

// Parameters returns nil.
func (f *Flatten[B]) Parameters() []*Parameter[B] {
	return nil
}

// Dims returns the start and end dims as configured.
func (f *Flatten[B]) Dims() (int, int) {
	return f.startDim, f.endDim
}

// Describe implements trace.Describer as torch.flatten.
func (f *Flatten[B]) Describe() trace.Op {
	return trace.Op{
		Type: "torch.flatten",
		Params: map[string]pnnx.Parameter{
			"start_dim": pnnx.IntParam(f.startDim),
			"end_dim":   pnnx.IntParam(f.endDim),
		},
	}
}
