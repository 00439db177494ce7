package nn

import (
	"fmt"

	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
	"github.com/born-ml/pnnxgen/internal/trace"
)

// MaxPool2D is a 2D max pooling layer.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
//	out = (in + 2*padding - kernel) / stride + 1
type MaxPool2D[B tensor.Backend] struct {
	params  tensor.Pool2DParams
	backend B
}

// NewMaxPool2D creates a max pooling layer. Panics on a non-positive kernel
// or stride, or padding wider than half the kernel.
func NewMaxPool2D[B tensor.Backend](kernel, stride, padding [2]int, backend B) *MaxPool2D[B] {
	for i := 0; i < 2; i++ {
		if kernel[i] <= 0 {
			panic(fmt.Sprintf("maxpool2d: invalid kernel size %v", kernel))
		}
		if stride[i] <= 0 {
			panic(fmt.Sprintf("maxpool2d: invalid stride %v", stride))
		}
		if padding[i] < 0 || padding[i]*2 > kernel[i] {
			panic(fmt.Sprintf("maxpool2d: invalid padding %v for kernel %v", padding, kernel))
		}
	}
	return &MaxPool2D[B]{
		params:  tensor.Pool2DParams{Kernel: kernel, Stride: stride, Padding: padding},
		backend: backend,
	}
}

// Forward applies max pooling.
func (m *MaxPool2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if len(input.Shape()) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,C,H,W], got %dD", len(input.Shape())))
	}
	return tensor.New[float32, B](m.backend.MaxPool2D(input.Raw(), m.params), m.backend)
}

// Parameters returns nil.
func (m *MaxPool2D[B]) Parameters() []*Parameter[B] {
	return nil
}

// Params returns the pooling window.
func (m *MaxPool2D[B]) Params() tensor.Pool2DParams {
	return m.params
}

// ComputeOutputSize returns the spatial output size.
func (m *MaxPool2D[B]) ComputeOutputSize(inputH, inputW int) [2]int {
	p := m.params
	return [2]int{
		(inputH+2*p.Padding[0]-p.Kernel[0])/p.Stride[0] + 1,
		(inputW+2*p.Padding[1]-p.Kernel[1])/p.Stride[1] + 1,
	}
}

// Describe implements trace.Describer as nn.MaxPool2d.
func (m *MaxPool2D[B]) Describe() trace.Op {
	return trace.Op{
		Type: "nn.MaxPool2d",
		Params: map[string]pnnx.Parameter{
			"kernel_size":    pnnx.IntsParam(m.params.Kernel[:]...),
			"stride":         pnnx.IntsParam(m.params.Stride[:]...),
			"padding":        pnnx.IntsParam(m.params.Padding[:]...),
			"dilation":       pnnx.IntsParam(1, 1),
			"ceil_mode":      pnnx.BoolParam(false),
			"return_indices": pnnx.BoolParam(false),
		},
	}
}

func (m *MaxPool2D[B]) String() string {
	return fmt.Sprintf("MaxPool2D(kernel_size=%v, stride=%v, padding=%v)", m.params.Kernel, m.params.Stride, m.params.Padding)
}

// AdaptiveAvgPool2D averages each channel into a fixed outH x outW grid.
type AdaptiveAvgPool2D[B tensor.Backend] struct {
	outH, outW int
	backend    B
}

// NewAdaptiveAvgPool2D creates an adaptive average pooling layer.
func NewAdaptiveAvgPool2D[B tensor.Backend](outH, outW int, backend B) *AdaptiveAvgPool2D[B] {
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("adaptive_avgpool2d: invalid output size %dx%d", outH, outW))
	}
	return &AdaptiveAvgPool2D[B]{outH: outH, outW: outW, backend: backend}
}

// Forward applies adaptive average pooling.
func (a *AdaptiveAvgPool2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if len(input.Shape()) != 4 {
		panic(fmt.Sprintf("adaptive_avgpool2d: expected 4D input [N,C,H,W], got %dD", len(input.Shape())))
	}
	return tensor.New[float32, B](a.backend.AdaptiveAvgPool2D(input.Raw(), a.outH, a.outW), a.backend)
}

// Parameters returns nil.
func (a *AdaptiveAvgPool2D[B]) Parameters() []*Parameter[B] {
	return nil
}

// OutputSize returns the target grid.
func (a *AdaptiveAvgPool2D[B]) OutputSize() [2]int {
	return [2]int{a.outH, a.outW}
}

// Describe implements trace.Describer as nn.AdaptiveAvgPool2d.
func (a *AdaptiveAvgPool2D[B]) Describe() trace.Op {
	return trace.Op{
		Type:   "nn.AdaptiveAvgPool2d",
		Params: map[string]pnnx.Parameter{"output_size": pnnx.IntsParam(a.outH, a.outW)},
	}
}
