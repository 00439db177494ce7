package tensor

// Conv2DParams describes the geometry of a 2D convolution.
// Index 0 is the height axis and index 1 the width axis.
type Conv2DParams struct {
	Stride   [2]int
	Padding  [2]int
	Dilation [2]int
	Groups   int
}

// DefaultConv2DParams returns stride 1, no padding, no dilation, one group.
func DefaultConv2DParams() Conv2DParams {
	return Conv2DParams{
		Stride:   [2]int{1, 1},
		Dilation: [2]int{1, 1},
		Groups:   1,
	}
}

// Pool2DParams describes a 2D pooling window.
type Pool2DParams struct {
	Kernel  [2]int
	Stride  [2]int
	Padding [2]int
}

// Backend defines the interface that compute backends implement.
// Backends panic on invalid shapes; callers that need errors validate first.
type Backend interface {
	// Element-wise binary operations with broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// MatMul multiplies 2D matrices: (M, K) @ (K, N) -> (M, N).
	MatMul(a, b *RawTensor) *RawTensor

	// Convolution and pooling over [N, C, H, W] inputs.
	Conv2D(input, kernel *RawTensor, params Conv2DParams) *RawTensor
	MaxPool2D(input *RawTensor, params Pool2DParams) *RawTensor
	AdaptiveAvgPool2D(input *RawTensor, outH, outW int) *RawTensor

	// Activations.
	ReLU(x *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
