// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand"

	"github.com/born-ml/pnnxgen/internal/nn"
	"github.com/born-ml/pnnxgen/tensor"
)

// Module is the interface every layer implements.
type Module[B tensor.Backend] = nn.Module[B]

// StateDicter is implemented by layers whose weights can be exported and
// replaced by name.
type StateDicter = nn.StateDicter

// Parameter is a named weight tensor.
//
// Parameter is an alias rather than an interface because it appears in the
// Module method set, which must match exactly.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// ParameterFromRaw binds a loaded float32 weight to backend without
// copying it.
func ParameterFromRaw[B tensor.Backend](name string, raw *tensor.RawTensor, backend B) (*Parameter[B], error) {
	return nn.ParameterFromRaw(name, raw, backend)
}

// Layers

// Conv2DConfig describes a convolution in PyTorch terms.
type Conv2DConfig = nn.Conv2DConfig

// DefaultConv2DConfig returns stride 1, no padding, dilation 1, one group
// and a bias.
func DefaultConv2DConfig(in, out, kernel int) Conv2DConfig {
	return nn.DefaultConv2DConfig(in, out, kernel)
}

// Conv2D represents a 2D convolutional layer.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a convolution with Xavier-initialized weights drawn from
// rng and a zero bias.
//
// Example:
//
//	cfg := nn.DefaultConv2DConfig(3, 3, 3)
//	cfg.Padding = [2]int{1, 1}
//	conv := nn.NewConv2D(cfg, rand.New(rand.NewSource(0)), cpu.New())
func NewConv2D[B tensor.Backend](cfg Conv2DConfig, rng *rand.Rand, backend B) *Conv2D[B] {
	return nn.NewConv2D(cfg, rng, backend)
}

// Conv2DFromParams builds a convolution around loaded weights without
// initializing anything. bias may be nil when cfg.Bias is false.
func Conv2DFromParams[B tensor.Backend](cfg Conv2DConfig, weight, bias *tensor.RawTensor, backend B) (*Conv2D[B], error) {
	return nn.Conv2DFromParams(cfg, weight, bias, backend)
}

// Linear represents a fully connected layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a linear layer with Xavier initialization.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, useBias bool, rng *rand.Rand, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, useBias, rng, backend)
}

// LinearFromParams builds a linear layer around a loaded [out, in] weight.
func LinearFromParams[B tensor.Backend](weight, bias *tensor.RawTensor, backend B) (*Linear[B], error) {
	return nn.LinearFromParams(weight, bias, backend)
}

// MaxPool2D represents a 2D max pooling layer.
type MaxPool2D[B tensor.Backend] = nn.MaxPool2D[B]

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D[B tensor.Backend](kernel, stride, padding [2]int, backend B) *MaxPool2D[B] {
	return nn.NewMaxPool2D(kernel, stride, padding, backend)
}

// AdaptiveAvgPool2D averages each channel into a fixed grid.
type AdaptiveAvgPool2D[B tensor.Backend] = nn.AdaptiveAvgPool2D[B]

// NewAdaptiveAvgPool2D creates an adaptive average pooling layer.
func NewAdaptiveAvgPool2D[B tensor.Backend](outH, outW int, backend B) *AdaptiveAvgPool2D[B] {
	return nn.NewAdaptiveAvgPool2D(outH, outW, backend)
}

// Flatten merges dimensions startDim..endDim.
type Flatten[B tensor.Backend] = nn.Flatten[B]

// NewFlatten creates a flatten layer; endDim may be -1.
func NewFlatten[B tensor.Backend](startDim, endDim int) *Flatten[B] {
	return nn.NewFlatten[B](startDim, endDim)
}

// Activation functions

// ReLU applies max(0, x) element-wise.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// Sigmoid applies 1 / (1 + exp(-x)) element-wise.
type Sigmoid[B tensor.Backend] = nn.Sigmoid[B]

// NewSigmoid creates a Sigmoid activation.
func NewSigmoid[B tensor.Backend]() *Sigmoid[B] {
	return nn.NewSigmoid[B]()
}

// Containers

// Sequential runs modules in order.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a container of modules.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// Initialization

// Xavier returns a Glorot-uniform tensor drawn from rng.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	return nn.Xavier(fanIn, fanOut, shape, rng, backend)
}
