package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
	"github.com/born-ml/pnnxgen/internal/trace"
)

// Conv2DConfig holds the geometry of a 2D convolution.
type Conv2DConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  [2]int
	Stride      [2]int
	Padding     [2]int
	Dilation    [2]int
	Groups      int
	Bias        bool
}

// DefaultConv2DConfig returns a stride 1, unpadded, biased convolution.
func DefaultConv2DConfig(in, out, kernel int) Conv2DConfig {
	return Conv2DConfig{
		InChannels:  in,
		OutChannels: out,
		KernelSize:  [2]int{kernel, kernel},
		Stride:      [2]int{1, 1},
		Dilation:    [2]int{1, 1},
		Groups:      1,
		Bias:        true,
	}
}

// Validate checks the configuration.
func (c Conv2DConfig) Validate() error {
	if c.InChannels <= 0 || c.OutChannels <= 0 {
		return fmt.Errorf("invalid channels in=%d, out=%d", c.InChannels, c.OutChannels)
	}
	if c.Groups <= 0 || c.InChannels%c.Groups != 0 || c.OutChannels%c.Groups != 0 {
		return fmt.Errorf("groups %d must divide in=%d and out=%d", c.Groups, c.InChannels, c.OutChannels)
	}
	for i := 0; i < 2; i++ {
		if c.KernelSize[i] <= 0 {
			return fmt.Errorf("invalid kernel size %v", c.KernelSize)
		}
		if c.Stride[i] <= 0 {
			return fmt.Errorf("invalid stride %v", c.Stride)
		}
		if c.Padding[i] < 0 {
			return fmt.Errorf("invalid padding %v", c.Padding)
		}
		if c.Dilation[i] <= 0 {
			return fmt.Errorf("invalid dilation %v", c.Dilation)
		}
	}
	return nil
}

// WeightShape returns [out_channels, in_channels/groups, kernel_h, kernel_w].
func (c Conv2DConfig) WeightShape() tensor.Shape {
	return tensor.Shape{c.OutChannels, c.InChannels / c.Groups, c.KernelSize[0], c.KernelSize[1]}
}

func (c Conv2DConfig) params() tensor.Conv2DParams {
	return tensor.Conv2DParams{Stride: c.Stride, Padding: c.Padding, Dilation: c.Dilation, Groups: c.Groups}
}

// Conv2D is a 2D convolutional layer.
//
// Input shape:  [batch, in_channels, height, width]
// Output shape: [batch, out_channels, out_height, out_width]
//
// Example:
//
//	conv := nn.NewConv2D(nn.DefaultConv2DConfig(3, 3, 3), rng, backend)
//	output := conv.Forward(input)
type Conv2D[B tensor.Backend] struct {
	cfg Conv2DConfig

	weight *Parameter[B] // [out_channels, in_channels/groups, kernel_h, kernel_w]
	bias   *Parameter[B] // [out_channels] or nil

	backend B
}

// NewConv2D creates a Conv2D layer with Xavier-initialized weights drawn
// from rng and zero bias. Panics on an invalid configuration.
func NewConv2D[B tensor.Backend](cfg Conv2DConfig, rng *rand.Rand, backend B) *Conv2D[B] {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("conv2d: %v", err))
	}

	kernelArea := cfg.KernelSize[0] * cfg.KernelSize[1]
	fanIn := cfg.InChannels / cfg.Groups * kernelArea
	fanOut := cfg.OutChannels / cfg.Groups * kernelArea

	c := &Conv2D[B]{
		cfg:     cfg,
		weight:  NewParameter("weight", Xavier(fanIn, fanOut, cfg.WeightShape(), rng, backend)),
		backend: backend,
	}
	if cfg.Bias {
		c.bias = NewParameter("bias", Zeros(tensor.Shape{cfg.OutChannels}, backend))
	}
	return c
}

// Conv2DFromParams creates a Conv2D layer around already loaded weights.
// No initialization runs; weight and bias are used as given. bias must be
// nil when cfg.Bias is false.
func Conv2DFromParams[B tensor.Backend](cfg Conv2DConfig, weight, bias *tensor.RawTensor, backend B) (*Conv2D[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}
	if err := checkRaw("conv2d weight", weight, cfg.WeightShape()); err != nil {
		return nil, err
	}

	c := &Conv2D[B]{cfg: cfg, backend: backend}
	var err error
	if c.weight, err = ParameterFromRaw("weight", weight, backend); err != nil {
		return nil, err
	}

	switch {
	case cfg.Bias:
		if err := checkRaw("conv2d bias", bias, tensor.Shape{cfg.OutChannels}); err != nil {
			return nil, err
		}
		if c.bias, err = ParameterFromRaw("bias", bias, backend); err != nil {
			return nil, err
		}
	case bias != nil:
		return nil, fmt.Errorf("conv2d: bias given but bias=false")
	}
	return c, nil
}

// Forward computes the convolution and adds the bias per output channel.
func (c *Conv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.cfg.InChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape[1], c.cfg.InChannels))
	}

	outputRaw := c.backend.Conv2D(input.Raw(), c.weight.Tensor().Raw(), c.cfg.params())
	output := tensor.New[float32, B](outputRaw, c.backend)

	if c.bias != nil {
		// [out_channels] -> [1, out_channels, 1, 1] broadcasts over N, H, W.
		output = output.Add(c.bias.Tensor().Reshape(1, c.cfg.OutChannels, 1, 1))
	}
	return output
}

// Parameters returns weight and, if present, bias.
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// Config returns the layer geometry.
func (c *Conv2D[B]) Config() Conv2DConfig {
	return c.cfg
}

// Weight returns the weight parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] { return c.weight }

// Bias returns the bias parameter, or nil.
func (c *Conv2D[B]) Bias() *Parameter[B] { return c.bias }

// ComputeOutputSize returns the spatial output size for an input of inputH x inputW.
func (c *Conv2D[B]) ComputeOutputSize(inputH, inputW int) [2]int {
	out := func(in, axis int) int {
		k := c.cfg.KernelSize[axis]
		return (in+2*c.cfg.Padding[axis]-c.cfg.Dilation[axis]*(k-1)-1)/c.cfg.Stride[axis] + 1
	}
	return [2]int{out(inputH, 0), out(inputW, 1)}
}

// StateDict returns the weights keyed "weight" and "bias".
func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	sd := map[string]*tensor.RawTensor{"weight": c.weight.Tensor().Raw()}
	if c.bias != nil {
		sd["bias"] = c.bias.Tensor().Raw()
	}
	return sd
}

// LoadStateDict copies weights into the layer after checking shape and dtype.
func (c *Conv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := checkRaw("weight", stateDict["weight"], c.cfg.WeightShape()); err != nil {
		return err
	}
	if c.bias != nil {
		if err := checkRaw("bias", stateDict["bias"], tensor.Shape{c.cfg.OutChannels}); err != nil {
			return err
		}
		copy(c.bias.Tensor().Data(), stateDict["bias"].AsFloat32())
	}
	copy(c.weight.Tensor().Data(), stateDict["weight"].AsFloat32())
	return nil
}

// Describe implements trace.Describer as nn.Conv2d.
func (c *Conv2D[B]) Describe() trace.Op {
	op := trace.Op{
		Type: "nn.Conv2d",
		Params: map[string]pnnx.Parameter{
			"in_channels":  pnnx.IntParam(c.cfg.InChannels),
			"out_channels": pnnx.IntParam(c.cfg.OutChannels),
			"kernel_size":  pnnx.IntsParam(c.cfg.KernelSize[:]...),
			"stride":       pnnx.IntsParam(c.cfg.Stride[:]...),
			"padding":      pnnx.IntsParam(c.cfg.Padding[:]...),
			"dilation":     pnnx.IntsParam(c.cfg.Dilation[:]...),
			"groups":       pnnx.IntParam(c.cfg.Groups),
			"bias":         pnnx.BoolParam(c.bias != nil),
			"padding_mode": pnnx.StringParam("zeros"),
		},
		Attrs: c.StateDict(),
	}
	return op
}

// String returns a human-readable description.
func (c *Conv2D[B]) String() string {
	return fmt.Sprintf("Conv2D(in_channels=%d, out_channels=%d, kernel_size=%v, stride=%v, padding=%v, dilation=%v, groups=%d, bias=%v)",
		c.cfg.InChannels, c.cfg.OutChannels, c.cfg.KernelSize, c.cfg.Stride, c.cfg.Padding, c.cfg.Dilation, c.cfg.Groups, c.bias != nil)
}
