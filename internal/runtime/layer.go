package runtime

import (
	"fmt"
	"sort"
	"sync"

	"github.com/born-ml/pnnxgen/internal/nn"
	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

// Layer computes one operator of the graph.
type Layer[B tensor.Backend] interface {
	Forward(inputs []*tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error)
}

// Creator builds the layer for op.
type Creator[B tensor.Backend] func(op *Operator[B], backend B) (Layer[B], error)

// Registry maps pnnx operator types to layer creators.
type Registry[B tensor.Backend] struct {
	mu       sync.RWMutex
	creators map[string]Creator[B]
}

// NewRegistry returns an empty registry.
func NewRegistry[B tensor.Backend]() *Registry[B] {
	return &Registry[B]{creators: make(map[string]Creator[B])}
}

// DefaultRegistry returns a registry with every built-in layer.
func DefaultRegistry[B tensor.Backend]() *Registry[B] {
	r := NewRegistry[B]()
	r.Register("nn.Conv2d", createConv2D[B])
	r.Register("nn.ReLU", createReLU[B])
	r.Register("nn.Sigmoid", createSigmoid[B])
	r.Register("nn.MaxPool2d", createMaxPool2D[B])
	r.Register("nn.AdaptiveAvgPool2d", createAdaptiveAvgPool2D[B])
	r.Register("torch.flatten", createFlatten[B])
	r.Register("nn.Linear", createLinear[B])
	r.Register(pnnx.OpExpression, createExpression[B])
	return r
}

// Register adds or replaces the creator for opType.
func (r *Registry[B]) Register(opType string, c Creator[B]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creators[opType] = c
}

// Create builds the layer for op.
func (r *Registry[B]) Create(op *Operator[B], backend B) (Layer[B], error) {
	r.mu.RLock()
	c, ok := r.creators[op.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("operator %s: %w: %s", op.Name, ErrUnknownLayer, op.Type)
	}
	l, err := c(op, backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create layer %s (%s): %w", op.Name, op.Type, err)
	}
	return l, nil
}

// Types returns the registered operator types, sorted.
func (r *Registry[B]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.creators))
	for t := range r.creators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// moduleLayer runs a single-input nn module. Panics raised by the kernels
// are returned as errors.
type moduleLayer[B tensor.Backend] struct {
	name   string
	module nn.Module[B]
}

func (l *moduleLayer[B]) Forward(inputs []*tensor.Tensor[float32, B]) (out *tensor.Tensor[float32, B], err error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%w: %s expects 1 input, got %d", ErrArity, l.name, len(inputs))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrLayerFailed, l.name, r)
		}
	}()
	return l.module.Forward(inputs[0]), nil
}

func wrap[B tensor.Backend](op *Operator[B], m nn.Module[B]) Layer[B] {
	return &moduleLayer[B]{name: op.Name, module: m}
}

func createConv2D[B tensor.Backend](op *Operator[B], backend B) (Layer[B], error) {
	var cfg nn.Conv2DConfig
	var err error
	if cfg.InChannels, err = op.intParam("in_channels"); err != nil {
		return nil, err
	}
	if cfg.OutChannels, err = op.intParam("out_channels"); err != nil {
		return nil, err
	}
	if cfg.KernelSize, err = op.pairParam("kernel_size", nil); err != nil {
		return nil, err
	}
	if cfg.Stride, err = op.pairParam("stride", &[2]int{1, 1}); err != nil {
		return nil, err
	}
	if cfg.Padding, err = op.pairParam("padding", &[2]int{0, 0}); err != nil {
		return nil, err
	}
	if cfg.Dilation, err = op.pairParam("dilation", &[2]int{1, 1}); err != nil {
		return nil, err
	}
	cfg.Groups = 1
	if _, ok := op.Params["groups"]; ok {
		if cfg.Groups, err = op.intParam("groups"); err != nil {
			return nil, err
		}
	}
	if cfg.Bias, err = op.boolParam("bias", true); err != nil {
		return nil, err
	}
	if p, ok := op.Params["padding_mode"]; ok && p.String() != "zeros" {
		return nil, fmt.Errorf("%w: padding_mode=%s, only zeros is supported", ErrInvalidParam, p)
	}

	weight, err := op.attr("weight")
	if err != nil {
		return nil, err
	}
	var bias *tensor.RawTensor
	if cfg.Bias {
		if bias, err = op.attr("bias"); err != nil {
			return nil, err
		}
	}

	conv, err := nn.Conv2DFromParams(cfg, weight, bias, backend)
	if err != nil {
		return nil, err
	}
	return wrap(op, nn.Module[B](conv)), nil
}

func createReLU[B tensor.Backend](op *Operator[B], _ B) (Layer[B], error) {
	return wrap(op, nn.Module[B](nn.NewReLU[B]())), nil
}

func createSigmoid[B tensor.Backend](op *Operator[B], _ B) (Layer[B], error) {
	return wrap(op, nn.Module[B](nn.NewSigmoid[B]())), nil
}

func createMaxPool2D[B tensor.Backend](op *Operator[B], backend B) (Layer[B], error) {
	kernel, err := op.pairParam("kernel_size", nil)
	if err != nil {
		return nil, err
	}
	stride, err := op.pairParam("stride", &kernel)
	if err != nil {
		return nil, err
	}
	padding, err := op.pairParam("padding", &[2]int{0, 0})
	if err != nil {
		return nil, err
	}
	dilation, err := op.pairParam("dilation", &[2]int{1, 1})
	if err != nil {
		return nil, err
	}
	if dilation != [2]int{1, 1} {
		return nil, fmt.Errorf("%w: dilation=%v, only 1 is supported", ErrInvalidParam, dilation)
	}
	ceil, err := op.boolParam("ceil_mode", false)
	if err != nil {
		return nil, err
	}
	if ceil {
		return nil, fmt.Errorf("%w: ceil_mode=True is not supported", ErrInvalidParam)
	}
	for i := 0; i < 2; i++ {
		if kernel[i] <= 0 || stride[i] <= 0 || padding[i] < 0 || padding[i]*2 > kernel[i] {
			return nil, fmt.Errorf("%w: kernel_size=%v stride=%v padding=%v", ErrInvalidParam, kernel, stride, padding)
		}
	}
	return wrap(op, nn.Module[B](nn.NewMaxPool2D(kernel, stride, padding, backend))), nil
}

func createAdaptiveAvgPool2D[B tensor.Backend](op *Operator[B], backend B) (Layer[B], error) {
	size, err := op.pairParam("output_size", nil)
	if err != nil {
		return nil, err
	}
	if size[0] <= 0 || size[1] <= 0 {
		return nil, fmt.Errorf("%w: output_size=%v", ErrInvalidParam, size)
	}
	return wrap(op, nn.Module[B](nn.NewAdaptiveAvgPool2D(size[0], size[1], backend))), nil
}

func createFlatten[B tensor.Backend](op *Operator[B], _ B) (Layer[B], error) {
	start, err := op.intParam("start_dim")
	if err != nil {
		return nil, err
	}
	end, err := op.intParam("end_dim")
	if err != nil {
		return nil, err
	}
	if (start != 1 && start != 2) || (end != -1 && end != 3) {
		return nil, fmt.Errorf("%w: flatten start_dim=%d end_dim=%d, supported are 1 or 2 to the last dim", ErrInvalidParam, start, end)
	}
	return wrap(op, nn.Module[B](nn.NewFlatten[B](start, end))), nil
}

func createLinear[B tensor.Backend](op *Operator[B], backend B) (Layer[B], error) {
	useBias, err := op.boolParam("bias", true)
	if err != nil {
		return nil, err
	}
	weight, err := op.attr("weight")
	if err != nil {
		return nil, err
	}
	var bias *tensor.RawTensor
	if useBias {
		if bias, err = op.attr("bias"); err != nil {
			return nil, err
		}
	}

	l, err := nn.LinearFromParams(weight, bias, backend)
	if err != nil {
		return nil, err
	}
	for key, want := range map[string]int{"in_features": l.InFeatures(), "out_features": l.OutFeatures()} {
		if _, ok := op.Params[key]; !ok {
			continue
		}
		got, err := op.intParam(key)
		if err != nil {
			return nil, err
		}
		if got != want {
			return nil, fmt.Errorf("%w: %s=%d but weight gives %d", ErrInvalidParam, key, got, want)
		}
	}
	return wrap(op, nn.Module[B](l)), nil
}

func createExpression[B tensor.Backend](op *Operator[B], backend B) (Layer[B], error) {
	p, ok := op.Params["expr"]
	if !ok || p.Type != pnnx.ParamString {
		return nil, fmt.Errorf("%w: missing expr", ErrInvalidParam)
	}
	l, err := newExpressionLayer(p.S, backend)
	if err != nil {
		return nil, err
	}
	if m := maxIndex(l.rpn); m >= len(op.Inputs) {
		return nil, fmt.Errorf("%w: %q references @%d, operator has %d inputs", ErrArity, p.S, m, len(op.Inputs))
	}
	return l, nil
}
