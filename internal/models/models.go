// Package models holds the reference networks whose weights are read from a
// pnnx archive: conv_relu and test_net.
package models

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/tensor"
	"github.com/born-ml/pnnxgen/internal/trace"
)

// Model names.
const (
	ConvReLU = "conv_relu"
	TestNet  = "test_net"
)

// ErrUnknownModel is returned for a name not listed by Names.
var ErrUnknownModel = errors.New("unknown model")

// InputShape is the shape of the sample input every model is traced with.
var InputShape = tensor.Shape{1, 3, 4, 4}

// Model is a constructed network.
type Model[B tensor.Backend] interface {
	Name() string

	// Forward evaluates the network. The input must have InputShape.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Trace evaluates the network like Forward and records every operator
	// call into rec.
	Trace(input *tensor.Tensor[float32, B], rec *trace.Recorder) (*tensor.Tensor[float32, B], error)

	// StateDict returns the weights keyed "<layer>.<weight|bias>".
	StateDict() map[string]*tensor.RawTensor
}

// LayerParams is one row of a model's descriptor table.
type LayerParams struct {
	Layer  string
	Bias   tensor.Shape
	Weight tensor.Shape
	DType  tensor.DataType
}

var tables = map[string][]LayerParams{
	ConvReLU: {
		{Layer: "conv1", Bias: tensor.Shape{3}, Weight: tensor.Shape{3, 3, 3, 3}, DType: tensor.Float32},
		{Layer: "conv2", Bias: tensor.Shape{3}, Weight: tensor.Shape{3, 3, 3, 3}, DType: tensor.Float32},
	},
	TestNet: {
		{Layer: "conv1", Bias: tensor.Shape{3}, Weight: tensor.Shape{3, 3, 3, 3}, DType: tensor.Float32},
		{Layer: "conv2", Bias: tensor.Shape{3}, Weight: tensor.Shape{3, 3, 3, 3}, DType: tensor.Float32},
		{Layer: "linear", Bias: tensor.Shape{4}, Weight: tensor.Shape{4, 12}, DType: tensor.Float32},
	},
}

// Names lists the available models.
func Names() []string {
	return []string{ConvReLU, TestNet}
}

// Table returns the descriptor table of a model.
func Table(name string) ([]LayerParams, error) {
	t, ok := tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return t, nil
}

// Descriptors expands a model's table into archive descriptors, bias
// before weight for every layer.
func Descriptors(name string) ([]pnnx.Descriptor, error) {
	table, err := Table(name)
	if err != nil {
		return nil, err
	}
	descs := make([]pnnx.Descriptor, 0, 2*len(table))
	for _, row := range table {
		for _, p := range []struct {
			attr  string
			shape tensor.Shape
		}{{"bias", row.Bias}, {"weight", row.Weight}} {
			d, err := pnnx.NewDescriptor(pnnx.AttrKey(row.Layer, p.attr), p.shape, row.DType)
			if err != nil {
				return nil, err
			}
			descs = append(descs, d)
		}
	}
	return descs, nil
}

// Build loads every parameter a model needs from a and assembles it.
// The parameters are used as loaded; no initialization runs. If any
// parameter fails to load, no model is returned.
func Build[B tensor.Backend](ctx context.Context, name string, a *pnnx.Archive, backend B, opts ...pnnx.LoadOption) (Model[B], error) {
	descs, err := Descriptors(name)
	if err != nil {
		return nil, err
	}
	params, err := pnnx.LoadAll(ctx, a, descs, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s parameters: %w", name, err)
	}

	var m Model[B]
	switch name {
	case ConvReLU:
		m, err = newConvReLU(params, backend)
	case TestNet:
		m, err = newTestNet(params, backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to assemble %s: %w", name, err)
	}
	return m, nil
}

// Open opens the archive at binPath, builds the model and closes the archive.
func Open[B tensor.Backend](ctx context.Context, name, binPath string, backend B, opts ...pnnx.LoadOption) (Model[B], error) {
	if _, err := Table(name); err != nil {
		return nil, err
	}
	a, err := pnnx.OpenArchive(binPath)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return Build(ctx, name, a, backend, opts...)
}

// SeededInput returns a uniform [0, 1) sample input drawn from seed.
func SeededInput[B tensor.Backend](seed int64, backend B) *tensor.Tensor[float32, B] {
	return tensor.Rand[float32](InputShape, rand.New(rand.NewSource(seed)), backend)
}

// New returns a model with Xavier-initialized weights drawn from seed and
// zero biases. It is used to produce archives for models without trained
// weights.
func New[B tensor.Backend](name string, seed int64, backend B) (Model[B], error) {
	if _, err := Table(name); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	switch name {
	case ConvReLU:
		return initConvReLU(rng, backend), nil
	default:
		return initTestNet(rng, backend), nil
	}
}

// WriteArchive writes the weights of m to a new archive at path, one entry
// per row of the model's descriptor table.
func WriteArchive[B tensor.Backend](m Model[B], path string) (err error) {
	descs, err := Descriptors(m.Name())
	if err != nil {
		return err
	}
	sd := m.StateDict()

	w, err := pnnx.CreateArchive(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for _, d := range descs {
		raw, ok := sd[d.Key]
		if !ok {
			return fmt.Errorf("%s: no weight for %s", m.Name(), d.Key)
		}
		if err := w.Add(d.Key, raw); err != nil {
			return err
		}
	}
	return nil
}
