package models

import (
	"github.com/born-ml/pnnxgen/internal/nn"
	"github.com/born-ml/pnnxgen/internal/tensor"
	"github.com/born-ml/pnnxgen/internal/trace"
)

// tracer runs modules and records each call. The first recording error
// sticks and is returned by finish.
type tracer[B tensor.Backend] struct {
	rec *trace.Recorder
	err error
}

func newTracer[B tensor.Backend](rec *trace.Recorder, input *tensor.Tensor[float32, B]) *tracer[B] {
	rec.Input(input.Raw())
	return &tracer[B]{rec: rec}
}

func (t *tracer[B]) call(name string, m nn.TracedModule[B], x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	y := m.Forward(x)
	t.record(name, m, []*tensor.Tensor[float32, B]{x}, y)
	return y
}

func (t *tracer[B]) record(name string, d trace.Describer, inputs []*tensor.Tensor[float32, B], output *tensor.Tensor[float32, B]) {
	if t.err != nil {
		return
	}
	raws := make([]*tensor.RawTensor, len(inputs))
	for i, x := range inputs {
		raws[i] = x.Raw()
	}
	t.err = t.rec.Record(name, d, raws, output.Raw())
}

func (t *tracer[B]) finish(out *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	if t.err != nil {
		return nil, t.err
	}
	if err := t.rec.Output(out.Raw()); err != nil {
		return nil, err
	}
	return out, nil
}

func mergeStateDicts(layers map[string]nn.StateDicter) map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for layer, m := range layers {
		for k, v := range m.StateDict() {
			sd[layer+"."+k] = v
		}
	}
	return sd
}
