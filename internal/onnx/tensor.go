package onnx

import (
	"fmt"

	"github.com/born-ml/pnnxgen/internal/tensor"
)

// TensorFromRaw returns an initializer holding a copy of raw.
func TensorFromRaw(name string, raw *tensor.RawTensor) TensorProto {
	dims := make([]int64, len(raw.Shape()))
	for i, d := range raw.Shape() {
		dims[i] = int64(d)
	}
	return TensorProto{
		Name:     name,
		DataType: raw.DType().ONNXType(),
		Dims:     dims,
		RawData:  append([]byte(nil), raw.Data()...),
	}
}

// Shape returns the dims as a tensor shape.
func (t *TensorProto) Shape() tensor.Shape {
	s := make(tensor.Shape, len(t.Dims))
	for i, d := range t.Dims {
		s[i] = int(d)
	}
	return s
}

// Raw returns the tensor data. Both raw_data and float_data are accepted.
func (t *TensorProto) Raw() (*tensor.RawTensor, error) {
	dtype, err := tensor.FromONNXType(t.DataType)
	if err != nil {
		return nil, fmt.Errorf("initializer %s: %w", t.Name, err)
	}
	switch {
	case len(t.RawData) > 0:
		return tensor.FromBytes(t.Shape(), dtype, t.RawData)
	case dtype == tensor.Float32:
		return tensor.FromBytes(t.Shape(), dtype, tensor.Float32Bytes(t.FloatData))
	default:
		return nil, fmt.Errorf("initializer %s: no data for %s", t.Name, dtype)
	}
}

// ValueInfo returns a typed value with a fixed shape.
func ValueInfo(name string, dtype tensor.DataType, shape tensor.Shape) ValueInfoProto {
	dims := make([]DimensionProto, len(shape))
	for i, d := range shape {
		dims[i] = DimensionProto{DimValue: int64(d)}
	}
	return ValueInfoProto{
		Name: name,
		Type: &TypeProto{TensorType: &TensorTypeProto{
			ElemType: dtype.ONNXType(),
			Shape:    &TensorShapeProto{Dims: dims},
		}},
	}
}

// Shape returns the declared shape of v; dynamic dimensions are -1.
func (v *ValueInfoProto) Shape() tensor.Shape {
	if v.Type == nil || v.Type.TensorType == nil || v.Type.TensorType.Shape == nil {
		return nil
	}
	dims := v.Type.TensorType.Shape.Dims
	s := make(tensor.Shape, len(dims))
	for i, d := range dims {
		if d.DimParam != "" {
			s[i] = -1
		} else {
			s[i] = int(d.DimValue)
		}
	}
	return s
}
