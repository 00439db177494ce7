package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned for input that is not valid protobuf.
var ErrMalformed = errors.New("onnx: malformed protobuf")

// ReadFile decodes the model stored at path.
//
//nolint:gosec // G304: the model path is chosen by the caller
func ReadFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Decode(data)
}

// Decode parses a serialized ModelProto. Unknown fields are skipped.
func Decode(data []byte) (*ModelProto, error) {
	m := &ModelProto{}
	if err := decodeModel(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return m, nil
}

// field is one decoded key/value pair. Only the member matching typ is set.
type field struct {
	num     protowire.Number
	typ     protowire.Type
	varint  uint64
	fixed32 uint32
	bytes   []byte
}

func (f field) str() string { return string(f.bytes) }
func (f field) i64() int64 { return int64(f.varint) }

func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// ints decodes a repeated int64 field in packed or unpacked form.
func (f field) ints(dst []int64) ([]int64, error) {
	if f.typ == protowire.VarintType {
		return append(dst, int64(f.varint)), nil
	}
	b := f.bytes
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: packed field %d: %v", ErrMalformed, f.num, protowire.ParseError(n))
		}
		dst = append(dst, int64(v))
		b = b[n:]
	}
	return dst, nil
}

// floats decodes a repeated float field in packed or unpacked form.
func (f field) floats(dst []float32) ([]float32, error) {
	if f.typ == protowire.Fixed32Type {
		return append(dst, math.Float32frombits(f.fixed32)), nil
	}
	if len(f.bytes)%4 != 0 {
		return nil, fmt.Errorf("%w: packed float field %d has %d bytes", ErrMalformed, f.num, len(f.bytes))
	}
	b := f.bytes
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		dst = append(dst, math.Float32frombits(v))
		b = b[n:]
	}
	return dst, nil
}

func decodeModel(b []byte, m *ModelProto) error {
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.IRVersion = f.i64()
		case 2:
			m.ProducerName = f.str()
		case 3:
			m.ProducerVersion = f.str()
		case 4:
			m.Domain = f.str()
		case 5:
			m.ModelVersion = f.i64()
		case 6:
			m.DocString = f.str()
		case 7:
			m.Graph = &GraphProto{}
			return decodeGraph(f.bytes, m.Graph)
		case 8:
			var o OperatorSetID
			err := walk(f.bytes, func(f field) error {
				switch f.num {
				case 1:
					o.Domain = f.str()
				case 2:
					o.Version = f.i64()
				}
				return nil
			})
			m.OpsetImport = append(m.OpsetImport, o)
			return err
		case 14:
			var e StringStringEntry
			err := walk(f.bytes, func(f field) error {
				switch f.num {
				case 1:
					e.Key = f.str()
				case 2:
					e.Value = f.str()
				}
				return nil
			})
			m.MetadataProps = append(m.MetadataProps, e)
			return err
		}
		return nil
	})
}

func decodeGraph(b []byte, g *GraphProto) error {
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			var n NodeProto
			if err := decodeNode(f.bytes, &n); err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, n)
		case 2:
			g.Name = f.str()
		case 5:
			var t TensorProto
			if err := decodeTensor(f.bytes, &t); err != nil {
				return err
			}
			g.Initializers = append(g.Initializers, t)
		case 10:
			g.DocString = f.str()
		case 11, 12, 13:
			var v ValueInfoProto
			if err := decodeValueInfo(f.bytes, &v); err != nil {
				return err
			}
			switch f.num {
			case 11:
				g.Inputs = append(g.Inputs, v)
			case 12:
				g.Outputs = append(g.Outputs, v)
			default:
				g.ValueInfo = append(g.ValueInfo, v)
			}
		}
		return nil
	})
}

func decodeNode(b []byte, n *NodeProto) error {
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			n.Inputs = append(n.Inputs, f.str())
		case 2:
			n.Outputs = append(n.Outputs, f.str())
		case 3:
			n.Name = f.str()
		case 4:
			n.OpType = f.str()
		case 5:
			var a AttributeProto
			if err := decodeAttribute(f.bytes, &a); err != nil {
				return err
			}
			n.Attributes = append(n.Attributes, a)
		case 6:
			n.DocString = f.str()
		case 7:
			n.Domain = f.str()
		}
		return nil
	})
}

func decodeTensor(b []byte, t *TensorProto) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			t.Dims, err = f.ints(t.Dims)
		case 2:
			t.DataType = int32(f.varint)
		case 4:
			t.FloatData, err = f.floats(t.FloatData)
		case 7:
			t.Int64Data, err = f.ints(t.Int64Data)
		case 8:
			t.Name = f.str()
		case 9:
			t.RawData = append([]byte(nil), f.bytes...)
		}
		return err
	})
}

func decodeValueInfo(b []byte, v *ValueInfoProto) error {
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			v.Name = f.str()
		case 2:
			v.Type = &TypeProto{}
			return walk(f.bytes, func(f field) error {
				if f.num != 1 {
					return nil
				}
				v.Type.TensorType = &TensorTypeProto{}
				return decodeTensorType(f.bytes, v.Type.TensorType)
			})
		}
		return nil
	})
}

func decodeTensorType(b []byte, tt *TensorTypeProto) error {
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			tt.ElemType = int32(f.varint)
		case 2:
			tt.Shape = &TensorShapeProto{}
			return walk(f.bytes, func(f field) error {
				if f.num != 1 {
					return nil
				}
				var d DimensionProto
				err := walk(f.bytes, func(f field) error {
					switch f.num {
					case 1:
						d.DimValue = f.i64()
					case 2:
						d.DimParam = f.str()
					}
					return nil
				})
				tt.Shape.Dims = append(tt.Shape.Dims, d)
				return err
			})
		}
		return nil
	})
}

func decodeAttribute(b []byte, a *AttributeProto) error {
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			a.Name = f.str()
		case 2:
			a.F = math.Float32frombits(f.fixed32)
		case 3:
			a.I = f.i64()
		case 4:
			a.S = append([]byte(nil), f.bytes...)
		case 5:
			a.T = &TensorProto{}
			err = decodeTensor(f.bytes, a.T)
		case 7:
			a.Floats, err = f.floats(a.Floats)
		case 8:
			a.Ints, err = f.ints(a.Ints)
		case 20:
			a.Type = int32(f.varint)
		}
		return err
	})
}
