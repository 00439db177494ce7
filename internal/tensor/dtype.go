// Package tensor provides the core tensor types used by pnnxgen models,
// the pnnx runtime and the CPU backend.
package tensor

import "fmt"

// DType is a constraint for the element types a typed Tensor can hold.
type DType interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8
}

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Float64
	Float16
	Int32
	Int64
	Int16
	Int8
	Uint8
	Bool
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Float16, Int16:
		return 2
	case Int8, Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// Valid reports whether dt is one of the supported data types.
func (dt DataType) Valid() bool {
	return dt >= Float32 && dt <= Bool
}

// IsFloat reports whether dt is a floating point kind.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float64 || dt == Float16
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Int16:
		return "int16"
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// pnnx type codes: 0=null 1=f32 2=f64 3=f16 4=i32 5=i64 6=i16 7=i8 8=u8 9=bool.
var pnnxCodes = map[DataType]int{
	Float32: 1,
	Float64: 2,
	Float16: 3,
	Int32:   4,
	Int64:   5,
	Int16:   6,
	Int8:    7,
	Uint8:   8,
	Bool:    9,
}

var pnnxNames = map[DataType]string{
	Float32: "f32",
	Float64: "f64",
	Float16: "f16",
	Int32:   "i32",
	Int64:   "i64",
	Int16:   "i16",
	Int8:    "i8",
	Uint8:   "u8",
	Bool:    "bool",
}

// PNNXCode returns the numeric type code pnnx uses for dt.
func (dt DataType) PNNXCode() int {
	return pnnxCodes[dt]
}

// PNNXName returns the short type suffix pnnx writes in .param files (e.g. "f32").
func (dt DataType) PNNXName() string {
	return pnnxNames[dt]
}

// FromPNNXCode maps a pnnx type code back to a DataType.
// Code 0 (null) and unknown codes are rejected.
func FromPNNXCode(code int) (DataType, error) {
	for dt, c := range pnnxCodes {
		if c == code {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unsupported pnnx type code %d", code)
}

// ParseDataType parses a pnnx short name ("f32") or a long name ("float32").
func ParseDataType(s string) (DataType, error) {
	for dt, name := range pnnxNames {
		if s == name || s == dt.String() {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unsupported data type %q", s)
}

// ONNX TensorProto element types.
const (
	onnxFloat   = 1
	onnxUint8   = 2
	onnxInt8    = 3
	onnxInt16   = 5
	onnxInt32   = 6
	onnxInt64   = 7
	onnxBool    = 9
	onnxFloat16 = 10
	onnxDouble  = 11
)

// ONNXType returns the ONNX TensorProto.DataType value for dt.
func (dt DataType) ONNXType() int32 {
	switch dt {
	case Float32:
		return onnxFloat
	case Float64:
		return onnxDouble
	case Float16:
		return onnxFloat16
	case Int32:
		return onnxInt32
	case Int64:
		return onnxInt64
	case Int16:
		return onnxInt16
	case Int8:
		return onnxInt8
	case Uint8:
		return onnxUint8
	case Bool:
		return onnxBool
	default:
		return 0
	}
}

// FromONNXType maps an ONNX element type back to a DataType.
func FromONNXType(code int32) (DataType, error) {
	for _, dt := range []DataType{Float32, Float64, Float16, Int32, Int64, Int16, Int8, Uint8, Bool} {
		if dt.ONNXType() == code {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unsupported onnx element type %d", code)
}

// inferDataType infers DataType from a generic type T.
func inferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	default:
		panic("unsupported type")
	}
}
