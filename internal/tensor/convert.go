package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// ToFloat32 returns a float32 copy of r. Float32 input is deep-copied so the
// result never aliases r.
func (r *RawTensor) ToFloat32() (*RawTensor, error) {
	if r.dtype == Float32 {
		return r.DeepCopy(), nil
	}

	out, err := NewRaw(r.shape, Float32, r.device)
	if err != nil {
		return nil, err
	}
	dst := out.AsFloat32()
	src := r.buffer.data

	switch r.dtype {
	case Float64:
		for i, v := range r.AsFloat64() {
			dst[i] = float32(v)
		}
	case Float16:
		for i := range dst {
			bits := binary.LittleEndian.Uint16(src[i*2:])
			dst[i] = float16.Frombits(bits).Float32()
		}
	case Int32:
		for i, v := range r.AsInt32() {
			dst[i] = float32(v)
		}
	case Int64:
		for i, v := range r.AsInt64() {
			dst[i] = float32(v)
		}
	case Int16:
		for i := range dst {
			dst[i] = float32(int16(binary.LittleEndian.Uint16(src[i*2:]))) //nolint:gosec // G115: reinterpretation of stored bits
		}
	case Int8:
		for i := range dst {
			dst[i] = float32(int8(src[i])) //nolint:gosec // G115: reinterpretation of stored bits
		}
	case Uint8, Bool:
		for i := range dst {
			dst[i] = float32(src[i])
		}
	default:
		return nil, fmt.Errorf("cannot convert %s to float32", r.dtype)
	}
	return out, nil
}

// Float16FromFloat32 encodes values as little-endian IEEE 754 half precision.
func Float16FromFloat32(values []float32) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
	}
	return out
}

// Float32Bytes returns the little-endian encoding of values.
func Float32Bytes(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
