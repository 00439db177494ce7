// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/born-ml/pnnxgen/internal/tensor"
)

// DType constrains the element types of Tensor.
type DType = tensor.DType

// DataType identifies the element type of a RawTensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Float16 DataType = tensor.Float16
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Int16   DataType = tensor.Int16
	Int8    DataType = tensor.Int8
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// Device is where tensor data resides.
type Device = tensor.Device

// CPU is the only device.
const CPU Device = tensor.CPU

// Shape lists tensor dimensions, outermost first.
type Shape = tensor.Shape

// Backend is implemented by compute backends such as backend/cpu.
type Backend = tensor.Backend

// Conv2DParams and Pool2DParams configure the backend kernels.
type (
	Conv2DParams = tensor.Conv2DParams
	Pool2DParams = tensor.Pool2DParams
)

// RawTensor is an untyped, contiguous tensor.
type RawTensor = tensor.RawTensor

// Tensor is a typed tensor bound to backend B.
type Tensor[T DType, B Backend] = tensor.Tensor[T, B]

// NewRaw allocates a zeroed raw tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromBytes copies little-endian data into a new raw tensor.
func FromBytes(shape Shape, dtype DataType, data []byte) (*RawTensor, error) {
	return tensor.FromBytes(shape, dtype, data)
}

// ParseShape parses the pnnx notation "(1,3,4,4)"; "?" is -1.
func ParseShape(s string) (Shape, error) {
	return tensor.ParseShape(s)
}

// ParseDataType parses a pnnx type name such as "f32".
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

// New wraps raw without checking its data type.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return tensor.New[T, B](raw, b)
}

// FromRaw wraps raw, failing if its data type does not match T.
func FromRaw[T DType, B Backend](raw *RawTensor, b B) (*Tensor[T, B], error) {
	return tensor.FromRaw[T, B](raw, b)
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	return tensor.FromSlice(data, shape, b)
}

// Zeros returns a zero-filled tensor.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Zeros[T](shape, b)
}

// Full returns a tensor with every element set to value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	return tensor.Full(shape, value, b)
}

// Rand returns a tensor drawn uniformly from [0, 1) with rng.
func Rand[T DType, B Backend](shape Shape, rng *rand.Rand, b B) *Tensor[T, B] {
	return tensor.Rand[T](shape, rng, b)
}
