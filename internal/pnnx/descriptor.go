package pnnx

import (
	"fmt"

	"github.com/born-ml/pnnxgen/internal/tensor"
)

// Descriptor names one parameter blob and the layout it must have.
type Descriptor struct {
	Key   string
	Shape tensor.Shape
	DType tensor.DataType
}

// NewDescriptor returns a validated descriptor.
func NewDescriptor(key string, shape tensor.Shape, dtype tensor.DataType) (Descriptor, error) {
	d := Descriptor{Key: key, Shape: shape.Clone(), DType: dtype}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// AttrKey returns the archive key of an operator attribute.
func AttrKey(opName, attrName string) string {
	return opName + "." + attrName
}

// Validate checks the key, shape and dtype.
func (d Descriptor) Validate() error {
	if err := ValidateKey(d.Key); err != nil {
		return err
	}
	if len(d.Shape) == 0 {
		return fmt.Errorf("%w: %q has an empty shape", ErrInvalidDescriptor, d.Key)
	}
	for i, dim := range d.Shape {
		if dim <= 0 {
			return fmt.Errorf("%w: %q dimension %d is %d", ErrInvalidDescriptor, d.Key, i, dim)
		}
	}
	if !d.DType.Valid() {
		return fmt.Errorf("%w: %q has dtype %d", ErrUnsupportedDType, d.Key, int(d.DType))
	}
	if _, ok := d.Shape.ByteSize(d.DType.Size()); !ok {
		return fmt.Errorf("%w: %q size %s%s overflows", ErrInvalidDescriptor, d.Key, d.Shape, d.DType.PNNXName())
	}
	return nil
}

// ByteSize returns the number of bytes the entry must hold, or -1 for a
// descriptor that does not pass Validate.
func (d Descriptor) ByteSize() int {
	if !d.DType.Valid() {
		return -1
	}
	n, ok := d.Shape.ByteSize(d.DType.Size())
	if !ok {
		return -1
	}
	return n
}

// String renders the descriptor in pnnx notation, e.g. "conv1.weight=(3,3,3,3)f32".
func (d Descriptor) String() string {
	return fmt.Sprintf("%s=%s%s", d.Key, d.Shape, d.DType.PNNXName())
}
