// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package pnnx loads and writes pnnx model files.
//
// A pnnx model is a pair of files: a text .pnnx.param graph description and
// a .pnnx.bin zip archive holding every weight as a stored entry named
// "<operator>.<attribute>". This package wraps the internal implementation
// and exports a clean public API for both.
//
// Example usage:
//
//	a, err := pnnx.OpenArchive("test_net.pnnx.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
//
//	d, err := pnnx.NewDescriptor("conv1.weight", tensor.Shape{12, 3, 3, 3}, tensor.Float32)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	w, err := pnnx.Load(a, d, pnnx.WithWorkers(4))
package pnnx

import (
	"context"

	internalpnnx "github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/tensor"
)

// Archive is a read-only view of a .pnnx.bin file. It is safe for
// concurrent loads.
type Archive = internalpnnx.Archive

// ArchiveWriter creates .pnnx.bin files.
type ArchiveWriter = internalpnnx.ArchiveWriter

// Descriptor names one archive entry together with the shape and data type
// it must decode to.
type Descriptor = internalpnnx.Descriptor

// LoadOption configures Load, LoadAll and LoadGraph.
type LoadOption = internalpnnx.LoadOption

// Graph is a parsed .pnnx.param file with its attribute data.
type Graph = internalpnnx.Graph

// Graph building blocks.
type (
	Operator  = internalpnnx.Operator
	Operand   = internalpnnx.Operand
	Attribute = internalpnnx.Attribute
	Parameter = internalpnnx.Parameter
)

// Error types.
type (
	LoadError  = internalpnnx.LoadError
	ParseError = internalpnnx.ParseError
)

// Sentinel errors, usable with errors.Is.
var (
	ErrKeyNotFound       = internalpnnx.ErrKeyNotFound
	ErrShapeMismatch     = internalpnnx.ErrShapeMismatch
	ErrIO                = internalpnnx.ErrIO
	ErrUnsupportedDType  = internalpnnx.ErrUnsupportedDType
	ErrInvalidKey        = internalpnnx.ErrInvalidKey
	ErrInvalidDescriptor = internalpnnx.ErrInvalidDescriptor
	ErrDuplicateKey      = internalpnnx.ErrDuplicateKey
	ErrInvalidMagic      = internalpnnx.ErrInvalidMagic
	ErrSyntax            = internalpnnx.ErrSyntax
)

// OpenArchive opens the archive at path. The caller must Close it.
func OpenArchive(path string) (*Archive, error) {
	return internalpnnx.OpenArchive(path)
}

// CreateArchive creates (or truncates) the archive at path.
func CreateArchive(path string) (*ArchiveWriter, error) {
	return internalpnnx.CreateArchive(path)
}

// NewDescriptor returns a validated descriptor.
func NewDescriptor(key string, shape tensor.Shape, dtype tensor.DataType) (Descriptor, error) {
	return internalpnnx.NewDescriptor(key, shape, dtype)
}

// AttrKey returns the archive key of an operator attribute.
func AttrKey(opName, attrName string) string {
	return internalpnnx.AttrKey(opName, attrName)
}

// Load reads the entry named by d and returns it as an independent tensor.
//
// Example:
//
//	d, _ := pnnx.NewDescriptor("linear.bias", tensor.Shape{4}, tensor.Float32)
//	bias, err := pnnx.Load(a, d)
//	if errors.Is(err, pnnx.ErrShapeMismatch) {
//	    // archive does not match the model definition
//	}
func Load(a *Archive, d Descriptor, opts ...LoadOption) (*tensor.RawTensor, error) {
	return internalpnnx.Load(a, d, opts...)
}

// LoadAll loads every descriptor concurrently. It fails as a whole if any
// single entry fails.
func LoadAll(ctx context.Context, a *Archive, descs []Descriptor, opts ...LoadOption) (map[string]*tensor.RawTensor, error) {
	return internalpnnx.LoadAll(ctx, a, descs, opts...)
}

// WithWorkers bounds the number of entries decoded in parallel.
func WithWorkers(n int) LoadOption {
	return internalpnnx.WithWorkers(n)
}

// WithScratchDir stages each entry through a temporary file in dir.
func WithScratchDir(dir string) LoadOption {
	return internalpnnx.WithScratchDir(dir)
}

// LoadGraph reads a .pnnx.param/.pnnx.bin pair.
func LoadGraph(ctx context.Context, paramPath, binPath string, opts ...LoadOption) (*Graph, error) {
	return internalpnnx.LoadGraph(ctx, paramPath, binPath, opts...)
}

// SaveGraph writes g as a .pnnx.param/.pnnx.bin pair.
func SaveGraph(g *Graph, paramPath, binPath string) error {
	return internalpnnx.SaveGraph(g, paramPath, binPath)
}
