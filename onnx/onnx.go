// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package onnx reads and writes ONNX model files.
//
// Only the subset of the ONNX protobuf schema needed to describe exported
// pnnxgen graphs is modeled: graph nodes, attributes, initializers, value
// info and model metadata. Unknown fields are skipped when decoding.
//
// # Example Usage
//
//	m, err := onnx.ReadFile("test_net.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, n := range m.Graph.Nodes {
//	    fmt.Println(n.OpType, n.Inputs, n.Outputs)
//	}
package onnx

import (
	"io"

	internalonnx "github.com/born-ml/pnnxgen/internal/onnx"
	"github.com/born-ml/pnnxgen/tensor"
)

// Protobuf message types.
type (
	ModelProto        = internalonnx.ModelProto
	GraphProto        = internalonnx.GraphProto
	NodeProto         = internalonnx.NodeProto
	TensorProto       = internalonnx.TensorProto
	ValueInfoProto    = internalonnx.ValueInfoProto
	AttributeProto    = internalonnx.AttributeProto
	OperatorSetID     = internalonnx.OperatorSetID
	StringStringEntry = internalonnx.StringStringEntry
)

// ReadFile decodes the ONNX model stored at path.
func ReadFile(path string) (*ModelProto, error) {
	return internalonnx.ReadFile(path)
}

// Decode parses a serialized ModelProto.
func Decode(data []byte) (*ModelProto, error) {
	return internalonnx.Decode(data)
}

// Encode serializes m.
func Encode(m *ModelProto) ([]byte, error) {
	return internalonnx.Encode(m)
}

// Write serializes m to w.
func Write(w io.Writer, m *ModelProto) error {
	return internalonnx.Write(w, m)
}

// WriteFile serializes m to path.
func WriteFile(path string, m *ModelProto) error {
	return internalonnx.WriteFile(path, m)
}

// IntAttr returns an INT attribute.
func IntAttr(name string, v int64) AttributeProto { return internalonnx.IntAttr(name, v) }

// IntsAttr returns an INTS attribute.
func IntsAttr(name string, v ...int64) AttributeProto { return internalonnx.IntsAttr(name, v...) }

// FloatAttr returns a FLOAT attribute.
func FloatAttr(name string, v float32) AttributeProto { return internalonnx.FloatAttr(name, v) }

// StringAttr returns a STRING attribute.
func StringAttr(name, v string) AttributeProto { return internalonnx.StringAttr(name, v) }

// TensorFromRaw builds an initializer holding a copy of raw's bytes.
func TensorFromRaw(name string, raw *tensor.RawTensor) TensorProto {
	return internalonnx.TensorFromRaw(name, raw)
}

// ValueInfo describes a typed graph input or output.
func ValueInfo(name string, dtype tensor.DataType, shape tensor.Shape) ValueInfoProto {
	return internalonnx.ValueInfo(name, dtype, shape)
}
