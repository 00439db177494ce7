// Package onnx reads and writes ONNX model files.
//
// Only the subset of onnx.proto that a plain inference graph needs is
// modelled: the model header, the graph with its nodes, initializers and
// typed inputs and outputs, and node attributes. The wire format is handled
// with google.golang.org/protobuf/encoding/protowire, so no generated code is
// involved.
//
//	data, err := onnx.Encode(model)
//	...
//	model, err := onnx.Decode(data)
//	for _, node := range model.Graph.Nodes {
//	    fmt.Println(node.OpType, node.Inputs, node.Outputs)
//	}
package onnx
