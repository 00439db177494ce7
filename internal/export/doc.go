// Package export converts a recorded trace into ONNX and pnnx files.
//
// ONNX and PNNX are the two writers. Run drives a full export of one of the
// built-in models: build, trace, write both formats and optionally verify
// the pnnx pair by executing it with the runtime.
package export
