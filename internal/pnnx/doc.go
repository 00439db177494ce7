// Package pnnx reads and writes the pnnx model format.
//
// A pnnx model is a pair of files:
//
//   - model.pnnx.param: a text graph, one operator per line
//   - model.pnnx.bin:   a zip archive of raw little-endian weight blobs,
//     one entry per operator attribute, named "<operator>.<attribute>"
//
// The Parameter Loader (Load, LoadAll) resolves a Descriptor against an
// Archive and returns a freshly allocated tensor whose byte length has been
// checked against the descriptor's shape and dtype. Archives are never
// modified by the loader and are closed only by whoever opened them.
//
// Example:
//
//	a, err := pnnx.OpenArchive("test_net.pnnx.bin")
//	if err != nil {
//		return err
//	}
//	defer a.Close()
//
//	d, _ := pnnx.NewDescriptor("conv1.weight", tensor.Shape{3, 3, 3, 3}, tensor.Float32)
//	w, err := pnnx.Load(a, d)
package pnnx
