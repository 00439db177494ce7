// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensors that pnnxgen loads weights into and
// runs graphs on.
//
// # Overview
//
// Two levels are exposed:
//   - RawTensor: untyped bytes with a shape and a DataType, the form in
//     which archive entries and ONNX initializers travel
//   - Tensor[T, B]: a typed view bound to a compute Backend
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/pnnxgen/backend/cpu"
//	    "github.com/born-ml/pnnxgen/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    x := tensor.Zeros[float32](tensor.Shape{1, 3, 4, 4}, backend)
//	    y := tensor.Full[float32](tensor.Shape{1, 3, 4, 4}, 0.5, backend)
//	    z := x.Add(y)
//	    fmt.Println(z.Shape())
//	}
//
// # Data Types
//
// Archive entries may be stored as f32, f64, f16, i32, i64, i16, i8, u8 or
// bool. Weights are converted to float32 when they are bound to a layer.
package tensor
