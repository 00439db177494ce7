// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend that pnnxgen runs models on.
//
// # Overview
//
// The backend implements the kernels the reference networks need:
//   - Conv2D via im2col, with stride, padding, dilation and groups
//   - MaxPool2D and AdaptiveAvgPool2D
//   - ReLU and Sigmoid
//   - broadcasting Add and Mul, MatMul, Reshape and Transpose
//
// Convolution and pooling spread batch and channel work across goroutines.
// Results are independent of the worker count.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/pnnxgen/backend/cpu"
//	    "github.com/born-ml/pnnxgen/tensor"
//	)
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{1, 3, 4, 4}, backend)
//
// Kernels panic on shape errors; the runtime and nn layers validate shapes
// before calling them.
package cpu
