// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the layers the pnnx runtime and reference networks
// are built from.
//
// # Overview
//
// This package contains:
//   - Layers: Conv2D, Linear, MaxPool2D, AdaptiveAvgPool2D, Flatten
//   - Activations: ReLU, Sigmoid
//   - Containers: Sequential
//   - Initialization: Xavier
//
// Every layer can be built two ways. NewConv2D and NewLinear draw fresh
// weights from a seeded generator; Conv2DFromParams and LinearFromParams
// wrap weights loaded from a pnnx.bin archive without running any
// initialization.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/pnnxgen/backend/cpu"
//	    "github.com/born-ml/pnnxgen/nn"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    rng := rand.New(rand.NewSource(0))
//
//	    cfg := nn.DefaultConv2DConfig(3, 3, 3)
//	    cfg.Padding = [2]int{1, 1}
//	    model := nn.NewSequential[*cpu.Backend](
//	        nn.NewConv2D(cfg, rng, backend),
//	        nn.NewReLU[*cpu.Backend](),
//	    )
//	    y := model.Forward(x)
//	}
//
// # Loading weights
//
//	w, _ := archive entry "conv1.weight" as *tensor.RawTensor
//	b, _ := archive entry "conv1.bias"
//	conv, err := nn.Conv2DFromParams(cfg, w, b, backend)
//
// Shapes are checked against the config; a mismatch is an error, not a
// panic.
package nn
