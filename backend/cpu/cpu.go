// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/pnnxgen/internal/backend/cpu"
	"github.com/born-ml/pnnxgen/internal/parallel"
	"github.com/born-ml/pnnxgen/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Option configures a Backend.
type Option = internalcpu.Option

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{1, 3, 4, 4}, backend)
func New(opts ...Option) *Backend {
	return internalcpu.New(opts...)
}

// Sequential returns an option that runs every kernel on the calling
// goroutine. Results are identical; only scheduling changes.
func Sequential() Option {
	return internalcpu.WithParallel(parallel.Sequential())
}
