// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
//
// Elementwise kernels run over strided operands and are split across
// goroutines for large tensors; matrix products go through gonum BLAS.
//
//	be := cpu.New()
//	e := autodiff.New(be, autodiff.DefaultConfig())
package cpu

import (
	internalcpu "github.com/born-ml/gradgraph/internal/backend/cpu"
	"github.com/born-ml/gradgraph/internal/parallel"
	"github.com/born-ml/gradgraph/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// ParallelConfig controls how kernels are split across goroutines.
type ParallelConfig = parallel.Config

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend with the default parallel configuration.
func New() *Backend {
	return internalcpu.New()
}

// NewWithConfig creates a CPU backend with a custom parallel configuration.
func NewWithConfig(cfg ParallelConfig) *Backend {
	return internalcpu.NewWithConfig(cfg)
}

// DefaultParallelConfig returns the default parallel configuration.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}
