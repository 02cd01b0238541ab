// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation over an
// explicit computation graph.
//
// Example:
//
//	import (
//	    "github.com/born-ml/gradgraph/autodiff"
//	    "github.com/born-ml/gradgraph/backend/cpu"
//	    "github.com/born-ml/gradgraph/tensor"
//	)
//
//	func main() {
//	    e := autodiff.New(cpu.New(), autodiff.DefaultConfig())
//
//	    a, _ := e.Parameter(tensor.Shape{3}, []float32{1, 2, 3})
//	    b, _ := e.Constant(tensor.Shape{3}, []float32{1, 1, 1})
//	    loss, _ := e.MSE(a, b)
//
//	    g, _ := loss.Graph()
//	    _ = g.Backward()
//	    fmt.Println(a.Grad().Values())
//	}
package autodiff

import (
	"github.com/born-ml/gradgraph/internal/autodiff"
	"github.com/born-ml/gradgraph/tensor"
)

// Engine creates nodes and owns the arena, backend and RNG they share.
type Engine = autodiff.Engine

// Config controls engine construction.
type Config = autodiff.Config

// Node is a vertex of a computation graph.
type Node = autodiff.Node

// Graph is a snapshot of one connected component with a topological order.
type Graph = autodiff.Graph

// Kind tags the variant of a node.
type Kind = autodiff.Kind

// Init selects a parameter initializer.
type Init = autodiff.Init

// Producer supplies the value of a source node on every forward pass.
type Producer = autodiff.Producer

// Parameter initializers.
const (
	InitZeros         = autodiff.InitZeros
	InitXavierUniform = autodiff.InitXavierUniform
	InitXavierNormal  = autodiff.InitXavierNormal
	InitHeUniform     = autodiff.InitHeUniform
	InitHeNormal      = autodiff.InitHeNormal
)

// Common errors.
var (
	ErrDisconnectedInput  = autodiff.ErrDisconnectedInput
	ErrDegenerateGradient = autodiff.ErrDegenerateGradient
	ErrCycle              = autodiff.ErrCycle
	ErrNotInput           = autodiff.ErrNotInput
	ErrInvalidRate        = autodiff.ErrInvalidRate
	ErrUnsupportedOp      = autodiff.ErrUnsupportedOp
)

// New creates an engine dispatching all math to backend.
func New(backend tensor.Backend, cfg Config) *Engine {
	return autodiff.New(backend, cfg)
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return autodiff.DefaultConfig()
}
