// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides layer modules that build autodiff graph nodes.
//
// Example:
//
//	e := autodiff.New(cpu.New(), autodiff.DefaultConfig())
//	hidden, _ := nn.NewLinear(e, 1, 16)
//	head, _ := nn.NewLinear(e, 16, 1)
//	model := nn.NewSequential(hidden, nn.NewTanh(), head)
//	pred, err := model.Forward(x)
package nn

import (
	"github.com/born-ml/gradgraph/internal/autodiff"
	"github.com/born-ml/gradgraph/internal/nn"
)

// Module is the interface of every layer.
type Module = nn.Module

// Linear is a fully connected layer y = x·Wᵀ + b.
type Linear = nn.Linear

// Activation is a parameterless elementwise layer.
type Activation = nn.Activation

// Dropout is an inverted dropout layer.
type Dropout = nn.Dropout

// Sequential chains modules.
type Sequential = nn.Sequential

// NewLinear creates a linear layer with Xavier uniform weights and zero bias.
func NewLinear(e *autodiff.Engine, inFeatures, outFeatures int) (*Linear, error) {
	return nn.NewLinear(e, inFeatures, outFeatures)
}

// NewTanh returns a tanh activation.
func NewTanh() *Activation { return nn.NewTanh() }

// NewReLU returns a ReLU activation.
func NewReLU() *Activation { return nn.NewReLU() }

// NewSigmoid returns a sigmoid activation.
func NewSigmoid() *Activation { return nn.NewSigmoid() }

// NewDropout returns a dropout layer with the given drop rate.
func NewDropout(rate float32) *Dropout { return nn.NewDropout(rate) }

// NewSequential chains modules in order.
func NewSequential(modules ...Module) *Sequential { return nn.NewSequential(modules...) }
