// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers updating autodiff parameter nodes.
//
// Example:
//
//	params, _ := g.Parameters()
//	opt := optim.NewSGD(params, optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//	for range epochs {
//	    _ = g.ZeroGrad()
//	    _ = g.Forward()
//	    _ = g.Backward()
//	    _ = opt.Step()
//	}
package optim

import (
	"github.com/born-ml/gradgraph/autodiff"
	"github.com/born-ml/gradgraph/internal/optim"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Config represents the base configuration for optimizers.
type Config = optim.Config

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*autodiff.Node, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}

// Adam represents the Adam optimizer.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer.
func NewAdam(params []*autodiff.Node, config AdamConfig) *Adam {
	return optim.NewAdam(params, config)
}
