// Package optim implements gradient-based optimizers over autodiff parameters.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// An optimizer only relies on the value/gradient pair of each parameter node,
// so any node carrying a gradient can be optimized.
//
// Example usage:
//
//	g, _ := loss.Graph()
//	params, _ := g.Parameters()
//	opt := optim.NewSGD(params, optim.SGDConfig{LR: 0.05, Momentum: 0.9})
//
//	for range epochs {
//	    _ = g.ZeroGrad()
//	    _ = g.Forward()
//	    _ = g.Backward()
//	    _ = opt.Step()
//	}
package optim

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/gradgraph/internal/autodiff"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
//
// All optimizers must implement:
//   - Step: Apply gradient updates to parameter values
//   - ZeroGrad: Clear gradients before next iteration
//   - GetLR: Get current learning rate (for monitoring/scheduling)
type Optimizer interface {
	// Step applies the accumulated gradients to all parameter values.
	Step() error

	// ZeroGrad clears the parameter gradients. Gradients of intermediate
	// nodes are left alone; use Graph.ZeroGrad before a fresh backward pass
	// over the whole graph.
	ZeroGrad() error

	// GetLR returns the current learning rate.
	GetLR() float32
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}

// gradient returns the gradient of a parameter, or nil if it carries none.
// A released parameter is an error.
func gradient(i int, p *autodiff.Node) (*tensor.RawTensor, error) {
	if p == nil || p.Grad() == nil {
		return nil, nil
	}
	if !p.Value().Valid() || !p.Grad().Valid() {
		return nil, fmt.Errorf("parameter %d (%v): %w", i, p, tensor.ErrFreed)
	}
	return p.Grad(), nil
}

// zeroGrad clears the gradient of every parameter.
func zeroGrad(params []*autodiff.Node) error {
	for i, p := range params {
		grad, err := gradient(i, p)
		if err != nil {
			return err
		}
		if grad != nil {
			p.ZeroGrad()
		}
	}
	return nil
}

func logger(params []*autodiff.Node) *slog.Logger {
	for _, p := range params {
		if p != nil {
			return p.Engine().Logger()
		}
	}
	return slog.Default()
}
