package optim

import (
	"errors"

	"github.com/born-ml/gradgraph/internal/autodiff"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	params     []*autodiff.Node
	lr         float32
	momentum   float32
	velocities map[*autodiff.Node]*tensor.RawTensor
	steps      int
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer over the given parameter nodes.
func NewSGD(params []*autodiff.Node, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}

	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*autodiff.Node]*tensor.RawTensor),
	}
}

// Step performs a single optimization step.
//
// Parameters without a gradient are skipped.
func (s *SGD) Step() error {
	for i, param := range s.params {
		grad, err := gradient(i, param)
		if err != nil {
			return err
		}
		if grad == nil {
			continue
		}

		if s.momentum != 0 {
			if grad, err = s.updateVelocity(param, grad); err != nil {
				return err
			}
		}

		// param += -lr * grad
		if _, err := tensor.Unary(param.Engine().Backend(), tensor.OpScale, grad, param.Value(), -s.lr, true); err != nil {
			return err
		}
	}

	s.steps++
	logger(s.params).Debug("sgd step", "step", s.steps, "lr", s.lr, "params", len(s.params))
	return nil
}

// updateVelocity computes velocity = momentum * velocity + grad and returns it.
func (s *SGD) updateVelocity(param *autodiff.Node, grad *tensor.RawTensor) (*tensor.RawTensor, error) {
	be := param.Engine().Backend()
	v, ok := s.velocities[param]
	if !ok {
		clone, err := grad.Clone()
		if err != nil {
			return nil, err
		}
		s.velocities[param] = clone
		return clone, nil
	}

	if _, err := tensor.Unary(be, tensor.OpScale, v, v, s.momentum, false); err != nil {
		return nil, err
	}
	if _, err := tensor.Unary(be, tensor.OpIdentity, grad, v, 0, true); err != nil {
		return nil, err
	}
	return v, nil
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() error {
	return zeroGrad(s.params)
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}

// Release frees the velocity buffers.
func (s *SGD) Release() error {
	var errs []error
	for p, v := range s.velocities {
		if v.Valid() {
			errs = append(errs, v.Free())
		}
		delete(s.velocities, p)
	}
	return errors.Join(errs...)
}
