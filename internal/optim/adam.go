package optim

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/gradgraph/internal/autodiff"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	params []*autodiff.Node
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int                                  // Timestep for bias correction
	m      map[*autodiff.Node]*tensor.RawTensor // First moment estimates
	v      map[*autodiff.Node]*tensor.RawTensor // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer. Zero fields of config take the
// defaults listed on AdamConfig.
func NewAdam(params []*autodiff.Node, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*autodiff.Node]*tensor.RawTensor),
		v:      make(map[*autodiff.Node]*tensor.RawTensor),
	}
}

// Step performs a single optimization step. Parameters without a gradient
// are skipped.
func (a *Adam) Step() error {
	a.t++

	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for i, param := range a.params {
		grad, err := gradient(i, param)
		if err != nil {
			return err
		}
		if grad == nil {
			continue
		}

		m, err := a.moment(a.m, param)
		if err != nil {
			return err
		}
		v, err := a.moment(a.v, param)
		if err != nil {
			return err
		}
		if err := a.updateParameter(param, grad, m, v, biasCorrection1, biasCorrection2); err != nil {
			return fmt.Errorf("adam: parameter %d: %w", i, err)
		}
	}

	logger(a.params).Debug("adam step", "step", a.t, "lr", a.lr, "params", len(a.params))
	return nil
}

// moment returns the moment buffer of param, allocating a zeroed one in the
// parameter's arena on first use.
func (a *Adam) moment(buffers map[*autodiff.Node]*tensor.RawTensor, param *autodiff.Node) (*tensor.RawTensor, error) {
	if t, ok := buffers[param]; ok {
		return t, nil
	}
	t, err := param.Engine().Tensor(param.Shape(), nil)
	if err != nil {
		return nil, err
	}
	buffers[param] = t
	return t, nil
}

// updateParameter performs the Adam update for a single parameter. Values and
// gradients are read and written through their logical element order, so
// strided parameters work too.
func (a *Adam) updateParameter(param *autodiff.Node, grad, m, v *tensor.RawTensor, biasCorrection1, biasCorrection2 float32) error {
	gradData := grad.Values()
	paramData := param.Value().Values()
	mData := m.Data()
	vData := v.Data()

	for i := range paramData {
		g := gradData[i]

		mData[i] = a.beta1*mData[i] + (1.0-a.beta1)*g
		vData[i] = a.beta2*vData[i] + (1.0-a.beta2)*g*g

		mHat := mData[i] / biasCorrection1
		vHat := vData[i] / biasCorrection2

		paramData[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
	}

	return param.Value().SetValues(paramData)
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam) ZeroGrad() error {
	return zeroGrad(a.params)
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the current timestep.
func (a *Adam) GetTimestep() int {
	return a.t
}

// Release frees the moment buffers.
func (a *Adam) Release() error {
	var errs []error
	for _, buffers := range []map[*autodiff.Node]*tensor.RawTensor{a.m, a.v} {
		for p, t := range buffers {
			if t.Valid() {
				errs = append(errs, t.Free())
			}
			delete(buffers, p)
		}
	}
	return errors.Join(errs...)
}
