package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradgraph/internal/autodiff"
	"github.com/born-ml/gradgraph/internal/backend/cpu"
	"github.com/born-ml/gradgraph/internal/optim"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// newParam creates a parameter holding data with its gradient set to grad.
func newParam(t *testing.T, e *autodiff.Engine, data, grad []float32) *autodiff.Node {
	t.Helper()
	p, err := e.Parameter(tensor.Shape{len(data)}, data)
	require.NoError(t, err)
	require.NoError(t, p.Grad().SetValues(grad))
	return p
}

func newEngine() *autodiff.Engine {
	return autodiff.New(cpu.New(), autodiff.DefaultConfig())
}

func TestSGD_SimpleUpdate(t *testing.T) {
	e := newEngine()
	p := newParam(t, e, []float32{2.0}, []float32{1.0})

	opt := optim.NewSGD([]*autodiff.Node{p}, optim.SGDConfig{LR: 0.1})
	require.NoError(t, opt.Step())

	// x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0
	assert.InDelta(t, 1.9, p.Value().At(0), 1e-6)
}

func TestSGD_WithMomentum(t *testing.T) {
	e := newEngine()
	p := newParam(t, e, []float32{1.0}, []float32{1.0})

	opt := optim.NewSGD([]*autodiff.Node{p}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	// v = 1, x = 1 - 0.1
	require.NoError(t, opt.Step())
	assert.InDelta(t, 0.9, p.Value().At(0), 1e-6)

	// v = 0.9*1 + 1 = 1.9, x = 0.9 - 0.19
	require.NoError(t, opt.Step())
	assert.InDelta(t, 0.71, p.Value().At(0), 1e-6)

	require.NoError(t, opt.Release())
}

func TestSGD_Defaults(t *testing.T) {
	opt := optim.NewSGD(nil, optim.SGDConfig{})
	assert.InDelta(t, 0.01, opt.GetLR(), 1e-9)

	opt.SetLR(0.5)
	assert.InDelta(t, 0.5, opt.GetLR(), 1e-9)
	assert.NoError(t, opt.Step())
}

func TestSGD_SkipsNodesWithoutGradient(t *testing.T) {
	e := newEngine()
	c, err := e.Constant(tensor.Shape{2}, []float32{1, 2})
	require.NoError(t, err)

	opt := optim.NewSGD([]*autodiff.Node{c}, optim.SGDConfig{LR: 1})
	require.NoError(t, opt.Step())
	assert.Equal(t, []float32{1, 2}, c.Value().Values())
}

func TestAdam_FirstStep(t *testing.T) {
	e := newEngine()
	p := newParam(t, e, []float32{1.0, -2.0}, []float32{0.5, -4.0})

	opt := optim.NewAdam([]*autodiff.Node{p}, optim.AdamConfig{LR: 0.1})
	require.NoError(t, opt.Step())
	assert.Equal(t, 1, opt.GetTimestep())

	// After bias correction the first step moves every element by about lr
	// against the sign of its gradient.
	assert.InDelta(t, 0.9, p.Value().At(0), 1e-4)
	assert.InDelta(t, -1.9, p.Value().At(1), 1e-4)

	require.NoError(t, opt.Release())
}

func TestAdam_Defaults(t *testing.T) {
	opt := optim.NewAdam(nil, optim.AdamConfig{})
	assert.InDelta(t, 0.001, opt.GetLR(), 1e-9)
	opt.SetLR(0.01)
	assert.InDelta(t, 0.01, opt.GetLR(), 1e-9)
}

func TestOptimizer_ZeroGrad(t *testing.T) {
	e := newEngine()
	p := newParam(t, e, []float32{1, 2}, []float32{3, 4})

	for _, opt := range []optim.Optimizer{
		optim.NewSGD([]*autodiff.Node{p}, optim.SGDConfig{}),
		optim.NewAdam([]*autodiff.Node{p}, optim.AdamConfig{}),
	} {
		require.NoError(t, p.Grad().SetValues([]float32{3, 4}))
		require.NoError(t, opt.ZeroGrad())
		assert.Equal(t, []float32{0, 0}, p.Grad().Values())
	}
}

func TestOptimizer_ReleasedParameter(t *testing.T) {
	e := newEngine()
	p := newParam(t, e, []float32{1}, []float32{1})
	opt := optim.NewSGD([]*autodiff.Node{p}, optim.SGDConfig{})
	require.NoError(t, p.Release())

	assert.ErrorIs(t, opt.Step(), tensor.ErrFreed)
	assert.ErrorIs(t, opt.ZeroGrad(), tensor.ErrFreed)
}

// fitLine trains y = w*x + b on points of y = 3x - 1 and returns the final loss.
func fitLine(t *testing.T, newOpt func([]*autodiff.Node) optim.Optimizer, steps int) (w, b float32, loss float64) {
	t.Helper()
	e := newEngine()
	xs := []float32{-1, -0.5, 0, 0.5, 1, 1.5}
	ys := make([]float32, len(xs))
	for i, x := range xs {
		ys[i] = 3*x - 1
	}

	x, err := e.Constant(tensor.Shape{len(xs)}, xs)
	require.NoError(t, err)
	y, err := e.Constant(tensor.Shape{len(ys)}, ys)
	require.NoError(t, err)
	wn, err := e.Parameter(tensor.Shape{1}, []float32{0})
	require.NoError(t, err)
	bn, err := e.Parameter(tensor.Shape{1}, []float32{0})
	require.NoError(t, err)

	pred, err := e.Mul(x, wn)
	require.NoError(t, err)
	pred, err = e.Add(pred, bn)
	require.NoError(t, err)
	mse, err := e.MSE(pred, y)
	require.NoError(t, err)

	g, err := mse.Graph()
	require.NoError(t, err)
	params, err := g.Parameters()
	require.NoError(t, err)
	require.Len(t, params, 2)

	opt := newOpt(params)
	for range steps {
		require.NoError(t, g.ZeroGrad())
		require.NoError(t, g.Forward())
		require.NoError(t, g.Backward())
		require.NoError(t, opt.Step())
	}
	require.NoError(t, g.Forward())
	return wn.Value().At(0), bn.Value().At(0), float64(mse.Value().At(0))
}

func TestOptimizers_FitLine(t *testing.T) {
	tests := []struct {
		name  string
		opt   func([]*autodiff.Node) optim.Optimizer
		steps int
	}{
		{"sgd", func(p []*autodiff.Node) optim.Optimizer { return optim.NewSGD(p, optim.SGDConfig{LR: 0.1}) }, 300},
		{"sgd momentum", func(p []*autodiff.Node) optim.Optimizer {
			return optim.NewSGD(p, optim.SGDConfig{LR: 0.05, Momentum: 0.9})
		}, 300},
		{"adam", func(p []*autodiff.Node) optim.Optimizer { return optim.NewAdam(p, optim.AdamConfig{LR: 0.05}) }, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, b, loss := fitLine(t, tt.opt, tt.steps)
			assert.InDelta(t, 3, w, 0.05)
			assert.InDelta(t, -1, b, 0.05)
			assert.Less(t, loss, 1e-3)
			assert.False(t, math.IsNaN(loss))
		})
	}
}
