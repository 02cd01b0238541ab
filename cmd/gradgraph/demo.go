package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/born-ml/gradgraph/autodiff"
	"github.com/born-ml/gradgraph/backend/cpu"
	"github.com/born-ml/gradgraph/nn"
	"github.com/born-ml/gradgraph/optim"
	"github.com/born-ml/gradgraph/tensor"
)

// demoConfig holds the demo hyperparameters.
type demoConfig struct {
	Steps     int
	Batch     int
	Hidden    int
	LR        float64
	Momentum  float64
	Dropout   float64
	Optimizer string
	Seed      uint64
	LogEvery  int
}

func defaultDemoConfig() demoConfig {
	return demoConfig{
		Steps:     500,
		Batch:     32,
		Hidden:    16,
		LR:        0.05,
		Momentum:  0.9,
		Optimizer: "sgd",
		Seed:      1,
		LogEvery:  100,
	}
}

type demoResult struct {
	InitialLoss float32
	FinalLoss   float32
}

// model is a one-hidden-layer tanh network fitted to y = sin(2x).
type model struct {
	engine *autodiff.Engine
	graph  *autodiff.Graph
	loss   *autodiff.Node
	params []*autodiff.Node
}

func buildModel(cfg demoConfig, logger *slog.Logger) (*model, error) {
	ecfg := autodiff.DefaultConfig()
	ecfg.Seed = cfg.Seed
	ecfg.Logger = logger
	e := autodiff.New(cpu.New(), ecfg)
	batch := tensor.Shape{cfg.Batch, 1}

	// Samples x ~ U(-1, 1), drawn fresh on every forward pass.
	x, err := e.Source(batch, func() (*tensor.RawTensor, error) {
		t, err := e.Tensor(batch, nil)
		if err != nil {
			return nil, err
		}
		e.RNG().FillUniform(t.Data(), -1, 1)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	x.SetName("x")

	y, err := e.MulScalar(x, 2)
	if err != nil {
		return nil, err
	}
	if y, err = e.Sin(y); err != nil {
		return nil, err
	}

	in, err := e.Input(batch)
	if err != nil {
		return nil, err
	}
	if err := in.Connect(x); err != nil {
		return nil, err
	}

	hidden, err := nn.NewLinear(e, 1, cfg.Hidden)
	if err != nil {
		return nil, err
	}
	head, err := nn.NewLinear(e, cfg.Hidden, 1)
	if err != nil {
		return nil, err
	}
	net := nn.NewSequential(hidden, nn.NewTanh())
	if cfg.Dropout > 0 {
		net.Add(nn.NewDropout(float32(cfg.Dropout)))
	}
	net.Add(head)

	pred, err := net.Forward(in)
	if err != nil {
		return nil, err
	}
	loss, err := e.MSE(pred, y)
	if err != nil {
		return nil, err
	}

	g, err := loss.Graph()
	if err != nil {
		return nil, err
	}
	params, err := g.Parameters()
	if err != nil {
		return nil, err
	}
	return &model{engine: e, graph: g, loss: loss, params: params}, nil
}

func newOptimizer(cfg demoConfig, params []*autodiff.Node) (optim.Optimizer, error) {
	switch cfg.Optimizer {
	case "sgd":
		return optim.NewSGD(params, optim.SGDConfig{LR: float32(cfg.LR), Momentum: float32(cfg.Momentum)}), nil
	case "adam":
		return optim.NewAdam(params, optim.AdamConfig{LR: float32(cfg.LR)}), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", cfg.Optimizer)
	}
}

// trainDemo fits the demo model and reports the loss before and after
// training. The final loss is measured in evaluation mode.
func trainDemo(cfg demoConfig, logger *slog.Logger) (demoResult, error) {
	if cfg.Steps < 1 || cfg.Batch < 1 || cfg.Hidden < 1 {
		return demoResult{}, errors.New("steps, batch and hidden must be positive")
	}

	m, err := buildModel(cfg, logger)
	if err != nil {
		return demoResult{}, fmt.Errorf("build model: %w", err)
	}
	opt, err := newOptimizer(cfg, m.params)
	if err != nil {
		return demoResult{}, err
	}

	logger.Info("training",
		"optimizer", cfg.Optimizer,
		"steps", cfg.Steps,
		"batch", cfg.Batch,
		"hidden", cfg.Hidden,
		"nodes", m.graph.Len())

	var res demoResult
	for step := range cfg.Steps {
		if err := m.graph.ZeroGrad(); err != nil {
			return res, err
		}
		if err := m.graph.Forward(); err != nil {
			return res, fmt.Errorf("step %d: %w", step, err)
		}
		loss := m.loss.Value().At(0)
		if step == 0 {
			res.InitialLoss = loss
		}
		if err := m.graph.Backward(); err != nil {
			return res, fmt.Errorf("step %d: %w", step, err)
		}
		if err := opt.Step(); err != nil {
			return res, fmt.Errorf("step %d: %w", step, err)
		}
		if cfg.LogEvery > 0 && (step+1)%cfg.LogEvery == 0 {
			logger.Info("progress", "step", step+1, "loss", loss)
		}
	}

	m.engine.SetTraining(false)
	if err := m.graph.Forward(); err != nil {
		return res, err
	}
	res.FinalLoss = m.loss.Value().At(0)

	stats := m.engine.Arena().Stats()
	logger.Debug("arena", "capacity", stats.Capacity, "in_use", stats.InUse, "blocks", stats.Blocks)
	return res, nil
}
