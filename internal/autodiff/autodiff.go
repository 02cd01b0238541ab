// Package autodiff implements reverse-mode automatic differentiation over an
// explicit graph of nodes.
//
// Architecture:
//   - Engine: owns the arena, the compute backend and the RNG state shared by
//     every node it creates
//   - Node: a tagged variant (Kind) holding a primal value, an optional
//     gradient and private scratch tensors; forward and backward rules live in
//     one dispatch table indexed by Kind
//   - Graph: a snapshot of one connected component with a cached topological
//     order, replayed ascending for Forward and descending for Backward
//
// Values are computed eagerly when a node is constructed and recomputed by
// Graph.Forward. Gradients accumulate; call Graph.ZeroGrad before a fresh
// backward pass.
//
// Usage:
//
//	e := autodiff.New(cpu.New(), autodiff.DefaultConfig())
//	x, _ := e.Parameter(tensor.Shape{3}, []float32{1, 2, 3})
//	y, _ := e.Constant(tensor.Shape{3}, []float32{1, 1, 1})
//	loss, _ := e.MSE(x, y)
//	g, _ := loss.Graph()
//	_ = g.Backward()
//	fmt.Println(x.Grad().Values()) // [0 0.6666667 1.3333334]
package autodiff

import (
	"log/slog"

	"github.com/born-ml/gradgraph/internal/arena"
	"github.com/born-ml/gradgraph/internal/rng"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// Config controls engine construction.
type Config struct {
	Seed          uint64       // RNG seed for initializers and dropout masks.
	ArenaCapacity int          // Initial arena size in elements.
	Training      bool         // Dropout is active only in training mode.
	Logger        *slog.Logger // Defaults to slog.Default().
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Seed:          0,
		ArenaCapacity: arena.DefaultCapacity,
		Training:      true,
	}
}

// Engine creates nodes and owns the state they share.
// It is not safe for concurrent use.
type Engine struct {
	backend  tensor.Backend
	arena    *arena.Arena
	rng      *rng.Source
	training bool
	logger   *slog.Logger

	version uint64 // bumped on every topology change
	nextID  int
}

// New creates an engine dispatching all math to backend.
func New(backend tensor.Backend, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ar := arena.New(cfg.ArenaCapacity)
	ar.SetLogger(logger)

	return &Engine{
		backend:  backend,
		arena:    ar,
		rng:      rng.New(cfg.Seed),
		training: cfg.Training,
		logger:   logger,
	}
}

// Backend returns the compute backend.
func (e *Engine) Backend() tensor.Backend { return e.backend }

// Arena returns the memory arena holding every tensor of the engine.
func (e *Engine) Arena() *arena.Arena { return e.arena }

// RNG returns the engine's random source.
func (e *Engine) RNG() *rng.Source { return e.rng }

// Seed reseeds the engine's random source.
func (e *Engine) Seed(seed uint64) { e.rng.Seed(seed) }

// SetTraining switches between training and evaluation mode.
func (e *Engine) SetTraining(training bool) { e.training = training }

// Training reports whether the engine is in training mode.
func (e *Engine) Training() bool { return e.training }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Tensor allocates a tensor in the engine's arena.
func (e *Engine) Tensor(shape tensor.Shape, data []float32) (*tensor.RawTensor, error) {
	return tensor.New(e.arena, shape, data)
}

// touch invalidates every cached graph.
func (e *Engine) touch() {
	e.version++
}
