// Package parallel provides the chunked parallel-for used by the CPU kernels.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 4096,
	}
}

// Sequential returns a configuration that never spawns goroutines.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// ForRange splits [0, n) into disjoint chunks and calls f(lo, hi) for each,
// concurrently when the work is large enough. It returns after every chunk has
// completed.
func ForRange(n int, f func(lo, hi int), cfg Config) {
	if n <= 0 {
		return
	}
	workers := max(cfg.NumWorkers, 1)
	if !cfg.Enabled || workers == 1 || n < 2*max(cfg.MinChunkSize, 1) {
		f(0, n)
		return
	}

	chunkSize := max((n+workers-1)/workers, cfg.MinChunkSize)

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunkSize {
		lo, hi := start, min(start+chunkSize, n)
		g.Go(func() error {
			f(lo, hi)
			return nil
		})
	}
	_ = g.Wait() // chunks never fail
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	ForRange(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			f(i)
		}
	}, cfg)
}
