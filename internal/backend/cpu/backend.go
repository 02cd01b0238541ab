// Package cpu implements the CPU compute backend: elementwise function tables,
// strided loops, gonum BLAS matrix products and whole-tensor reductions.
package cpu

import (
	"fmt"

	"github.com/born-ml/gradgraph/internal/parallel"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// Verify that CPUBackend implements tensor.Backend.
var _ tensor.Backend = (*CPUBackend)(nil)

// CPUBackend runs kernels on the arena buffer in the calling goroutine,
// splitting large non-accumulating loops into parallel chunks.
type CPUBackend struct {
	parallel parallel.Config
}

// New creates a CPU backend with the default parallel configuration.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with a custom parallel configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{parallel: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "cpu"
}

// Binary implements tensor.Backend.
func (cpu *CPUBackend) Binary(k tensor.BinaryKernel, mem []float32, dst, a, b tensor.Operand) {
	if int(k.Op) < 0 || int(k.Op) >= len(binaryFuncs) {
		panic(fmt.Sprintf("binary: unknown op %v", k.Op))
	}
	f := binaryFuncs[k.Op]
	n := dst.NumElements()

	switch k.Class {
	case tensor.ClassPairwise:
		cpu.chunks(n, func(lo, hi int) {
			d := mem[dst.Offset+lo : dst.Offset+hi]
			x := mem[a.Offset+lo : a.Offset+hi]
			y := mem[b.Offset+lo : b.Offset+hi]
			if k.Accumulate {
				for i := range d {
					d[i] += f(x[i], y[i])
				}
				return
			}
			for i := range d {
				d[i] = f(x[i], y[i])
			}
		})

	case tensor.ClassScalar:
		s := mem[b.Offset]
		cpu.chunks(n, func(lo, hi int) {
			d := mem[dst.Offset+lo : dst.Offset+hi]
			x := mem[a.Offset+lo : a.Offset+hi]
			if k.Accumulate {
				for i := range d {
					d[i] += f(x[i], s)
				}
				return
			}
			for i := range d {
				d[i] = f(x[i], s)
			}
		})

	case tensor.ClassBroadcast:
		cpu.chunks(n, func(lo, hi int) {
			c := newCursor(dst.Shape, lo, dst, a, b)
			for i := lo; i < hi; i++ {
				v := f(mem[c.offs[1]], mem[c.offs[2]])
				if k.Accumulate {
					mem[c.offs[0]] += v
				} else {
					mem[c.offs[0]] = v
				}
				c.next()
			}
		})

	case tensor.ClassDebroadcast:
		// Several iteration points share one destination element, so this
		// runs sequentially.
		if !k.Accumulate {
			zero(mem, dst)
		}
		c := newCursor(dst.Shape, 0, dst, a, b)
		for i := 0; i < n; i++ {
			mem[c.offs[0]] += f(mem[c.offs[1]], mem[c.offs[2]])
			c.next()
		}

	default:
		panic(fmt.Sprintf("binary: unknown class %v", k.Class))
	}
}

// Unary implements tensor.Backend.
func (cpu *CPUBackend) Unary(k tensor.UnaryKernel, mem []float32, dst, src tensor.Operand, param float32) {
	if int(k.Op) < 0 || int(k.Op) >= len(unaryFuncs) {
		panic(fmt.Sprintf("unary: unknown op %v", k.Op))
	}
	f := unaryFuncs[k.Op]
	n := dst.NumElements()

	switch k.Class {
	case tensor.ClassPairwise:
		cpu.chunks(n, func(lo, hi int) {
			d := mem[dst.Offset+lo : dst.Offset+hi]
			x := mem[src.Offset+lo : src.Offset+hi]
			if k.Accumulate {
				for i := range d {
					d[i] += f(x[i], param)
				}
				return
			}
			for i := range d {
				d[i] = f(x[i], param)
			}
		})

	case tensor.ClassScalar:
		v := f(mem[src.Offset], param)
		cpu.chunks(n, func(lo, hi int) {
			d := mem[dst.Offset+lo : dst.Offset+hi]
			if k.Accumulate {
				for i := range d {
					d[i] += v
				}
				return
			}
			for i := range d {
				d[i] = v
			}
		})

	case tensor.ClassBroadcast:
		cpu.chunks(n, func(lo, hi int) {
			c := newCursor(dst.Shape, lo, dst, src)
			for i := lo; i < hi; i++ {
				v := f(mem[c.offs[1]], param)
				if k.Accumulate {
					mem[c.offs[0]] += v
				} else {
					mem[c.offs[0]] = v
				}
				c.next()
			}
		})

	case tensor.ClassDebroadcast:
		if !k.Accumulate {
			zero(mem, dst)
		}
		c := newCursor(dst.Shape, 0, dst, src)
		for i := 0; i < n; i++ {
			mem[c.offs[0]] += f(mem[c.offs[1]], param)
			c.next()
		}

	default:
		panic(fmt.Sprintf("unary: unknown class %v", k.Class))
	}
}

// Fill implements tensor.Backend.
func (cpu *CPUBackend) Fill(mem []float32, dst tensor.Operand, v float32) {
	if dst.Contiguous() {
		cpu.chunks(dst.NumElements(), func(lo, hi int) {
			d := mem[dst.Offset+lo : dst.Offset+hi]
			for i := range d {
				d[i] = v
			}
		})
		return
	}
	dst.Walk(func(off int) { mem[off] = v })
}

func (cpu *CPUBackend) chunks(n int, f func(lo, hi int)) {
	parallel.ForRange(n, f, cpu.parallel)
}

// zero clears every element addressed by op.
func zero(mem []float32, op tensor.Operand) {
	op.Walk(func(off int) { mem[off] = 0 })
}
