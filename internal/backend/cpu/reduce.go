package cpu

import (
	"fmt"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// Reduce implements tensor.Backend. Sums are accumulated in float64.
// Min and Max report the first occurrence of the extremum.
func (cpu *CPUBackend) Reduce(op tensor.ReduceOp, mem []float32, src tensor.Operand) (float32, int) {
	n := src.NumElements()
	if n == 0 {
		panic(fmt.Sprintf("%v: empty operand", op))
	}

	switch op {
	case tensor.ReduceSum, tensor.ReduceMean:
		var sum float64
		src.Walk(func(off int) { sum += float64(mem[off]) })
		if op == tensor.ReduceMean {
			sum /= float64(n)
		}
		return float32(sum), 0

	case tensor.ReduceMin, tensor.ReduceMax:
		best, bestIdx := mem[src.OffsetOf(0)], 0
		i := 0
		src.Walk(func(off int) {
			v := mem[off]
			if (op == tensor.ReduceMin && v < best) || (op == tensor.ReduceMax && v > best) {
				best, bestIdx = v, i
			}
			i++
		})
		return best, bestIdx

	default:
		panic(fmt.Sprintf("reduce: unknown op %v", op))
	}
}
