package cpu

import (
	"github.com/born-ml/gradgraph/internal/tensor"
)

// cursor walks several operands over one iteration shape in row-major order,
// tracking the buffer offset of each operand.
type cursor struct {
	shape tensor.Shape
	idx   []int
	ops   []tensor.Operand
	offs  []int
}

// newCursor positions a cursor at logical index lo of shape. Every operand
// must be addressed over shape (same rank, broadcast strides already applied).
func newCursor(shape tensor.Shape, lo int, ops ...tensor.Operand) *cursor {
	c := &cursor{
		shape: shape,
		idx:   make([]int, len(shape)),
		ops:   ops,
		offs:  make([]int, len(ops)),
	}
	rem := lo
	for i := len(shape) - 1; i >= 0; i-- {
		c.idx[i] = rem % shape[i]
		rem /= shape[i]
	}
	for k, op := range ops {
		c.offs[k] = op.OffsetOf(lo)
	}
	return c
}

// next advances to the following logical index.
func (c *cursor) next() {
	for i := len(c.shape) - 1; i >= 0; i-- {
		c.idx[i]++
		if c.idx[i] < c.shape[i] {
			for k := range c.ops {
				c.offs[k] += c.ops[k].Strides[i]
			}
			return
		}
		for k := range c.ops {
			c.offs[k] -= (c.shape[i] - 1) * c.ops[k].Strides[i]
		}
		c.idx[i] = 0
	}
}
