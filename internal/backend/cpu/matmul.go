package cpu

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// MatMul computes dst = a·b (dst += a·b when accumulate) for 2-D operands
// using SGEMM. Strided operands are passed to BLAS directly when their layout
// is row-major or transposed row-major; anything else is packed first.
func (cpu *CPUBackend) MatMul(mem []float32, dst, a, b tensor.Operand, accumulate bool) {
	ga, ta := operandMatrix(mem, a)
	gb, tb := operandMatrix(mem, b)

	var beta float32
	if accumulate {
		beta = 1
	}

	if gc, ok := rowMajor(mem, dst); ok {
		blas32.Gemm(ta, tb, 1, ga, gb, beta, gc)
		return
	}

	// Destination layout is not representable: compute through a dense
	// buffer and scatter back.
	gc := pack(mem, dst)
	blas32.Gemm(ta, tb, 1, ga, gb, beta, gc)
	i := 0
	dst.Walk(func(off int) {
		mem[off] = gc.Data[i]
		i++
	})
}

// rowMajor describes op as a NoTrans matrix over mem when possible.
func rowMajor(mem []float32, op tensor.Operand) (blas32.General, bool) {
	r, c := op.Shape[0], op.Shape[1]
	s0, s1 := op.Strides[0], op.Strides[1]
	if r == 1 {
		s0 = max(c, 1)
	}
	if c != 1 && s1 != 1 {
		return blas32.General{}, false
	}
	if s0 < max(c, 1) {
		return blas32.General{}, false
	}
	return blas32.General{Rows: r, Cols: c, Stride: s0, Data: mem[op.Offset:]}, true
}

// transposed describes op as the transpose of a row-major matrix when possible.
func transposed(mem []float32, op tensor.Operand) (blas32.General, bool) {
	r, c := op.Shape[0], op.Shape[1]
	s0, s1 := op.Strides[0], op.Strides[1]
	if c == 1 {
		s1 = max(r, 1)
	}
	if r != 1 && s0 != 1 {
		return blas32.General{}, false
	}
	if s1 < max(r, 1) {
		return blas32.General{}, false
	}
	return blas32.General{Rows: c, Cols: r, Stride: s1, Data: mem[op.Offset:]}, true
}

// operandMatrix returns a BLAS view of op together with the transpose flag
// that recovers op's logical layout.
func operandMatrix(mem []float32, op tensor.Operand) (blas32.General, blas.Transpose) {
	if g, ok := rowMajor(mem, op); ok {
		return g, blas.NoTrans
	}
	if g, ok := transposed(mem, op); ok {
		return g, blas.Trans
	}
	return pack(mem, op), blas.NoTrans
}

// pack copies op into a fresh dense row-major matrix.
func pack(mem []float32, op tensor.Operand) blas32.General {
	r, c := op.Shape[0], op.Shape[1]
	g := blas32.General{Rows: r, Cols: c, Stride: max(c, 1), Data: make([]float32, max(r*c, 1))}
	i := 0
	op.Walk(func(off int) {
		g.Data[i] = mem[off]
		i++
	})
	return g
}
