package tensor

import "fmt"

// Backend is the compute function table every tensor operation is dispatched
// through. The tensor layer only performs shape inference, mode selection and
// offset computation; the backend performs all elementwise math directly on the
// arena buffer.
//
// Operands passed to a Backend have already been validated. Implementations
// may panic on inconsistent operands but never return errors.
type Backend interface {
	// Name returns a short identifier such as "cpu".
	Name() string

	// Binary computes dst = a op b (or dst += a op b when k.Accumulate).
	Binary(k BinaryKernel, mem []float32, dst, a, b Operand)

	// Unary computes dst = op(src; param) (or dst += ... when k.Accumulate).
	Unary(k UnaryKernel, mem []float32, dst, src Operand, param float32)

	// MatMul computes one 2-D product dst = a·b (or dst += a·b).
	// All three operands are rank 2 and may be strided.
	MatMul(mem []float32, dst, a, b Operand, accumulate bool)

	// Reduce folds src into a scalar and returns it along with the logical
	// index of the selected element for ReduceMin/ReduceMax (0 otherwise).
	Reduce(op ReduceOp, mem []float32, src Operand) (float32, int)

	// Fill sets every element addressed by dst to v.
	Fill(mem []float32, dst Operand, v float32)
}

// Operand addresses a strided region of the arena buffer.
type Operand struct {
	Offset  int
	Shape   Shape
	Strides []int
}

// NumElements returns the number of logically addressed elements.
func (o Operand) NumElements() int {
	return o.Shape.NumElements()
}

// OffsetOf returns the buffer offset of the element at logical (row-major)
// index flat.
func (o Operand) OffsetOf(flat int) int {
	off := o.Offset
	for i := len(o.Shape) - 1; i >= 0 && flat > 0; i-- {
		d := o.Shape[i]
		off += (flat % d) * o.Strides[i]
		flat /= d
	}
	return off
}

// Walk calls fn with the buffer offset of every element in logical order.
func (o Operand) Walk(fn func(off int)) {
	o.WalkRange(0, o.NumElements(), fn)
}

// WalkRange calls fn with the buffer offsets of the elements at logical indices
// [lo, hi).
func (o Operand) WalkRange(lo, hi int, fn func(off int)) {
	if lo >= hi {
		return
	}
	rank := len(o.Shape)
	idx := make([]int, rank)
	rem := lo
	for i := rank - 1; i >= 0; i-- {
		idx[i] = rem % o.Shape[i]
		rem /= o.Shape[i]
	}
	off := o.OffsetOf(lo)

	for n := lo; n < hi; n++ {
		fn(off)
		for i := rank - 1; i >= 0; i-- {
			idx[i]++
			off += o.Strides[i]
			if idx[i] < o.Shape[i] {
				break
			}
			off -= idx[i] * o.Strides[i]
			idx[i] = 0
		}
	}
}

// Contiguous reports whether the operand addresses a dense row-major block.
func (o Operand) Contiguous() bool {
	expected := 1
	for i := len(o.Shape) - 1; i >= 0; i-- {
		if o.Shape[i] == 1 {
			continue
		}
		if o.Strides[i] != expected {
			return false
		}
		expected *= o.Shape[i]
	}
	return true
}

// Class selects the loop shape a kernel runs with.
type Class int

// Kernel classes.
const (
	// ClassScalar: dst and a are contiguous with equal element counts, b is a
	// single element at b.Offset.
	ClassScalar Class = iota
	// ClassPairwise: all operands are contiguous with equal element counts.
	ClassPairwise
	// ClassBroadcast: all operands share one iteration shape; repeated axes
	// carry stride 0. dst never repeats an element.
	ClassBroadcast
	// ClassDebroadcast: like ClassBroadcast, but dst carries stride 0 on the
	// reduced axes, so results are summed into it.
	ClassDebroadcast
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassScalar:
		return "scalar"
	case ClassPairwise:
		return "pairwise"
	case ClassBroadcast:
		return "broadcast"
	case ClassDebroadcast:
		return "debroadcast"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// BinaryOp enumerates elementwise binary operations.
type BinaryOp int

// Binary operations.
const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpPow
)

var binaryNames = [...]string{"add", "sub", "mul", "div", "pow"}

// String returns the operation name.
func (op BinaryOp) String() string {
	if int(op) < len(binaryNames) {
		return binaryNames[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// UnaryOp enumerates elementwise unary operations. Ops taking a parameter
// (Scale, Shift) read it from the param argument of Backend.Unary.
type UnaryOp int

// Unary operations.
const (
	OpIdentity UnaryOp = iota
	OpNeg
	OpScale // x * p
	OpShift // x + p
	OpSquare
	OpRecip
	OpExp
	OpLog
	OpSqrt
	OpSin
	OpCos
	OpTanh
	OpSigmoid
	OpReLU
	OpAbs
	OpCeil
	OpFloor
	OpBinstep // 1 if x > 0, else 0
	OpSign

	// Derivatives of the ops above, evaluated at the forward input.
	OpSqrtGrad    // 0.5 / sqrt(x)
	OpNegSin      // -sin(x)
	OpTanhGrad    // 1 - tanh(x)^2
	OpSigmoidGrad // sigmoid(x) * (1 - sigmoid(x))
	OpReLUGrad    // 1 if x > 0, else 0

	numUnaryOps
)

var unaryNames = [...]string{
	"identity", "neg", "scale", "shift", "square", "recip", "exp", "log", "sqrt",
	"sin", "cos", "tanh", "sigmoid", "relu", "abs", "ceil", "floor", "binstep", "sign",
	"sqrt_grad", "neg_sin", "tanh_grad", "sigmoid_grad", "relu_grad",
}

// NumUnaryOps is the number of defined unary operations.
const NumUnaryOps = int(numUnaryOps)

// String returns the operation name.
func (op UnaryOp) String() string {
	if int(op) < len(unaryNames) {
		return unaryNames[op]
	}
	return fmt.Sprintf("UnaryOp(%d)", int(op))
}

// ReduceOp enumerates whole-tensor reductions.
type ReduceOp int

// Reductions.
const (
	ReduceSum ReduceOp = iota
	ReduceMean
	ReduceMin
	ReduceMax
)

// String returns the reduction name.
func (op ReduceOp) String() string {
	switch op {
	case ReduceSum:
		return "sum"
	case ReduceMean:
		return "mean"
	case ReduceMin:
		return "min"
	case ReduceMax:
		return "max"
	default:
		return fmt.Sprintf("ReduceOp(%d)", int(op))
	}
}

// BinaryKernel selects one entry of the binary function table.
type BinaryKernel struct {
	Op         BinaryOp
	Class      Class
	Accumulate bool
}

// UnaryKernel selects one entry of the unary function table.
type UnaryKernel struct {
	Op         UnaryOp
	Class      Class
	Accumulate bool
}
