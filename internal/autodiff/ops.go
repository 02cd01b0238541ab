package autodiff

import (
	"errors"
	"fmt"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// Init selects how ParameterInit fills a new parameter.
type Init int

// Parameter initializers. Fan-in is the row count and fan-out the column
// count of the parameter shape.
const (
	InitZeros Init = iota
	InitXavierUniform
	InitXavierNormal
	InitHeUniform
	InitHeNormal
)

func (e *Engine) newNode(kind Kind, parents ...*Node) (*Node, error) {
	for _, p := range parents {
		if p == nil {
			return nil, fmt.Errorf("%v: nil operand", kind)
		}
		if p.engine != e {
			return nil, fmt.Errorf("%v: operand %v belongs to another engine", kind, p)
		}
	}
	e.nextID++
	return &Node{id: e.nextID, kind: kind, engine: e, parents: parents}, nil
}

// newLeaf creates a parentless node.
func (e *Engine) newLeaf(kind Kind) *Node {
	e.nextID++
	return &Node{id: e.nextID, kind: kind, engine: e}
}

func anyGrad(parents []*Node) bool {
	for _, p := range parents {
		if p.grad != nil {
			return true
		}
	}
	return false
}

// alloc gives n an owned value of the given shape and, if grad, a gradient.
func (n *Node) alloc(shape tensor.Shape, data []float32, grad bool) error {
	v, err := n.engine.Tensor(shape, data)
	if err != nil {
		return err
	}
	n.value = v
	if grad {
		if n.grad, err = n.engine.Tensor(shape, nil); err != nil {
			return errors.Join(err, n.freeTensors())
		}
	}
	return nil
}

func (n *Node) addInterim(shape tensor.Shape) error {
	t, err := n.engine.Tensor(shape, nil)
	if err != nil {
		return err
	}
	n.interim = append(n.interim, t)
	return nil
}

// attach computes the first value of n and links it under its parents.
// On failure every tensor n owns is released.
func (e *Engine) attach(n *Node, err error) (*Node, error) {
	if err == nil {
		err = n.Forward()
	}
	if err != nil {
		return nil, errors.Join(err, n.freeTensors())
	}
	for _, p := range n.parents {
		p.addChild(n)
	}
	e.touch()
	return n, nil
}

// Constant creates a node holding data that never receives a gradient.
func (e *Engine) Constant(shape tensor.Shape, data []float32) (*Node, error) {
	n := e.newLeaf(KindConstant)
	return e.attach(n, n.alloc(shape, data, false))
}

// Parameter creates a trainable leaf holding data.
func (e *Engine) Parameter(shape tensor.Shape, data []float32) (*Node, error) {
	n := e.newLeaf(KindParameter)
	return e.attach(n, n.alloc(shape, data, true))
}

// ParameterInit creates a trainable leaf filled from the engine's RNG.
func (e *Engine) ParameterInit(shape tensor.Shape, init Init) (*Node, error) {
	n := e.newLeaf(KindParameter)
	if err := n.alloc(shape, nil, true); err != nil {
		return nil, err
	}
	dst := n.value.Data()
	fanIn, fanOut := shape.Rows(), shape.Cols()
	switch init {
	case InitZeros:
	case InitXavierUniform:
		e.rng.XavierUniform(dst, fanIn, fanOut)
	case InitXavierNormal:
		e.rng.XavierNormal(dst, fanIn, fanOut)
	case InitHeUniform:
		e.rng.HeUniform(dst, fanIn)
	case InitHeNormal:
		e.rng.HeNormal(dst, fanIn)
	default:
		return e.attach(n, fmt.Errorf("parameter: unknown initializer %d", init))
	}
	return e.attach(n, nil)
}

// Source creates a leaf whose value is pulled from producer on every forward
// pass. The producer must always return tensors of the given shape.
func (e *Engine) Source(shape tensor.Shape, producer Producer) (*Node, error) {
	if producer == nil {
		return nil, errors.New("source: nil producer")
	}
	n := e.newLeaf(KindSource)
	n.producer = producer
	return e.attach(n, n.alloc(shape, nil, false))
}

// Input creates a placeholder that copies the value of a parent attached
// later with Connect. Input nodes always carry a gradient.
func (e *Engine) Input(shape tensor.Shape) (*Node, error) {
	n := e.newLeaf(KindInput)
	if err := n.alloc(shape, nil, true); err != nil {
		return nil, err
	}
	e.touch()
	return n, nil
}

func (e *Engine) binary(kind Kind, a, b *Node) (*Node, error) {
	n, err := e.newNode(kind, a, b)
	if err != nil {
		return nil, err
	}
	shape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, fmt.Errorf("%v: %w", kind, err)
	}
	if err := n.alloc(shape, nil, anyGrad(n.parents)); err != nil {
		return nil, err
	}
	if kind == KindDiv || kind == KindPow {
		err = n.addInterim(shape)
	}
	return e.attach(n, err)
}

func (e *Engine) binaryScalar(kind Kind, a *Node, s float32) (*Node, error) {
	c, err := e.Constant(tensor.Shape{1}, []float32{s})
	if err != nil {
		return nil, err
	}
	n, err := e.binary(kind, a, c)
	if err != nil {
		return nil, errors.Join(err, c.Release())
	}
	return n, nil
}

// Add returns a + b with broadcasting.
func (e *Engine) Add(a, b *Node) (*Node, error) { return e.binary(KindAdd, a, b) }

// Sub returns a - b with broadcasting.
func (e *Engine) Sub(a, b *Node) (*Node, error) { return e.binary(KindSub, a, b) }

// Mul returns a * b elementwise with broadcasting.
func (e *Engine) Mul(a, b *Node) (*Node, error) { return e.binary(KindMul, a, b) }

// Div returns a / b elementwise with broadcasting.
func (e *Engine) Div(a, b *Node) (*Node, error) { return e.binary(KindDiv, a, b) }

// Pow returns a raised to b elementwise with broadcasting.
func (e *Engine) Pow(a, b *Node) (*Node, error) { return e.binary(KindPow, a, b) }

// AddScalar returns a + s. The scalar becomes a constant parent node.
func (e *Engine) AddScalar(a *Node, s float32) (*Node, error) { return e.binaryScalar(KindAdd, a, s) }

// SubScalar returns a - s.
func (e *Engine) SubScalar(a *Node, s float32) (*Node, error) { return e.binaryScalar(KindSub, a, s) }

// MulScalar returns a * s.
func (e *Engine) MulScalar(a *Node, s float32) (*Node, error) { return e.binaryScalar(KindMul, a, s) }

// DivScalar returns a / s.
func (e *Engine) DivScalar(a *Node, s float32) (*Node, error) { return e.binaryScalar(KindDiv, a, s) }

// PowScalar returns a raised to s.
func (e *Engine) PowScalar(a *Node, s float32) (*Node, error) { return e.binaryScalar(KindPow, a, s) }

// MatMul returns the batched matrix product of a and b. Vectors are extended
// to a row (left) or a column (right) and the extra axis is kept.
func (e *Engine) MatMul(a, b *Node) (*Node, error) {
	n, err := e.newNode(KindMatMul, a, b)
	if err != nil {
		return nil, err
	}
	shape, err := tensor.MatMulShape(a.Shape(), b.Shape())
	if err != nil {
		return nil, err
	}
	return e.attach(n, n.alloc(shape, nil, anyGrad(n.parents)))
}

// Dot returns the NumPy-style dot product of a and b.
func (e *Engine) Dot(a, b *Node) (*Node, error) {
	n, err := e.newNode(KindDot, a, b)
	if err != nil {
		return nil, err
	}
	shape, err := tensor.DotShape(a.Shape(), b.Shape())
	if err != nil {
		return nil, err
	}
	return e.attach(n, n.alloc(shape, nil, anyGrad(n.parents)))
}

// Transpose returns a view of a with permuted axes; the default permutation
// reverses them. The gradient is the same view of a's gradient. The value view
// is rebuilt on every forward pass so it follows parents that move, such as
// Min and Max.
func (e *Engine) Transpose(a *Node, perm ...int) (*Node, error) {
	n, err := e.newNode(KindTranspose, a)
	if err != nil {
		return nil, err
	}
	if len(perm) > 0 {
		n.perm = append([]int(nil), perm...)
	}
	if n.value, err = a.value.Transpose(n.perm...); err != nil {
		return nil, err
	}
	if a.grad != nil {
		if n.grad, err = a.grad.Transpose(n.perm...); err != nil {
			return nil, err
		}
	}
	return e.attach(n, nil)
}

func (e *Engine) selectNode(kind Kind, a *Node) (*Node, error) {
	n, err := e.newNode(kind, a)
	if err != nil {
		return nil, err
	}
	if a.value.NumElements() == 0 {
		return nil, fmt.Errorf("%v: %w", kind, tensor.ErrEmptyTensor)
	}
	if n.value, err = a.value.PointerAt(0); err != nil {
		return nil, err
	}
	if a.grad != nil {
		if n.grad, err = e.Tensor(tensor.Shape{1}, nil); err != nil {
			return nil, err
		}
	}
	return e.attach(n, nil)
}

// Min returns a one-element view of the first minimal element of a.
func (e *Engine) Min(a *Node) (*Node, error) { return e.selectNode(KindMin, a) }

// Max returns a one-element view of the first maximal element of a.
func (e *Engine) Max(a *Node) (*Node, error) { return e.selectNode(KindMax, a) }

func (e *Engine) reduce(kind Kind, a *Node) (*Node, error) {
	n, err := e.newNode(kind, a)
	if err != nil {
		return nil, err
	}
	return e.attach(n, n.alloc(tensor.Shape{1}, nil, anyGrad(n.parents)))
}

// Sum returns the sum of all elements of a.
func (e *Engine) Sum(a *Node) (*Node, error) { return e.reduce(KindSum, a) }

// Mean returns the mean of all elements of a.
func (e *Engine) Mean(a *Node) (*Node, error) { return e.reduce(KindMean, a) }

// MSE returns mean((a-b)²) with broadcasting.
func (e *Engine) MSE(a, b *Node) (*Node, error) {
	n, err := e.newNode(KindMSE, a, b)
	if err != nil {
		return nil, err
	}
	shape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, fmt.Errorf("mse: %w", err)
	}
	if err := n.alloc(tensor.Shape{1}, nil, anyGrad(n.parents)); err != nil {
		return nil, err
	}
	return e.attach(n, n.addInterim(shape))
}

// Unary applies an elementwise op to a. Ceil, Floor, Binstep and Sign block
// gradients. Scale, Shift and the derivative ops are rejected with
// ErrUnsupportedOp; use MulScalar and AddScalar instead of Scale and Shift.
func (e *Engine) Unary(op tensor.UnaryOp, a *Node) (*Node, error) {
	if op < 0 || int(op) >= tensor.NumUnaryOps {
		return nil, fmt.Errorf("unary: unknown op %d", op)
	}
	if !nodeOp(op) {
		return nil, fmt.Errorf("unary: %v: %w", op, ErrUnsupportedOp)
	}
	n, err := e.newNode(KindUnary, a)
	if err != nil {
		return nil, err
	}
	n.op = op
	grad := a.grad != nil && differentiable(op)
	if err := n.alloc(a.Shape(), nil, grad); err != nil {
		return nil, err
	}
	if grad && needsScratch(op) {
		err = n.addInterim(a.Shape())
	}
	return e.attach(n, err)
}

// Square returns x².
func (e *Engine) Square(a *Node) (*Node, error) { return e.Unary(tensor.OpSquare, a) }

// Recip returns 1/x.
func (e *Engine) Recip(a *Node) (*Node, error) { return e.Unary(tensor.OpRecip, a) }

// Exp returns eˣ.
func (e *Engine) Exp(a *Node) (*Node, error) { return e.Unary(tensor.OpExp, a) }

// Log returns ln(x).
func (e *Engine) Log(a *Node) (*Node, error) { return e.Unary(tensor.OpLog, a) }

// Sqrt returns √x.
func (e *Engine) Sqrt(a *Node) (*Node, error) { return e.Unary(tensor.OpSqrt, a) }

// Sin returns sin(x).
func (e *Engine) Sin(a *Node) (*Node, error) { return e.Unary(tensor.OpSin, a) }

// Cos returns cos(x).
func (e *Engine) Cos(a *Node) (*Node, error) { return e.Unary(tensor.OpCos, a) }

// Tanh returns tanh(x).
func (e *Engine) Tanh(a *Node) (*Node, error) { return e.Unary(tensor.OpTanh, a) }

// Sigmoid returns 1/(1+e⁻ˣ).
func (e *Engine) Sigmoid(a *Node) (*Node, error) { return e.Unary(tensor.OpSigmoid, a) }

// ReLU returns max(x, 0).
func (e *Engine) ReLU(a *Node) (*Node, error) { return e.Unary(tensor.OpReLU, a) }

// Abs returns |x|.
func (e *Engine) Abs(a *Node) (*Node, error) { return e.Unary(tensor.OpAbs, a) }

// Neg returns -x.
func (e *Engine) Neg(a *Node) (*Node, error) { return e.Unary(tensor.OpNeg, a) }

// Ceil rounds up. No gradient flows through it.
func (e *Engine) Ceil(a *Node) (*Node, error) { return e.Unary(tensor.OpCeil, a) }

// Floor rounds down. No gradient flows through it.
func (e *Engine) Floor(a *Node) (*Node, error) { return e.Unary(tensor.OpFloor, a) }

// Binstep returns 1 where x > 0 and 0 elsewhere. No gradient flows through it.
func (e *Engine) Binstep(a *Node) (*Node, error) { return e.Unary(tensor.OpBinstep, a) }

// Sign returns -1, 0 or 1 by the sign of x. No gradient flows through it.
func (e *Engine) Sign(a *Node) (*Node, error) { return e.Unary(tensor.OpSign, a) }

// Dropout zeroes elements of a with probability rate and scales the rest by
// 1/(1-rate). A fresh mask is drawn on every forward pass in training mode.
func (e *Engine) Dropout(a *Node, rate float32) (*Node, error) {
	if err := checkRate(rate); err != nil {
		return nil, err
	}
	n, err := e.newNode(KindDropout, a)
	if err != nil {
		return nil, err
	}
	n.rate = rate
	if err := n.alloc(a.Shape(), nil, anyGrad(n.parents)); err != nil {
		return nil, err
	}
	return e.attach(n, n.addInterim(a.Shape()))
}
