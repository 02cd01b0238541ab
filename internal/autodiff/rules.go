package autodiff

import (
	"errors"
	"fmt"

	"github.com/born-ml/gradgraph/internal/rng"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// rule is the behavior of one node variant.
//
// A nil forward leaves the value untouched; a nil backward stops gradient flow.
// Rule functions must not refer to the rules table.
type rule struct {
	name     string
	forward  func(n *Node) error
	backward func(n *Node) error
}

var rules = [numKinds]rule{
	KindConstant:  {name: "constant"},
	KindParameter: {name: "parameter"},
	KindSource:    {name: "source", forward: forwardSource},
	KindInput:     {name: "input", forward: forwardInput, backward: backwardInput},
	KindAdd:       {name: "add", forward: forwardBinary(tensor.OpAdd), backward: backwardAdd},
	KindSub:       {name: "sub", forward: forwardBinary(tensor.OpSub), backward: backwardSub},
	KindMul:       {name: "mul", forward: forwardBinary(tensor.OpMul), backward: backwardMul},
	KindDiv:       {name: "div", forward: forwardBinary(tensor.OpDiv), backward: backwardDiv},
	KindPow:       {name: "pow", forward: forwardBinary(tensor.OpPow), backward: backwardPow},
	KindMatMul:    {name: "matmul", forward: forwardMatMul, backward: backwardMatMul},
	KindDot:       {name: "dot", forward: forwardDot, backward: backwardDot},
	KindTranspose: {name: "transpose", forward: forwardTranspose},
	KindMin:       {name: "min", forward: forwardSelect(tensor.ReduceMin), backward: backwardSelect},
	KindMax:       {name: "max", forward: forwardSelect(tensor.ReduceMax), backward: backwardSelect},
	KindSum:       {name: "sum", forward: forwardReduce(tensor.ReduceSum), backward: backwardSum},
	KindMean:      {name: "mean", forward: forwardReduce(tensor.ReduceMean), backward: backwardMean},
	KindMSE:       {name: "mse", forward: forwardMSE, backward: backwardMSE},
	KindUnary:     {name: "unary", forward: forwardUnary, backward: backwardUnary},
	KindDropout:   {name: "dropout", forward: forwardDropout, backward: backwardDropout},
}

// derivatives maps an elementwise op to the op computing f'(x) from x.
var derivatives = map[tensor.UnaryOp]tensor.UnaryOp{
	tensor.OpLog:     tensor.OpRecip,
	tensor.OpSqrt:    tensor.OpSqrtGrad,
	tensor.OpSin:     tensor.OpCos,
	tensor.OpCos:     tensor.OpNegSin,
	tensor.OpTanh:    tensor.OpTanhGrad,
	tensor.OpSigmoid: tensor.OpSigmoidGrad,
	tensor.OpReLU:    tensor.OpReLUGrad,
	tensor.OpAbs:     tensor.OpSign,
}

// nodeOp reports whether op can back a Unary node. Scale and Shift need a
// parameter the node does not store, and the derivative ops are internal.
func nodeOp(op tensor.UnaryOp) bool {
	switch op {
	case tensor.OpScale, tensor.OpShift:
		return false
	}
	return op >= 0 && op <= tensor.OpSign
}

// differentiable reports whether gradients flow through op.
func differentiable(op tensor.UnaryOp) bool {
	switch op {
	case tensor.OpIdentity, tensor.OpNeg, tensor.OpExp, tensor.OpSquare, tensor.OpRecip:
		return true
	}
	_, ok := derivatives[op]
	return ok
}

// needsScratch reports whether the backward rule of op writes an interim.
func needsScratch(op tensor.UnaryOp) bool {
	switch op {
	case tensor.OpSquare, tensor.OpRecip:
		return true
	}
	_, ok := derivatives[op]
	return ok
}

// accumulate adds src into the gradient of p, summing over broadcast axes.
func accumulate(n, p *Node, op tensor.UnaryOp, src *tensor.RawTensor, param float32) error {
	if p.grad == nil {
		return nil
	}
	_, err := tensor.Unary(n.engine.backend, op, src, p.grad, param, true)
	return err
}

// accumulateProduct adds x*y into the gradient of p.
func accumulateProduct(n, p *Node, x, y *tensor.RawTensor) error {
	if p.grad == nil {
		return nil
	}
	_, err := tensor.Binary(n.engine.backend, tensor.OpMul, x, y, p.grad, true)
	return err
}

func forwardSource(n *Node) error {
	t, err := n.producer()
	if err != nil {
		return err
	}
	if t.Arena() != n.engine.arena {
		return errors.New("producer returned a tensor from another arena")
	}
	if !t.Shape().Equal(n.value.Shape()) {
		err = &tensor.ShapeError{Op: "source", A: n.value.Shape(), B: t.Shape(), Details: "producer changed shape"}
	} else {
		err = tensor.Copy(n.engine.backend, t, n.value)
	}
	if t.Owns() {
		err = errors.Join(err, t.Free())
	}
	return err
}

func forwardInput(n *Node) error {
	if len(n.parents) == 0 {
		return ErrDisconnectedInput
	}
	return tensor.Copy(n.engine.backend, n.parents[0].value, n.value)
}

func backwardInput(n *Node) error {
	if len(n.parents) == 0 {
		return ErrDisconnectedInput
	}
	return accumulate(n, n.parents[0], tensor.OpIdentity, n.grad, 0)
}

func forwardBinary(op tensor.BinaryOp) func(n *Node) error {
	return func(n *Node) error {
		_, err := tensor.Binary(n.engine.backend, op, n.parents[0].value, n.parents[1].value, n.value, false)
		return err
	}
}

func backwardAdd(n *Node) error {
	if err := accumulate(n, n.parents[0], tensor.OpIdentity, n.grad, 0); err != nil {
		return err
	}
	return accumulate(n, n.parents[1], tensor.OpIdentity, n.grad, 0)
}

func backwardSub(n *Node) error {
	if err := accumulate(n, n.parents[0], tensor.OpIdentity, n.grad, 0); err != nil {
		return err
	}
	return accumulate(n, n.parents[1], tensor.OpNeg, n.grad, 0)
}

func backwardMul(n *Node) error {
	a, b := n.parents[0], n.parents[1]
	if err := accumulateProduct(n, a, n.grad, b.value); err != nil {
		return err
	}
	return accumulateProduct(n, b, n.grad, a.value)
}

// backwardDiv: da += g/b, db += -g*a/b² where a/b² = value/b.
func backwardDiv(n *Node) error {
	be := n.engine.backend
	a, b := n.parents[0], n.parents[1]
	if a.grad != nil {
		if _, err := tensor.Binary(be, tensor.OpDiv, n.grad, b.value, a.grad, true); err != nil {
			return err
		}
	}
	if b.grad == nil {
		return nil
	}
	s := n.interim[0]
	if _, err := tensor.Binary(be, tensor.OpDiv, n.value, b.value, s, false); err != nil {
		return err
	}
	if _, err := tensor.Binary(be, tensor.OpMul, s, n.grad, s, false); err != nil {
		return err
	}
	return accumulate(n, b, tensor.OpNeg, s, 0)
}

// backwardPow: da += g*b*a^(b-1), db += g*a^b*ln(a).
func backwardPow(n *Node) error {
	be := n.engine.backend
	a, b := n.parents[0], n.parents[1]
	s := n.interim[0]
	if a.grad != nil {
		if _, err := tensor.BinaryScalar(be, tensor.OpSub, b.value, 1, s, false); err != nil {
			return err
		}
		if _, err := tensor.Binary(be, tensor.OpPow, a.value, s, s, false); err != nil {
			return err
		}
		if _, err := tensor.Binary(be, tensor.OpMul, s, b.value, s, false); err != nil {
			return err
		}
		if err := accumulateProduct(n, a, s, n.grad); err != nil {
			return err
		}
	}
	if b.grad != nil {
		if _, err := tensor.Unary(be, tensor.OpLog, a.value, s, 0, false); err != nil {
			return err
		}
		if _, err := tensor.Binary(be, tensor.OpMul, s, n.value, s, false); err != nil {
			return err
		}
		if err := accumulateProduct(n, b, s, n.grad); err != nil {
			return err
		}
	}
	return nil
}

func forwardMatMul(n *Node) error {
	_, err := tensor.MatMul(n.engine.backend, n.parents[0].value, n.parents[1].value, n.value, false)
	return err
}

// extend turns a vector into a row (left operand) or column (right operand).
func extend(t *tensor.RawTensor, left bool) (*tensor.RawTensor, error) {
	if t.Rank() != 1 {
		return t, nil
	}
	if left {
		return t.Unsqueeze(0)
	}
	return t.Unsqueeze(1)
}

// swapLast transposes the two innermost axes.
func swapLast(t *tensor.RawTensor) (*tensor.RawTensor, error) {
	r := t.Rank()
	perm := make([]int, r)
	for i := range perm {
		perm[i] = i
	}
	perm[r-2], perm[r-1] = r-1, r-2
	return t.Transpose(perm...)
}

// backwardMatMul: da += g·bᵀ, db += aᵀ·g, summing over broadcast batches.
func backwardMatMul(n *Node) error {
	be := n.engine.backend
	a, b := n.parents[0], n.parents[1]

	if a.grad != nil {
		bv, err := extend(b.value, false)
		if err != nil {
			return err
		}
		bt, err := swapLast(bv)
		if err != nil {
			return err
		}
		da, err := extend(a.grad, true)
		if err != nil {
			return err
		}
		if _, err := tensor.MatMul(be, n.grad, bt, da, true); err != nil {
			return err
		}
	}
	if b.grad != nil {
		av, err := extend(a.value, true)
		if err != nil {
			return err
		}
		at, err := swapLast(av)
		if err != nil {
			return err
		}
		db, err := extend(b.grad, false)
		if err != nil {
			return err
		}
		if _, err := tensor.MatMul(be, at, n.grad, db, true); err != nil {
			return err
		}
	}
	return nil
}

func forwardDot(n *Node) error {
	_, err := tensor.Dot(n.engine.backend, n.parents[0].value, n.parents[1].value, n.value, false)
	return err
}

func backwardDot(n *Node) error {
	a, b := n.parents[0], n.parents[1]
	return tensor.DotBackward(n.engine.backend, a.value, b.value, n.grad, a.grad, b.grad)
}

func forwardTranspose(n *Node) error {
	v, err := n.parents[0].value.Transpose(n.perm...)
	if err != nil {
		return err
	}
	n.value = v
	return nil
}

// forwardSelect points the value at the extremal element of the parent.
func forwardSelect(op tensor.ReduceOp) func(n *Node) error {
	return func(n *Node) error {
		src := n.parents[0].value
		_, idx, err := tensor.Reduce(n.engine.backend, op, src)
		if err != nil {
			return err
		}
		n.argIndex = idx
		return n.value.Repoint(src, idx)
	}
}

func backwardSelect(n *Node) error {
	p := n.parents[0]
	if p.grad == nil {
		return nil
	}
	g, err := p.grad.PointerAt(n.argIndex)
	if err != nil {
		return err
	}
	_, err = tensor.Unary(n.engine.backend, tensor.OpIdentity, n.grad, g, 0, true)
	return err
}

func forwardReduce(op tensor.ReduceOp) func(n *Node) error {
	return func(n *Node) error {
		v, _, err := tensor.Reduce(n.engine.backend, op, n.parents[0].value)
		if err != nil {
			return err
		}
		tensor.Fill(n.engine.backend, n.value, v)
		return nil
	}
}

func backwardSum(n *Node) error {
	return accumulate(n, n.parents[0], tensor.OpIdentity, n.grad, 0)
}

func backwardMean(n *Node) error {
	p := n.parents[0]
	return accumulate(n, p, tensor.OpScale, n.grad, 1/float32(max(p.value.NumElements(), 1)))
}

func forwardMSE(n *Node) error {
	be := n.engine.backend
	d := n.interim[0]
	if _, err := tensor.Binary(be, tensor.OpSub, n.parents[0].value, n.parents[1].value, d, false); err != nil {
		return err
	}
	if _, err := tensor.Unary(be, tensor.OpSquare, d, d, 0, false); err != nil {
		return err
	}
	v, _, err := tensor.Reduce(be, tensor.ReduceMean, d)
	if err != nil {
		return err
	}
	tensor.Fill(be, n.value, v)
	return nil
}

// backwardMSE: da += 2(a-b)/N*g, db -= 2(a-b)/N*g.
func backwardMSE(n *Node) error {
	be := n.engine.backend
	a, b := n.parents[0], n.parents[1]
	d := n.interim[0]
	if _, err := tensor.Binary(be, tensor.OpSub, a.value, b.value, d, false); err != nil {
		return err
	}
	if _, err := tensor.Unary(be, tensor.OpScale, d, d, 2/float32(d.NumElements()), false); err != nil {
		return err
	}
	if _, err := tensor.Binary(be, tensor.OpMul, d, n.grad, d, false); err != nil {
		return err
	}
	if err := accumulate(n, a, tensor.OpIdentity, d, 0); err != nil {
		return err
	}
	return accumulate(n, b, tensor.OpNeg, d, 0)
}

func forwardUnary(n *Node) error {
	_, err := tensor.Unary(n.engine.backend, n.op, n.parents[0].value, n.value, 0, false)
	return err
}

func backwardUnary(n *Node) error {
	be := n.engine.backend
	p := n.parents[0]
	if p.grad == nil {
		return nil
	}
	switch n.op {
	case tensor.OpIdentity:
		return accumulate(n, p, tensor.OpIdentity, n.grad, 0)
	case tensor.OpNeg:
		return accumulate(n, p, tensor.OpNeg, n.grad, 0)
	case tensor.OpExp:
		return accumulateProduct(n, p, n.grad, n.value)
	case tensor.OpSquare:
		// d(x²) = 2x
		s := n.interim[0]
		if _, err := tensor.Unary(be, tensor.OpScale, p.value, s, 2, false); err != nil {
			return err
		}
		return accumulateProduct(n, p, s, n.grad)
	case tensor.OpRecip:
		// d(1/x) = -(1/x)²
		s := n.interim[0]
		if _, err := tensor.Unary(be, tensor.OpSquare, n.value, s, 0, false); err != nil {
			return err
		}
		if _, err := tensor.Binary(be, tensor.OpMul, s, n.grad, s, false); err != nil {
			return err
		}
		return accumulate(n, p, tensor.OpNeg, s, 0)
	}
	d, ok := derivatives[n.op]
	if !ok {
		return nil
	}
	s := n.interim[0]
	if _, err := tensor.Unary(be, d, p.value, s, 0, false); err != nil {
		return err
	}
	return accumulateProduct(n, p, s, n.grad)
}

func forwardDropout(n *Node) error {
	be := n.engine.backend
	src := n.parents[0].value
	if !n.engine.training || n.rate == 0 {
		n.masked = false
		return tensor.Copy(be, src, n.value)
	}
	n.seed = n.engine.rng.Uint64()
	n.masked = true
	mask := n.interim[0]
	fillMask(n, mask)
	_, err := tensor.Binary(be, tensor.OpMul, src, mask, n.value, false)
	return err
}

func backwardDropout(n *Node) error {
	p := n.parents[0]
	if !n.masked {
		return accumulate(n, p, tensor.OpIdentity, n.grad, 0)
	}
	mask := n.interim[0]
	fillMask(n, mask)
	return accumulateProduct(n, p, n.grad, mask)
}

// fillMask writes the keep-mask of the last forward pass into mask.
func fillMask(n *Node, mask *tensor.RawTensor) {
	keep := 1 - n.rate
	rng.BernoulliMask(n.seed, mask.Data(), keep, 1/keep)
}

// checkRate validates a dropout rate.
func checkRate(rate float32) error {
	if rate < 0 || rate >= 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidRate, rate)
	}
	return nil
}
