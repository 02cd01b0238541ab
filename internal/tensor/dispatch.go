package tensor

import (
	"errors"
	"fmt"
)

// mode is the relation between the destination and the computed result.
type mode int

const (
	modeDirect      mode = iota // dst holds exactly the result
	modeDebroadcast             // dst is smaller: the result is summed into it
	modeBroadcast               // dst is larger: the result is repeated into it
)

// plan describes one elementwise dispatch.
type plan struct {
	mode mode
	iter Shape   // iteration shape shared by all operands
	dst  Operand // dst addressed over iter
}

// broadcastStrides returns strides addressing t over the iteration shape iter,
// right-aligned, with stride 0 on every axis t repeats.
func broadcastStrides(t *RawTensor, iter Shape) ([]int, bool) {
	shift := len(iter) - len(t.shape)
	for j := 0; j < -shift; j++ {
		if t.shape[j] != 1 {
			return nil, false
		}
	}

	strides := make([]int, len(iter))
	for i := range iter {
		j := i - shift
		if j < 0 {
			continue
		}
		switch d := t.shape[j]; {
		case d == iter[i]:
			if d != 1 {
				strides[i] = t.strides[j]
			}
		case d == 1:
			// repeated
		default:
			return nil, false
		}
	}
	return strides, true
}

// operandOver addresses t over iter. t must be broadcastable to iter.
func operandOver(t *RawTensor, iter Shape) Operand {
	strides, ok := broadcastStrides(t, iter)
	if !ok {
		panic(fmt.Sprintf("operand %v not broadcastable to %v", t.shape, iter))
	}
	return Operand{Offset: t.offset, Shape: iter, Strides: strides}
}

// planFor selects the dispatch mode by comparing dst with the result shape r.
func planFor(op string, dst *RawTensor, r Shape) (plan, error) {
	dn, rn := dst.NumElements(), r.NumElements()

	switch {
	case dn == rn:
		if strides, ok := broadcastStrides(dst, r); ok {
			return plan{mode: modeDirect, iter: r, dst: Operand{Offset: dst.offset, Shape: r, Strides: strides}}, nil
		}
		return plan{}, &ShapeError{Op: op, A: dst.shape, B: r, Details: "destination shape differs from result"}

	case dn < rn:
		strides, ok := broadcastStrides(dst, r)
		if !ok {
			return plan{}, &ShapeError{Op: op, A: dst.shape, B: r, Details: "destination cannot be debroadcast from result"}
		}
		return plan{mode: modeDebroadcast, iter: r, dst: Operand{Offset: dst.offset, Shape: r, Strides: strides}}, nil

	default:
		out, _, err := BroadcastShapes(r, dst.shape)
		if err != nil || out.NumElements() != dn {
			return plan{}, &ShapeError{Op: op, A: dst.shape, B: r, Details: "result cannot be broadcast into destination"}
		}
		return plan{mode: modeBroadcast, iter: out, dst: Operand{Offset: dst.offset, Shape: out, Strides: mustStrides(dst, out)}}, nil
	}
}

func mustStrides(t *RawTensor, iter Shape) []int {
	return operandOver(t, iter).Strides
}

// checkInPlace rejects a destination aliasing an operand whose shape differs
// from the result.
func checkInPlace(op string, dst *RawTensor, r Shape, operands ...*RawTensor) error {
	for _, x := range operands {
		if x == nil || !dst.Aliases(x) {
			continue
		}
		if !x.shape.Equal(r) || !dst.shape.Equal(r) {
			return fmt.Errorf("%s: %w: operand %v, result %v, destination %v",
				op, ErrInPlaceIncompatible, x.shape, r, dst.shape)
		}
	}
	return nil
}

func sameArena(op string, ts ...*RawTensor) error {
	for _, t := range ts[1:] {
		if t != nil && t.arena != ts[0].arena {
			return fmt.Errorf("%s: operands live in different arenas", op)
		}
	}
	return nil
}

// Binary computes a op b with broadcasting.
//
// If dst is nil a new tensor of the broadcast shape is allocated and returned.
// Otherwise the mode is selected by element count: a dst holding as many
// elements as the result receives it directly, a smaller dst receives the sum
// over the broadcast axes, and a larger dst receives the result repeated. With
// accumulate the result is added to dst instead of overwriting it.
func Binary(be Backend, op BinaryOp, a, b, dst *RawTensor, accumulate bool) (*RawTensor, error) {
	name := op.String()
	if err := sameArena(name, a, b, dst); err != nil {
		return nil, err
	}
	r, _, err := BroadcastShapes(a.shape, b.shape)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if dst == nil {
		if dst, err = New(a.arena, r, nil); err != nil {
			return nil, err
		}
	}
	if err := checkInPlace(name, dst, r, a, b); err != nil {
		return nil, err
	}
	p, err := planFor(name, dst, r)
	if err != nil {
		return nil, err
	}
	if p.iter.NumElements() == 0 {
		return dst, nil
	}

	k := BinaryKernel{Op: op, Accumulate: accumulate}
	ao, bo := operandOver(a, p.iter), operandOver(b, p.iter)

	switch {
	case p.mode == modeDebroadcast:
		k.Class = ClassDebroadcast
	case p.mode == modeBroadcast:
		k.Class = ClassBroadcast
	case p.dst.Contiguous() && ao.Contiguous() && bo.Contiguous():
		k.Class = ClassPairwise
	case p.dst.Contiguous() && ao.Contiguous() && b.NumElements() == 1:
		k.Class = ClassScalar
	default:
		k.Class = ClassBroadcast
	}

	be.Binary(k, a.arena.Mem(), p.dst, ao, bo)
	return dst, nil
}

// BinaryScalar computes a op s, promoting s to a temporary one-element tensor
// that is released before returning.
func BinaryScalar(be Backend, op BinaryOp, a *RawTensor, s float32, dst *RawTensor, accumulate bool) (out *RawTensor, err error) {
	tmp, err := Scalar(a.arena, s)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, tmp.Free())
	}()
	return Binary(be, op, a, tmp, dst, accumulate)
}

// Unary computes op(src; param) into dst, selecting the same modes as Binary.
func Unary(be Backend, op UnaryOp, src, dst *RawTensor, param float32, accumulate bool) (*RawTensor, error) {
	name := op.String()
	if err := sameArena(name, src, dst); err != nil {
		return nil, err
	}
	var err error
	if dst == nil {
		if dst, err = New(src.arena, src.shape, nil); err != nil {
			return nil, err
		}
	}
	if err := checkInPlace(name, dst, src.shape, src); err != nil {
		return nil, err
	}
	p, err := planFor(name, dst, src.shape)
	if err != nil {
		return nil, err
	}
	if p.iter.NumElements() == 0 {
		return dst, nil
	}

	k := UnaryKernel{Op: op, Accumulate: accumulate}
	so := operandOver(src, p.iter)

	switch {
	case p.mode == modeDebroadcast:
		k.Class = ClassDebroadcast
	case p.dst.Contiguous() && src.NumElements() == 1:
		k.Class = ClassScalar
	case p.mode == modeDirect && p.dst.Contiguous() && so.Contiguous():
		k.Class = ClassPairwise
	default:
		k.Class = ClassBroadcast
	}

	be.Unary(k, src.arena.Mem(), p.dst, so, param)
	return dst, nil
}

// Copy writes the elements of src into dst with the same mode rules as Unary.
func Copy(be Backend, src, dst *RawTensor) error {
	_, err := Unary(be, OpIdentity, src, dst, 0, false)
	return err
}

// Fill sets every element of dst to v.
func Fill(be Backend, dst *RawTensor, v float32) {
	if dst.NumElements() == 0 {
		return
	}
	be.Fill(dst.arena.Mem(), dst.Operand(), v)
}

// Reduce folds src into a scalar. For ReduceMin and ReduceMax the logical index
// of the first extremal element is returned as well.
func Reduce(be Backend, op ReduceOp, src *RawTensor) (float32, int, error) {
	if src.NumElements() == 0 {
		return 0, 0, fmt.Errorf("%s: %w", op, ErrEmptyTensor)
	}
	v, idx := be.Reduce(op, src.arena.Mem(), src.Operand())
	return v, idx, nil
}
