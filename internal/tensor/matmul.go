package tensor

import (
	"errors"
	"fmt"
)

// asMatrix extends a rank-1 tensor to a matrix: [K] becomes [1, K] on the left
// side of a product and [K, 1] on the right.
func asMatrix(t *RawTensor, left bool) (*RawTensor, error) {
	switch {
	case len(t.shape) >= 2:
		return t, nil
	case len(t.shape) == 1 && left:
		return t.Unsqueeze(0)
	case len(t.shape) == 1:
		return t.Unsqueeze(1)
	default:
		return nil, &ShapeError{Op: "matmul", A: t.shape, Details: "rank 0 operand"}
	}
}

// batchCount returns the number of matrices held by a rank ≥ 2 shape.
func batchCount(s Shape) int {
	n := 1
	for _, d := range s[:len(s)-2] {
		n *= d
	}
	return n
}

// batchOffsets returns the base offset of every matrix of a rank ≥ 2 tensor in
// row-major batch order.
func batchOffsets(t *RawTensor) []int {
	lead := len(t.shape) - 2
	op := Operand{Offset: t.offset, Shape: t.shape[:lead], Strides: t.strides[:lead]}
	if lead == 0 {
		return []int{t.offset}
	}
	offs := make([]int, 0, batchCount(t.shape))
	op.Walk(func(off int) { offs = append(offs, off) })
	return offs
}

// matrix returns the 2-D operand of one batch entry.
func matrix(t *RawTensor, off int) Operand {
	n := len(t.shape)
	return Operand{Offset: off, Shape: Shape{t.shape[n-2], t.shape[n-1]}, Strides: []int{t.strides[n-2], t.strides[n-1]}}
}

// MatMulShape returns the shape of a·b under batched matrix multiplication.
//
// Rank-1 operands are extended to matrices ([K] → [1,K] on the left, [K,1] on
// the right). Leading axes are flattened into batch counts; a count of 1
// broadcasts against the other. The result carries the leading axes of the
// operand with the larger batch count (the higher-rank one on a tie, a if both
// ranks match) followed by [a.rows, b.cols].
func MatMulShape(a, b Shape) (Shape, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, &ShapeError{Op: "matmul", A: a, B: b, Details: "rank 0 operand"}
	}
	if len(a) == 1 {
		a = Shape{1, a[0]}
	}
	if len(b) == 1 {
		b = Shape{b[0], 1}
	}
	if a.Cols() != b.Rows() {
		return nil, &ShapeError{Op: "matmul", A: a, B: b, Details: fmt.Sprintf("inner dimensions %d and %d differ", a.Cols(), b.Rows())}
	}

	ba, bb := batchCount(a), batchCount(b)
	if ba > 1 && bb > 1 && ba != bb {
		return nil, &ShapeError{Op: "matmul", A: a, B: b, Details: fmt.Sprintf("batch counts %d and %d differ", ba, bb)}
	}

	lead := a[:len(a)-2]
	if bb > ba || (bb == ba && len(b) > len(a)) {
		lead = b[:len(b)-2]
	}
	out := make(Shape, 0, len(lead)+2)
	out = append(out, lead...)
	return append(out, a.Rows(), b.Cols()), nil
}

// MatMul computes the batched product a·b.
//
// If dst is nil a tensor of MatMulShape(a, b) is allocated. A given dst must
// have the result's rows and columns and either the result's batch count or a
// batch count of 1; in the latter case the products of all batches are summed
// into it.
func MatMul(be Backend, a, b, dst *RawTensor, accumulate bool) (*RawTensor, error) {
	if err := sameArena("matmul", a, b, dst); err != nil {
		return nil, err
	}
	shape, err := MatMulShape(a.shape, b.shape)
	if err != nil {
		return nil, err
	}
	if a, err = asMatrix(a, true); err != nil {
		return nil, err
	}
	if b, err = asMatrix(b, false); err != nil {
		return nil, err
	}

	if dst == nil {
		if dst, err = New(a.arena, shape, nil); err != nil {
			return nil, err
		}
	}
	if dst.Aliases(a) || dst.Aliases(b) {
		return nil, fmt.Errorf("matmul: %w: destination aliases an operand", ErrInPlaceIncompatible)
	}
	d, err := asMatrix(dst, true)
	if err != nil {
		return nil, err
	}

	rb := batchCount(shape)
	if d.shape.Rows() != shape.Rows() || d.shape.Cols() != shape.Cols() {
		return nil, &ShapeError{Op: "matmul", A: dst.shape, B: shape, Details: "destination matrix size differs from result"}
	}
	if db := batchCount(d.shape); db != rb && db != 1 {
		return nil, &ShapeError{Op: "matmul", A: dst.shape, B: shape, Details: fmt.Sprintf("destination batch count %d", db)}
	}
	if shape.NumElements() == 0 {
		return dst, nil
	}

	aOffs, bOffs, dOffs := batchOffsets(a), batchOffsets(b), batchOffsets(d)
	mem := a.arena.Mem()
	for k := 0; k < rb; k++ {
		ao := matrix(a, aOffs[k%len(aOffs)])
		bo := matrix(b, bOffs[k%len(bOffs)])
		do := matrix(d, dOffs[k%len(dOffs)])
		be.MatMul(mem, do, ao, bo, accumulate || (len(dOffs) == 1 && k > 0))
	}
	return dst, nil
}

// DotShape returns the shape of dot(a, b) with NumPy semantics:
// a's axes except the last, then b's axes except the last two, then b's last
// axis. A rank-1 b is treated as a column [K, 1].
func DotShape(a, b Shape) (Shape, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, &ShapeError{Op: "dot", A: a, B: b, Details: "rank 0 operand"}
	}
	if len(b) == 1 {
		b = Shape{b[0], 1}
	}
	if a.Cols() != b.Rows() {
		return nil, &ShapeError{Op: "dot", A: a, B: b, Details: fmt.Sprintf("inner dimensions %d and %d differ", a.Cols(), b.Rows())}
	}
	out := make(Shape, 0, len(a)+len(b)-2)
	out = append(out, a[:len(a)-1]...)
	out = append(out, b[:len(b)-2]...)
	out = append(out, b.Cols())
	return out, nil
}

// dotLayout holds the 2-D decomposition of a dot product: a as an [M, K]
// matrix and, per batch j of b, the [M, N] block of the result.
type dotLayout struct {
	m, k, n, jb int
}

func newDotLayout(a, b Shape) dotLayout {
	if len(b) == 1 {
		b = Shape{b[0], 1}
	}
	m := 1
	if len(a) > 1 {
		m = a[:len(a)-1].NumElements()
	}
	return dotLayout{m: m, k: a.Cols(), n: b.Cols(), jb: batchCount(b)}
}

// block returns batch j of a contiguous [M, jb, N] tensor as an [M, N] operand.
func (l dotLayout) block(t *RawTensor, j int) Operand {
	return Operand{Offset: t.offset + j*l.n, Shape: Shape{l.m, l.n}, Strides: []int{l.jb * l.n, 1}}
}

// contiguous returns t itself if it is dense, otherwise a dense clone that the
// caller must free.
func contiguous(t *RawTensor) (*RawTensor, bool, error) {
	if t.IsContiguous() {
		return t, false, nil
	}
	c, err := t.Clone()
	return c, err == nil, err
}

// Dot computes dot(a, b) with NumPy semantics (see DotShape).
func Dot(be Backend, a, b, dst *RawTensor, accumulate bool) (out *RawTensor, err error) {
	if err := sameArena("dot", a, b, dst); err != nil {
		return nil, err
	}
	shape, err := DotShape(a.shape, b.shape)
	if err != nil {
		return nil, err
	}
	if dst == nil {
		if dst, err = New(a.arena, shape, nil); err != nil {
			return nil, err
		}
	}
	if dst.Aliases(a) || dst.Aliases(b) {
		return nil, fmt.Errorf("dot: %w: destination aliases an operand", ErrInPlaceIncompatible)
	}
	if dst.NumElements() != shape.NumElements() {
		return nil, &ShapeError{Op: "dot", A: dst.shape, B: shape, Details: "destination size differs from result"}
	}
	if shape.NumElements() == 0 {
		return dst, nil
	}

	if b, err = asMatrix(b, false); err != nil {
		return nil, err
	}
	l := newDotLayout(a.shape, b.shape)

	ac, freeA, err := contiguous(a)
	if err != nil {
		return nil, err
	}
	if freeA {
		defer func() { err = errors.Join(err, ac.Free()) }()
	}

	// The result is written through a dense [M, jb, N] target.
	target := dst
	if !dst.IsContiguous() {
		if target, err = New(a.arena, shape, nil); err != nil {
			return nil, err
		}
		defer func() { err = errors.Join(err, target.Free()) }()
	}

	am := Operand{Offset: ac.offset, Shape: Shape{l.m, l.k}, Strides: []int{l.k, 1}}
	bOffs := batchOffsets(b)
	mem := a.arena.Mem()
	for j := 0; j < l.jb; j++ {
		be.MatMul(mem, l.block(target, j), am, matrix(b, bOffs[j]), accumulate && target == dst)
	}

	if target != dst {
		if _, err := Unary(be, OpIdentity, target, dst, 0, accumulate); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// DotBackward accumulates the gradients of dot(a, b) given the gradient of the
// result: grad·bᵀ into da and aᵀ·grad into db. Either destination may be nil;
// a non-nil one must be shaped like its operand.
func DotBackward(be Backend, a, b, grad, da, db *RawTensor) (err error) {
	if b, err = asMatrix(b, false); err != nil {
		return err
	}
	l := newDotLayout(a.shape, b.shape)

	var temps []*RawTensor
	defer func() {
		for _, t := range temps {
			err = errors.Join(err, t.Free())
		}
	}()
	dense := func(t *RawTensor) (*RawTensor, error) {
		if t == nil || t.IsContiguous() {
			return t, nil
		}
		c, err := t.Clone()
		if err == nil {
			temps = append(temps, c)
		}
		return c, err
	}

	ac, err := dense(a)
	if err != nil {
		return err
	}
	g, err := dense(grad)
	if err != nil {
		return err
	}
	// Strided gradient targets are accumulated through dense copies.
	dac, err := dense(da)
	if err != nil {
		return err
	}
	dbc, err := dense(db)
	if err != nil {
		return err
	}

	mem := a.arena.Mem()
	bOffs := batchOffsets(b)
	for j := 0; j < l.jb; j++ {
		gj := l.block(g, j)
		bj := matrix(b, bOffs[j])
		if dac != nil {
			// [M,N]·[N,K]
			bt := Operand{Offset: bj.Offset, Shape: Shape{l.n, l.k}, Strides: []int{bj.Strides[1], bj.Strides[0]}}
			be.MatMul(mem, Operand{Offset: dac.offset, Shape: Shape{l.m, l.k}, Strides: []int{l.k, 1}}, gj, bt, true)
		}
		if dbc != nil {
			// [K,M]·[M,N]
			at := Operand{Offset: ac.offset, Shape: Shape{l.k, l.m}, Strides: []int{1, l.k}}
			dbj := Operand{Offset: dbc.offset + j*l.k*l.n, Shape: Shape{l.k, l.n}, Strides: []int{l.n, 1}}
			be.MatMul(mem, dbj, at, gj, true)
		}
	}

	if dac != da {
		if err := Copy(be, dac, da); err != nil {
			return err
		}
	}
	if dbc != db {
		if err := Copy(be, dbc, db); err != nil {
			return err
		}
	}
	return nil
}
