package tensor

import (
	"fmt"
	"strings"

	"github.com/born-ml/gradgraph/internal/arena"
)

// RawTensor is the low-level tensor representation: a strided view into an
// arena block.
//
// A RawTensor either owns its block (created by New, Scalar or Clone) or is a
// view sharing the block of a source tensor (ViewOf, Transpose, Unsqueeze,
// PointerAt, ...). Views must not be used after the owner is freed; Valid
// reports whether the block is still live.
type RawTensor struct {
	arena   *arena.Arena
	block   arena.Block
	offset  int   // base element offset into the arena buffer
	shape   Shape // Tensor dimensions
	strides []int // Element strides per axis
	owner   bool
}

// New allocates a contiguous tensor of the given shape in ar.
//
// If data is nil the tensor is zero-filled; otherwise len(data) must equal
// shape.NumElements().
func New(ar *arena.Arena, shape Shape, data []float32) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	n := shape.NumElements()
	if data != nil && len(data) != n {
		return nil, &ShapeError{Op: "new", A: shape, Details: fmt.Sprintf("got %d values, want %d", len(data), n)}
	}

	b, err := ar.Alloc(n)
	if err != nil {
		return nil, err
	}
	copy(ar.Slice(b), data)

	return &RawTensor{
		arena:   ar,
		block:   b,
		offset:  b.Offset,
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
		owner:   true,
	}, nil
}

// Scalar allocates a one-element tensor of shape [1] holding v.
func Scalar(ar *arena.Arena, v float32) (*RawTensor, error) {
	return New(ar, Shape{1}, []float32{v})
}

// Arena returns the arena backing the tensor.
func (r *RawTensor) Arena() *arena.Arena { return r.arena }

// Shape returns the tensor shape. Callers must not modify it.
func (r *RawTensor) Shape() Shape { return r.shape }

// Strides returns the per-axis element strides. Callers must not modify them.
func (r *RawTensor) Strides() []int { return r.strides }

// Offset returns the base element offset into the arena buffer.
func (r *RawTensor) Offset() int { return r.offset }

// NumElements returns the number of logically addressed elements.
func (r *RawTensor) NumElements() int { return r.shape.NumElements() }

// Rank returns the number of axes.
func (r *RawTensor) Rank() int { return len(r.shape) }

// Owns reports whether the tensor owns its block.
func (r *RawTensor) Owns() bool { return r.owner }

// Valid reports whether the underlying block is still live.
func (r *RawTensor) Valid() bool { return r.arena.Valid(r.block) }

// Operand returns the backend operand addressing this tensor.
func (r *RawTensor) Operand() Operand {
	return Operand{Offset: r.offset, Shape: r.shape, Strides: r.strides}
}

// IsContiguous reports whether the tensor addresses a dense row-major region.
func (r *RawTensor) IsContiguous() bool {
	return r.Operand().Contiguous()
}

// Free releases the block. Only owners may free, and only once.
func (r *RawTensor) Free() error {
	if !r.owner {
		return ErrNotOwner
	}
	if !r.Valid() {
		return ErrFreed
	}
	return r.arena.Free(r.block)
}

// view returns a non-owning tensor sharing r's block.
func (r *RawTensor) view(offset int, shape Shape, strides []int) *RawTensor {
	return &RawTensor{
		arena:   r.arena,
		block:   r.block,
		offset:  offset,
		shape:   shape,
		strides: strides,
	}
}

// extent returns the number of buffer elements spanned by the view, or 0 if it
// addresses nothing.
func (r *RawTensor) extent() int {
	if r.NumElements() == 0 {
		return 0
	}
	e := 1
	for i, d := range r.shape {
		e += (d - 1) * r.strides[i]
	}
	return e
}

// ViewOf returns a view sharing r's storage whose shape and strides drop the
// axes below axis and whose base offset is advanced by offset elements.
//
// ViewOf(1, i*Strides()[0]) is row i of a matrix; ViewOf(Rank(), k) is a
// single-element pointer view with shape [1] and stride [0].
func (r *RawTensor) ViewOf(axis, offset int) (*RawTensor, error) {
	if axis < 0 || axis > len(r.shape) {
		return nil, fmt.Errorf("view: %w: axis %d for rank %d", ErrUnsupportedAxis, axis, len(r.shape))
	}

	shape := r.shape[axis:].Clone()
	strides := append([]int(nil), r.strides[axis:]...)
	if len(shape) == 0 {
		shape, strides = Shape{1}, []int{0}
	}

	v := r.view(r.offset+offset, shape, strides)
	if offset < 0 || v.offset+v.extent() > r.block.Offset+max(r.block.Len, 1) {
		return nil, fmt.Errorf("view: offset %d out of range for %v", offset, r.shape)
	}
	return v, nil
}

// Slices splits a rank ≤ 2 tensor along axis: rows for axis 0, columns for
// axis 1. Each slice is a view. A rank-1 tensor yields pointer views.
func (r *RawTensor) Slices(axis int) ([]*RawTensor, error) {
	if len(r.shape) == 0 || len(r.shape) > 2 || axis < 0 || axis >= len(r.shape) {
		return nil, fmt.Errorf("slices: %w: axis %d for rank %d", ErrUnsupportedAxis, axis, len(r.shape))
	}

	src := r
	if axis == 1 {
		t, err := r.Transpose()
		if err != nil {
			return nil, err
		}
		src = t
	}

	out := make([]*RawTensor, src.shape[0])
	for i := range out {
		v, err := src.ViewOf(1, i*src.strides[0])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Transpose returns a view with axes permuted by perm. With no arguments the
// axis order is reversed.
func (r *RawTensor) Transpose(perm ...int) (*RawTensor, error) {
	if len(perm) == 0 {
		perm = reversePermutation(len(r.shape))
	}
	shape, err := r.shape.Permute(perm)
	if err != nil {
		return nil, fmt.Errorf("transpose: %w", err)
	}
	strides := make([]int, len(perm))
	for i, p := range perm {
		strides[i] = r.strides[p]
	}
	return r.view(r.offset, shape, strides), nil
}

// Unsqueeze returns a view with a size-1 axis inserted at position axis.
// Negative axis counts from the end (-1 appends).
func (r *RawTensor) Unsqueeze(axis int) (*RawTensor, error) {
	rank := len(r.shape)
	if axis < 0 {
		axis += rank + 1
	}
	if axis < 0 || axis > rank {
		return nil, fmt.Errorf("unsqueeze: %w: axis %d for rank %d", ErrUnsupportedAxis, axis, rank)
	}

	shape := make(Shape, 0, rank+1)
	shape = append(shape, r.shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, r.shape[axis:]...)

	strides := make([]int, 0, rank+1)
	strides = append(strides, r.strides[:axis]...)
	strides = append(strides, 0)
	strides = append(strides, r.strides[axis:]...)

	return r.view(r.offset, shape, strides), nil
}

// ExpandLeft returns a view with n size-1 axes prepended.
func (r *RawTensor) ExpandLeft(n int) *RawTensor {
	shape := r.shape.ExpandLeft(n)
	strides := make([]int, len(shape))
	copy(strides[len(shape)-len(r.strides):], r.strides)
	return r.view(r.offset, shape, strides)
}

// Reshape returns a view of a contiguous tensor with a new shape holding the
// same number of elements.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if shape.NumElements() != r.NumElements() {
		return nil, &ShapeError{Op: "reshape", A: r.shape, B: shape, Details: "element counts differ"}
	}
	if !r.IsContiguous() {
		return nil, &ShapeError{Op: "reshape", A: r.shape, B: shape, Details: "source is not contiguous"}
	}
	return r.view(r.offset, shape.Clone(), shape.ComputeStrides()), nil
}

// PointerAt returns a single-element view (shape [1], stride [0]) at the
// logical row-major index flat.
func (r *RawTensor) PointerAt(flat int) (*RawTensor, error) {
	if flat < 0 || flat >= r.NumElements() {
		return nil, fmt.Errorf("pointer: index %d out of range for %v", flat, r.shape)
	}
	return r.view(r.Operand().OffsetOf(flat), Shape{1}, []int{0}), nil
}

// Repoint retargets a pointer view to the element of src at logical index flat.
func (r *RawTensor) Repoint(src *RawTensor, flat int) error {
	if r.owner {
		return fmt.Errorf("repoint: %w", ErrNotOwner)
	}
	p, err := src.PointerAt(flat)
	if err != nil {
		return err
	}
	*r = *p
	return nil
}

// Clone returns an owning contiguous copy of the logically addressed elements.
func (r *RawTensor) Clone() (*RawTensor, error) {
	out, err := New(r.arena, r.shape, nil)
	if err != nil {
		return nil, err
	}
	mem := r.arena.Mem()
	i := out.offset
	r.Operand().Walk(func(off int) {
		mem[i] = mem[off]
		i++
	})
	return out, nil
}

// Values returns a copy of the logically addressed elements in row-major order.
func (r *RawTensor) Values() []float32 {
	out := make([]float32, 0, r.NumElements())
	mem := r.arena.Mem()
	r.Operand().Walk(func(off int) {
		out = append(out, mem[off])
	})
	return out
}

// SetValues overwrites the logically addressed elements in row-major order.
func (r *RawTensor) SetValues(vals []float32) error {
	if len(vals) != r.NumElements() {
		return &ShapeError{Op: "set", A: r.shape, Details: fmt.Sprintf("got %d values, want %d", len(vals), r.NumElements())}
	}
	mem := r.arena.Mem()
	i := 0
	r.Operand().Walk(func(off int) {
		mem[off] = vals[i]
		i++
	})
	return nil
}

// At returns the element at the given multi-index. Missing leading indices are 0.
func (r *RawTensor) At(idx ...int) float32 {
	return r.arena.Mem()[r.addr(idx)]
}

// Set writes v at the given multi-index.
func (r *RawTensor) Set(v float32, idx ...int) {
	r.arena.Mem()[r.addr(idx)] = v
}

func (r *RawTensor) addr(idx []int) int {
	if len(idx) > len(r.shape) {
		panic(fmt.Sprintf("index %v has more axes than shape %v", idx, r.shape))
	}
	off := r.offset
	lead := len(r.shape) - len(idx)
	for i, x := range idx {
		if x < 0 || x >= r.shape[lead+i] {
			panic(fmt.Sprintf("index %v out of range for shape %v", idx, r.shape))
		}
		off += x * r.strides[lead+i]
	}
	return off
}

// Data returns the tensor's elements as a slice of the arena buffer.
// Panics if the tensor is not contiguous. The slice is invalidated by the next
// allocation in the arena.
func (r *RawTensor) Data() []float32 {
	if !r.IsContiguous() {
		panic(fmt.Sprintf("data: tensor %v with strides %v is not contiguous", r.shape, r.strides))
	}
	return r.arena.Mem()[r.offset : r.offset+r.NumElements()]
}

// Aliases reports whether r and other address overlapping buffer ranges.
func (r *RawTensor) Aliases(other *RawTensor) bool {
	if r == nil || other == nil || r.arena != other.arena {
		return false
	}
	re, oe := r.extent(), other.extent()
	if re == 0 || oe == 0 {
		return false
	}
	return r.offset < other.offset+oe && other.offset < r.offset+re
}

// String returns a short summary, e.g. "RawTensor[2 3](owner)".
func (r *RawTensor) String() string {
	var b strings.Builder
	b.WriteString("RawTensor")
	b.WriteString(r.shape.String())
	switch {
	case !r.Valid():
		b.WriteString("(freed)")
	case r.owner:
		b.WriteString("(owner)")
	default:
		b.WriteString("(view)")
	}
	return b.String()
}
