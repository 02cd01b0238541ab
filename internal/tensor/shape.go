package tensor

import "fmt"

// Shape represents the dimensions of a tensor, outermost axis first.
//
// An axis beyond the declared rank reads as size 1, which is what makes
// right-aligned broadcasting work.
type Shape []int

// NumElements returns the total number of elements. A rank-0 shape has none.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Rank returns the number of axes.
func (s Shape) Rank() int {
	return len(s)
}

// AxisSize returns the size of axis i, or 1 if i is outside the declared rank.
// Negative i counts from the last axis.
func (s Shape) AxisSize(i int) int {
	if i < 0 {
		i += len(s)
	}
	if i < 0 || i >= len(s) {
		return 1
	}
	return s[i]
}

// Rows returns the size of the second-to-last axis (1 for rank < 2).
func (s Shape) Rows() int {
	return s.AxisSize(len(s) - 2)
}

// Cols returns the size of the last axis (1 for rank 0).
func (s Shape) Cols() int {
	return s.AxisSize(len(s) - 1)
}

// Validate checks that no axis is negative.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// String formats the shape as [d0 d1 ...].
func (s Shape) String() string {
	return fmt.Sprint([]int(s))
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Broadcastable reports whether s and other are compatible under right-aligned
// broadcasting: every aligned pair is equal or one side is 1.
func (s Shape) Broadcastable(other Shape) bool {
	_, _, err := BroadcastShapes(s, other)
	return err == nil
}

// Broadcast returns the broadcast result of s and other.
func (s Shape) Broadcast(other Shape) (Shape, error) {
	out, _, err := BroadcastShapes(s, other)
	return out, err
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Rules:
// 1. Compare shapes element-wise from right to left
// 2. Dimensions are compatible if:
//   - They are equal, OR
//   - One of them is 1
//
// 3. Missing dimensions are treated as 1
//
// Returns the broadcasted shape, a flag indicating if broadcasting is needed, and
// an error wrapping ErrShapeMismatch if incompatible.
//
// Examples:
//
//	(3, 1) + (3, 5) → (3, 5), true, nil
//	(1, 5) + (3, 5) → (3, 5), true, nil
//	(3, 5) + (3, 5) → (3, 5), false, nil
//	(3, 4) + (3, 5) → nil, false, Error
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	maxLen := max(len(a), len(b))
	result := make(Shape, maxLen)
	needsBroadcast := len(a) != len(b)

	for i := 0; i < maxLen; i++ {
		aDim := a.fromRight(i)
		bDim := b.fromRight(i)

		switch {
		case aDim == bDim:
			result[maxLen-1-i] = aDim
		case aDim == 1:
			result[maxLen-1-i] = bDim
			needsBroadcast = true
		case bDim == 1:
			result[maxLen-1-i] = aDim
			needsBroadcast = true
		default:
			return nil, false, fmt.Errorf("%w: cannot broadcast %v with %v (axis %d: %d vs %d)",
				ErrShapeMismatch, a, b, maxLen-1-i, aDim, bDim)
		}
	}

	return result, needsBroadcast, nil
}

// fromRight returns the size of the i-th axis counted from the last one, or 1
// past the front of the shape.
func (s Shape) fromRight(i int) int {
	j := len(s) - 1 - i
	if j < 0 {
		return 1
	}
	return s[j]
}

// Flatten returns s reshaped to the target rank.
//
// When target < rank the leading axes are collapsed into one by product; when
// target > rank the shape is left-padded with 1s. Left-padding is the exact
// inverse of collapsing those same 1-axes, so s.Flatten(r1).Flatten(len(s))
// recovers s for any r1 >= len(s).
func (s Shape) Flatten(target int) Shape {
	switch {
	case target <= 0:
		return Shape{}
	case target == len(s):
		return s.Clone()
	case target > len(s):
		return s.ExpandLeft(target - len(s))
	}

	out := make(Shape, target)
	lead := len(s) - target + 1
	n := 1
	for _, d := range s[:lead] {
		n *= d
	}
	out[0] = n
	copy(out[1:], s[lead:])
	return out
}

// ExpandLeft prepends n size-1 axes.
func (s Shape) ExpandLeft(n int) Shape {
	if n <= 0 {
		return s.Clone()
	}
	out := make(Shape, n+len(s))
	for i := 0; i < n; i++ {
		out[i] = 1
	}
	copy(out[n:], s)
	return out
}

// Permute returns s with its axes reordered by perm.
func (s Shape) Permute(perm []int) (Shape, error) {
	if err := checkPermutation(perm, len(s)); err != nil {
		return nil, err
	}
	out := make(Shape, len(s))
	for i, p := range perm {
		out[i] = s[p]
	}
	return out, nil
}

// reversePermutation returns [rank-1, ..., 1, 0].
func reversePermutation(rank int) []int {
	perm := make([]int, rank)
	for i := range perm {
		perm[i] = rank - 1 - i
	}
	return perm
}

func checkPermutation(perm []int, rank int) error {
	if len(perm) != rank {
		return fmt.Errorf("%w: %v has %d axes, tensor has %d", ErrInvalidPermutation, perm, len(perm), rank)
	}
	seen := make([]bool, rank)
	for _, p := range perm {
		if p < 0 || p >= rank || seen[p] {
			return fmt.Errorf("%w: %v is not a bijection over [0,%d)", ErrInvalidPermutation, perm, rank)
		}
		seen[p] = true
	}
	return nil
}
