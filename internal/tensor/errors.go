package tensor

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrShapeMismatch       = errors.New("shape mismatch")
	ErrInvalidPermutation  = errors.New("invalid permutation")
	ErrInPlaceIncompatible = errors.New("in-place destination incompatible with result shape")
	ErrUnsupportedAxis     = errors.New("unsupported axis")
	ErrEmptyTensor         = errors.New("empty tensor")
	ErrFreed               = errors.New("tensor storage already freed")
	ErrNotOwner            = errors.New("tensor does not own its storage")
)

// ShapeError provides the operand shapes involved in a failed operation.
// It unwraps to ErrShapeMismatch.
type ShapeError struct {
	Op      string // Operation name (e.g., "matmul", "add")
	A, B    Shape  // Operand shapes, B may be nil
	Details string // Additional details
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.B != nil {
		return fmt.Sprintf("%s: %v: %v vs %v: %s", e.Op, ErrShapeMismatch, e.A, e.B, e.Details)
	}
	return fmt.Sprintf("%s: %v: %v: %s", e.Op, ErrShapeMismatch, e.A, e.Details)
}

// Unwrap returns ErrShapeMismatch.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}
