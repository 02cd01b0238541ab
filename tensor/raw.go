// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/gradgraph/internal/arena"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// Shape lists axis sizes, outermost first.
type Shape = tensor.Shape

// RawTensor is a strided view over an arena block.
type RawTensor = tensor.RawTensor

// ShapeError describes incompatible operand shapes.
type ShapeError = tensor.ShapeError

// Arena is the flat float32 buffer holding tensor data.
type Arena = arena.Arena

// Common errors.
var (
	ErrShapeMismatch       = tensor.ErrShapeMismatch
	ErrInvalidPermutation  = tensor.ErrInvalidPermutation
	ErrInPlaceIncompatible = tensor.ErrInPlaceIncompatible
	ErrUnsupportedAxis     = tensor.ErrUnsupportedAxis
	ErrEmptyTensor         = tensor.ErrEmptyTensor
	ErrFreed               = tensor.ErrFreed
	ErrNotOwner            = tensor.ErrNotOwner
	ErrInvalidBlock        = arena.ErrInvalidBlock
)

// NewArena creates an arena with room for capacity elements.
func NewArena(capacity int) *Arena {
	return arena.New(capacity)
}

// New allocates a contiguous tensor. A nil data slice yields zeros.
func New(ar *Arena, shape Shape, data []float32) (*RawTensor, error) {
	return tensor.New(ar, shape, data)
}

// Scalar allocates a one-element tensor holding v.
func Scalar(ar *Arena, v float32) (*RawTensor, error) {
	return tensor.Scalar(ar, v)
}

// BroadcastShapes returns the broadcast shape of a and b and whether either
// operand needs broadcasting.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}
