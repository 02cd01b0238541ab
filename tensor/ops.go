// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/gradgraph/internal/tensor"

// Backend executes kernels on raw arena memory.
type Backend = tensor.Backend

// Operand addresses one kernel argument inside arena memory.
type Operand = tensor.Operand

// Kernel descriptors and their enumerations.
type (
	BinaryOp     = tensor.BinaryOp
	UnaryOp      = tensor.UnaryOp
	ReduceOp     = tensor.ReduceOp
	Class        = tensor.Class
	BinaryKernel = tensor.BinaryKernel
	UnaryKernel  = tensor.UnaryKernel
)

// Binary operations.
const (
	OpAdd = tensor.OpAdd
	OpSub = tensor.OpSub
	OpMul = tensor.OpMul
	OpDiv = tensor.OpDiv
	OpPow = tensor.OpPow
)

// Elementwise operations.
const (
	OpIdentity = tensor.OpIdentity
	OpNeg      = tensor.OpNeg
	OpScale    = tensor.OpScale
	OpShift    = tensor.OpShift
	OpSquare   = tensor.OpSquare
	OpRecip    = tensor.OpRecip
	OpExp      = tensor.OpExp
	OpLog      = tensor.OpLog
	OpSqrt     = tensor.OpSqrt
	OpSin      = tensor.OpSin
	OpCos      = tensor.OpCos
	OpTanh     = tensor.OpTanh
	OpSigmoid  = tensor.OpSigmoid
	OpReLU     = tensor.OpReLU
	OpAbs      = tensor.OpAbs
	OpCeil     = tensor.OpCeil
	OpFloor    = tensor.OpFloor
	OpBinstep  = tensor.OpBinstep
	OpSign     = tensor.OpSign
)

// Reductions.
const (
	ReduceSum  = tensor.ReduceSum
	ReduceMean = tensor.ReduceMean
	ReduceMin  = tensor.ReduceMin
	ReduceMax  = tensor.ReduceMax
)

// Binary computes a op b with broadcasting into dst, or into a new tensor
// when dst is nil.
func Binary(be Backend, op BinaryOp, a, b, dst *RawTensor, accumulate bool) (*RawTensor, error) {
	return tensor.Binary(be, op, a, b, dst, accumulate)
}

// BinaryScalar computes a op s.
func BinaryScalar(be Backend, op BinaryOp, a *RawTensor, s float32, dst *RawTensor, accumulate bool) (*RawTensor, error) {
	return tensor.BinaryScalar(be, op, a, s, dst, accumulate)
}

// Unary computes op(src; param).
func Unary(be Backend, op UnaryOp, src, dst *RawTensor, param float32, accumulate bool) (*RawTensor, error) {
	return tensor.Unary(be, op, src, dst, param, accumulate)
}

// MatMul computes the batched matrix product of a and b.
func MatMul(be Backend, a, b, dst *RawTensor, accumulate bool) (*RawTensor, error) {
	return tensor.MatMul(be, a, b, dst, accumulate)
}

// Dot computes the NumPy-style dot product of a and b.
func Dot(be Backend, a, b, dst *RawTensor, accumulate bool) (*RawTensor, error) {
	return tensor.Dot(be, a, b, dst, accumulate)
}

// Reduce folds src into a scalar and, for min and max, its logical index.
func Reduce(be Backend, op ReduceOp, src *RawTensor) (float32, int, error) {
	return tensor.Reduce(be, op, src)
}

// Copy writes src into dst.
func Copy(be Backend, src, dst *RawTensor) error {
	return tensor.Copy(be, src, dst)
}

// Fill sets every element of dst to v.
func Fill(be Backend, dst *RawTensor, v float32) {
	tensor.Fill(be, dst, v)
}
