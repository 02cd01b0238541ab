// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides strided float32 tensors living in a memory arena,
// with broadcasting and zero-copy views.
//
// # Overview
//
// This package provides:
//   - Shape algebra: broadcasting, flattening, permutation
//   - RawTensor: a view {arena, offset, shape, strides} over one arena block
//   - Dispatch: elementwise, reduction and matrix operations routed to a
//     pluggable Backend
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/gradgraph/backend/cpu"
//	    "github.com/born-ml/gradgraph/tensor"
//	)
//
//	func main() {
//	    be := cpu.New()
//	    ar := tensor.NewArena(0)
//
//	    a, _ := tensor.New(ar, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
//	    b, _ := tensor.New(ar, tensor.Shape{3}, []float32{10, 20, 30})
//
//	    sum, _ := tensor.Binary(be, tensor.OpAdd, a, b, nil, false)
//	    fmt.Println(sum.Values()) // [11 22 33 14 25 36]
//	}
//
// # Views
//
// ViewOf, Transpose, Unsqueeze and PointerAt return tensors sharing storage
// with their source. Only owners may be freed; a freed block invalidates every
// view into it.
package tensor
