package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradgraph/internal/arena"
	"github.com/born-ml/gradgraph/internal/backend/cpu"
	"github.com/born-ml/gradgraph/internal/tensor"
)

func newRaw(t *testing.T, ar *arena.Arena, shape tensor.Shape, data []float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.New(ar, shape, data)
	require.NoError(t, err)
	return r
}

func assertValues(t *testing.T, want []float32, r *tensor.RawTensor) {
	t.Helper()
	got := r.Values()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "element %d", i)
	}
}

func TestAdd_BroadcastRow(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	a := newRaw(t, ar, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	b := newRaw(t, ar, tensor.Shape{3}, []float32{10, 20, 30})

	out, err := tensor.Binary(be, tensor.OpAdd, a, b, nil, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assertValues(t, []float32{11, 22, 33, 14, 25, 36}, out)
}

func TestBinary_AllOps(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	a := newRaw(t, ar, tensor.Shape{3}, []float32{2, 4, 9})
	b := newRaw(t, ar, tensor.Shape{3}, []float32{1, 2, 0.5})

	tests := []struct {
		op   tensor.BinaryOp
		want []float32
	}{
		{tensor.OpAdd, []float32{3, 6, 9.5}},
		{tensor.OpSub, []float32{1, 2, 8.5}},
		{tensor.OpMul, []float32{2, 8, 4.5}},
		{tensor.OpDiv, []float32{2, 2, 18}},
		{tensor.OpPow, []float32{2, 16, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			out, err := tensor.Binary(be, tt.op, a, b, nil, false)
			require.NoError(t, err)
			assertValues(t, tt.want, out)
		})
	}
}

func TestBinary_Debroadcast(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	grad := newRaw(t, ar, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	one := newRaw(t, ar, tensor.Shape{1}, []float32{1})

	row := newRaw(t, ar, tensor.Shape{3}, []float32{1, 1, 1})
	_, err := tensor.Binary(be, tensor.OpMul, grad, one, row, true)
	require.NoError(t, err)
	assertValues(t, []float32{6, 8, 10}, row)

	col := newRaw(t, ar, tensor.Shape{2, 1}, nil)
	_, err = tensor.Binary(be, tensor.OpMul, grad, one, col, false)
	require.NoError(t, err)
	assertValues(t, []float32{6, 15}, col)
}

func TestBinary_BroadcastIntoLargerDestination(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	a := newRaw(t, ar, tensor.Shape{3}, []float32{1, 2, 3})
	b := newRaw(t, ar, tensor.Shape{3}, []float32{1, 1, 1})
	dst := newRaw(t, ar, tensor.Shape{2, 3}, nil)

	_, err := tensor.Binary(be, tensor.OpAdd, a, b, dst, false)
	require.NoError(t, err)
	assertValues(t, []float32{2, 3, 4, 2, 3, 4}, dst)
}

func TestBinary_InPlaceAccumulate(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	a := newRaw(t, ar, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	b := newRaw(t, ar, tensor.Shape{2}, []float32{10, 20})

	_, err := tensor.Binary(be, tensor.OpAdd, a, b, a, false)
	require.NoError(t, err)
	assertValues(t, []float32{11, 22, 13, 24}, a)
}

func TestBinaryScalar(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	a := newRaw(t, ar, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})

	out, err := tensor.BinaryScalar(be, tensor.OpPow, a, 2, nil, false)
	require.NoError(t, err)
	assertValues(t, []float32{1, 4, 9, 16}, out)
}

func TestBinary_TransposedOperands(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	a := newRaw(t, ar, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	at, err := a.Transpose()
	require.NoError(t, err)

	out, err := tensor.Binary(be, tensor.OpSub, at, at, nil, false)
	require.NoError(t, err)
	assertValues(t, make([]float32, 6), out)

	sum, err := tensor.Binary(be, tensor.OpAdd, at, newRaw(t, ar, tensor.Shape{2}, []float32{0, 100}), nil, false)
	require.NoError(t, err)
	assertValues(t, []float32{1, 104, 2, 105, 3, 106}, sum)
}

func TestUnary_Modes(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	x := newRaw(t, ar, tensor.Shape{2, 2}, []float32{1, 4, 9, 16})

	out, err := tensor.Unary(be, tensor.OpSqrt, x, nil, 0, false)
	require.NoError(t, err)
	assertValues(t, []float32{1, 2, 3, 4}, out)

	// Scale into a column: [1+4, 9+16] * 2
	col := newRaw(t, ar, tensor.Shape{2, 1}, nil)
	_, err = tensor.Unary(be, tensor.OpScale, x, col, 2, false)
	require.NoError(t, err)
	assertValues(t, []float32{10, 50}, col)

	// Broadcast a scalar into a matrix, accumulating.
	s := newRaw(t, ar, tensor.Shape{1}, []float32{0.5})
	_, err = tensor.Unary(be, tensor.OpIdentity, s, x, 0, true)
	require.NoError(t, err)
	assertValues(t, []float32{1.5, 4.5, 9.5, 16.5}, x)
}

func TestCopyAndFill(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	a := newRaw(t, ar, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	at, _ := a.Transpose()
	dst := newRaw(t, ar, tensor.Shape{3, 2}, nil)

	require.NoError(t, tensor.Copy(be, at, dst))
	assertValues(t, []float32{1, 4, 2, 5, 3, 6}, dst)

	tensor.Fill(be, at, 7)
	assertValues(t, []float32{7, 7, 7, 7, 7, 7}, a)
}

func TestReduce(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	x := newRaw(t, ar, tensor.Shape{5}, []float32{3, 1, 4, 1, 5})

	sum, _, err := tensor.Reduce(be, tensor.ReduceSum, x)
	require.NoError(t, err)
	assert.Equal(t, float32(14), sum)

	minV, idx, err := tensor.Reduce(be, tensor.ReduceMin, x)
	require.NoError(t, err)
	assert.Equal(t, float32(1), minV)
	assert.Contains(t, []int{1, 3}, idx)
}

func TestMatMul_Scenario(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	a := newRaw(t, ar, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	b := newRaw(t, ar, tensor.Shape{3, 2}, []float32{1, 2, 3, 4, 5, 6})

	out, err := tensor.MatMul(be, a, b, nil, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assertValues(t, []float32{22, 28, 49, 64}, out)
}

func TestMatMul_BatchBroadcastAndSum(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	a := newRaw(t, ar, tensor.Shape{2, 1, 2}, []float32{1, 2, 3, 4})
	b := newRaw(t, ar, tensor.Shape{2, 1}, []float32{10, 1})

	out, err := tensor.MatMul(be, a, b, nil, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 1, 1}, out.Shape())
	assertValues(t, []float32{12, 34}, out)

	// A batch-1 destination receives the sum over batches.
	sum := newRaw(t, ar, tensor.Shape{1, 1}, nil)
	_, err = tensor.MatMul(be, a, b, sum, false)
	require.NoError(t, err)
	assertValues(t, []float32{46}, sum)
}

func TestMatMul_TransposedViews(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	a := newRaw(t, ar, tensor.Shape{3, 2}, []float32{1, 4, 2, 5, 3, 6})
	at, _ := a.Transpose()
	b := newRaw(t, ar, tensor.Shape{3, 2}, []float32{1, 2, 3, 4, 5, 6})

	out, err := tensor.MatMul(be, at, b, nil, false)
	require.NoError(t, err)
	assertValues(t, []float32{22, 28, 49, 64}, out)
}

func TestMatMul_Vectors(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	v := newRaw(t, ar, tensor.Shape{3}, []float32{1, 2, 3})
	m := newRaw(t, ar, tensor.Shape{3, 2}, []float32{1, 2, 3, 4, 5, 6})

	out, err := tensor.MatMul(be, v, m, nil, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2}, out.Shape())
	assertValues(t, []float32{22, 28}, out)
}

func TestDot_NumPySemantics(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	// a: [2, 2], b: [2 batches, 2, 3]
	a := newRaw(t, ar, tensor.Shape{2, 2}, []float32{1, 0, 0, 2})
	b := newRaw(t, ar, tensor.Shape{2, 2, 3}, []float32{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	})

	out, err := tensor.Dot(be, a, b, nil, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2, 3}, out.Shape())
	// out[i, j, n] = Σk a[i, k] b[j, k, n]
	assertValues(t, []float32{
		1, 2, 3, 7, 8, 9,
		8, 10, 12, 20, 22, 24,
	}, out)
}

func TestDotBackward_MatchesMatMulGradients(t *testing.T) {
	be := cpu.New()
	ar := arena.New(0)
	a := newRaw(t, ar, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	b := newRaw(t, ar, tensor.Shape{3, 2}, []float32{1, 2, 3, 4, 5, 6})
	grad := newRaw(t, ar, tensor.Shape{2, 2}, []float32{1, 1, 1, 1})
	da := newRaw(t, ar, tensor.Shape{2, 3}, nil)
	db := newRaw(t, ar, tensor.Shape{3, 2}, nil)

	require.NoError(t, tensor.DotBackward(be, a, b, grad, da, db))
	// da = grad·bᵀ: row sums of b; db = aᵀ·grad: column sums of a.
	assertValues(t, []float32{3, 7, 11, 3, 7, 11}, da)
	assertValues(t, []float32{5, 5, 7, 7, 9, 9}, db)

	// Strided gradient targets accumulate through dense copies.
	dbt := newRaw(t, ar, tensor.Shape{2, 3}, nil)
	view, _ := dbt.Transpose()
	require.NoError(t, tensor.DotBackward(be, a, b, grad, nil, view))
	assertValues(t, []float32{5, 7, 9, 5, 7, 9}, dbt)
}
