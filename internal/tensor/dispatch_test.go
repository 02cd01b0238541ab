package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradgraph/internal/arena"
)

// recordingBackend records kernel selections without computing anything.
type recordingBackend struct {
	binary  []BinaryKernel
	unary   []UnaryKernel
	matmuls int
}

func (r *recordingBackend) Name() string { return "recording" }

func (r *recordingBackend) Binary(k BinaryKernel, _ []float32, _, _, _ Operand) {
	r.binary = append(r.binary, k)
}

func (r *recordingBackend) Unary(k UnaryKernel, _ []float32, _, _ Operand, _ float32) {
	r.unary = append(r.unary, k)
}

func (r *recordingBackend) MatMul(_ []float32, _, _, _ Operand, _ bool) {
	r.matmuls++
}

func (r *recordingBackend) Reduce(_ ReduceOp, _ []float32, _ Operand) (float32, int) {
	return 0, 0
}

func (r *recordingBackend) Fill(_ []float32, _ Operand, _ float32) {}

func TestBinary_ClassSelection(t *testing.T) {
	ar := arena.New(0)
	m := newTestRaw(t, ar, Shape{2, 3}, seq(6))
	m2 := newTestRaw(t, ar, Shape{2, 3}, seq(6))
	row := newTestRaw(t, ar, Shape{3}, seq(3))
	s := newTestRaw(t, ar, Shape{1}, []float32{2})
	small := newTestRaw(t, ar, Shape{3}, nil)
	big := newTestRaw(t, ar, Shape{4, 2, 3}, nil)
	tr, _ := m.Transpose()

	tests := []struct {
		name string
		a, b *RawTensor
		dst  *RawTensor
		want Class
	}{
		{"pairwise", m, m2, nil, ClassPairwise},
		{"scalar", m, s, nil, ClassScalar},
		{"scalar on the left broadcasts", s, m, nil, ClassBroadcast},
		{"broadcast", m, row, nil, ClassBroadcast},
		{"strided operand", tr, tr, nil, ClassBroadcast},
		{"debroadcast", m, m2, small, ClassDebroadcast},
		{"broadcast into larger destination", m, m2, big, ClassBroadcast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := &recordingBackend{}
			_, err := Binary(be, OpAdd, tt.a, tt.b, tt.dst, true)
			require.NoError(t, err)
			require.Len(t, be.binary, 1)
			assert.Equal(t, tt.want, be.binary[0].Class)
			assert.True(t, be.binary[0].Accumulate)
		})
	}
}

func TestBinary_ResultShapeAndErrors(t *testing.T) {
	ar := arena.New(0)
	be := &recordingBackend{}
	m := newTestRaw(t, ar, Shape{2, 3}, nil)
	col := newTestRaw(t, ar, Shape{2, 1}, nil)
	bad := newTestRaw(t, ar, Shape{4}, nil)

	out, err := Binary(be, OpMul, m, col, nil, false)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 3}, out.Shape())
	assert.True(t, out.Owns())

	_, err = Binary(be, OpMul, m, bad, nil, false)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// A destination that is neither the result, a debroadcast target nor a
	// broadcast target.
	wrong := newTestRaw(t, ar, Shape{3, 2}, nil)
	_, err = Binary(be, OpMul, m, col, wrong, false)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Binary(be, OpMul, m, col, bad, false)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestBinary_InPlace(t *testing.T) {
	ar := arena.New(0)
	be := &recordingBackend{}
	m := newTestRaw(t, ar, Shape{2, 3}, nil)
	row := newTestRaw(t, ar, Shape{3}, nil)

	_, err := Binary(be, OpAdd, m, row, m, false)
	assert.NoError(t, err, "destination aliases an operand of the result shape")

	_, err = Binary(be, OpAdd, m, row, row, false)
	assert.ErrorIs(t, err, ErrInPlaceIncompatible)

	first, _ := m.ViewOf(1, 0)
	_, err = Binary(be, OpAdd, m, row, first, false)
	assert.ErrorIs(t, err, ErrInPlaceIncompatible)

	// Same element count, different shape.
	flat := newTestRaw(t, ar, Shape{6}, nil)
	wide := newTestRaw(t, ar, Shape{1, 6}, nil)
	_, err = Binary(be, OpAdd, flat, wide, flat, false)
	assert.ErrorIs(t, err, ErrInPlaceIncompatible)

	_, err = Unary(be, OpNeg, wide, wide, 0, false)
	assert.NoError(t, err)
	reshaped, err := wide.Reshape(Shape{6})
	require.NoError(t, err)
	_, err = Unary(be, OpNeg, wide, reshaped, 0, false)
	assert.ErrorIs(t, err, ErrInPlaceIncompatible)
}

func TestBinaryScalar_FreesTemporary(t *testing.T) {
	ar := arena.New(0)
	be := &recordingBackend{}
	m := newTestRaw(t, ar, Shape{2, 3}, nil)
	before := ar.Stats().Blocks

	out, err := BinaryScalar(be, OpMul, m, 3, m, false)
	require.NoError(t, err)
	assert.Same(t, m, out)
	assert.Equal(t, before, ar.Stats().Blocks)
	assert.Equal(t, ClassScalar, be.binary[0].Class)

	// The temporary is released on the error path too.
	_, err = BinaryScalar(be, OpMul, m, 3, newTestRaw(t, ar, Shape{5}, nil), false)
	assert.Error(t, err)
	assert.Equal(t, before+1, ar.Stats().Blocks)
}

func TestUnary_ClassSelection(t *testing.T) {
	ar := arena.New(0)
	m := newTestRaw(t, ar, Shape{2, 3}, nil)
	s := newTestRaw(t, ar, Shape{1}, nil)
	small := newTestRaw(t, ar, Shape{1, 3}, nil)
	tr, _ := m.Transpose()

	tests := []struct {
		name     string
		src, dst *RawTensor
		want     Class
	}{
		{"pairwise", m, nil, ClassPairwise},
		{"scalar source", s, m, ClassScalar},
		{"strided", tr, nil, ClassBroadcast},
		{"debroadcast", m, small, ClassDebroadcast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := &recordingBackend{}
			out, err := Unary(be, OpExp, tt.src, tt.dst, 0, false)
			require.NoError(t, err)
			require.Len(t, be.unary, 1)
			assert.Equal(t, tt.want, be.unary[0].Class)
			if tt.dst == nil {
				assert.Equal(t, tt.src.Shape(), out.Shape())
			}
		})
	}
}

func TestReduce_Empty(t *testing.T) {
	ar := arena.New(0)
	empty := newTestRaw(t, ar, Shape{0}, nil)

	_, _, err := Reduce(&recordingBackend{}, ReduceSum, empty)
	assert.ErrorIs(t, err, ErrEmptyTensor)
}

func TestMatMulShape(t *testing.T) {
	tests := []struct {
		name string
		a, b Shape
		want Shape
		err  bool
	}{
		{"matrix", Shape{2, 3}, Shape{3, 4}, Shape{2, 4}, false},
		{"batched", Shape{5, 2, 3}, Shape{5, 3, 4}, Shape{5, 2, 4}, false},
		{"broadcast right", Shape{5, 2, 3}, Shape{3, 4}, Shape{5, 2, 4}, false},
		{"broadcast left", Shape{2, 3}, Shape{6, 5, 3, 4}, Shape{6, 5, 2, 4}, false},
		{"batch one", Shape{1, 2, 3}, Shape{7, 3, 4}, Shape{7, 2, 4}, false},
		{"vector left", Shape{3}, Shape{3, 4}, Shape{1, 4}, false},
		{"vector right", Shape{2, 3}, Shape{3}, Shape{2, 1}, false},
		{"inner mismatch", Shape{2, 3}, Shape{4, 5}, nil, true},
		{"batch mismatch", Shape{2, 2, 3}, Shape{3, 3, 4}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatMulShape(tt.a, tt.b)
			if tt.err {
				assert.ErrorIs(t, err, ErrShapeMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDotShape(t *testing.T) {
	tests := []struct {
		name string
		a, b Shape
		want Shape
		err  bool
	}{
		{"matrix", Shape{2, 3}, Shape{3, 4}, Shape{2, 4}, false},
		{"numpy batched", Shape{2, 3, 4}, Shape{5, 4, 6}, Shape{2, 3, 5, 6}, false},
		{"vector left", Shape{3}, Shape{2, 3, 4}, Shape{2, 4}, false},
		{"vector right", Shape{2, 3}, Shape{3}, Shape{2, 1}, false},
		{"mismatch", Shape{2, 3}, Shape{2, 3}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DotShape(tt.a, tt.b)
			if tt.err {
				assert.ErrorIs(t, err, ErrShapeMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatMul_BatchDispatch(t *testing.T) {
	ar := arena.New(0)
	a := newTestRaw(t, ar, Shape{4, 2, 3}, nil)
	b := newTestRaw(t, ar, Shape{3, 5}, nil)

	be := &recordingBackend{}
	out, err := MatMul(be, a, b, nil, false)
	require.NoError(t, err)
	assert.Equal(t, Shape{4, 2, 5}, out.Shape())
	assert.Equal(t, 4, be.matmuls)

	_, err = MatMul(be, a, b, a, false)
	assert.Error(t, err)

	wrong := newTestRaw(t, ar, Shape{2, 2, 5}, nil)
	_, err = MatMul(be, a, b, wrong, false)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
