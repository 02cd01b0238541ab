package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradgraph/internal/arena"
)

func newTestRaw(t *testing.T, ar *arena.Arena, shape Shape, data []float32) *RawTensor {
	t.Helper()
	r, err := New(ar, shape, data)
	require.NoError(t, err)
	return r
}

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i + 1)
	}
	return out
}

func TestNew(t *testing.T) {
	ar := arena.New(0)

	r := newTestRaw(t, ar, Shape{2, 3}, seq(6))
	assert.Equal(t, Shape{2, 3}, r.Shape())
	assert.Equal(t, []int{3, 1}, r.Strides())
	assert.True(t, r.Owns())
	assert.True(t, r.IsContiguous())
	assert.Equal(t, seq(6), r.Data())

	z := newTestRaw(t, ar, Shape{4}, nil)
	assert.Equal(t, []float32{0, 0, 0, 0}, z.Values())

	_, err := New(ar, Shape{2, 3}, seq(5))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	var se *ShapeError
	assert.ErrorAs(t, err, &se)
}

func TestScalar(t *testing.T) {
	ar := arena.New(0)
	s, err := Scalar(ar, 2.5)
	require.NoError(t, err)
	assert.Equal(t, Shape{1}, s.Shape())
	assert.Equal(t, float32(2.5), s.At(0))
}

func TestViewOf_SharesStorage(t *testing.T) {
	ar := arena.New(0)
	r := newTestRaw(t, ar, Shape{2, 3}, seq(6))

	row1, err := r.ViewOf(1, 3)
	require.NoError(t, err)
	assert.Equal(t, Shape{3}, row1.Shape())
	assert.False(t, row1.Owns())
	assert.Equal(t, []float32{4, 5, 6}, row1.Values())

	row1.Set(50, 1)
	assert.Equal(t, float32(50), r.At(1, 1), "writes through a view are visible in the source")

	ptr, err := r.ViewOf(2, 4)
	require.NoError(t, err)
	assert.Equal(t, Shape{1}, ptr.Shape())
	assert.Equal(t, []int{0}, ptr.Strides())
	assert.Equal(t, float32(50), ptr.At(0))

	_, err = r.ViewOf(3, 0)
	assert.ErrorIs(t, err, ErrUnsupportedAxis)
	_, err = r.ViewOf(1, 6)
	assert.Error(t, err)
}

func TestSlices(t *testing.T) {
	ar := arena.New(0)
	m := newTestRaw(t, ar, Shape{2, 3}, seq(6))

	rows, err := m.Slices(0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []float32{1, 2, 3}, rows[0].Values())
	assert.Equal(t, []float32{4, 5, 6}, rows[1].Values())

	cols, err := m.Slices(1)
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, []float32{2, 5}, cols[1].Values())

	v := newTestRaw(t, ar, Shape{3}, seq(3))
	elems, err := v.Slices(0)
	require.NoError(t, err)
	assert.Equal(t, float32(3), elems[2].At(0))

	cube := newTestRaw(t, ar, Shape{2, 2, 2}, seq(8))
	_, err = cube.Slices(0)
	assert.ErrorIs(t, err, ErrUnsupportedAxis)
	_, err = m.Slices(2)
	assert.ErrorIs(t, err, ErrUnsupportedAxis)
}

func TestTranspose(t *testing.T) {
	ar := arena.New(0)
	r := newTestRaw(t, ar, Shape{2, 3}, seq(6))

	tr, err := r.Transpose()
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 2}, tr.Shape())
	assert.Equal(t, []int{1, 3}, tr.Strides())
	assert.False(t, tr.IsContiguous())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, tr.Values())
	assert.Equal(t, r.Offset(), tr.Offset())

	_, err = r.Transpose(0, 0)
	assert.ErrorIs(t, err, ErrInvalidPermutation)
}

func TestTranspose_Involution(t *testing.T) {
	ar := arena.New(0)
	shapes := []Shape{{4}, {2, 3}, {2, 3, 4}, {1, 5, 1, 2}}

	for _, s := range shapes {
		r := newTestRaw(t, ar, s, seq(s.NumElements()))
		once, err := r.Transpose()
		require.NoError(t, err)
		twice, err := once.Transpose()
		require.NoError(t, err)

		assert.Equal(t, r.Shape(), twice.Shape())
		assert.Equal(t, r.Strides(), twice.Strides())
		assert.Equal(t, r.Values(), twice.Values())
	}
}

func TestTranspose_CustomPermutation(t *testing.T) {
	ar := arena.New(0)
	r := newTestRaw(t, ar, Shape{2, 3, 4}, seq(24))

	p, err := r.Transpose(1, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 2, 4}, p.Shape())
	assert.Equal(t, r.At(1, 2, 3), p.At(2, 1, 3))
}

func TestUnsqueezeAndExpandLeft(t *testing.T) {
	ar := arena.New(0)
	r := newTestRaw(t, ar, Shape{3}, seq(3))

	u, err := r.Unsqueeze(1)
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 1}, u.Shape())
	assert.Equal(t, []float32{1, 2, 3}, u.Values())

	u0, err := r.Unsqueeze(0)
	require.NoError(t, err)
	assert.Equal(t, Shape{1, 3}, u0.Shape())

	last, err := r.Unsqueeze(-1)
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 1}, last.Shape())

	_, err = r.Unsqueeze(3)
	assert.ErrorIs(t, err, ErrUnsupportedAxis)

	e := r.ExpandLeft(2)
	assert.Equal(t, Shape{1, 1, 3}, e.Shape())
	assert.Equal(t, []int{0, 0, 1}, e.Strides())
}

func TestReshape(t *testing.T) {
	ar := arena.New(0)
	r := newTestRaw(t, ar, Shape{2, 3}, seq(6))

	v, err := r.Reshape(Shape{3, 2})
	require.NoError(t, err)
	assert.Equal(t, float32(3), v.At(1, 0))

	_, err = r.Reshape(Shape{4})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	tr, _ := r.Transpose()
	_, err = tr.Reshape(Shape{6})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestPointerAtAndRepoint(t *testing.T) {
	ar := arena.New(0)
	r := newTestRaw(t, ar, Shape{2, 3}, seq(6))
	tr, _ := r.Transpose()

	p, err := tr.PointerAt(1) // tr(0,1) == r(1,0)
	require.NoError(t, err)
	assert.Equal(t, float32(4), p.At(0))
	assert.Equal(t, []int{0}, p.Strides())

	require.NoError(t, p.Repoint(r, 5))
	assert.Equal(t, float32(6), p.At(0))

	_, err = r.PointerAt(6)
	assert.Error(t, err)
	assert.ErrorIs(t, r.Repoint(r, 0), ErrNotOwner)
}

func TestClone(t *testing.T) {
	ar := arena.New(0)
	r := newTestRaw(t, ar, Shape{2, 3}, seq(6))
	tr, _ := r.Transpose()

	c, err := tr.Clone()
	require.NoError(t, err)
	assert.True(t, c.Owns())
	assert.True(t, c.IsContiguous())
	assert.NotEqual(t, tr.Offset(), c.Offset())
	assert.Equal(t, tr.Values(), c.Values())
	assert.False(t, c.Aliases(r))

	c.Set(100, 0, 0)
	assert.Equal(t, float32(1), r.At(0, 0), "mutating the clone leaves the source intact")
	r.Set(200, 0, 1)
	assert.Equal(t, float32(2), c.At(1, 0), "mutating the source leaves the clone intact")
}

func TestSetValues(t *testing.T) {
	ar := arena.New(0)
	r := newTestRaw(t, ar, Shape{2, 2}, nil)
	tr, _ := r.Transpose()

	require.NoError(t, tr.SetValues([]float32{1, 2, 3, 4}))
	assert.Equal(t, []float32{1, 3, 2, 4}, r.Values())
	assert.ErrorIs(t, r.SetValues([]float32{1}), ErrShapeMismatch)
}

func TestData_PanicsOnStridedView(t *testing.T) {
	ar := arena.New(0)
	r := newTestRaw(t, ar, Shape{2, 3}, seq(6))
	tr, _ := r.Transpose()

	assert.Panics(t, func() { tr.Data() })
}

func TestAliases(t *testing.T) {
	ar := arena.New(0)
	a := newTestRaw(t, ar, Shape{2, 3}, seq(6))
	b := newTestRaw(t, ar, Shape{2, 3}, seq(6))
	row, _ := a.ViewOf(1, 3)

	assert.True(t, a.Aliases(a))
	assert.True(t, a.Aliases(row))
	assert.True(t, row.Aliases(a))
	assert.False(t, a.Aliases(b))
	assert.False(t, b.Aliases(row))
}

func TestFree(t *testing.T) {
	ar := arena.New(0)
	r := newTestRaw(t, ar, Shape{3}, seq(3))
	v, _ := r.ViewOf(0, 0)

	assert.ErrorIs(t, v.Free(), ErrNotOwner)
	require.NoError(t, r.Free())
	assert.False(t, r.Valid())
	assert.False(t, v.Valid(), "views observe the freed block")
	assert.ErrorIs(t, r.Free(), ErrFreed)
	assert.Contains(t, r.String(), "freed")
}

func TestString(t *testing.T) {
	ar := arena.New(0)
	r := newTestRaw(t, ar, Shape{2, 3}, nil)
	tr, _ := r.Transpose()

	assert.Equal(t, "RawTensor[2 3](owner)", r.String())
	assert.Equal(t, "RawTensor[3 2](view)", tr.String())
}
