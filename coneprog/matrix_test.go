package coneprog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderCompression(t *testing.T) {
	b := NewBuilder(3, 2)
	b.Add(0, 0, 1)
	b.Add(2, 1, 3)
	b.Add(0, 0, 2) // duplicate, summed
	b.Add(1, 1, 0) // dropped
	b.Add(1, 0, -1)

	m := b.Build()
	assert.Equal(t, 3, m.NNZ())
	assert.Equal(t, []int{0, 2, 3}, m.ColPtr)
	assert.Equal(t, []int{0, 1, 2}, m.RowIdx)
	assert.Empty(t, cmp.Diff([]float64{3, -1, 3}, m.Val))
}

func TestBuilderCancellation(t *testing.T) {
	b := NewBuilder(1, 1)
	b.Add(0, 0, 2)
	b.Add(0, 0, -2)
	assert.Zero(t, b.Build().NNZ())
}

func TestMulVecAgainstDense(t *testing.T) {
	b := NewBuilder(3, 4)
	b.Add(0, 0, 1)
	b.Add(0, 2, -2)
	b.Add(1, 1, 4)
	b.Add(2, 3, 0.5)
	b.Add(2, 0, -1)
	m := b.Build()

	x := []float64{1, 2, 3, 4}
	got := make([]float64, 3)
	m.MulVec(got, x)

	d := m.Dense()
	for i := 0; i < 3; i++ {
		var want float64
		for j := 0; j < 4; j++ {
			want += d.At(i, j) * x[j]
		}
		assert.InDelta(t, want, got[i], 1e-12)
	}
}

func TestMulVecTrans(t *testing.T) {
	b := NewBuilder(2, 3)
	b.Add(0, 0, 2)
	b.Add(1, 0, 1)
	b.Add(1, 2, -3)
	m := b.Build()

	y := []float64{5, 7}
	got := make([]float64, 3)
	m.MulVecTrans(got, y)
	require.Equal(t, []float64{2*5 + 1*7, 0, -3 * 7}, got)
}
