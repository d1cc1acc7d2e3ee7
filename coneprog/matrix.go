package coneprog

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a sparse matrix in compressed sparse column form. Lowerings
// assemble constraint matrices through a Builder; solvers only read.
type Matrix struct {
	Rows, Cols int
	ColPtr     []int
	RowIdx     []int
	Val        []float64
}

// Builder accumulates coordinate-form entries and compresses them into a
// Matrix. Duplicate entries at the same position are summed.
type Builder struct {
	rows, cols int
	entries    []entry
}

type entry struct {
	r, c int
	v    float64
}

// NewBuilder returns a builder for a rows × cols matrix.
func NewBuilder(rows, cols int) *Builder {
	return &Builder{rows: rows, cols: cols}
}

// Add records an entry; zero values are dropped.
func (b *Builder) Add(r, c int, v float64) {
	if v == 0 {
		return
	}
	b.entries = append(b.entries, entry{r, c, v})
}

// Build compresses the recorded entries into CSC form.
func (b *Builder) Build() *Matrix {
	sort.Slice(b.entries, func(i, j int) bool {
		if b.entries[i].c != b.entries[j].c {
			return b.entries[i].c < b.entries[j].c
		}
		return b.entries[i].r < b.entries[j].r
	})

	m := &Matrix{
		Rows:   b.rows,
		Cols:   b.cols,
		ColPtr: make([]int, b.cols+1),
	}
	for i := 0; i < len(b.entries); {
		e := b.entries[i]
		v := e.v
		j := i + 1
		for j < len(b.entries) && b.entries[j].c == e.c && b.entries[j].r == e.r {
			v += b.entries[j].v
			j++
		}
		if v != 0 {
			m.RowIdx = append(m.RowIdx, e.r)
			m.Val = append(m.Val, v)
			m.ColPtr[e.c+1]++
		}
		i = j
	}
	for c := 0; c < b.cols; c++ {
		m.ColPtr[c+1] += m.ColPtr[c]
	}
	return m
}

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int { return len(m.Val) }

// MulVec computes dst = A·x. dst must have length Rows and is zeroed first.
func (m *Matrix) MulVec(dst, x []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for c := 0; c < m.Cols; c++ {
		xc := x[c]
		if xc == 0 {
			continue
		}
		for k := m.ColPtr[c]; k < m.ColPtr[c+1]; k++ {
			dst[m.RowIdx[k]] += m.Val[k] * xc
		}
	}
}

// MulVecTrans computes dst = Aᵀ·x. dst must have length Cols and is zeroed
// first.
func (m *Matrix) MulVecTrans(dst, x []float64) {
	for c := 0; c < m.Cols; c++ {
		var s float64
		for k := m.ColPtr[c]; k < m.ColPtr[c+1]; k++ {
			s += m.Val[k] * x[m.RowIdx[k]]
		}
		dst[c] = s
	}
}

// Dense materializes the matrix. Solvers use it to form normal equations on
// the moderate problem sizes this engine targets.
func (m *Matrix) Dense() *mat.Dense {
	d := mat.NewDense(m.Rows, m.Cols, nil)
	for c := 0; c < m.Cols; c++ {
		for k := m.ColPtr[c]; k < m.ColPtr[c+1]; k++ {
			d.Set(m.RowIdx[k], c, m.Val[k])
		}
	}
	return d
}
