// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"errors"
)

// Sparsity is the compressed sparse row structure of an M×N Jacobian.
// Column indices of a row must be distinct.
type Sparsity struct {
	M, N   int
	RowPtr []int
	ColIdx []int
}

func (s *Sparsity) check() error {
	switch {
	case s.M <= 0 || s.N <= 0:
		return errors.New("negative dimensions")
	case len(s.RowPtr) != s.M+1 || s.RowPtr[0] != 0:
		return errors.New("invalid row pointer")
	case s.RowPtr[s.M] != len(s.ColIdx):
		return errors.New("row pointer does not match column indices")
	}
	for i := 0; i < s.M; i++ {
		if s.RowPtr[i] > s.RowPtr[i+1] {
			return errors.New("row pointer is not monotone")
		}
	}
	for _, c := range s.ColIdx {
		if c < 0 || c >= s.N {
			return errors.New("column index out of range")
		}
	}
	return nil
}

// columns returns the compressed sparse column view of s.
func (s *Sparsity) columns() (colPtr, rowIdx []int) {
	colPtr = make([]int, s.N+1)
	for _, c := range s.ColIdx {
		colPtr[c+1]++
	}
	for c := 0; c < s.N; c++ {
		colPtr[c+1] += colPtr[c]
	}
	next := make([]int, s.N)
	copy(next, colPtr)
	rowIdx = make([]int, len(s.ColIdx))
	for r := 0; r < s.M; r++ {
		for k := s.RowPtr[r]; k < s.RowPtr[r+1]; k++ {
			c := s.ColIdx[k]
			rowIdx[next[c]] = r
			next[c]++
		}
	}
	return
}

// GroupColumns partitions the columns of s greedily, in index order, so that
// no two columns of the same group have a nonzero in a common row.
// It returns the group of every column and the number of groups.
//
// # Reference:
//
//   - A. Curtis, M. J. D. Powell, J. Reid, "On the estimation of sparse
//     Jacobian matrices", IMA J. Appl. Math., 1974.
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_group_columns.py
func GroupColumns(s *Sparsity) (group []int, count int) {
	colPtr, rowIdx := s.columns()

	group = make([]int, s.N)
	for i := range group {
		group[i] = -1
	}

	// union[r] == count+1 marks rows already covered by the current group.
	union := make([]int, s.M)
	for i := 0; i < s.N; i++ {
		if group[i] >= 0 {
			continue
		}
		stamp := count + 1
		group[i] = count
		for _, r := range rowIdx[colPtr[i]:colPtr[i+1]] {
			union[r] = stamp
		}
		for j := i + 1; j < s.N; j++ {
			if group[j] >= 0 {
				continue
			}
			rows := rowIdx[colPtr[j]:colPtr[j+1]]
			free := true
			for _, r := range rows {
				if union[r] == stamp {
					free = false
					break
				}
			}
			if free {
				group[j] = count
				for _, r := range rows {
					union[r] = stamp
				}
			}
		}
		count++
	}
	return
}

// SparseSpec estimates the structural nonzeros of a Jacobian with a known
// sparsity pattern. Columns of one group are perturbed together, so a
// Jacobian costs one (Forward) or two (Central) evaluations per group
// instead of per column.
//
// # Reference:
//
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py (_sparse_difference)
type SparseSpec struct {
	ApproxSpec
	// Sparsity of the Jacobian; N and M of the embedded spec must agree with it.
	// The slices are referenced, not copied.
	Sparsity *Sparsity
	sparseCtx
}

type sparseCtx struct {
	ready   bool
	count   int
	rowOf   []int
	cols    [][]int // columns of each group
	entries [][]int // structural entries of each group
	x       []float64
}

// Init validates the spec and groups the columns.
// It is called by Diff on first use; calling it again after changing the
// sparsity rebuilds the groups.
func (ss *SparseSpec) Init() error {
	if err := ss.checkSpec(); err != nil {
		return err
	}
	s := ss.Sparsity
	switch {
	case s == nil:
		return errors.New("sparsity is required")
	case s.M != ss.M || s.N != ss.N:
		return errors.New("sparsity dimensions do not match spec")
	}
	if err := s.check(); err != nil {
		return err
	}

	ss.allocate()
	group, count := GroupColumns(s)

	ctx := sparseCtx{
		ready:   true,
		count:   count,
		rowOf:   make([]int, len(s.ColIdx)),
		cols:    make([][]int, count),
		entries: make([][]int, count),
		x:       make([]float64, ss.N),
	}
	for c, g := range group {
		ctx.cols[g] = append(ctx.cols[g], c)
	}
	for r := 0; r < s.M; r++ {
		for k := s.RowPtr[r]; k < s.RowPtr[r+1]; k++ {
			ctx.rowOf[k] = r
			g := group[s.ColIdx[k]]
			ctx.entries[g] = append(ctx.entries[g], k)
		}
	}
	ss.sparseCtx = ctx
	return nil
}

// NumGroups returns the number of column groups, i.e. the number of
// perturbed evaluations per forward difference Jacobian.
func (ss *SparseSpec) NumGroups() int {
	return ss.count
}

// Diff estimates the Jacobian at x0 and stores the value of the k-th
// structural entry (in row-major order of the sparsity) into vals[k].
// If f0 is not nil it must hold Object(x0) and saves one evaluation in
// Forward mode.
func (ss *SparseSpec) Diff(x0, f0, vals []float64) error {
	if !ss.ready {
		if err := ss.Init(); err != nil {
			return err
		}
	}
	switch {
	case len(x0) != ss.N:
		return errors.New("invalid x0 dimensions")
	case len(vals) != len(ss.Sparsity.ColIdx):
		return errors.New("invalid vals dimensions")
	case f0 != nil && len(f0) != ss.M:
		return errors.New("invalid f0 dimensions")
	}

	ss.stepSize(x0)

	x := ss.x
	copy(x, x0)
	fun, h, col := ss.Object, ss.absStep, ss.Sparsity.ColIdx

	if ss.Method == Central {
		f1, f2 := ss.fx[:ss.M], ss.fx[ss.M:]
		for g := 0; g < ss.count; g++ {
			for _, c := range ss.cols[g] {
				x[c] = x0[c] - h[c]
			}
			fun(x, f1)
			for _, c := range ss.cols[g] {
				x[c] = x0[c] + h[c]
			}
			fun(x, f2)
			for _, c := range ss.cols[g] {
				x[c] = x0[c]
			}
			for _, k := range ss.entries[g] {
				r, c := ss.rowOf[k], col[k]
				vals[k] = (f2[r] - f1[r]) / (2 * h[c])
			}
		}
		return nil
	}

	if f0 == nil {
		f0 = ss.f0
		fun(x, f0)
	}
	fx := ss.fx
	for g := 0; g < ss.count; g++ {
		for _, c := range ss.cols[g] {
			x[c] = x0[c] + h[c]
		}
		fun(x, fx)
		for _, c := range ss.cols[g] {
			x[c] = x0[c]
		}
		for _, k := range ss.entries[g] {
			r, c := ss.rowOf[k], col[k]
			vals[k] = (fx[r] - f0[r]) / h[c]
		}
	}
	return nil
}
