// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sparse provides the matrix-free linear algebra used by the
// trust region driver: a compressed sparse row matrix whose structure is
// borrowed from a fixed pattern, the scaled normal operator built on it, and
// a truncated conjugate gradient solver for the trust region subproblem.
package sparse

import (
	"math"
)

// CSR is an r×c matrix in compressed sparse row layout.
// The row pointers and column indices are referenced, never copied, so one
// structure can back every Jacobian of a solve. Only Data changes.
type CSR struct {
	r, c   int
	rowPtr []int
	colIdx []int
	Data   []float64
}

// NewCSR returns a zero matrix with the given structure.
// Column indices of a row must be distinct.
func NewCSR(r, c int, rowPtr, colIdx []int) *CSR {
	if r <= 0 || c <= 0 {
		panic("sparse: invalid dimensions")
	}
	if len(rowPtr) != r+1 || rowPtr[0] != 0 || rowPtr[r] != len(colIdx) {
		panic("sparse: invalid row pointer")
	}
	for _, j := range colIdx {
		if j < 0 || c <= j {
			panic("sparse: column index out of range")
		}
	}
	return &CSR{
		r:      r,
		c:      c,
		rowPtr: rowPtr,
		colIdx: colIdx,
		Data:   make([]float64, len(colIdx)),
	}
}

func (m *CSR) Dims() (r, c int) {
	return m.r, m.c
}

// NNZ returns the number of structural nonzeros.
func (m *CSR) NNZ() int {
	return len(m.colIdx)
}

// At returns the element (i, j), zero outside the structure.
func (m *CSR) At(i, j int) float64 {
	if i < 0 || m.r <= i {
		panic("sparse: row index out of range")
	}
	if j < 0 || m.c <= j {
		panic("sparse: column index out of range")
	}
	for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
		if m.colIdx[k] == j {
			return m.Data[k]
		}
	}
	return 0
}

// MulVec computes dst = A x.
func (m *CSR) MulVec(dst, x []float64) {
	if m.c != len(x) {
		panic("sparse: dimension mismatch")
	}
	if m.r != len(dst) {
		panic("sparse: dimension mismatch")
	}
	for i := range dst {
		var s float64
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			s += m.Data[k] * x[m.colIdx[k]]
		}
		dst[i] = s
	}
}

// MulTransVec computes dst = Aᵀ x.
func (m *CSR) MulTransVec(dst, x []float64) {
	if m.c != len(dst) {
		panic("sparse: dimension mismatch")
	}
	if m.r != len(x) {
		panic("sparse: dimension mismatch")
	}
	for j := range dst {
		dst[j] = 0
	}
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			dst[m.colIdx[k]] += m.Data[k] * xi
		}
	}
}

// ColNorms stores the Euclidean norm of every column into dst.
func (m *CSR) ColNorms(dst []float64) {
	if m.c != len(dst) {
		panic("sparse: dimension mismatch")
	}
	for j := range dst {
		dst[j] = 0
	}
	for k, j := range m.colIdx {
		dst[j] += m.Data[k] * m.Data[k]
	}
	for j, s := range dst {
		dst[j] = math.Sqrt(s)
	}
}

// ZeroCols clears the values of every column j with mask[j] set.
func (m *CSR) ZeroCols(mask []bool) {
	if mask == nil {
		return
	}
	if m.c != len(mask) {
		panic("sparse: dimension mismatch")
	}
	for k, j := range m.colIdx {
		if mask[j] {
			m.Data[k] = 0
		}
	}
}
