// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff estimates Jacobians by finite differences, either densely
// or, when the sparsity structure is known, by perturbing groups of
// structurally independent columns at once.
package numdiff

import (
	"errors"
	"math"
)

var (
	sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
	cubeEps = math.Cbrt(math.Nextafter(1, 2) - 1)
)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use the second order accuracy central difference.
	Central
)

// ApproxSpec describes the function whose Jacobian is estimated and how the
// finite difference steps are chosen.
//
// # Reference:
//
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
//
// # License
//
//   - https://github.com/scipy/scipy/blob/main/LICENSE.txt
type ApproxSpec struct {
	N, M int
	// Object stores f(x) into the m-vector y. It must not retain x.
	Object func(x, y []float64)
	Method Method
	// Relative step: h = RelStep·sign(x)·|x|.
	// When both RelStep and AbsStep are zero, h = eps·sign(x)·max(1, |x|)
	// with eps = √ε (Forward) or ∛ε (Central).
	RelStep float64
	// Absolute step, takes precedence over RelStep.
	AbsStep float64
	approxCtx
}

type approxCtx struct {
	f0, fx  []float64
	absStep []float64
}

func (as *ApproxSpec) checkSpec() error {
	switch {
	case as.N <= 0 || as.M <= 0:
		return errors.New("negative dimensions")
	case as.Method != Forward && as.Method != Central:
		return errors.New("unknown method")
	case as.Object == nil:
		return errors.New("object function is required")
	}
	return nil
}

func (as *ApproxSpec) allocate() {
	if len(as.f0) != as.M {
		as.f0 = make([]float64, as.M)
	}
	if len(as.fx) != as.M*(int(as.Method)+1) {
		as.fx = make([]float64, as.M*(int(as.Method)+1))
	}
	if len(as.absStep) != as.N {
		as.absStep = make([]float64, as.N)
	}
}

// step returns the absolute step for a coordinate of value v.
// A step that vanishes against v falls back to the automatic one.
// Central steps are symmetric so their sign is dropped.
func (as *ApproxSpec) step(v float64) float64 {
	eps := sqrtEps
	if as.Method == Central {
		eps = cubeEps
	}
	auto := math.Copysign(eps, v) * math.Max(1, math.Abs(v))

	h := as.AbsStep
	if h == 0 {
		h = math.Copysign(as.RelStep, v) * math.Abs(v)
	}
	if (v+h)-v == 0 {
		h = auto
	}
	if as.Method == Central {
		h = math.Abs(h)
	}
	return h
}

func (as *ApproxSpec) stepSize(x0 []float64) {
	for i, v := range x0 {
		as.absStep[i] = as.step(v)
	}
}

// Dense returns the structure of a full m×n Jacobian in row-major order.
func Dense(m, n int) *Sparsity {
	s := &Sparsity{M: m, N: n, RowPtr: make([]int, m+1), ColIdx: make([]int, 0, m*n)}
	for r := 0; r < m; r++ {
		for c := 0; c < n; c++ {
			s.ColIdx = append(s.ColIdx, c)
		}
		s.RowPtr[r+1] = len(s.ColIdx)
	}
	return s
}

// Diff estimates the full Jacobian at x0 into diff, row-major m×n.
// Every column is perturbed on its own, which costs N (Forward) or 2N
// (Central) evaluations; prefer SparseSpec when the structure is known.
func (as *ApproxSpec) Diff(x0, diff []float64) error {
	if err := as.checkSpec(); err != nil {
		return err
	}
	if len(diff) != as.N*as.M {
		return errors.New("invalid diff dimensions")
	}
	ss := SparseSpec{ApproxSpec: *as, Sparsity: Dense(as.M, as.N)}
	return ss.Diff(x0, nil, diff)
}
