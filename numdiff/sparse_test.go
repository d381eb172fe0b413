// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"math"
	"testing"
)

// Case Sources : https://github.com/scipy/scipy/blob/main/scipy/optimize/tests/test__numdiff.py
// (TestApproxDerivativeSparse.fun)
func objBand(x, y []float64) {
	n := len(x)
	y[0] = x[0]*x[0] - 2*x[1]
	for i := 1; i < n-1; i++ {
		y[i] = x[i]*x[i] + math.Sin(x[i-1]) - 3*x[i+1]*x[i+1]
	}
	y[n-1] = math.Cos(x[n-2]) + x[n-1]*x[n-1]
}

func bandSparsity(n int) *Sparsity {
	s := &Sparsity{M: n, N: n, RowPtr: make([]int, n+1)}
	for i := 0; i < n; i++ {
		for j := max(0, i-1); j <= min(n-1, i+1); j++ {
			s.ColIdx = append(s.ColIdx, j)
		}
		s.RowPtr[i+1] = len(s.ColIdx)
	}
	return s
}

func TestGroupColumns(t *testing.T) {

	// tridiagonal columns i, i+3, i+6 ... never share a row
	s := bandSparsity(10)
	group, count := GroupColumns(s)
	if count != 3 {
		t.Fatalf("unexpected group count %d", count)
	}
	for c, g := range group {
		if g != c%3 {
			t.Fatalf("unexpected group %d of column %d", g, c)
		}
	}

	// dense rows force one group per column
	d := &Sparsity{M: 2, N: 3, RowPtr: []int{0, 3, 6}, ColIdx: []int{0, 1, 2, 0, 1, 2}}
	if _, count = GroupColumns(d); count != 3 {
		t.Fatalf("unexpected dense group count %d", count)
	}

	// empty columns join the first group
	e := &Sparsity{M: 1, N: 3, RowPtr: []int{0, 1}, ColIdx: []int{1}}
	group, count = GroupColumns(e)
	if count != 1 || group[0] != 0 || group[1] != 0 || group[2] != 0 {
		t.Fatalf("unexpected empty column groups %v", group)
	}
}

// Case Sources : https://github.com/scipy/scipy/blob/main/scipy/optimize/tests/test__numdiff.py
// (TestApproxDerivativeSparse.test_all)
func TestSparseMatchesDense(t *testing.T) {

	const n = 12
	s := bandSparsity(n)
	x0 := make([]float64, n)
	for i := range x0 {
		x0[i] = float64(i+1) / 3
	}

	for _, method := range []Method{Forward, Central} {
		dense := make([]float64, n*n)
		as := ApproxSpec{N: n, M: n, Method: method, Object: objBand}
		if err := as.Diff(x0, dense); err != nil {
			t.Fatal("dense approx failed", err)
		}

		vals := make([]float64, len(s.ColIdx))
		ss := SparseSpec{ApproxSpec: ApproxSpec{N: n, M: n, Method: method, Object: objBand}, Sparsity: s}
		if err := ss.Diff(x0, nil, vals); err != nil {
			t.Fatal("sparse approx failed", err)
		}
		if ss.NumGroups() != 3 {
			t.Fatalf("unexpected group count %d", ss.NumGroups())
		}

		for r := 0; r < n; r++ {
			for k := s.RowPtr[r]; k < s.RowPtr[r+1]; k++ {
				if !relativeEqual(vals[k], dense[r*n+s.ColIdx[k]], 1e-12) {
					t.Fatalf("sparse entry (%d,%d) differs", r, s.ColIdx[k])
				}
			}
		}
	}
}

func TestSparseAccuracy(t *testing.T) {

	const n = 8
	s := bandSparsity(n)
	x0 := make([]float64, n)
	for i := range x0 {
		x0[i] = 0.25 * float64(i)
	}

	exact := func(r, c int) float64 {
		switch {
		case r == 0 && c == 0:
			return 2 * x0[0]
		case r == 0 && c == 1:
			return -2
		case r == n-1 && c == n-2:
			return -math.Sin(x0[n-2])
		case r == n-1 && c == n-1:
			return 2 * x0[n-1]
		case c == r-1:
			return math.Cos(x0[r-1])
		case c == r:
			return 2 * x0[r]
		case c == r+1:
			return -6 * x0[r+1]
		}
		return 0
	}

	f0 := make([]float64, n)
	objBand(x0, f0)
	vals := make([]float64, len(s.ColIdx))
	ss := SparseSpec{ApproxSpec: ApproxSpec{N: n, M: n, Method: Forward, Object: objBand}, Sparsity: s}
	if err := ss.Diff(x0, f0, vals); err != nil {
		t.Fatal("sparse approx failed", err)
	}
	for r := 0; r < n; r++ {
		for k := s.RowPtr[r]; k < s.RowPtr[r+1]; k++ {
			if math.Abs(vals[k]-exact(r, s.ColIdx[k])) > 1e-6 {
				t.Fatalf("inaccurate entry (%d,%d): %v", r, s.ColIdx[k], vals[k])
			}
		}
	}

	// x0 is left untouched
	for i, v := range x0 {
		if v != 0.25*float64(i) {
			t.Fatal("x0 modified")
		}
	}
}

func TestSparseCheck(t *testing.T) {

	vals := make([]float64, 3)
	x0 := []float64{1, 2}

	cases := []SparseSpec{
		{ApproxSpec: ApproxSpec{N: 2, M: 2, Object: objZero}},
		{ApproxSpec: ApproxSpec{N: 2, M: 2, Object: objZero},
			Sparsity: &Sparsity{M: 3, N: 2, RowPtr: []int{0, 1, 2, 3}, ColIdx: []int{0, 1, 1}}},
		{ApproxSpec: ApproxSpec{N: 2, M: 2, Object: objZero},
			Sparsity: &Sparsity{M: 2, N: 2, RowPtr: []int{0, 1, 3}, ColIdx: []int{0, 2, 1}}},
		{ApproxSpec: ApproxSpec{N: 2, M: 2, Object: objZero},
			Sparsity: &Sparsity{M: 2, N: 2, RowPtr: []int{0, 1, 2}, ColIdx: []int{0, 1, 1}}},
		{ApproxSpec: ApproxSpec{N: 2, M: 2},
			Sparsity: &Sparsity{M: 2, N: 2, RowPtr: []int{0, 1, 3}, ColIdx: []int{0, 0, 1}}},
	}
	for i, ss := range cases {
		if err := ss.Diff(x0, nil, vals); err == nil {
			t.Fatalf("case %d: invalid spec accepted", i)
		}
	}

	ss := SparseSpec{ApproxSpec: ApproxSpec{N: 2, M: 2, Object: objZero},
		Sparsity: &Sparsity{M: 2, N: 2, RowPtr: []int{0, 1, 3}, ColIdx: []int{0, 0, 1}}}
	if err := ss.Diff(x0, nil, make([]float64, 2)); err == nil {
		t.Fatal("invalid vals accepted")
	}
	if err := ss.Diff(x0, nil, vals); err != nil {
		t.Fatal("valid spec rejected", err)
	}
	// y = (x0·x1, cos(x0·x1)) at (1, 2)
	if !relativeEqual(vals, []float64{2, -2 * math.Sin(2), -math.Sin(2)}, 1e-6) {
		t.Fatalf("unexpected values %v", vals)
	}
}
