// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Steihaug approximately solves the trust region subproblem
//
//	min gᵀp + ½ pᵀAp  subject to  ‖p‖ ≤ Δ
//
// by conjugate gradients truncated at the boundary or at a direction of
// non-positive curvature.
//
// # Reference:
//
//   - T. Steihaug, "The conjugate gradient method and trust regions in large
//     scale optimization", SIAM J. Numer. Anal., 1983.
//   - J. Nocedal, S. J. Wright, "Numerical Optimization", 2nd ed., Algorithm 7.2.
type Steihaug struct {
	// Maximum number of CG iterations; zero means the dimension of g.
	MaxIter int
	r, d, ad []float64
}

// CGInfo describes how the inner solve terminated.
type CGInfo struct {
	Iter     int  // CG iterations performed.
	Boundary bool // The step lies on the trust region boundary.
	Negative bool // A direction of non-positive curvature was met.
}

func (s *Steihaug) allocate(n int) {
	if len(s.r) != n {
		s.r = make([]float64, n)
		s.d = make([]float64, n)
		s.ad = make([]float64, n)
	}
}

// Solve stores the step into p. The inner iteration stops once the residual
// norm of the linear system A p = -g falls below tol.
func (s *Steihaug) Solve(a Operator, g []float64, radius, tol float64, p []float64) (info CGInfo) {
	n := len(g)
	if len(p) != n {
		panic("sparse: dimension mismatch")
	}
	s.allocate(n)
	r, d, ad := s.r, s.d, s.ad

	for i := range p {
		p[i] = 0
	}
	copy(r, g)
	for i, v := range r {
		d[i] = -v
	}
	rr := floats.Dot(r, r)
	if math.Sqrt(rr) <= tol {
		return
	}

	maxIter := s.MaxIter
	if maxIter <= 0 {
		maxIter = n
	}

	for info.Iter < maxIter {
		info.Iter++
		a.MulVec(ad, d)
		dad := floats.Dot(d, ad)
		if dad <= 0 {
			floats.AddScaled(p, toBoundary(p, d, radius), d)
			info.Boundary, info.Negative = true, true
			return
		}
		alpha := rr / dad
		// ‖p + αd‖ ≥ Δ leaves the region
		if pn := stepNorm(p, d, alpha); pn >= radius {
			floats.AddScaled(p, toBoundary(p, d, radius), d)
			info.Boundary = true
			return
		}
		floats.AddScaled(p, alpha, d)
		floats.AddScaled(r, alpha, ad)
		rn := floats.Dot(r, r)
		if math.Sqrt(rn) <= tol {
			return
		}
		beta := rn / rr
		rr = rn
		for i, v := range r {
			d[i] = beta*d[i] - v
		}
	}
	return
}

func stepNorm(p, d []float64, alpha float64) float64 {
	var s float64
	for i, v := range p {
		w := v + alpha*d[i]
		s += w * w
	}
	return math.Sqrt(s)
}

// toBoundary returns the positive τ with ‖p + τd‖ = Δ.
func toBoundary(p, d []float64, radius float64) float64 {
	a := floats.Dot(d, d)
	if a == 0 {
		return 0
	}
	b := floats.Dot(p, d)
	c := floats.Dot(p, p) - radius*radius
	disc := math.Sqrt(max(b*b-a*c, 0))
	// numerically stable root of a τ² + 2b τ + c = 0
	if b >= 0 {
		return -c / (b + disc)
	}
	return (disc - b) / a
}
