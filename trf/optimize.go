// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trf implements the reference bundle adjustment driver: a trust
// region reflective style method without bounds, as found in scipy's
// least_squares(method='trf').
//
// The Jacobian is estimated by finite differences over the known sparsity
// pattern, perturbing one group of structurally orthogonal columns at a time.
// Columns are scaled by their running maximum norm and every subproblem is
// solved by Steihaug conjugate gradients on the scaled normal operator, so no
// matrix is ever factored.
//
// # Reference:
//
//   - M. A. Branch, T. F. Coleman, Y. Li, "A Subspace, Interior, and Conjugate
//     Gradient Method for Large-Scale Bound-Constrained Minimization Problems",
//     SIAM J. Sci. Comput., 1999.
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_lsq/trf.py
//
// # License
//
//   - https://github.com/scipy/scipy/blob/main/LICENSE.txt
package trf

import (
	"errors"
	"slices"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/lsq"
	"github.com/curioloop/bal/numdiff"
	"github.com/curioloop/bal/sparse"
)

// Problem specifies the problem for the reference driver.
type Problem struct {
	Bundle *bundle.Problem // Validated bundle adjustment instance
	Stop   lsq.Termination // Stop condition
	Fixed  []bool          // Optional mask of parameters held constant
	Method numdiff.Method  // Finite difference scheme
	MaxCG  int             // Optional cap of inner CG iterations
}

// New creates a reference driver for given problem.
// The Jacobian sparsity pattern is derived here and owned by the optimizer.
func (p *Problem) New(logger *lsq.Logger) (optimizer *Optimizer, err error) {

	bp := p.Bundle
	switch {
	case bp == nil:
		err = errors.New("bundle problem is required")
	case p.Fixed != nil && len(p.Fixed) != bp.NumParams():
		err = errors.New("fixed mask size must equal to parameter number")
	case p.Method != numdiff.Forward && p.Method != numdiff.Central:
		err = errors.New("unknown finite difference method")
	case p.MaxCG < 0:
		err = errors.New("max CG iteration must not less than 0")
	}
	if err != nil {
		return
	}
	if err = p.Stop.Check(); err != nil {
		return
	}
	if err = bp.Validate(); err != nil {
		return
	}

	optimizer = &Optimizer{
		iterSpec{
			problem: bp,
			pattern: bp.Pattern(),
			stop:    p.Stop,
			fixed:   p.Fixed,
			method:  p.Method,
			maxCG:   p.MaxCG,
			logger:  lsq.Prepare(logger),
		},
	}
	return
}

type iterSpec struct {
	problem *bundle.Problem
	pattern *bundle.Pattern
	stop    lsq.Termination
	fixed   []bool
	method  numdiff.Method
	maxCG   int
	logger  lsq.Logger
}

// Optimizer implemented using the trust region method with finite difference Jacobian.
type Optimizer struct {
	iterSpec
}

// Workspace contains the state of one optimization run.
// Given m residuals, n parameters and z structural nonzeros the work space is
// approximately float64[z + 3×m + 9×n].
type Workspace struct {
	m, n int
	iterCtx
}

// The scaled quantities are gh = D g and ph = D⁻¹ step where
// D = scale is the inverse of the running maximum column norm scInv.
type iterCtx struct {
	jac     *sparse.CSR
	normal  *sparse.Normal
	cg      sparse.Steihaug
	approx  numdiff.SparseSpec
	f, fNew []float64
	jStep   []float64
	x, xNew []float64
	g, gh   []float64
	scale   []float64
	scInv   []float64
	ph      []float64
	step    []float64
	norms   []float64
}

// Init allocate the workspace for the reference driver.
func (o *Optimizer) Init() *Workspace {
	pat := o.pattern
	m, n := pat.Rows, pat.Cols
	w := &Workspace{m: m, n: n}
	jac := sparse.NewCSR(m, n, pat.RowPtr, pat.ColIdx)
	w.iterCtx = iterCtx{
		jac:   jac,
		f:     make([]float64, m),
		fNew:  make([]float64, m),
		jStep: make([]float64, m),
		x:     make([]float64, n),
		xNew:  make([]float64, n),
		g:     make([]float64, n),
		gh:    make([]float64, n),
		scale: make([]float64, n),
		scInv: make([]float64, n),
		ph:    make([]float64, n),
		step:  make([]float64, n),
		norms: make([]float64, n),
	}
	w.normal = sparse.NewNormal(jac, w.scale)
	w.cg.MaxIter = o.maxCG
	w.approx = numdiff.SparseSpec{
		ApproxSpec: numdiff.ApproxSpec{
			N: n, M: m,
			Method: o.method,
			Object: func(x, y []float64) { o.problem.ResidualsAt(x, y) },
		},
		Sparsity: &numdiff.Sparsity{M: m, N: n, RowPtr: pat.RowPtr, ColIdx: pat.ColIdx},
	}
	return w
}

// Fit runs the optimization from the initial guess x using workspace w.
// The input x is left untouched.
func (o *Optimizer) Fit(x []float64, w *Workspace) *lsq.Result {

	if len(x) != o.pattern.Cols {
		panic("initial x dimension not match problem")
	}
	if w.m != o.pattern.Rows || w.n != o.pattern.Cols {
		panic("workspace dimension not match problem")
	}

	copy(w.x, x)
	driver := iterDriver{optimizer: o, workspace: w}
	sum := driver.mainLoop()

	res := &lsq.Result{
		OK:        sum.Status.Converged(),
		X:         slices.Clone(w.x),
		Residuals: slices.Clone(w.f),
		Summary:   sum,
	}
	res.Degenerate = o.problem.ResidualsAt(res.X, res.Residuals)
	return res
}
