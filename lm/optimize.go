// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lm implements the accelerated bundle adjustment driver: a
// Levenberg-Marquardt trust region method on the analytic Jacobian.
//
// Every iteration assembles the damped normal equations block by block,
// eliminates the 3×3 point blocks with the Schur complement and factors the
// reduced camera system by Cholesky decomposition. The step control follows
// the Ceres Solver trust region strategy.
//
// The reduced camera system is held as a dense 9C×9C symmetric matrix for C
// cameras and factored in O((9C)³) per iteration. A thousand cameras take
// about 650 MB for the matrix alone, so problems with thousands of cameras
// are better served by the reference driver, which never forms a matrix.
//
// # Reference:
//
//   - K. Madsen, H. B. Nielsen, O. Tingleff, "Methods for Non-Linear Least
//     Squares Problems", 2004.
//   - B. Triggs, P. McLauchlan, R. Hartley, A. Fitzgibbon, "Bundle
//     Adjustment - A Modern Synthesis", 2000.
//   - http://ceres-solver.org/nnls_solving.html#levenberg-marquardt
package lm

import (
	"errors"
	"slices"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/camera"
	"github.com/curioloop/bal/lsq"
	"gonum.org/v1/gonum/mat"
)

// Problem specifies the problem for the accelerated driver.
type Problem struct {
	Bundle *bundle.Problem // Validated bundle adjustment instance
	Stop   lsq.Termination // Stop condition
	Fixed  []bool          // Optional mask of parameters held constant
}

// New creates an accelerated driver for given problem.
func (p *Problem) New(logger *lsq.Logger) (optimizer *Optimizer, err error) {

	bp := p.Bundle
	switch {
	case bp == nil:
		err = errors.New("bundle problem is required")
	case p.Fixed != nil && len(p.Fixed) != bp.NumParams():
		err = errors.New("fixed mask size must equal to parameter number")
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
	logger  lsq.Logger
}

// Optimizer implemented using the Levenberg-Marquardt method with Schur complement.
type Optimizer struct {
	iterSpec
}

// Workspace contains the state of one optimization run.
// Given c cameras the reduced camera system alone takes float64[(9c)²],
// the remaining storage grows linearly with observations and points.
type Workspace struct {
	nc, np, nobs int
	iterCtx
}

type iterCtx struct {
	// Jacobian blocks of every observation.
	jc [][2][camera.NumParams]float64
	jp [][2][camera.PointParams]float64

	// Normal equations: camera blocks u, point blocks v, coupling w = jcᵀjp
	// per observation and gradient g = Jᵀf in parameter order.
	u, v, w []float64
	g       []float64
	diag    []float64

	// Schur complement workspace.
	vInv []float64
	y    []float64 // w V⁻¹ per observation
	s    *mat.SymDense
	rhs  *mat.VecDense
	dc   *mat.VecDense
	chol mat.Cholesky

	x, xNew []float64
	f, fNew []float64
	step    []float64
	jStep   []float64
}

// Init allocate the workspace for the accelerated driver.
func (o *Optimizer) Init() *Workspace {
	pat := o.pattern
	nc, np, nobs := pat.NumCameras, pat.NumPoints, pat.NumObservations()
	m, n, ncp := pat.Rows, pat.Cols, camera.NumParams*pat.NumCameras
	w := &Workspace{nc: nc, np: np, nobs: nobs}
	w.iterCtx = iterCtx{
		jc:    make([][2][camera.NumParams]float64, nobs),
		jp:    make([][2][camera.PointParams]float64, nobs),
		u:     make([]float64, nc*blockC),
		v:     make([]float64, np*blockP),
		w:     make([]float64, nobs*blockW),
		g:     make([]float64, n),
		diag:  make([]float64, n),
		vInv:  make([]float64, np*blockP),
		y:     make([]float64, nobs*blockW),
		s:     mat.NewSymDense(ncp, nil),
		rhs:   mat.NewVecDense(ncp, nil),
		dc:    mat.NewVecDense(ncp, nil),
		x:     make([]float64, n),
		xNew:  make([]float64, n),
		f:     make([]float64, m),
		fNew:  make([]float64, m),
		step:  make([]float64, n),
		jStep: make([]float64, m),
	}
	return w
}

// Fit runs the optimization from the initial guess x using workspace w.
// The input x is left untouched.
func (o *Optimizer) Fit(x []float64, w *Workspace) *lsq.Result {

	pat := o.pattern
	if len(x) != pat.Cols {
		panic("initial x dimension not match problem")
	}
	if w.nc != pat.NumCameras || w.np != pat.NumPoints || w.nobs != pat.NumObservations() {
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
