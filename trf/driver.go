// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trf

import (
	"math"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/lsq"
	"gonum.org/v1/gonum/floats"
)

// minRadius below which the trust region is considered collapsed.
const minRadius = 1e-32

type iterDriver struct {
	optimizer *Optimizer
	workspace *Workspace
	nfev      int
	cost      float64
	radius    float64
}

// evalResiduals stores f(x) into dst and returns ½‖f‖².
func (d *iterDriver) evalResiduals(x, dst []float64) float64 {
	d.optimizer.problem.ResidualsAt(x, dst)
	d.nfev++
	return bundle.Cost(dst)
}

// evalJacobian estimates J at x, reusing the residuals f already computed there.
func (d *iterDriver) evalJacobian() {
	o, w := d.optimizer, d.workspace
	if err := w.approx.Diff(w.x, w.f, w.jac.Data); err != nil {
		panic(err)
	}
	d.nfev += w.approx.NumGroups() * (int(o.method) + 1)
	w.jac.ZeroCols(o.fixed)
	w.jac.MulTransVec(w.g, w.f)
}

// updateScale applies x_scale='jac': the column scale never shrinks during a run.
func (d *iterDriver) updateScale(first bool) {
	w := d.workspace
	w.jac.ColNorms(w.norms)
	for i, v := range w.norms {
		if v == 0 {
			v = 1
		}
		if first {
			w.scInv[i] = v
		} else {
			w.scInv[i] = max(w.scInv[i], v)
		}
		w.scale[i] = 1 / w.scInv[i]
	}
}

func (d *iterDriver) mainLoop() (sum lsq.Summary) {
	o, w := d.optimizer, d.workspace
	log, stop := &o.logger, &o.stop

	d.cost = d.evalResiduals(w.x, w.f)
	sum.InitialCost = d.cost
	if !isFinite(d.cost) {
		sum.Status = lsq.NumericalFailure
		sum.FinalCost = d.cost
		sum.NumEval = d.nfev
		return
	}

	d.evalJacobian()
	d.updateScale(true)

	floats.MulTo(w.ph, w.x, w.scInv)
	d.radius = floats.Norm(w.ph, 2)
	if d.radius == 0 {
		d.radius = 1
	}

	if log.Enable(lsq.LogIter) {
		log.Log("%9s %10s %14s %14s %12s %12s\n", "Iteration", "Total nfev", "Cost", "Cost reduction", "Step norm", "Optimality")
	}

	status := lsq.Running
	iter := 0
	for {
		gNorm := floats.Norm(w.g, math.Inf(1))
		if gNorm <= stop.GradientTolerance {
			status = lsq.GradientTolerance
			break
		}
		if iter >= stop.MaxIterations {
			status = lsq.MaxIterations
			break
		}
		if d.radius < minRadius {
			status = lsq.Singular
			break
		}
		iter++

		floats.MulTo(w.gh, w.g, w.scale)
		ghNorm := floats.Norm(w.gh, 2)
		tol := min(0.5, math.Sqrt(ghNorm)) * ghNorm
		info := w.cg.Solve(w.normal, w.gh, d.radius, tol, w.ph)
		floats.MulTo(w.step, w.ph, w.scale)

		// predicted reduction -(gᵀs + ½‖Js‖²)
		w.jac.MulVec(w.jStep, w.step)
		predicted := -(floats.Dot(w.g, w.step) + 0.5*floats.Dot(w.jStep, w.jStep))

		floats.AddTo(w.xNew, w.x, w.step)
		costNew := d.evalResiduals(w.xNew, w.fNew)
		phNorm := floats.Norm(w.ph, 2)

		if !isFinite(costNew) {
			d.radius = 0.25 * phNorm
			if log.Enable(lsq.LogTrace) {
				log.Log("%9d: non-finite cost, radius shrunk to %.3e\n", iter, d.radius)
			}
			if !isFinite(d.radius) || floats.HasNaN(w.step) {
				status = lsq.NumericalFailure
				break
			}
			continue
		}

		actual := d.cost - costNew
		ratio := reductionRatio(actual, predicted)
		switch {
		case ratio < 0.25:
			d.radius = 0.25 * phNorm
		case ratio > 0.75 && info.Boundary:
			d.radius *= 2
		}

		stepNorm := floats.Norm(w.step, 2)
		status = checkTermination(actual, d.cost, phNorm, floats.Norm(w.x, 2), ratio, stop)

		if log.Enable(lsq.LogTrace) {
			log.Log("%9d: cg %d boundary %t ratio %.3e radius %.3e\n", iter, info.Iter, info.Boundary, ratio, d.radius)
		}

		if actual <= 0 {
			if status != lsq.Running {
				break
			}
			continue
		}

		w.x, w.xNew = w.xNew, w.x
		w.f, w.fNew = w.fNew, w.f
		d.cost = costNew

		if log.Enable(lsq.LogIter) {
			log.Log("%9d %10d %14.4e %14.2e %12.2e %12.2e\n", iter, d.nfev, d.cost, actual, stepNorm, gNorm)
		}

		if status != lsq.Running {
			break
		}
		d.evalJacobian()
		d.updateScale(false)
	}

	if log.Enable(lsq.LogLast) {
		log.Log("trf: %s after %d iterations, %d evaluations, cost %.6e -> %.6e\n",
			status, iter, d.nfev, sum.InitialCost, d.cost)
	}

	sum.Status = status
	sum.NumIter = iter
	sum.NumEval = d.nfev
	sum.FinalCost = d.cost
	return
}

// checkTermination tests the function tolerance on the relative cost
// reduction and the parameter tolerance on the scaled step norm.
func checkTermination(actual, cost, stepNorm, xNorm, ratio float64, stop *lsq.Termination) lsq.Status {
	switch {
	case actual < stop.FunctionTolerance*cost && ratio > 0.25:
		return lsq.FunctionTolerance
	case stepNorm < stop.ParameterTolerance*(stop.ParameterTolerance+xNorm):
		return lsq.ParameterTolerance
	}
	return lsq.Running
}

// reductionRatio of actual and predicted cost reduction.
func reductionRatio(actual, predicted float64) float64 {
	switch {
	case predicted > 0:
		return actual / predicted
	case predicted == actual:
		return 1
	default:
		return 0
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
