// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"math"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/lsq"
	"gonum.org/v1/gonum/floats"
)

const (
	initialRadius = 1e4
	maxRadius     = 1e16
	minRadius     = 1e-32
	// minimum ratio of actual to predicted reduction for accepting a step
	minRelativeDecrease = 1e-3
	// consecutive unsolvable linear systems tolerated before giving up
	maxInvalidSteps = 5
)

type iterDriver struct {
	optimizer *Optimizer
	workspace *Workspace
	nfev      int
	cost      float64
	radius    float64
	decrease  float64
}

func (d *iterDriver) evalResiduals(x, dst []float64) float64 {
	d.optimizer.problem.ResidualsAt(x, dst)
	d.nfev++
	return bundle.Cost(dst)
}

// reject shrinks the trust region after an unsuccessful step.
func (d *iterDriver) reject() {
	d.radius /= d.decrease
	d.decrease *= 2
}

func (d *iterDriver) mainLoop() (sum lsq.Summary) {
	o, w := d.optimizer, d.workspace
	log, stop := &o.logger, &o.stop

	d.cost = d.evalResiduals(w.x, w.f)
	sum.InitialCost = d.cost
	if math.IsNaN(d.cost) || math.IsInf(d.cost, 0) {
		sum.Status = lsq.NumericalFailure
		sum.FinalCost = d.cost
		sum.NumEval = d.nfev
		return
	}
	d.linearize()
	d.radius, d.decrease = initialRadius, 2

	if log.Enable(lsq.LogIter) {
		log.Log("%4s %13s %11s %11s %11s %11s %11s\n", "iter", "cost", "cost_change", "|gradient|", "|step|", "tr_ratio", "tr_radius")
		log.Log("%4d %13.6e %11.2e %11.2e %11.2e %11.2e %11.2e\n", 0, d.cost, 0.0, floats.Norm(w.g, math.Inf(1)), 0.0, 0.0, d.radius)
	}

	status := lsq.Running
	iter, invalid := 0, 0
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
		iter++

		if !d.solveStep(1 / d.radius) {
			invalid++
			d.reject()
			if log.Enable(lsq.LogTrace) {
				log.Log("%4d linear solve failed, radius shrunk to %.3e\n", iter, d.radius)
			}
			if invalid >= maxInvalidSteps || d.radius < minRadius {
				status = lsq.Singular
				break
			}
			continue
		}
		invalid = 0

		stepNorm := floats.Norm(w.step, 2)
		xNorm := floats.Norm(w.x, 2)
		if stepNorm <= (xNorm+stop.ParameterTolerance)*stop.ParameterTolerance {
			status = lsq.ParameterTolerance
			break
		}

		// model cost ½‖f + Jδ‖²
		d.applyJacobian(w.jStep, w.step)
		floats.Add(w.jStep, w.f)
		predicted := d.cost - bundle.Cost(w.jStep)

		floats.AddTo(w.xNew, w.x, w.step)
		costNew := d.evalResiduals(w.xNew, w.fNew)
		if math.IsNaN(costNew) || math.IsInf(costNew, 0) {
			d.reject()
			if d.radius < minRadius {
				status = lsq.NumericalFailure
				break
			}
			continue
		}

		actual := d.cost - costNew
		if math.Abs(actual) <= stop.FunctionTolerance*d.cost {
			status = lsq.FunctionTolerance
		}

		ratio := math.Inf(-1)
		if predicted > 0 {
			ratio = actual / predicted
		}

		if ratio <= minRelativeDecrease {
			if log.Enable(lsq.LogTrace) {
				log.Log("%4d step rejected, ratio %.3e radius %.3e\n", iter, ratio, d.radius)
			}
			if status != lsq.Running {
				break
			}
			d.reject()
			if d.radius < minRadius {
				status = lsq.Singular
				break
			}
			continue
		}

		w.x, w.xNew = w.xNew, w.x
		w.f, w.fNew = w.fNew, w.f
		d.cost = costNew
		d.radius = min(d.radius/max(1.0/3, 1-math.Pow(2*ratio-1, 3)), maxRadius)
		d.decrease = 2

		if status != lsq.Running {
			break
		}
		d.linearize()

		if log.Enable(lsq.LogIter) {
			log.Log("%4d %13.6e %11.2e %11.2e %11.2e %11.2e %11.2e\n", iter, d.cost, actual, floats.Norm(w.g, math.Inf(1)), stepNorm, ratio, d.radius)
		}
	}

	if log.Enable(lsq.LogLast) {
		log.Log("lm: %s after %d iterations, %d evaluations, cost %.6e -> %.6e\n",
			status, iter, d.nfev, sum.InitialCost, d.cost)
	}

	sum.Status = status
	sum.NumIter = iter
	sum.NumEval = d.nfev
	sum.FinalCost = d.cost
	return
}
