// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"bytes"
	"math"
	"testing"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/lsq"
	"github.com/curioloop/bal/synth"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestInverse3(t *testing.T) {
	m := [blockP]float64{4, 1, 2, 0, 3, 1, 2, 1, 5}
	var inv [blockP]float64
	require.True(t, inverse3(&m, &inv))

	var prod mat.Dense
	prod.Mul(mat.NewDense(3, 3, m[:]), mat.NewDense(3, 3, inv[:]))
	require.True(t, mat.EqualApprox(&prod, mat.NewDiagDense(3, []float64{1, 1, 1}), 1e-14))

	singular := [blockP]float64{1, 2, 3, 2, 4, 6, 0, 1, 1}
	require.False(t, inverse3(&singular, &inv))
}

// denseStep solves (JᵀJ + μD)δ = -g directly from the Jacobian blocks.
func denseStep(d *iterDriver, mu float64) []float64 {
	w, pat := d.workspace, d.optimizer.pattern
	j := mat.NewDense(pat.Rows, pat.Cols, nil)
	for i := 0; i < w.nobs; i++ {
		for r := 0; r < 2; r++ {
			for a := 0; a < nc9; a++ {
				j.Set(2*i+r, pat.CameraCol[i]+a, w.jc[i][r][a])
			}
			for a := 0; a < np3; a++ {
				j.Set(2*i+r, pat.PointCol[i]+a, w.jp[i][r][a])
			}
		}
	}
	var a mat.Dense
	a.Mul(j.T(), j)
	for i := 0; i < pat.Cols; i++ {
		a.Set(i, i, a.At(i, i)+mu*w.diag[i])
	}
	var g mat.VecDense
	g.MulVec(j.T(), mat.NewVecDense(pat.Rows, w.f))
	g.ScaleVec(-1, &g)

	var step mat.VecDense
	if err := step.SolveVec(&a, &g); err != nil {
		panic(err)
	}
	return step.RawVector().Data
}

func TestSchurStep(t *testing.T) {
	scene, err := synth.Generate(synth.Options{NumCameras: 3, NumPoints: 8, Noise: 1, Visibility: 0.8, Seed: 21})
	require.NoError(t, err)
	start := synth.Perturb(scene.Problem, synth.Perturbation{Rotation: 1e-2, Translation: 0.05, Point: 0.05}, 1)

	opt, err := (&Problem{Bundle: start, Stop: lsq.DefaultTermination()}).New(nil)
	require.NoError(t, err)
	w := opt.Init()
	copy(w.x, start.Params())
	d := &iterDriver{optimizer: opt, workspace: w}
	d.evalResiduals(w.x, w.f)
	d.linearize()

	for _, mu := range []float64{1e-2, 1} {
		require.True(t, d.solveStep(mu))
		want := denseStep(d, mu)
		require.InDeltaSlice(t, want, w.step, 1e-6*floats.Norm(want, 2))
	}
}

func TestFitAtTruth(t *testing.T) {
	scene, err := synth.Generate(synth.Options{NumCameras: 2, NumPoints: 3, Seed: 1})
	require.NoError(t, err)

	opt, err := (&Problem{Bundle: scene.Problem, Stop: lsq.DefaultTermination()}).New(nil)
	require.NoError(t, err)
	res := opt.Fit(scene.Problem.Params(), opt.Init())
	require.True(t, res.OK)
	require.Equal(t, lsq.GradientTolerance, res.Status)
	require.Zero(t, res.NumIter)
	require.Less(t, floats.Norm(res.Residuals, 2), 1e-6)
}

func TestFitPerturbed(t *testing.T) {
	scene, err := synth.Generate(synth.Options{NumCameras: 4, NumPoints: 30, Noise: 0.5, Seed: 2})
	require.NoError(t, err)
	start := synth.Perturb(scene.Problem, synth.Perturbation{Rotation: 1e-3, Translation: 1e-2, Point: 1e-2}, 5)
	x0 := start.Params()

	var buf bytes.Buffer
	opt, err := (&Problem{Bundle: start, Stop: lsq.DefaultTermination()}).New(&lsq.Logger{Level: lsq.LogIter, Msg: &buf})
	require.NoError(t, err)
	w := opt.Init()
	res := opt.Fit(x0, w)

	require.True(t, res.OK, res.Status.String())
	require.Less(t, res.FinalCost, res.InitialCost)
	require.Equal(t, bundle.Cost(res.Residuals), res.FinalCost)
	require.Less(t, bundle.RMS(res.Residuals), 1.0)
	require.Equal(t, start.Params(), x0, "initial guess is not modified")
	require.Contains(t, buf.String(), "lm:")

	// a workspace can be reused
	again := opt.Fit(x0, w)
	require.Equal(t, res.X, again.X)
}

func TestFitFixedDistortion(t *testing.T) {
	scene, err := synth.Generate(synth.Options{NumCameras: 3, NumPoints: 20, Noise: 0.2, K1: 0.01, Seed: 4})
	require.NoError(t, err)
	start := synth.Perturb(scene.Problem, synth.Perturbation{Translation: 1e-2, Point: 1e-2}, 9)
	mask := start.FixedMask(true)

	opt, err := (&Problem{Bundle: start, Stop: lsq.DefaultTermination(), Fixed: mask}).New(nil)
	require.NoError(t, err)
	res := opt.Fit(start.Params(), opt.Init())
	require.Less(t, res.FinalCost, res.InitialCost)
	x0 := start.Params()
	for i, fixed := range mask {
		if fixed {
			require.Equal(t, x0[i], res.X[i], "parameter %d moved", i)
		}
	}
}

func TestFitMaxIterations(t *testing.T) {
	scene, err := synth.Generate(synth.Options{NumCameras: 3, NumPoints: 20, Noise: 0.5, Seed: 6})
	require.NoError(t, err)
	start := synth.Perturb(scene.Problem, synth.Perturbation{Rotation: 1e-2, Translation: 0.1, Point: 0.1}, 3)

	stop := lsq.DefaultTermination()
	stop.MaxIterations = 1
	stop.FunctionTolerance = 0
	stop.ParameterTolerance = 0
	opt, err := (&Problem{Bundle: start, Stop: stop}).New(nil)
	require.NoError(t, err)
	res := opt.Fit(start.Params(), opt.Init())
	require.False(t, res.OK)
	require.Equal(t, lsq.MaxIterations, res.Status)
	require.LessOrEqual(t, res.FinalCost, res.InitialCost)
}

func TestNewInvalid(t *testing.T) {
	scene, err := synth.Generate(synth.Options{NumCameras: 2, NumPoints: 3, Seed: 1})
	require.NoError(t, err)
	bad := scene.Problem.Clone()
	bad.PointIndices[0] = 99

	for i, p := range []*Problem{
		{Stop: lsq.DefaultTermination()},
		{Bundle: bad, Stop: lsq.DefaultTermination()},
		{Bundle: scene.Problem},
		{Bundle: scene.Problem, Stop: lsq.DefaultTermination(), Fixed: make([]bool, 3)},
	} {
		_, err := p.New(nil)
		require.Error(t, err, "case %d", i)
	}
	_, err = (&Problem{Bundle: bad, Stop: lsq.DefaultTermination()}).New(nil)
	var idx *bundle.IndexError
	require.ErrorAs(t, err, &idx)
}

// planeProblem has point 1 on the plane of camera 0, seen through a focal
// length large enough for its normal block to overflow while the cost stays finite.
func planeProblem() *bundle.Problem {
	return &bundle.Problem{
		NumCameras:      2,
		NumPoints:       2,
		NumObservations: 2,
		CameraIndices:   []int{0, 1},
		PointIndices:    []int{1, 0},
		Observations:    []float64{0, 0, 1, -1},
		CameraParams: []float64{
			0, 0, 0, 0, 0, -5, 1e150, 0, 0,
			0, 0, 0, 0, 0, -5, 500, 0, 0,
		},
		Points: []float64{
			0.2, 0.1, 1,
			1e-10, 0, 5,
		},
	}
}

func TestFitSingular(t *testing.T) {
	p := planeProblem()
	opt, err := (&Problem{Bundle: p, Stop: lsq.DefaultTermination()}).New(nil)
	require.NoError(t, err)
	res := opt.Fit(p.Params(), opt.Init())

	require.False(t, res.OK)
	require.Equal(t, lsq.Singular, res.Status)
	require.Equal(t, maxInvalidSteps, res.NumIter)
	require.Equal(t, 1, res.NumEval)
	require.Equal(t, 1, res.Degenerate)
	require.Equal(t, res.InitialCost, res.FinalCost)
	require.Equal(t, p.Params(), res.X)
}

func TestFitNonFiniteStart(t *testing.T) {
	scene, err := synth.Generate(synth.Options{NumCameras: 2, NumPoints: 3, Seed: 1})
	require.NoError(t, err)
	opt, err := (&Problem{Bundle: scene.Problem, Stop: lsq.DefaultTermination()}).New(nil)
	require.NoError(t, err)

	x := scene.Problem.Params()
	x[len(x)-1] = math.NaN()
	res := opt.Fit(x, opt.Init())
	require.False(t, res.OK)
	require.Equal(t, lsq.NumericalFailure, res.Status)
	require.Zero(t, res.NumIter)
	require.Equal(t, 1, res.NumEval)
	require.True(t, math.IsNaN(res.InitialCost))
}

func TestSolveReducedIllConditioned(t *testing.T) {
	scene, err := synth.Generate(synth.Options{NumCameras: 2, NumPoints: 3, Seed: 1})
	require.NoError(t, err)
	var buf bytes.Buffer
	opt, err := (&Problem{Bundle: scene.Problem, Stop: lsq.DefaultTermination()}).New(&lsq.Logger{Level: lsq.LogTrace, Msg: &buf})
	require.NoError(t, err)
	w := opt.Init()
	d := &iterDriver{optimizer: opt, workspace: w}

	// one 9×9 block per camera
	n := w.s.SymmetricDim()
	require.Equal(t, 18, n)
	for i := 0; i < n; i++ {
		w.s.SetSym(i, i, 1)
		w.rhs.SetVec(i, 1)
	}
	w.s.SetSym(n-1, n-1, 1e-18)

	require.True(t, d.solveReduced())
	require.Contains(t, buf.String(), "ill-conditioned")
	require.InDelta(t, 1.0, w.dc.AtVec(0), 1e-15)
	require.InEpsilon(t, 1e18, w.dc.AtVec(n-1), 1e-12)
}
