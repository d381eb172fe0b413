// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bundle

import (
	"math"

	"github.com/curioloop/bal/camera"
	"gonum.org/v1/gonum/floats"
)

// ResidualsAt evaluates the reprojection error of every observation for the
// flattened parameter vector x and stores it into dst, two entries per
// observation. It returns the number of observations whose depth was
// degenerate.
func (p *Problem) ResidualsAt(x, dst []float64) (degenerate int) {
	if len(x) != p.NumParams() || len(dst) != p.NumResiduals() {
		panic("bundle: residual dimension mismatch")
	}
	obs := p.Observations
	for i := 0; i < p.NumObservations; i++ {
		cam := p.Camera(x, p.CameraIndices[i])
		pt := p.Point(x, p.PointIndices[i])
		rx, ry, ok := camera.Residual(cam, pt, obs[2*i], obs[2*i+1])
		dst[2*i], dst[2*i+1] = rx, ry
		if !ok {
			degenerate++
		}
	}
	return
}

// Residuals evaluates the reprojection error of the problem's own parameters.
func (p *Problem) Residuals() []float64 {
	r := make([]float64, p.NumResiduals())
	p.ResidualsAt(p.Params(), r)
	return r
}

// Cost returns ½‖r‖².
func Cost(r []float64) float64 {
	return 0.5 * floats.Dot(r, r)
}

// RMS returns the root mean square of r, or zero for an empty vector.
func RMS(r []float64) float64 {
	if len(r) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(r, r) / float64(len(r)))
}
