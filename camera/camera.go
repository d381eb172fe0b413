// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package camera implements the reprojection model shared by every solver:
// an angle-axis rotation, a translation and a pinhole projection with two
// radial distortion coefficients.
//
// The camera looks down its −Z axis, so a point in front of the camera has a
// negative depth and projects as xp = −X/Z, yp = −Y/Z.
//
// # Reference:
//
//   - https://grail.cs.washington.edu/projects/bal/
package camera

import (
	"math"

	"github.com/golang/geo/r3"
)

// NumParams is the size of one camera block.
const NumParams = 9

// PointParams is the size of one point block.
const PointParams = 3

// Offsets inside a camera block.
const (
	Rotation    = 0 // angle-axis rotation vector (3)
	Translation = 3 // translation (3)
	Focal       = 6 // focal length
	K1          = 7 // second order radial distortion
	K2          = 8 // fourth order radial distortion
)

const (
	// angleEps is the squared rotation angle below which the rotation is
	// evaluated in its first order form.
	angleEps = 1e-16
	// depthEps is the smallest depth magnitude accepted by the projection.
	depthEps = 1e-12
)

// RotationOf returns the angle-axis vector of a camera block.
func RotationOf(cam []float64) r3.Vector {
	return r3.Vector{X: cam[Rotation], Y: cam[Rotation+1], Z: cam[Rotation+2]}
}

// TranslationOf returns the translation of a camera block.
func TranslationOf(cam []float64) r3.Vector {
	return r3.Vector{X: cam[Translation], Y: cam[Translation+1], Z: cam[Translation+2]}
}

// PointOf returns the coordinates of a point block.
func PointOf(pt []float64) r3.Vector {
	return r3.Vector{X: pt[0], Y: pt[1], Z: pt[2]}
}

// Rotate rotates p by the angle-axis vector rot using the Rodrigues formula
//
//	p cosθ + (â × p) sinθ + â (â·p)(1 − cosθ)
//
// A vanishing angle falls back to p + rot × p, which is exact to first order
// and the identity for rot = 0.
func Rotate(rot, p r3.Vector) r3.Vector {
	theta2 := rot.Norm2()
	if theta2 < angleEps {
		return p.Add(rot.Cross(p))
	}
	theta := math.Sqrt(theta2)
	axis := rot.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	return p.Mul(c).
		Add(axis.Cross(p).Mul(s)).
		Add(axis.Mul(axis.Dot(p) * (1 - c)))
}

// Transform maps a world point into the camera frame.
func Transform(cam, pt []float64) r3.Vector {
	return Rotate(RotationOf(cam), PointOf(pt)).Add(TranslationOf(cam))
}

// guardDepth clamps a depth too close to zero and reports whether it was usable.
// NaN passes through unchanged.
func guardDepth(z float64) (float64, bool) {
	if !(math.Abs(z) < depthEps) {
		return z, true
	}
	if z > 0 {
		return depthEps, false
	}
	return -depthEps, false
}

// distort returns the radial distortion factor 1 + k1·r² + k2·r⁴.
func distort(cam []float64, r2 float64) float64 {
	return 1 + cam[K1]*r2 + cam[K2]*r2*r2
}

// Project returns the predicted pixel of pt seen by cam.
// ok is false when the point lies on the camera plane; the depth is clamped
// to ±depthEps in that case so the prediction stays finite.
func Project(cam, pt []float64) (u, v float64, ok bool) {
	p := Transform(cam, pt)
	z, ok := guardDepth(p.Z)
	xp, yp := -p.X/z, -p.Y/z
	s := cam[Focal] * distort(cam, xp*xp+yp*yp)
	return s * xp, s * yp, ok
}

// Residual returns the reprojection error (predicted − observed) of one observation.
func Residual(cam, pt []float64, ox, oy float64) (rx, ry float64, ok bool) {
	u, v, ok := Project(cam, pt)
	return u - ox, v - oy, ok
}
