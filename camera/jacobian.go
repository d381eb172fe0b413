// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package camera

import (
	"math"

	"github.com/golang/geo/r3"
)

type mat3 [3][3]float64

func skew(v r3.Vector) mat3 {
	return mat3{
		{0, -v.Z, v.Y},
		{v.Z, 0, -v.X},
		{-v.Y, v.X, 0},
	}
}

func (a *mat3) mul(b *mat3) (c mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			c[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j]
		}
	}
	return
}

// rotationJacobian returns the rotation matrix R of the angle-axis vector w
// and the derivative of R·x with respect to w.
//
// For θ > 0 the compact exponential-coordinates formula is used:
//
//	∂(R x)/∂w = −R [x]× (w wᵀ + (Rᵀ − I)[w]×) / θ²
//
// # Reference:
//
//   - G. Gallego, A. Yezzi, "A compact formula for the derivative of a 3-D
//     rotation in exponential coordinates", J. Math. Imaging Vis., 2015.
func rotationJacobian(w, x r3.Vector) (r, d mat3) {
	theta2 := w.Norm2()
	sx := skew(x)
	if theta2 < angleEps {
		sw := skew(w)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				r[i][j] = sw[i][j]
				d[i][j] = -sx[i][j]
			}
			r[i][i] += 1
		}
		return
	}

	theta := math.Sqrt(theta2)
	a := r3.Vector{X: w.X / theta, Y: w.Y / theta, Z: w.Z / theta}
	c, s := math.Cos(theta), math.Sin(theta)
	av := [3]float64{a.X, a.Y, a.Z}
	sa := skew(a)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = s*sa[i][j] + (1-c)*av[i]*av[j]
		}
		r[i][i] += c
	}

	// m = w wᵀ + (Rᵀ − I)[w]×
	wv := [3]float64{w.X, w.Y, w.Z}
	sw := skew(w)
	var rtI mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rtI[i][j] = r[j][i]
		}
		rtI[i][i] -= 1
	}
	m := rtI.mul(&sw)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] += wv[i] * wv[j]
		}
	}

	rsx := r.mul(&sx)
	d = rsx.mul(&m)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d[i][j] /= -theta2
		}
	}
	return
}

// ProjectJacobian projects pt like Project and writes the partial derivatives
// of the predicted pixel (u, v) with respect to the camera block into jc and
// with respect to the point coordinates into jp.
func ProjectJacobian(cam, pt []float64, jc *[2][NumParams]float64, jp *[2][PointParams]float64) (u, v float64, ok bool) {
	w, x := RotationOf(cam), PointOf(pt)
	r, dw := rotationJacobian(w, x)
	p := Rotate(w, x).Add(TranslationOf(cam))

	z, ok := guardDepth(p.Z)
	xp, yp := -p.X/z, -p.Y/z
	r2 := xp*xp + yp*yp
	f, k1, k2 := cam[Focal], cam[K1], cam[K2]
	dist := distort(cam, r2)
	dr := k1 + 2*k2*r2

	// ∂(u,v)/∂(xp,yp)
	a00 := f * (dist + 2*xp*xp*dr)
	a01 := f * 2 * xp * yp * dr
	a11 := f * (dist + 2*yp*yp*dr)

	// ∂(xp,yp)/∂p
	iz := 1 / z
	px := [3]float64{-iz, 0, p.X * iz * iz}
	py := [3]float64{0, -iz, p.Y * iz * iz}

	// ∂(u,v)/∂p
	var dp [2][3]float64
	for k := 0; k < 3; k++ {
		dp[0][k] = a00*px[k] + a01*py[k]
		dp[1][k] = a01*px[k] + a11*py[k]
	}

	for i := 0; i < 2; i++ {
		for k := 0; k < 3; k++ {
			jc[i][Rotation+k] = dp[i][0]*dw[0][k] + dp[i][1]*dw[1][k] + dp[i][2]*dw[2][k]
			jc[i][Translation+k] = dp[i][k]
			jp[i][k] = dp[i][0]*r[0][k] + dp[i][1]*r[1][k] + dp[i][2]*r[2][k]
		}
	}

	jc[0][Focal], jc[1][Focal] = dist*xp, dist*yp
	jc[0][K1], jc[1][K1] = f*r2*xp, f*r2*yp
	jc[0][K2], jc[1][K2] = f*r2*r2*xp, f*r2*r2*yp

	s := f * dist
	return s * xp, s * yp, ok
}

// ResidualJacobian is ProjectJacobian shifted by the observed pixel.
func ResidualJacobian(cam, pt []float64, ox, oy float64, jc *[2][NumParams]float64, jp *[2][PointParams]float64) (rx, ry float64, ok bool) {
	u, v, ok := ProjectJacobian(cam, pt, jc, jp)
	return u - ox, v - oy, ok
}
