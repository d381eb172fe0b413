// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"math"

	"github.com/curioloop/bal/camera"
	"github.com/curioloop/bal/lsq"
)

const (
	nc9    = camera.NumParams
	np3    = camera.PointParams
	blockC = nc9 * nc9 // camera block
	blockP = np3 * np3 // point block
	blockW = nc9 * np3 // camera-point coupling block

	minDiagonal = 1e-6
	maxDiagonal = 1e32
)

// linearize evaluates the Jacobian blocks at x and assembles the undamped
// normal equations. The residuals f at x must be current.
func (d *iterDriver) linearize() {
	o, w := d.optimizer, d.workspace
	p, pat := o.problem, o.pattern
	x, obs := w.x, p.Observations

	clear(w.u)
	clear(w.v)
	clear(w.g)
	pointBase := nc9 * pat.NumCameras

	for i := 0; i < w.nobs; i++ {
		cc, pc := pat.CameraCol[i], pat.PointCol[i]
		jc, jp := &w.jc[i], &w.jp[i]
		camera.ResidualJacobian(x[cc:cc+nc9], x[pc:pc+np3], obs[2*i], obs[2*i+1], jc, jp)
		if o.fixed != nil {
			for j := 0; j < nc9; j++ {
				if o.fixed[cc+j] {
					jc[0][j], jc[1][j] = 0, 0
				}
			}
			for j := 0; j < np3; j++ {
				if o.fixed[pc+j] {
					jp[0][j], jp[1][j] = 0, 0
				}
			}
		}

		r := w.f[2*i : 2*i+2]
		u := w.u[(cc/nc9)*blockC:][:blockC]
		v := w.v[((pc-pointBase)/np3)*blockP:][:blockP]
		wi := w.w[i*blockW:][:blockW]
		gc, gp := w.g[cc:cc+nc9], w.g[pc:pc+np3]

		for a := 0; a < nc9; a++ {
			ja0, ja1 := jc[0][a], jc[1][a]
			for b := 0; b < nc9; b++ {
				u[a*nc9+b] += ja0*jc[0][b] + ja1*jc[1][b]
			}
			for b := 0; b < np3; b++ {
				wi[a*np3+b] = ja0*jp[0][b] + ja1*jp[1][b]
			}
			gc[a] += ja0*r[0] + ja1*r[1]
		}
		for a := 0; a < np3; a++ {
			ja0, ja1 := jp[0][a], jp[1][a]
			for b := 0; b < np3; b++ {
				v[a*np3+b] += ja0*jp[0][b] + ja1*jp[1][b]
			}
			gp[a] += ja0*r[0] + ja1*r[1]
		}
	}

	for c := 0; c < pat.NumCameras; c++ {
		u := w.u[c*blockC:][:blockC]
		for a := 0; a < nc9; a++ {
			w.diag[c*nc9+a] = clamp(u[a*nc9+a])
		}
	}
	for k := 0; k < pat.NumPoints; k++ {
		v := w.v[k*blockP:][:blockP]
		for a := 0; a < np3; a++ {
			w.diag[pointBase+k*np3+a] = clamp(v[a*np3+a])
		}
	}
}

func clamp(v float64) float64 {
	return min(max(v, minDiagonal), maxDiagonal)
}

// solveStep solves (JᵀJ + μD) δ = -g by eliminating the point blocks,
// storing δ into the workspace step. It reports false when the damped system
// is not positive definite.
func (d *iterDriver) solveStep(mu float64) bool {
	o, w := d.optimizer, d.workspace
	pat := o.pattern
	nc := pat.NumCameras
	ncp := nc9 * nc
	sRaw := w.s.RawSymmetric()
	s, stride := sRaw.Data, sRaw.Stride
	rhs := w.rhs.RawVector().Data

	// S = U + μD_c, rhs = -g_c
	for r := 0; r < ncp; r++ {
		clear(s[r*stride : r*stride+ncp])
	}
	for c := 0; c < nc; c++ {
		u := w.u[c*blockC:][:blockC]
		off := c * nc9
		for a := 0; a < nc9; a++ {
			row := s[(off+a)*stride+off:]
			copy(row[:nc9], u[a*nc9:(a+1)*nc9])
			row[a] += mu * w.diag[off+a]
			rhs[off+a] = -w.g[off+a]
		}
	}

	for k := 0; k < pat.NumPoints; k++ {
		var vk, vInv [blockP]float64
		copy(vk[:], w.v[k*blockP:(k+1)*blockP])
		base := ncp + k*np3
		for a := 0; a < np3; a++ {
			vk[a*np3+a] += mu * w.diag[base+a]
		}
		if !inverse3(&vk, &vInv) {
			return false
		}
		copy(w.vInv[k*blockP:], vInv[:])
		gp := w.g[base : base+np3]

		list := pat.PointObservations(k)
		for _, i := range list {
			wi := w.w[i*blockW:][:blockW]
			yi := w.y[i*blockW:][:blockW]
			mulBlock(yi, wi, &vInv)
			// rhs_c += Y gp
			off := pat.CameraCol[i]
			for a := 0; a < nc9; a++ {
				rhs[off+a] += yi[a*np3]*gp[0] + yi[a*np3+1]*gp[1] + yi[a*np3+2]*gp[2]
			}
		}
		// S_ab -= Y_i W_jᵀ over the upper triangle
		for _, i := range list {
			yi := w.y[i*blockW:][:blockW]
			ci := pat.CameraCol[i]
			for _, j := range list {
				cj := pat.CameraCol[j]
				if cj < ci {
					continue
				}
				wj := w.w[j*blockW:][:blockW]
				for a := 0; a < nc9; a++ {
					row := s[(ci+a)*stride+cj:]
					y0, y1, y2 := yi[a*np3], yi[a*np3+1], yi[a*np3+2]
					for b := 0; b < nc9; b++ {
						row[b] -= y0*wj[b*np3] + y1*wj[b*np3+1] + y2*wj[b*np3+2]
					}
				}
			}
		}
	}

	if !d.solveReduced() {
		return false
	}
	dc := w.dc.RawVector().Data
	copy(w.step[:ncp], dc)

	// δp = V⁻¹(-gp - Σ Wᵀ δc)
	for k := 0; k < pat.NumPoints; k++ {
		base := ncp + k*np3
		var t [np3]float64
		for a := 0; a < np3; a++ {
			t[a] = -w.g[base+a]
		}
		for _, i := range pat.PointObservations(k) {
			wi := w.w[i*blockW:][:blockW]
			c := dc[pat.CameraCol[i]:][:nc9]
			for a := 0; a < nc9; a++ {
				t[0] -= wi[a*np3] * c[a]
				t[1] -= wi[a*np3+1] * c[a]
				t[2] -= wi[a*np3+2] * c[a]
			}
		}
		vInv := w.vInv[k*blockP:][:blockP]
		for a := 0; a < np3; a++ {
			w.step[base+a] = vInv[a*np3]*t[0] + vInv[a*np3+1]*t[1] + vInv[a*np3+2]*t[2]
		}
	}

	if o.fixed != nil {
		for i, fixed := range o.fixed {
			if fixed {
				w.step[i] = 0
			}
		}
	}
	for _, v := range w.step {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// solveReduced factors the reduced camera system and solves it into dc.
// An ill-conditioned system still yields a solution and is only logged.
func (d *iterDriver) solveReduced() bool {
	w := d.workspace
	if !w.chol.Factorize(w.s) {
		return false
	}
	if err := w.chol.SolveVecTo(w.dc, w.rhs); err != nil {
		log := &d.optimizer.logger
		if log.Enable(lsq.LogTrace) {
			log.Log("reduced camera system ill-conditioned: %v\n", err)
		}
	}
	return true
}

// mulBlock computes y = w v where w is 9×3 and v is 3×3, both row-major.
func mulBlock(y, w []float64, v *[blockP]float64) {
	for a := 0; a < nc9; a++ {
		w0, w1, w2 := w[a*np3], w[a*np3+1], w[a*np3+2]
		for b := 0; b < np3; b++ {
			y[a*np3+b] = w0*v[b] + w1*v[np3+b] + w2*v[2*np3+b]
		}
	}
}

// inverse3 inverts a row-major 3×3 matrix by cofactors.
// It reports false for a singular or non-finite matrix.
func inverse3(m, inv *[blockP]float64) bool {
	c00 := m[4]*m[8] - m[5]*m[7]
	c01 := m[5]*m[6] - m[3]*m[8]
	c02 := m[3]*m[7] - m[4]*m[6]
	det := m[0]*c00 + m[1]*c01 + m[2]*c02
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return false
	}
	r := 1 / det
	inv[0] = c00 * r
	inv[1] = (m[2]*m[7] - m[1]*m[8]) * r
	inv[2] = (m[1]*m[5] - m[2]*m[4]) * r
	inv[3] = c01 * r
	inv[4] = (m[0]*m[8] - m[2]*m[6]) * r
	inv[5] = (m[2]*m[3] - m[0]*m[5]) * r
	inv[6] = c02 * r
	inv[7] = (m[1]*m[6] - m[0]*m[7]) * r
	inv[8] = (m[0]*m[4] - m[1]*m[3]) * r
	return true
}

// applyJacobian stores J δ into dst using the Jacobian blocks.
func (d *iterDriver) applyJacobian(dst, step []float64) {
	w, pat := d.workspace, d.optimizer.pattern
	for i := 0; i < w.nobs; i++ {
		c := step[pat.CameraCol[i]:][:nc9]
		p := step[pat.PointCol[i]:][:np3]
		jc, jp := &w.jc[i], &w.jp[i]
		for r := 0; r < 2; r++ {
			var s float64
			for a := 0; a < nc9; a++ {
				s += jc[r][a] * c[a]
			}
			for a := 0; a < np3; a++ {
				s += jp[r][a] * p[a]
			}
			dst[2*i+r] = s
		}
	}
}
