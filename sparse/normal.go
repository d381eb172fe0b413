// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

// Operator is a symmetric linear map applied without forming its matrix.
type Operator interface {
	MulVec(dst, x []float64)
}

// Normal is the scaled normal operator v ↦ D Jᵀ J D v of a Jacobian J and
// a diagonal scale D. A nil scale is the identity.
type Normal struct {
	J     *CSR
	Scale []float64
	row   []float64
	col   []float64
}

// NewNormal allocates the operator workspace for j.
func NewNormal(j *CSR, scale []float64) *Normal {
	r, c := j.Dims()
	if scale != nil && len(scale) != c {
		panic("sparse: dimension mismatch")
	}
	return &Normal{J: j, Scale: scale, row: make([]float64, r), col: make([]float64, c)}
}

func (n *Normal) MulVec(dst, x []float64) {
	v := x
	if n.Scale != nil {
		v = n.col
		for i, s := range n.Scale {
			v[i] = s * x[i]
		}
	}
	n.J.MulVec(n.row, v)
	n.J.MulTransVec(dst, n.row)
	if n.Scale != nil {
		for i, s := range n.Scale {
			dst[i] *= s
		}
	}
}
