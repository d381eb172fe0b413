// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bundle

import (
	"slices"

	"github.com/curioloop/bal/camera"
)

// BlockWidth is the number of Jacobian columns touched by one residual row.
const BlockWidth = camera.NumParams + camera.PointParams

// Pattern is the nonzero structure of the bundle adjustment Jacobian.
//
// Rows 2i and 2i+1 belong to observation i and hold exactly BlockWidth
// entries each: the 9 columns of its camera followed by the 3 columns of its
// point. The structure depends only on the observation indices, so it is
// built once per solve and then only referenced.
type Pattern struct {
	Rows, Cols int
	NumCameras int
	NumPoints  int
	// CameraCol[i] and PointCol[i] are the first column of the camera and
	// point block of observation i.
	CameraCol []int
	PointCol  []int
	// Compressed sparse row structure.
	RowPtr []int
	ColIdx []int
	// Observations of point k are PointObs[PointPtr[k]:PointPtr[k+1]].
	PointPtr []int
	PointObs []int
}

// NewPattern derives the sparsity pattern from the observation indices.
// The indices must already be validated.
func NewPattern(numCameras, numPoints int, cameraIndices, pointIndices []int) *Pattern {
	if len(cameraIndices) != len(pointIndices) {
		panic("bundle: index dimension mismatch")
	}
	nobs := len(cameraIndices)
	pointBase := camera.NumParams * numCameras
	pat := &Pattern{
		Rows:       2 * nobs,
		Cols:       pointBase + camera.PointParams*numPoints,
		NumCameras: numCameras,
		NumPoints:  numPoints,
		CameraCol:  make([]int, nobs),
		PointCol:   make([]int, nobs),
		RowPtr:     make([]int, 2*nobs+1),
		ColIdx:     make([]int, 2*nobs*BlockWidth),
		PointPtr:   make([]int, numPoints+1),
		PointObs:   make([]int, nobs),
	}

	for i := 0; i < nobs; i++ {
		cc := camera.NumParams * cameraIndices[i]
		pc := pointBase + camera.PointParams*pointIndices[i]
		pat.CameraCol[i], pat.PointCol[i] = cc, pc
		for r := 2 * i; r < 2*i+2; r++ {
			off := r * BlockWidth
			pat.RowPtr[r+1] = off + BlockWidth
			for s := 0; s < camera.NumParams; s++ {
				pat.ColIdx[off+s] = cc + s
			}
			for s := 0; s < camera.PointParams; s++ {
				pat.ColIdx[off+camera.NumParams+s] = pc + s
			}
		}
		pat.PointPtr[pointIndices[i]+1]++
	}

	for k := 0; k < numPoints; k++ {
		pat.PointPtr[k+1] += pat.PointPtr[k]
	}
	next := slices.Clone(pat.PointPtr[:numPoints])
	for i, k := range pointIndices {
		pat.PointObs[next[k]] = i
		next[k]++
	}
	return pat
}

// NNZ returns the number of structural nonzeros.
func (p *Pattern) NNZ() int {
	return len(p.ColIdx)
}

// NumObservations returns the number of observations covered by the pattern.
func (p *Pattern) NumObservations() int {
	return len(p.CameraCol)
}

// Row returns the column indices of row i. The slice aliases the pattern.
func (p *Pattern) Row(i int) []int {
	return p.ColIdx[p.RowPtr[i]:p.RowPtr[i+1]]
}

// PointObservations returns the observations of point k. The slice aliases the pattern.
func (p *Pattern) PointObservations(k int) []int {
	return p.PointObs[p.PointPtr[k]:p.PointPtr[k+1]]
}

// Equal reports whether two patterns describe the same structure.
func (p *Pattern) Equal(o *Pattern) bool {
	return p.Rows == o.Rows && p.Cols == o.Cols &&
		p.NumCameras == o.NumCameras && p.NumPoints == o.NumPoints &&
		slices.Equal(p.RowPtr, o.RowPtr) && slices.Equal(p.ColIdx, o.ColIdx) &&
		slices.Equal(p.PointPtr, o.PointPtr) && slices.Equal(p.PointObs, o.PointObs)
}

// Pattern builds the sparsity pattern of the problem.
func (p *Problem) Pattern() *Pattern {
	return NewPattern(p.NumCameras, p.NumPoints, p.CameraIndices, p.PointIndices)
}
