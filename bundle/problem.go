// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bundle holds the in-memory form of a bundle adjustment problem,
// the residual evaluator shared by every backend and the Jacobian sparsity
// pattern derived from the observation graph.
//
// The parameter vector seen by the solvers is the concatenation of all camera
// blocks followed by all point blocks:
//
//	x = [ cam₀ … camₙ₋₁ | pt₀ … ptₚ₋₁ ]
package bundle

import (
	"math"
	"slices"

	"github.com/curioloop/bal/camera"
)

// Problem is one bundle adjustment instance.
type Problem struct {
	NumCameras      int
	NumPoints       int
	NumObservations int
	// CameraIndices[i] and PointIndices[i] identify the camera and the point of observation i.
	CameraIndices []int
	PointIndices  []int
	// Observations stores the observed pixel (x, y) of observation i at [2i, 2i+1].
	Observations []float64
	// CameraParams stores camera.NumParams values per camera.
	CameraParams []float64
	// Points stores camera.PointParams values per point.
	Points []float64
}

// Validate checks the structure of the problem without modifying it.
// The returned error matches ErrInvalidInput.
func (p *Problem) Validate() error {
	nc, np, no := p.NumCameras, p.NumPoints, p.NumObservations
	switch {
	case nc <= 0:
		return &DimensionError{Field: "camera count", Want: 1, Got: nc}
	case np <= 0:
		return &DimensionError{Field: "point count", Want: 1, Got: np}
	case no <= 0:
		return &DimensionError{Field: "observation count", Want: 1, Got: no}
	case len(p.CameraIndices) != no:
		return &DimensionError{Field: "camera indices", Want: no, Got: len(p.CameraIndices)}
	case len(p.PointIndices) != no:
		return &DimensionError{Field: "point indices", Want: no, Got: len(p.PointIndices)}
	case len(p.Observations) != 2*no:
		return &DimensionError{Field: "observations", Want: 2 * no, Got: len(p.Observations)}
	case len(p.CameraParams) != camera.NumParams*nc:
		return &DimensionError{Field: "camera params", Want: camera.NumParams * nc, Got: len(p.CameraParams)}
	case len(p.Points) != camera.PointParams*np:
		return &DimensionError{Field: "points", Want: camera.PointParams * np, Got: len(p.Points)}
	}

	for i, c := range p.CameraIndices {
		if c < 0 || c >= nc {
			return &IndexError{Field: "camera indices", Observation: i, Index: c, Limit: nc}
		}
	}
	for i, k := range p.PointIndices {
		if k < 0 || k >= np {
			return &IndexError{Field: "point indices", Observation: i, Index: k, Limit: np}
		}
	}

	for _, a := range []struct {
		field string
		data  []float64
	}{
		{"observations", p.Observations},
		{"camera params", p.CameraParams},
		{"points", p.Points},
	} {
		for i, v := range a.data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &ValueError{Field: a.field, Pos: i, Value: v}
			}
		}
	}
	return nil
}

// Clone returns a deep copy that shares no storage with p.
func (p *Problem) Clone() *Problem {
	return &Problem{
		NumCameras:      p.NumCameras,
		NumPoints:       p.NumPoints,
		NumObservations: p.NumObservations,
		CameraIndices:   slices.Clone(p.CameraIndices),
		PointIndices:    slices.Clone(p.PointIndices),
		Observations:    slices.Clone(p.Observations),
		CameraParams:    slices.Clone(p.CameraParams),
		Points:          slices.Clone(p.Points),
	}
}

// NumParams returns the length of the flattened parameter vector.
func (p *Problem) NumParams() int {
	return camera.NumParams*p.NumCameras + camera.PointParams*p.NumPoints
}

// NumResiduals returns the length of the residual vector.
func (p *Problem) NumResiduals() int {
	return 2 * p.NumObservations
}

// Params returns a fresh flattened parameter vector.
func (p *Problem) Params() []float64 {
	x := make([]float64, 0, p.NumParams())
	x = append(x, p.CameraParams...)
	return append(x, p.Points...)
}

// SetParams copies a flattened parameter vector back into the camera and point arrays.
func (p *Problem) SetParams(x []float64) {
	if len(x) != p.NumParams() {
		panic("bundle: parameter vector dimension mismatch")
	}
	n := copy(p.CameraParams, x)
	copy(p.Points, x[n:])
}

// Camera returns the block of camera c inside a flattened parameter vector.
func (p *Problem) Camera(x []float64, c int) []float64 {
	return x[c*camera.NumParams : (c+1)*camera.NumParams]
}

// Point returns the block of point k inside a flattened parameter vector.
func (p *Problem) Point(x []float64, k int) []float64 {
	off := camera.NumParams*p.NumCameras + k*camera.PointParams
	return x[off : off+camera.PointParams]
}

// FixedMask returns a parameter mask holding the distortion coefficients of
// every camera fixed when fixDistortion is set. A nil mask leaves every
// parameter free.
func (p *Problem) FixedMask(fixDistortion bool) []bool {
	if !fixDistortion {
		return nil
	}
	mask := make([]bool, p.NumParams())
	for c := 0; c < p.NumCameras; c++ {
		mask[c*camera.NumParams+camera.K1] = true
		mask[c*camera.NumParams+camera.K2] = true
	}
	return mask
}
