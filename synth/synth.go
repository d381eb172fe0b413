// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package synth generates synthetic bundle adjustment scenes with known
// ground truth, and perturbs problems to produce starting points.
//
// Points are drawn in a box around the origin; every camera sits at a
// distance along its optical axis, so that transformed points have negative
// depth as the camera model expects.
package synth

import (
	"errors"
	"math/rand/v2"
	"slices"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/camera"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat/distuv"
)

// Options controls the generated scene.
type Options struct {
	NumCameras int
	NumPoints  int
	// Standard deviation of the pixel noise added to observations.
	Noise float64
	// Probability that a camera observes a point. Every point is observed by
	// at least two cameras regardless. Zero means every camera sees every point.
	Visibility float64
	// Focal length in pixels, zero means 500.
	Focal float64
	// Radial distortion of every camera.
	K1, K2 float64
	// Seed of the random source.
	Seed uint64
}

// Scene is a generated problem together with its ground truth.
type Scene struct {
	Problem *bundle.Problem
	// Parameters the observations were generated from (before noise).
	CameraParams []float64
	Points       []float64
}

const (
	sceneExtent  = 1.0 // half width of the point box
	cameraDepth  = 5.0 // distance of cameras from the point box center
	maxTilt      = 0.1 // radians
	minDepth     = 0.5
	defaultFocal = 500.0
	pcgIncrement = 0x9e3779b97f4a7c15
)

// Generate builds a scene from opts.
func Generate(opts Options) (*Scene, error) {
	nc, np := opts.NumCameras, opts.NumPoints
	switch {
	case nc < 2:
		return nil, errors.New("at least 2 cameras are required")
	case np < 1:
		return nil, errors.New("at least 1 point is required")
	case opts.Noise < 0:
		return nil, errors.New("noise must not less than 0")
	case opts.Visibility < 0 || opts.Visibility > 1:
		return nil, errors.New("visibility must be within [0, 1]")
	}

	focal := opts.Focal
	if focal == 0 {
		focal = defaultFocal
	}
	visibility := opts.Visibility
	if visibility == 0 {
		visibility = 1
	}

	src := rand.NewPCG(opts.Seed, pcgIncrement)
	uni := distuv.Uniform{Min: -1, Max: 1, Src: src}
	noise := distuv.Normal{Mu: 0, Sigma: opts.Noise, Src: src}

	cams := make([]float64, camera.NumParams*nc)
	for c := 0; c < nc; c++ {
		cam := cams[c*camera.NumParams : (c+1)*camera.NumParams]
		rot := r3.Vector{X: uni.Rand(), Y: uni.Rand(), Z: uni.Rand()}.Mul(maxTilt)
		offset := r3.Vector{X: uni.Rand(), Y: uni.Rand(), Z: 0}.Mul(0.5 * sceneExtent)
		// t = -depth·ẑ + lateral offset places the box center at depth -cameraDepth
		t := offset.Sub(r3.Vector{Z: cameraDepth})
		copy(cam[camera.Rotation:], []float64{rot.X, rot.Y, rot.Z})
		copy(cam[camera.Translation:], []float64{t.X, t.Y, t.Z})
		cam[camera.Focal] = focal
		cam[camera.K1] = opts.K1
		cam[camera.K2] = opts.K2
	}

	pts := make([]float64, camera.PointParams*np)
	for k := 0; k < np; k++ {
		p := r3.Vector{X: uni.Rand(), Y: uni.Rand(), Z: uni.Rand()}.Mul(sceneExtent)
		copy(pts[k*camera.PointParams:], []float64{p.X, p.Y, p.Z})
	}

	seen := make([][]bool, np)
	for k := range seen {
		seen[k] = make([]bool, nc)
		count := 0
		for c := range seen[k] {
			if visibility >= 1 || (uni.Rand()+1)/2 < visibility {
				seen[k][c] = true
				count++
			}
		}
		for c := 0; count < 2; c++ {
			if !seen[k][c] {
				seen[k][c] = true
				count++
			}
		}
	}

	p := &bundle.Problem{
		NumCameras:   nc,
		NumPoints:    np,
		CameraParams: slices.Clone(cams),
		Points:       slices.Clone(pts),
	}
	for c := 0; c < nc; c++ {
		cam := cams[c*camera.NumParams : (c+1)*camera.NumParams]
		for k := 0; k < np; k++ {
			if !seen[k][c] {
				continue
			}
			pt := pts[k*camera.PointParams : (k+1)*camera.PointParams]
			if camera.Transform(cam, pt).Z > -minDepth {
				continue
			}
			u, v, _ := camera.Project(cam, pt)
			if opts.Noise > 0 {
				u += noise.Rand()
				v += noise.Rand()
			}
			p.CameraIndices = append(p.CameraIndices, c)
			p.PointIndices = append(p.PointIndices, k)
			p.Observations = append(p.Observations, u, v)
		}
	}
	p.NumObservations = len(p.CameraIndices)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Scene{Problem: p, CameraParams: cams, Points: pts}, nil
}

// Perturbation gives the standard deviation of the Gaussian offsets added to
// each parameter group. Focal is relative to the focal length.
type Perturbation struct {
	Rotation    float64
	Translation float64
	Focal       float64
	Point       float64
}

// Perturb returns a copy of p whose cameras and points are offset by
// Gaussian noise. Observations and distortion are kept.
func Perturb(p *bundle.Problem, d Perturbation, seed uint64) *bundle.Problem {
	src := rand.NewPCG(seed, pcgIncrement)
	std := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	q := p.Clone()
	for c := 0; c < q.NumCameras; c++ {
		cam := q.CameraParams[c*camera.NumParams : (c+1)*camera.NumParams]
		for i := 0; i < 3; i++ {
			cam[camera.Rotation+i] += d.Rotation * std.Rand()
			cam[camera.Translation+i] += d.Translation * std.Rand()
		}
		cam[camera.Focal] *= 1 + d.Focal*std.Rand()
	}
	for i := range q.Points {
		q.Points[i] += d.Point * std.Rand()
	}
	return q
}
