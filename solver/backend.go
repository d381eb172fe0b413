// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package solver exposes the bundle adjustment drivers behind one Backend
// interface and runs one or both of them on independent copies of a problem.
//
// The reference backend (trf) is always available. The accelerated backend
// (lm) is compiled out by the noaccel build tag, in which case the Runner
// substitutes the reference backend and reports it.
package solver

import (
	"errors"
	"fmt"
	"time"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/lsq"
	"github.com/curioloop/bal/trf"
)

// ErrBackendUnavailable is returned by Lookup for a backend not built into the binary.
var ErrBackendUnavailable = errors.New("solver: backend unavailable")

// Kind identifies a backend.
type Kind int

const (
	// Reference trust region driver with finite difference Jacobian.
	Reference Kind = iota
	// Accelerated Levenberg-Marquardt driver with analytic Jacobian and Schur complement.
	Accelerated
)

func (k Kind) String() string {
	switch k {
	case Reference:
		return "reference"
	case Accelerated:
		return "accelerated"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Backend solves a bundle adjustment problem in place.
type Backend interface {
	Kind() Kind
	// Solve refines the camera parameters and points of p, which must be
	// valid and owned by the caller of this backend alone.
	Solve(p *bundle.Problem, cfg Config) (*Solution, error)
}

// Solution is the outcome of one backend run.
type Solution struct {
	Backend      Kind
	Success      bool
	CameraParams []float64
	Points       []float64
	// Residuals recomputed from the refined parameters.
	Residuals []float64
	// Wall time of the solve, including setup of the driver.
	Elapsed time.Duration
	Summary lsq.Summary
}

// Lookup returns the backend of given kind.
func Lookup(kind Kind) (Backend, error) {
	switch kind {
	case Reference:
		return referenceBackend{}, nil
	case Accelerated:
		return acceleratedBackend()
	}
	return nil, fmt.Errorf("solver: unknown backend %v", kind)
}

type referenceBackend struct{}

func (referenceBackend) Kind() Kind { return Reference }

func (referenceBackend) Solve(p *bundle.Problem, cfg Config) (*Solution, error) {
	prob := trf.Problem{
		Bundle: p,
		Stop:   cfg.Termination,
		Fixed:  p.FixedMask(cfg.FixDistortion),
		Method: cfg.Jacobian.method(),
		MaxCG:  cfg.MaxCG,
	}
	start := time.Now()
	opt, err := prob.New(cfg.logger())
	if err != nil {
		return nil, err
	}
	res := opt.Fit(p.Params(), opt.Init())
	return finish(Reference, p, res, time.Since(start)), nil
}

// finish writes the refined parameters back into p.
func finish(kind Kind, p *bundle.Problem, res *lsq.Result, elapsed time.Duration) *Solution {
	p.SetParams(res.X)
	return &Solution{
		Backend:      kind,
		Success:      res.OK,
		CameraParams: p.CameraParams,
		Points:       p.Points,
		Residuals:    res.Residuals,
		Elapsed:      elapsed,
		Summary:      res.Summary,
	}
}
