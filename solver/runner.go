// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"errors"
	"fmt"
	"slices"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/lsq"
	"github.com/rcrowley/go-metrics"
)

// Report gathers the state before solving and the solution of every backend run.
type Report struct {
	Mode Mode
	// Substituted is set when the accelerated backend was requested but the
	// reference backend ran in its place.
	Substituted        bool
	CameraParamsBefore []float64
	PointsBefore       []float64
	ResidualsBefore    []float64
	Solutions          []*Solution
}

// Success reports whether every backend run converged.
func (r *Report) Success() bool {
	if len(r.Solutions) == 0 {
		return false
	}
	for _, s := range r.Solutions {
		if !s.Success {
			return false
		}
	}
	return true
}

// Runner executes backends sequentially, each on its own copy of the problem.
type Runner struct {
	// Optional registry receiving per backend timers, iteration histograms
	// and failure counters.
	Metrics metrics.Registry
}

// Run validates p, then solves a private copy of it with every backend the
// mode selects. Input validation errors are returned before any work; the
// arrays of p are never modified.
func (r *Runner) Run(p *bundle.Problem, mode Mode, cfg Config) (*Report, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	kinds := mode.Kinds()
	if kinds == nil {
		return nil, fmt.Errorf("solver: unknown mode %d", int(mode))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	log := lsq.Prepare(cfg.logger())
	rep := &Report{
		Mode:               mode,
		CameraParamsBefore: slices.Clone(p.CameraParams),
		PointsBefore:       slices.Clone(p.Points),
		ResidualsBefore:    p.Residuals(),
	}

	for _, kind := range kinds {
		backend, err := Lookup(kind)
		if errors.Is(err, ErrBackendUnavailable) {
			if log.Enable(lsq.LogLast) {
				log.Log("warning: %s backend unavailable, running %s instead\n", kind, Reference)
			}
			rep.Substituted = true
			backend, err = Lookup(Reference)
		}
		if err != nil {
			return nil, err
		}

		local := p.Clone()
		sol, err := backend.Solve(local, cfg)
		if err != nil {
			return nil, err
		}
		sol.Residuals = local.Residuals()
		rep.Solutions = append(rep.Solutions, sol)
		r.record(sol)
	}
	return rep, nil
}

func (r *Runner) record(sol *Solution) {
	if r.Metrics == nil {
		return
	}
	prefix := "solve." + sol.Backend.String()
	metrics.GetOrRegisterTimer(prefix+".elapsed", r.Metrics).Update(sol.Elapsed)
	metrics.GetOrRegisterHistogram(prefix+".iterations", r.Metrics, metrics.NewUniformSample(1028)).Update(int64(sol.Summary.NumIter))
	failures := metrics.GetOrRegisterCounter(prefix+".failures", r.Metrics)
	if !sol.Success {
		failures.Inc(1)
	}
}
