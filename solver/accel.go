// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !noaccel

package solver

import (
	"time"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/lm"
)

func acceleratedBackend() (Backend, error) {
	return lmBackend{}, nil
}

type lmBackend struct{}

func (lmBackend) Kind() Kind { return Accelerated }

func (lmBackend) Solve(p *bundle.Problem, cfg Config) (*Solution, error) {
	prob := lm.Problem{
		Bundle: p,
		Stop:   cfg.Termination,
		Fixed:  p.FixedMask(cfg.FixDistortion),
	}
	start := time.Now()
	opt, err := prob.New(cfg.logger())
	if err != nil {
		return nil, err
	}
	res := opt.Fit(p.Params(), opt.Init())
	return finish(Accelerated, p, res, time.Since(start)), nil
}
