// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !noaccel

package solver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcceleratedAvailable(t *testing.T) {
	b, err := Lookup(Accelerated)
	require.NoError(t, err)
	require.Equal(t, Accelerated, b.Kind())

	var runner Runner
	rep, err := runner.Run(perturbedScene(t), AcceleratedOnly, DefaultConfig())
	require.NoError(t, err)
	require.False(t, rep.Substituted)
	require.Equal(t, Accelerated, rep.Solutions[0].Backend)
	require.True(t, rep.Success())
}

func TestAcceleratedSolveElapsed(t *testing.T) {
	b, err := Lookup(Accelerated)
	require.NoError(t, err)
	sol, err := b.Solve(perturbedScene(t), DefaultConfig())
	require.NoError(t, err)
	require.True(t, sol.Success)
	require.Positive(t, sol.Elapsed)
}
