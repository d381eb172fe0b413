// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"bytes"
	"testing"

	"github.com/curioloop/bal/solver"
	"github.com/curioloop/bal/synth"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/require"
)

func solve(t *testing.T, reg metrics.Registry) *solver.Report {
	t.Helper()
	scene, err := synth.Generate(synth.Options{NumCameras: 2, NumPoints: 3, Seed: 1})
	require.NoError(t, err)
	runner := solver.Runner{Metrics: reg}
	rep, err := runner.Run(scene.Problem, solver.ReferenceOnly, solver.DefaultConfig())
	require.NoError(t, err)
	return rep
}

func TestWrite(t *testing.T) {
	reg := metrics.NewRegistry()
	rep := solve(t, reg)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rep, Options{Cameras: 1, Metrics: reg}))
	out := buf.String()
	require.Contains(t, out, "reference")
	require.Contains(t, out, "gradient tolerance")
	require.Contains(t, out, "first 1 cameras")
	require.Contains(t, out, "k2")
	require.Contains(t, out, "solve.reference.elapsed")
	require.Contains(t, out, "solve.reference.failures")
}

func TestWriteFormats(t *testing.T) {
	rep := solve(t, nil)
	for _, format := range []string{"csv", "markdown"} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, rep, Options{Format: format, Style: "light"}))
		require.Contains(t, buf.String(), "gradient tolerance", format)
		require.NotContains(t, buf.String(), "first", format)
	}
	require.Error(t, Write(&bytes.Buffer{}, nil, Options{}))
}
