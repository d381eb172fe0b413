// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/curioloop/bal/dataset"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSynthSolve(t *testing.T) {
	dir := t.TempDir()
	scene := filepath.Join(dir, "scene.txt.gz")
	refined := filepath.Join(dir, "refined.txt")
	config := filepath.Join(dir, "solve.yaml")
	require.NoError(t, os.WriteFile(config, []byte("backend: accelerated\ntermination:\n  max_iterations: 200\n"), 0o644))

	out, err := run(t, "synth", "--cameras", "3", "--points", "20", "--seed", "3", "--out", scene)
	require.NoError(t, err)
	require.Contains(t, out, "3 cameras, 20 points")

	out, err = run(t, "solve", scene, "--config", config, "--backend", "compare", "--metrics", "--out", refined)
	require.NoError(t, err)
	require.Contains(t, out, "compare")
	require.Contains(t, out, "solve.reference.elapsed")

	before, err := dataset.ReadFile(scene)
	require.NoError(t, err)
	after, err := dataset.ReadFile(refined)
	require.NoError(t, err)
	require.Equal(t, before.Observations, after.Observations)
	require.NotEqual(t, before.Points, after.Points)
}

func TestSolveErrors(t *testing.T) {
	_, err := run(t, "solve", filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = run(t, "solve", "x.txt", "--backend", "fastest")
	require.Error(t, err)

	_, err = run(t, "synth")
	require.Error(t, err)
}
