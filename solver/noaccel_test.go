// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build noaccel

package solver

import (
	"bytes"
	"testing"

	"github.com/curioloop/bal/lsq"
	"github.com/stretchr/testify/require"
)

func TestAcceleratedSubstituted(t *testing.T) {
	_, err := Lookup(Accelerated)
	require.ErrorIs(t, err, ErrBackendUnavailable)

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Verbose = lsq.LogLast
	cfg.Output = &buf

	var runner Runner
	rep, err := runner.Run(perturbedScene(t), CompareBoth, cfg)
	require.NoError(t, err)
	require.True(t, rep.Substituted)
	require.Len(t, rep.Solutions, 2)
	for _, sol := range rep.Solutions {
		require.Equal(t, Reference, sol.Backend)
	}
	require.Contains(t, buf.String(), "accelerated backend unavailable")
}
