// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dataset

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/synth"
	"github.com/stretchr/testify/require"
)

const tiny = `1 2 2
0 0 -1.5 2.25
0 1 3 -4
0 0 0
0 0 0
1 0 0
0 0 -1
1 2 -2
`

// tiny compressed by bzip2
var tinyBz2 = []byte{
	0x42, 0x5a, 0x68, 0x39, 0x31, 0x41, 0x59, 0x26, 0x53, 0x59, 0xc7, 0x65,
	0xc4, 0xad, 0x00, 0x00, 0x18, 0x58, 0x00, 0x00, 0x10, 0x40, 0x03, 0x7e,
	0x00, 0x20, 0x00, 0x31, 0x00, 0x30, 0x12, 0x11, 0x0c, 0x97, 0xdc, 0x9a,
	0xf2, 0xe0, 0xf6, 0x22, 0x9a, 0xa8, 0x5b, 0xf0, 0x54, 0x80, 0x79, 0x18,
	0xd4, 0x8d, 0xb5, 0xae, 0x72, 0xbe, 0x2e, 0xe4, 0x8a, 0x70, 0xa1, 0x21,
	0x8e, 0xcb, 0x89, 0x5a,
}

func checkTiny(t *testing.T, p *bundle.Problem) {
	t.Helper()
	require.Equal(t, 1, p.NumCameras)
	require.Equal(t, 2, p.NumPoints)
	require.Equal(t, []int{0, 0}, p.CameraIndices)
	require.Equal(t, []int{0, 1}, p.PointIndices)
	require.Equal(t, []float64{-1.5, 2.25, 3, -4}, p.Observations)
	require.Equal(t, []float64{0, 0, 0, 0, 0, 0, 1, 0, 0}, p.CameraParams)
	require.Equal(t, []float64{0, 0, -1, 1, 2, -2}, p.Points)
	require.Equal(t, []float64{1.5, -2.25, -2.5, 5}, p.Residuals())
}

func TestRead(t *testing.T) {
	p, err := Read(strings.NewReader(tiny))
	require.NoError(t, err)
	checkTiny(t, p)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "tiny.txt.bz2")
	require.NoError(t, os.WriteFile(path, tinyBz2, 0o644))
	p, err := ReadFile(path)
	require.NoError(t, err)
	checkTiny(t, p)

	for _, name := range []string{"tiny.txt", "tiny.txt.gz", "tiny.txt.zst"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, p), name)
		q, err := ReadFile(path)
		require.NoError(t, err, name)
		require.Equal(t, p, q, name)
	}

	require.ErrorIs(t, WriteFile(filepath.Join(dir, "out.bz2"), p), ErrUnsupported)
	_, err = ReadFile(filepath.Join(dir, "missing.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteRoundTrip(t *testing.T) {
	scene, err := synth.Generate(synth.Options{NumCameras: 3, NumPoints: 12, Noise: 0.3, Visibility: 0.7, Seed: 17})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, scene.Problem))
	first, _, _ := strings.Cut(buf.String(), "\n")
	require.Equal(t, "3 12 "+strconv.Itoa(scene.Problem.NumObservations), first)

	p, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, scene.Problem, p)
}

func TestReadErrors(t *testing.T) {
	cases := map[string]string{
		"truncated":     "1 2 2\n0 0 1 2\n",
		"bad index":     "1 2 1\nx 0 1 2\n",
		"bad value":     "1 1 1\n0 0 1 two\n",
		"bad parameter": "1 1 1\n0 0 1 2\n0 0 0 0 0 0 1 0 nan? 0 0 -1\n",
		"huge count":    "1 1 4611686018427387904\n",
		"short of data": "1 1 2000000000000\n",
		"many cameras":  "2000000000000 1 1\n0 0 1 2\n",
	}
	for name, doc := range cases {
		_, err := Read(strings.NewReader(doc))
		var syn *SyntaxError
		require.True(t, errors.As(err, &syn), name)
	}

	_, err := Read(strings.NewReader("1 1 4611686018427387904\n"))
	require.ErrorIs(t, err, strconv.ErrRange)
	_, err = Read(strings.NewReader("1 1 2000000000000\n"))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = Read(strings.NewReader("1 1 1\n0 3 1 2\n0 0 0 0 0 0 1 0 0\n0 0 -1\n"))
	var idx *bundle.IndexError
	require.ErrorAs(t, err, &idx)

	_, err = Read(strings.NewReader("0 1 1\n"))
	require.ErrorIs(t, err, bundle.ErrInvalidInput)
}
