// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dataset reads and writes problems in the text format of the
// Bundle Adjustment in the Large collection:
//
//	<num_cameras> <num_points> <num_observations>
//	<camera_index> <point_index> <x> <y>      (num_observations lines)
//	<camera parameter>                          (9 × num_cameras lines)
//	<point coordinate>                          (3 × num_points lines)
//
// Files ending in .gz, .bz2 or .zst are decompressed transparently.
//
// # Reference:
//
//   - https://grail.cs.washington.edu/projects/bal/
package dataset

import (
	"bufio"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/camera"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ErrUnsupported is returned when writing a compression format without encoder.
var ErrUnsupported = errors.New("dataset: unsupported compression")

// SyntaxError reports a malformed token.
type SyntaxError struct {
	Line  int
	Field string
	Token string
	Err   error
}

func (e *SyntaxError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("dataset: line %d: %s: %v", e.Line, e.Field, e.Err)
	}
	return fmt.Sprintf("dataset: line %d: %s %q: %v", e.Line, e.Field, e.Token, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

type tokenizer struct {
	s      *bufio.Scanner
	line   int
	fields []string
}

func newTokenizer(r io.Reader) *tokenizer {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &tokenizer{s: s}
}

func (t *tokenizer) next(field string) (string, error) {
	for len(t.fields) == 0 {
		if !t.s.Scan() {
			err := t.s.Err()
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return "", &SyntaxError{Line: t.line, Field: field, Err: err}
		}
		t.line++
		t.fields = strings.Fields(t.s.Text())
	}
	tok := t.fields[0]
	t.fields = t.fields[1:]
	return tok, nil
}

func (t *tokenizer) int(field string) (int, error) {
	tok, err := t.next(field)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, &SyntaxError{Line: t.line, Field: field, Token: tok, Err: errors.Unwrap(err)}
	}
	return v, nil
}

func (t *tokenizer) float(field string) (float64, error) {
	tok, err := t.next(field)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, &SyntaxError{Line: t.line, Field: field, Token: tok, Err: errors.Unwrap(err)}
	}
	return v, nil
}

// Header counts above maxCount overflow the derived array lengths.
const maxCount = math.MaxInt / (2 * camera.NumParams)

// Arrays are grown as values arrive, never sized from the header alone.
const chunk = 1 << 16

func (t *tokenizer) count(field string) (int, error) {
	v, err := t.int(field)
	if err == nil && v > maxCount {
		return 0, &SyntaxError{Line: t.line, Field: field, Token: strconv.Itoa(v), Err: strconv.ErrRange}
	}
	return v, err
}

func (t *tokenizer) floats(field string, n int) ([]float64, error) {
	v := make([]float64, 0, min(n, chunk))
	for len(v) < n {
		f, err := t.float(field)
		if err != nil {
			return nil, err
		}
		v = append(v, f)
	}
	return v, nil
}

// Read parses a problem and validates it.
func Read(r io.Reader) (*bundle.Problem, error) {
	t := newTokenizer(r)
	p := new(bundle.Problem)
	var err error

	if p.NumCameras, err = t.count("camera count"); err != nil {
		return nil, err
	}
	if p.NumPoints, err = t.count("point count"); err != nil {
		return nil, err
	}
	if p.NumObservations, err = t.count("observation count"); err != nil {
		return nil, err
	}
	if p.NumCameras <= 0 || p.NumPoints <= 0 || p.NumObservations <= 0 {
		return nil, p.Validate()
	}

	no := p.NumObservations
	p.CameraIndices = make([]int, 0, min(no, chunk))
	p.PointIndices = make([]int, 0, min(no, chunk))
	p.Observations = make([]float64, 0, 2*min(no, chunk))
	for i := 0; i < no; i++ {
		c, err := t.int("camera index")
		if err != nil {
			return nil, err
		}
		k, err := t.int("point index")
		if err != nil {
			return nil, err
		}
		ox, err := t.float("observation")
		if err != nil {
			return nil, err
		}
		oy, err := t.float("observation")
		if err != nil {
			return nil, err
		}
		p.CameraIndices = append(p.CameraIndices, c)
		p.PointIndices = append(p.PointIndices, k)
		p.Observations = append(p.Observations, ox, oy)
	}

	if p.CameraParams, err = t.floats("camera parameter", camera.NumParams*p.NumCameras); err != nil {
		return nil, err
	}
	if p.Points, err = t.floats("point coordinate", camera.PointParams*p.NumPoints); err != nil {
		return nil, err
	}

	if err = p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Write encodes p in the text format. Values are written with the shortest
// representation that parses back to the same float64.
func Write(w io.Writer, p *bundle.Problem) error {
	if err := p.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %d\n", p.NumCameras, p.NumPoints, p.NumObservations)
	buf := make([]byte, 0, 64)
	for i := 0; i < p.NumObservations; i++ {
		buf = buf[:0]
		buf = strconv.AppendInt(buf, int64(p.CameraIndices[i]), 10)
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(p.PointIndices[i]), 10)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, p.Observations[2*i], 'g', -1, 64)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, p.Observations[2*i+1], 'g', -1, 64)
		buf = append(buf, '\n')
		bw.Write(buf)
	}
	for _, data := range [][]float64{p.CameraParams, p.Points} {
		for _, v := range data {
			buf = strconv.AppendFloat(buf[:0], v, 'g', -1, 64)
			buf = append(buf, '\n')
			bw.Write(buf)
		}
	}
	return bw.Flush()
}

// ReadFile reads a problem from path, decompressing by file extension.
func ReadFile(path string) (*bundle.Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	switch filepath.Ext(path) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("dataset: %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	case ".bz2":
		r = bzip2.NewReader(f)
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("dataset: %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	return Read(r)
}

// WriteFile writes p to path, compressing by file extension.
// Writing .bz2 is not supported.
func WriteFile(path string, p *bundle.Problem) (err error) {
	var enc func(io.Writer) (io.WriteCloser, error)
	switch filepath.Ext(path) {
	case ".gz":
		enc = func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil }
	case ".zst":
		enc = func(w io.Writer) (io.WriteCloser, error) { return zstd.NewWriter(w) }
	case ".bz2":
		return fmt.Errorf("%w: %s", ErrUnsupported, path)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if enc == nil {
		return Write(f, p)
	}
	zw, err := enc(f)
	if err != nil {
		return err
	}
	if err = Write(zw, p); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
