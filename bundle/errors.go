// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bundle

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by every validation error of a Problem.
var ErrInvalidInput = errors.New("bundle: invalid input")

// DimensionError reports an array whose length disagrees with the problem counts.
type DimensionError struct {
	Field string
	Want  int
	Got   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("bundle: %s has %d entries, want %d", e.Field, e.Got, e.Want)
}

func (e *DimensionError) Unwrap() error { return ErrInvalidInput }

// IndexError reports an observation referencing a camera or point that does not exist.
type IndexError struct {
	Field       string
	Observation int
	Index       int
	Limit       int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("bundle: %s[%d] = %d out of range [0, %d)", e.Field, e.Observation, e.Index, e.Limit)
}

func (e *IndexError) Unwrap() error { return ErrInvalidInput }

// ValueError reports a non-finite parameter or observation.
type ValueError struct {
	Field string
	Pos   int
	Value float64
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("bundle: %s[%d] = %v is not finite", e.Field, e.Pos, e.Value)
}

func (e *ValueError) Unwrap() error { return ErrInvalidInput }
