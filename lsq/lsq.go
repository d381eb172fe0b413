// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lsq holds the vocabulary shared by the nonlinear least-squares
// drivers: stopping criteria, termination status, summaries and logging.
package lsq

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// LogLevel controls the frequency and type of logger output
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast print only one line at the last iteration
	LogLast LogLevel = 0
	// LogIter print cost, gradient norm and radius of every iteration
	LogIter LogLevel = 1
	// LogTrace print also details of rejected steps and inner solver
	LogTrace LogLevel = 99
)

// Logger handles logging output for the drivers.
// Note the writer must be thread-safe.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
}

// Prepare returns a copy of l with defaults filled in.
// A nil logger produces no output.
func Prepare(l *Logger) Logger {
	if l == nil {
		return Logger{Level: LogNoop, Msg: io.Discard}
	}
	c := *l
	if c.Msg == nil {
		c.Msg = os.Stderr
	}
	return c
}

// Enable reports whether messages of given level are printed.
func (l *Logger) Enable(level LogLevel) bool {
	return l.Level >= level
}

// Log writes a message regardless of level.
func (l *Logger) Log(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

// Termination specifies the stopping criteria shared by every driver.
type Termination struct {
	// The iteration stop when the cost change of an accepted step satisfied:
	//   |Fₖ - Fₖ₊₁| < 𝚏𝚝𝚘𝚕 × Fₖ
	FunctionTolerance float64 `yaml:"function_tolerance"`
	// The iteration stop when the (scaled) gradient satisfied:
	//   ‖ gₖ ‖∞ ≤ 𝚐𝚝𝚘𝚕
	GradientTolerance float64 `yaml:"gradient_tolerance"`
	// The iteration stop when the step satisfied:
	//   ‖ δx ‖ < 𝚡𝚝𝚘𝚕 × (‖ x ‖ + 𝚡𝚝𝚘𝚕)
	ParameterTolerance float64 `yaml:"parameter_tolerance"`
	// The iteration stop when the number of iteration exceeds limit.
	MaxIterations int `yaml:"max_iterations"`
}

// DefaultTermination returns the stopping criteria used when none are configured.
func DefaultTermination() Termination {
	return Termination{
		FunctionTolerance:  1e-4,
		GradientTolerance:  1e-10,
		ParameterTolerance: 1e-8,
		MaxIterations:      100,
	}
}

// Check validates the stopping criteria.
func (t *Termination) Check() (err error) {
	switch {
	case math.IsNaN(t.FunctionTolerance) || t.FunctionTolerance < 0:
		err = errors.New("function tolerance must not less than 0")
	case math.IsNaN(t.GradientTolerance) || t.GradientTolerance < 0:
		err = errors.New("gradient tolerance must not less than 0")
	case math.IsNaN(t.ParameterTolerance) || t.ParameterTolerance < 0:
		err = errors.New("parameter tolerance must not less than 0")
	case t.MaxIterations <= 0:
		err = errors.New("max iteration must greater than 0")
	}
	return
}

// Status is the termination reason of a driver.
type Status int

const (
	// Running the driver has not terminated yet.
	Running Status = iota
	// FunctionTolerance relative cost reduction below tolerance.
	FunctionTolerance
	// GradientTolerance gradient norm below tolerance.
	GradientTolerance
	// ParameterTolerance step norm below tolerance.
	ParameterTolerance
	// MaxIterations iteration budget exhausted.
	MaxIterations
	// Singular linearized system could not be solved or trust region collapsed.
	Singular
	// NumericalFailure cost or step became non-finite.
	NumericalFailure
)

var statusNames = [...]string{
	Running:            "running",
	FunctionTolerance:  "function tolerance",
	GradientTolerance:  "gradient tolerance",
	ParameterTolerance: "parameter tolerance",
	MaxIterations:      "max iterations",
	Singular:           "singular",
	NumericalFailure:   "numerical failure",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Converged reports whether the status is one of the tolerance criteria.
func (s Status) Converged() bool {
	return s == FunctionTolerance || s == GradientTolerance || s == ParameterTolerance
}

// Summary contains a summary of the optimization process.
type Summary struct {
	Status      Status  // Termination reason.
	NumIter     int     // Number of iterations performed.
	NumEval     int     // Number of residual evaluations performed.
	InitialCost float64 // Cost ½‖r‖² at the initial guess.
	FinalCost   float64 // Cost ½‖r‖² at the returned solution.
	Degenerate  int     // Observations hitting the depth guard at the returned solution.
}

// Result contains the final result of a driver.
// X is the best iterate found even when OK is false.
type Result struct {
	OK        bool      // Whether the optimization was converged.
	X         []float64 // Final parameter vector.
	Residuals []float64 // Residuals at X.
	Summary             // Optimization summary.
}
