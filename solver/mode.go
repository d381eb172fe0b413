// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Mode selects which backends a Runner executes.
type Mode int

const (
	// ReferenceOnly runs the reference backend.
	ReferenceOnly Mode = iota
	// AcceleratedOnly runs the accelerated backend, or the reference backend
	// when it is unavailable.
	AcceleratedOnly
	// CompareBoth runs the reference then the accelerated backend.
	CompareBoth
)

var modeNames = map[Mode]string{
	ReferenceOnly:   "reference",
	AcceleratedOnly: "accelerated",
	CompareBoth:     "compare",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Kinds returns the backends run by the mode, in order.
func (m Mode) Kinds() []Kind {
	switch m {
	case ReferenceOnly:
		return []Kind{Reference}
	case AcceleratedOnly:
		return []Kind{Accelerated}
	case CompareBoth:
		return []Kind{Reference, Accelerated}
	}
	return nil
}

func (m Mode) MarshalText() ([]byte, error) {
	if _, ok := modeNames[m]; !ok {
		return nil, fmt.Errorf("solver: unknown mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	for k, s := range modeNames {
		if s == string(text) {
			*m = k
			return nil
		}
	}
	return fmt.Errorf("solver: unknown mode %q (want reference, accelerated or compare)", text)
}

func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	return m.UnmarshalText([]byte(node.Value))
}

// Set implements the flag value interface.
func (m *Mode) Set(s string) error {
	return m.UnmarshalText([]byte(s))
}

// Type implements the pflag value interface.
func (m *Mode) Type() string {
	return "mode"
}

// JacobianMethod is the finite difference scheme of the reference backend.
type JacobianMethod string

const (
	ForwardDiff JacobianMethod = "forward"
	CentralDiff JacobianMethod = "central"
)
