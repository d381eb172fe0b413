// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/curioloop/bal/lsq"
	"github.com/curioloop/bal/numdiff"
	"gopkg.in/yaml.v3"
)

// Config controls a solve. It is read from YAML:
//
//	backend: compare
//	fix_distortion: false
//	jacobian: forward
//	verbose: 1
//	termination:
//	  function_tolerance: 1e-4
//	  gradient_tolerance: 1e-10
//	  parameter_tolerance: 1e-8
//	  max_iterations: 100
type Config struct {
	Backend     Mode            `yaml:"backend"`
	Termination lsq.Termination `yaml:"termination"`
	// Hold the k1, k2 coefficients of every camera constant.
	FixDistortion bool `yaml:"fix_distortion"`
	// Finite difference scheme of the reference backend.
	Jacobian JacobianMethod `yaml:"jacobian"`
	// Cap of inner CG iterations of the reference backend, zero means unlimited.
	MaxCG int `yaml:"max_cg"`
	// Driver log level, see lsq.LogLevel.
	Verbose lsq.LogLevel `yaml:"verbose"`
	// Destination of driver logs and warnings, stderr when nil.
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Backend:     ReferenceOnly,
		Termination: lsq.DefaultTermination(),
		Jacobian:    ForwardDiff,
		Verbose:     lsq.LogNoop,
	}
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("solver: parse config: %w", err)
	}
	return cfg, cfg.Check()
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), err
	}
	return ParseConfig(data)
}

// Check validates the configuration.
func (c *Config) Check() error {
	if err := c.Termination.Check(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	switch {
	case c.Backend.Kinds() == nil:
		return fmt.Errorf("solver: unknown mode %d", int(c.Backend))
	case c.Jacobian != "" && c.Jacobian != ForwardDiff && c.Jacobian != CentralDiff:
		return fmt.Errorf("solver: unknown jacobian method %q", c.Jacobian)
	case c.MaxCG < 0:
		return errors.New("solver: max CG iteration must not less than 0")
	}
	return nil
}

func (c *Config) logger() *lsq.Logger {
	return &lsq.Logger{Level: c.Verbose, Msg: c.Output}
}

func (j JacobianMethod) method() numdiff.Method {
	if j == CentralDiff {
		return numdiff.Central
	}
	return numdiff.Forward
}
