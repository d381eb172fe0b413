// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"

	"github.com/curioloop/bal/dataset"
	"github.com/curioloop/bal/lsq"
	"github.com/curioloop/bal/report"
	"github.com/curioloop/bal/solver"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
)

func newSolveCmd() *cobra.Command {
	solveCmd := &cobra.Command{
		Use:   "solve [flags] <problem file>",
		Short: "Solve a problem in BAL format (.gz, .bz2 and .zst accepted)",
		Args:  cobra.ExactArgs(1),
		RunE:  doSolve,
	}
	mode := solver.ReferenceOnly
	flags := solveCmd.Flags()
	flags.VarP(&mode, "backend", "b", "`<Backend>` to run: reference, accelerated or compare")
	flags.StringP("config", "c", "", "`<Path>` to a YAML solve configuration")
	flags.Bool("fix-distortion", false, "hold the radial distortion of every camera constant")
	flags.Int("max-iter", 0, "`<N>` maximum iterations, overrides the configuration")
	flags.IntP("verbose", "v", int(lsq.LogNoop), "`<Level>` of driver logs: -1 none, 0 last, 1 every iteration, 99 trace")
	flags.StringP("out", "o", "", "`<Path>` to write the refined problem of the last backend")
	flags.Int("cameras", 3, "`<N>` leading cameras listed in the report")
	flags.String("style", "default", "report table `<Style>`: default, light, round, bold or double")
	flags.String("format", "table", "report `<Format>`: table, csv or markdown")
	flags.Bool("metrics", false, "list solve metrics in the report")
	return solveCmd
}

func doSolve(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	cfg := solver.DefaultConfig()
	if path, _ := flags.GetString("config"); path != "" {
		var err error
		if cfg, err = solver.LoadConfig(path); err != nil {
			return err
		}
	}
	if flags.Changed("backend") {
		cfg.Backend = *flags.Lookup("backend").Value.(*solver.Mode)
	}
	if flags.Changed("fix-distortion") {
		cfg.FixDistortion, _ = flags.GetBool("fix-distortion")
	}
	if flags.Changed("max-iter") {
		cfg.Termination.MaxIterations, _ = flags.GetInt("max-iter")
	}
	if flags.Changed("verbose") {
		v, _ := flags.GetInt("verbose")
		cfg.Verbose = lsq.LogLevel(v)
	}
	cfg.Output = cmd.ErrOrStderr()
	if err := cfg.Check(); err != nil {
		return err
	}

	p, err := dataset.ReadFile(args[0])
	if err != nil {
		return err
	}

	var reg metrics.Registry
	if on, _ := flags.GetBool("metrics"); on {
		reg = metrics.NewRegistry()
	}
	runner := solver.Runner{Metrics: reg}
	rep, err := runner.Run(p, cfg.Backend, cfg)
	if err != nil {
		return err
	}

	opts := report.Options{Metrics: reg}
	opts.Cameras, _ = flags.GetInt("cameras")
	opts.Style, _ = flags.GetString("style")
	opts.Format, _ = flags.GetString("format")
	if err = report.Write(cmd.OutOrStdout(), rep, opts); err != nil {
		return err
	}

	if out, _ := flags.GetString("out"); out != "" {
		last := rep.Solutions[len(rep.Solutions)-1]
		refined := p.Clone()
		copy(refined.CameraParams, last.CameraParams)
		copy(refined.Points, last.Points)
		if err = dataset.WriteFile(out, refined); err != nil {
			return err
		}
	}

	if !rep.Success() {
		var failed []error
		for _, s := range rep.Solutions {
			if !s.Success {
				failed = append(failed, fmt.Errorf("%s backend stopped by %s", s.Backend, s.Summary.Status))
			}
		}
		return errors.Join(failed...)
	}
	return nil
}
