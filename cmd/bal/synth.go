// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/dataset"
	"github.com/curioloop/bal/synth"
	"github.com/spf13/cobra"
)

func newSynthCmd() *cobra.Command {
	synthCmd := &cobra.Command{
		Use:   "synth [flags]",
		Short: "Generate a synthetic problem in BAL format",
		Args:  cobra.NoArgs,
		RunE:  doSynth,
	}
	flags := synthCmd.Flags()
	flags.Int("cameras", 4, "`<N>` cameras")
	flags.Int("points", 50, "`<N>` points")
	flags.Float64("noise", 0.5, "`<Sigma>` of the pixel noise")
	flags.Float64("visibility", 1, "`<P>` probability that a camera observes a point")
	flags.Float64("k1", 0, "radial distortion `<K1>` of every camera")
	flags.Float64("k2", 0, "radial distortion `<K2>` of every camera")
	flags.Uint64("seed", 1, "`<Seed>` of the random source")
	flags.Float64("perturb-rotation", 1e-3, "`<Sigma>` of the rotation offset of the starting point")
	flags.Float64("perturb-translation", 1e-2, "`<Sigma>` of the translation offset of the starting point")
	flags.Float64("perturb-point", 1e-2, "`<Sigma>` of the point offset of the starting point")
	flags.StringP("out", "o", "", "`<Path>` of the generated problem")
	synthCmd.MarkFlagRequired("out")
	return synthCmd
}

func doSynth(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	var opts synth.Options
	opts.NumCameras, _ = flags.GetInt("cameras")
	opts.NumPoints, _ = flags.GetInt("points")
	opts.Noise, _ = flags.GetFloat64("noise")
	opts.Visibility, _ = flags.GetFloat64("visibility")
	opts.K1, _ = flags.GetFloat64("k1")
	opts.K2, _ = flags.GetFloat64("k2")
	opts.Seed, _ = flags.GetUint64("seed")

	var d synth.Perturbation
	d.Rotation, _ = flags.GetFloat64("perturb-rotation")
	d.Translation, _ = flags.GetFloat64("perturb-translation")
	d.Point, _ = flags.GetFloat64("perturb-point")

	scene, err := synth.Generate(opts)
	if err != nil {
		return err
	}
	p := synth.Perturb(scene.Problem, d, opts.Seed+1)
	out, _ := flags.GetString("out")
	if err = dataset.WriteFile(out, p); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d cameras, %d points, %d observations written to %s (rms %.3f px)\n",
		p.NumCameras, p.NumPoints, p.NumObservations, out, bundle.RMS(p.Residuals()))
	return nil
}
