// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command bal solves bundle adjustment problems stored in the BAL text format
// and generates synthetic ones.
//
//	bal synth --cameras 10 --points 500 --noise 0.5 --out scene.txt
//	bal solve scene.txt --backend compare
package main

import (
	"github.com/spf13/cobra"
)

func main() {
	cobra.CheckErr(NewCmd().Execute())
}

func NewCmd() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "bal [command] [flags] [args]",
		Short:         "bal refines cameras and points of a bundle adjustment problem",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.AddCommand(
		newSolveCmd(),
		newSynthCmd(),
	)
	return rootCmd
}
