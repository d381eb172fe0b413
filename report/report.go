// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report renders the before and after state of a solve as text tables.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/curioloop/bal/bundle"
	"github.com/curioloop/bal/camera"
	"github.com/curioloop/bal/solver"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rcrowley/go-metrics"
)

// Options controls the rendered tables.
type Options struct {
	// Number of leading cameras whose parameters are listed.
	Cameras int
	// Table style: default, light, round, bold or double.
	Style string
	// Output format: table, csv or markdown.
	Format string
	// Optional registry whose solve metrics are listed.
	Metrics metrics.Registry
}

var paramNames = [camera.NumParams]string{"rx", "ry", "rz", "tx", "ty", "tz", "f", "k1", "k2"}

func newWriter(w io.Writer, opts Options, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)

	style := table.StyleDefault
	switch opts.Style {
	case "bold":
		style = table.StyleBold
	case "double":
		style = table.StyleDouble
	case "light":
		style = table.StyleLight
	case "round":
		style = table.StyleRounded
	}
	t.SetStyle(style)
	return t
}

func render(t table.Writer, opts Options) {
	switch opts.Format {
	case "csv":
		t.RenderCSV()
	case "markdown":
		t.RenderMarkdown()
	default:
		t.Render()
	}
}

// Write renders the summary of every backend run, the parameters of the
// first cameras and, when a registry is given, the solve metrics.
func Write(w io.Writer, rep *solver.Report, opts Options) error {
	if rep == nil {
		return fmt.Errorf("report: nil report")
	}

	title := fmt.Sprintf("bundle adjustment (%s)", rep.Mode)
	if rep.Substituted {
		title += ", accelerated backend substituted by reference"
	}
	t := newWriter(w, opts, title)
	t.AppendHeader(table.Row{"backend", "status", "success", "iterations", "evaluations",
		"initial cost", "final cost", "rms before", "rms after", "degenerate", "elapsed"})
	rmsBefore := bundle.RMS(rep.ResidualsBefore)
	for _, s := range rep.Solutions {
		sum := s.Summary
		t.AppendRow(table.Row{
			s.Backend, sum.Status, s.Success, sum.NumIter, sum.NumEval,
			fmt.Sprintf("%.6e", sum.InitialCost), fmt.Sprintf("%.6e", sum.FinalCost),
			fmt.Sprintf("%.4f", rmsBefore), fmt.Sprintf("%.4f", bundle.RMS(s.Residuals)),
			sum.Degenerate, s.Elapsed.Round(time.Microsecond),
		})
	}
	render(t, opts)

	if n := min(opts.Cameras, len(rep.CameraParamsBefore)/camera.NumParams); n > 0 {
		t = newWriter(w, opts, fmt.Sprintf("first %d cameras", n))
		header := table.Row{"camera", "param", "before"}
		for _, s := range rep.Solutions {
			header = append(header, s.Backend.String())
		}
		t.AppendHeader(header)
		for c := 0; c < n; c++ {
			for j, name := range paramNames {
				k := c*camera.NumParams + j
				row := table.Row{c, name, fmt.Sprintf("%.6g", rep.CameraParamsBefore[k])}
				for _, s := range rep.Solutions {
					row = append(row, fmt.Sprintf("%.6g", s.CameraParams[k]))
				}
				t.AppendRow(row)
			}
			t.AppendSeparator()
		}
		render(t, opts)
	}

	if opts.Metrics != nil {
		writeMetrics(w, opts)
	}
	return nil
}

func writeMetrics(w io.Writer, opts Options) {
	type entry struct {
		name string
		row  table.Row
	}
	var entries []entry
	opts.Metrics.Each(func(name string, m any) {
		switch m := m.(type) {
		case metrics.Timer:
			s := m.Snapshot()
			entries = append(entries, entry{name, table.Row{name, s.Count(),
				time.Duration(s.Mean()).Round(time.Microsecond), time.Duration(s.Max()).Round(time.Microsecond)}})
		case metrics.Histogram:
			s := m.Snapshot()
			entries = append(entries, entry{name, table.Row{name, s.Count(), fmt.Sprintf("%.1f", s.Mean()), s.Max()}})
		case metrics.Counter:
			entries = append(entries, entry{name, table.Row{name, m.Snapshot().Count(), "", ""}})
		}
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	t := newWriter(w, opts, "metrics")
	t.AppendHeader(table.Row{"metric", "count", "mean", "max"})
	for _, e := range entries {
		t.AppendRow(e.row)
	}
	render(t, opts)
}
