package main

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/daniacca/cmsim/internal/cms"
	"github.com/daniacca/cmsim/internal/store"
	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func renderViolations(w io.Writer, violations []cms.Violation) {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Kind", "Subject", "Name", "Detail"})
	for i, v := range violations {
		t.AppendRow(table.Row{i + 1, v.Kind.String(), v.Subject, v.Name, v.Detail})
	}
	t.Render()
}

func renderStatuses(w io.Writer, statuses []store.RunStatus) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Run", "State", "Steps", "Sim time", "Error"})
	for _, st := range statuses {
		t.AppendRow(table.Row{st.Run, st.State, st.Steps, formatFloat(st.SimTime), st.Error})
	}
	t.Render()
}

type speciesStats struct {
	name          string
	initial       int64
	min, max, sum float64
	n             int
}

// renderFinals summarizes the final sampled value of every observed species
// over the completed runs.
func renderFinals(w io.Writer, rs store.RunSet, initial func(string) int64) {
	var order []string
	stats := map[string]*speciesStats{}
	for _, tr := range rs.Trajectories {
		if len(tr.Values) == 0 {
			continue
		}
		st, ok := stats[tr.Species]
		if !ok {
			st = &speciesStats{name: tr.Species, min: math.Inf(1), max: math.Inf(-1)}
			if initial != nil {
				st.initial = initial(tr.Species)
			}
			stats[tr.Species] = st
			order = append(order, tr.Species)
		}
		v := tr.Values[len(tr.Values)-1]
		st.min = math.Min(st.min, v)
		st.max = math.Max(st.max, v)
		st.sum += v
		st.n++
	}

	t := newTable(w)
	header := table.Row{"Species"}
	if initial != nil {
		header = append(header, "Initial")
	}
	t.AppendHeader(append(header, "Final mean", "Final min", "Final max"))
	for _, name := range order {
		st := stats[name]
		row := table.Row{name}
		if initial != nil {
			row = append(row, st.initial)
		}
		t.AppendRow(append(row, formatFloat(st.sum/float64(st.n)), formatFloat(st.min), formatFloat(st.max)))
	}
	t.Render()
}

func renderRunSetHeader(w io.Writer, rs store.RunSet) {
	fmt.Fprintf(w, "Run set %s (model=%s, algorithm=%s, seed=%d)\n", rs.ID, rs.Model, rs.Algorithm, rs.Seed)
	fmt.Fprintf(w, "%d runs, %d completed, %d failed; duration %g, %d samples\n",
		rs.Runs, rs.Completed, rs.Failed, rs.Duration, rs.Samples)
}
