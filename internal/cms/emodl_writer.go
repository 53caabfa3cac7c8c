package cms

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteEMODL writes the textual model description understood by
// compartmental solvers:
//
//	(import (rnrs) (emodl cmslib))
//	(start-model "hat")
//	(species human-susceptible 10000)
//	(observe human-susceptible human-susceptible)
//	(param sigma-h 0.0833)
//	(func human-population (+ ...))
//	(reaction human-infection (human-susceptible) (human-exposed) (...))
//	(end-model)
//
// Functions are written with their dependencies first.
func (m *Model) WriteEMODL(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "; simulation model")
	fmt.Fprintln(bw, "(import (rnrs) (emodl cmslib))")
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "(start-model %s)\n\n", strconv.Quote(m.Name))

	species := m.Species()
	for _, sp := range species {
		fmt.Fprintf(bw, "(species %s %d)\n", sp.Name, sp.Initial)
	}
	fmt.Fprintln(bw)

	for _, sp := range species {
		if sp.Observe {
			fmt.Fprintf(bw, "(observe %s %s)\n", sp.Name, sp.Name)
		}
	}
	fmt.Fprintln(bw)

	for _, p := range m.Parameters() {
		fmt.Fprintf(bw, "(param %s %s)\n", p.Name, strconv.FormatFloat(p.Value, 'g', -1, 64))
	}
	fmt.Fprintln(bw)

	funcs := make(map[string]Function)
	for _, f := range m.Functions() {
		funcs[f.Name] = f
	}
	for _, name := range m.FunctionOrder() {
		fmt.Fprintf(bw, "(func %s %s)\n", name, funcs[name].Expr)
	}
	fmt.Fprintln(bw)

	for _, r := range m.Reactions() {
		fmt.Fprintf(bw, "(reaction %s (%s) (%s) %s)\n",
			r.Name, strings.Join(r.Reactants, " "), strings.Join(r.Products, " "), r.Propensity)
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "(end-model)")

	return bw.Flush()
}

// String returns the EMODL description of the model.
func (m *Model) String() string {
	var sb strings.Builder
	_ = m.WriteEMODL(&sb)
	return sb.String()
}
