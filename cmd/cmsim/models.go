package main

import (
	"github.com/daniacca/cmsim/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the built-in model catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Name", "Species", "Reactions", "Description"})
			for _, name := range models.Names() {
				m, err := models.Build(name, nil)
				if err != nil {
					return err
				}
				tmpl, _ := models.Lookup(name)
				t.AppendRow(table.Row{name, len(m.Species()), len(m.Reactions()), tmpl.Description})
			}
			t.Render()
			return nil
		},
	}
}
