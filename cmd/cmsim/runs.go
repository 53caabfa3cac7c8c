package main

import (
	"fmt"

	"github.com/daniacca/cmsim/internal/store"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored run sets",
		Long:  `List, show, export and delete run sets kept in the SQLite store (--store).`,
	}
	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())
	cmd.AddCommand(newRunsExportCommand())
	cmd.AddCommand(newRunsDeleteCommand())
	return cmd
}

func newRunsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored run sets, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(getConfig(cmd.Context()).Store)
			if err != nil {
				return err
			}
			defer st.Close()

			infos, err := st.ListRunSets(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no run sets stored")
				return nil
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Model", "Algorithm", "Runs", "Completed", "Failed", "Seed", "Created"})
			for _, info := range infos {
				t.AppendRow(table.Row{info.ID, info.Model, info.Algorithm, info.Runs, info.Completed, info.Failed, info.Seed,
					info.CreatedAt.Format("2006-01-02 15:04:05")})
			}
			t.Render()
			return nil
		},
	}
}

func newRunsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the runs and final species values of a stored run set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := loadRunSet(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			renderRunSetHeader(out, rs)
			renderStatuses(out, rs.Statuses)
			if rs.Completed > 0 {
				renderFinals(out, rs, nil)
			}
			return nil
		},
	}
}

func newRunsExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "export <id>",
		Short:   "Export a stored run set to CSV and/or JSON",
		Example: `  cmsim runs export 6f1c... --csv hat.csv --json hat.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig(cmd.Context())
			if cfg.Output.CSV == "" && cfg.Output.JSON == "" {
				return fmt.Errorf("nothing to export: set --csv and/or --json")
			}
			rs, err := loadRunSet(cmd, args[0])
			if err != nil {
				return err
			}
			return writeExports(rs, cfg.Output)
		},
	}
	cmd.Flags().String("csv", "", "CSV output file")
	cmd.Flags().String("json", "", "JSON output file")
	return cmd
}

func newRunsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a stored run set",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(getConfig(cmd.Context()).Store)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.DeleteRunSet(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted run set %s\n", args[0])
			return nil
		},
	}
}

func loadRunSet(cmd *cobra.Command, id string) (store.RunSet, error) {
	st, err := openStore(getConfig(cmd.Context()).Store)
	if err != nil {
		return store.RunSet{}, err
	}
	defer st.Close()
	return st.LoadRunSet(cmd.Context(), id)
}
