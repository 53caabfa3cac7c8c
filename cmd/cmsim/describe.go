package main

import (
	"encoding/json"
	"fmt"

	"github.com/daniacca/cmsim/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newDescribeCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "describe [model]",
		Short: "Print the model description",
		Long: `Print a model as EMODL text (the default), or as the structured JSON or
YAML description accepted by model files and the HTTP API.`,
		Example: `  cmsim describe hat
  cmsim describe hat-expanded --format yaml > hat.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig(cmd.Context())
			m, err := models.Resolve(modelRef(cfg, args), cfg.Populations)
			if err != nil {
				return reportModelError(cmd, err)
			}
			out := cmd.OutOrStdout()
			switch format {
			case "emodl", "":
				return m.WriteEMODL(out)
			case "json":
				data, err := json.MarshalIndent(m.Config(), "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			case "yaml", "yml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(m.Config()); err != nil {
					return err
				}
				return enc.Close()
			default:
				return fmt.Errorf("unknown format %q (want emodl, json or yaml)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "emodl", "output format (emodl|json|yaml)")
	return cmd
}
