package main

import (
	"fmt"

	"github.com/daniacca/cmsim/internal/cms"
	"github.com/daniacca/cmsim/internal/models"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [model]",
		Short: "Check a model and report every violation",
		Example: `  cmsim validate hat
  cmsim validate ./my-model.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig(cmd.Context())
			m, err := models.Resolve(modelRef(cfg, args), cfg.Populations)
			if err != nil {
				return reportModelError(cmd, err)
			}
			if err := cms.Validate(m).Err(); err != nil {
				return reportModelError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model %q is valid: %d species, %d parameters, %d functions, %d reactions\n",
				m.Name, len(m.Species()), len(m.Parameters()), len(m.Functions()), len(m.Reactions()))
			return nil
		},
	}
}
