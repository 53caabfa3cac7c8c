package main

import (
	"context"
	"log/slog"

	"github.com/daniacca/cmsim/internal/config"
	"github.com/daniacca/cmsim/internal/logging"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

type configKey struct{}

type loggerKey struct{}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "cmsim",
		Short: "Stochastic compartmental model simulator",
		Long: `cmsim builds reaction network models of populations, checks them and
evolves them forward in time with Gillespie's exact algorithm or adaptive
tau-leaping, recording sampled trajectories of every observed species.

Configuration is read from defaults, cmsim.yaml (or --config), CMSIM_
environment variables and flags, in increasing order of precedence.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = context.WithValue(ctx, loggerKey{}, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./cmsim.yaml)")
	pf.StringP("model", "m", "", "catalog model name or path to a .json/.yaml model file")
	pf.StringToInt64("population", nil, "initial population overrides, e.g. tsetse-infectious=50")
	pf.String("store", "", "SQLite file holding solved run sets")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-format", "", "log format (text|json)")

	_ = root.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(newRunCommand())
	root.AddCommand(newValidateCommand())
	root.AddCommand(newDescribeCommand())
	root.AddCommand(newModelsCommand())
	root.AddCommand(newRunsCommand())

	return root
}

func getConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	cfg, err := config.Load("", nil)
	if err != nil {
		return &config.Config{}
	}
	return cfg
}

func getLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// modelRef picks the model named on the command line over the configured one.
func modelRef(cfg *config.Config, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Model
}
