package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/daniacca/cmsim/internal/cms"
	"github.com/daniacca/cmsim/internal/config"
	"github.com/daniacca/cmsim/internal/logging"
	"github.com/daniacca/cmsim/internal/models"
	"github.com/daniacca/cmsim/internal/solver"
	"github.com/daniacca/cmsim/internal/store"
	"github.com/daniacca/cmsim/internal/telemetry"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [model]",
		Short: "Solve a model and summarize its trajectories",
		Long: `Solve a catalog model or a model file, print the status of every run and a
summary of the final state of each observed species.

Failed runs are reported and excluded from the trajectories. Trajectories can
be exported to CSV or JSON and stored in the SQLite run set store.`,
		Example: `  # HAT model, one exact run over ten years
  cmsim run hat

  # Ten tau-leaping runs, exported to CSV
  cmsim run hat --algorithm TAU --runs 10 --csv hat.csv

  # Decay demo with a custom initial population, stored for later
  cmsim run decay --population A=500 --store runs.db`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, args)
		},
	}

	f := cmd.Flags()
	f.String("algorithm", "", "SSA (exact) or TAU (tau-leaping)")
	f.Int("runs", 0, "number of independent runs")
	f.Float64("duration", 0, "simulated time span")
	f.Int("samples", 0, "number of sample points per trajectory")
	f.Uint64("seed", 0, "base PRNG seed (default 20201025)")
	f.Bool("random-seed", false, "draw the seed from entropy unless --seed is given")
	f.Int("workers", 0, "concurrent runs (default: GOMAXPROCS)")
	f.Duration("timeout", 0, "wall-clock limit per run (0 disables)")
	f.Int64("max-steps", 0, "step limit per run (0 disables)")
	f.Float64("tau-epsilon", 0, "tau-leaping error control parameter")
	f.Float64("max-tau", 0, "upper bound on the leap size (0 disables)")
	f.String("csv", "", "write trajectories to this CSV file")
	f.String("json", "", "write the run set to this JSON file")

	_ = cmd.RegisterFlagCompletionFunc("algorithm", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"SSA", "TAU"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfig(ctx)
	logger := getLogger(ctx)
	out := cmd.OutOrStdout()

	m, err := models.Resolve(modelRef(cfg, args), cfg.Populations)
	if err != nil {
		return reportModelError(cmd, err)
	}
	rc, err := cfg.Run.Solver()
	if err != nil {
		return err
	}

	shutdown, err := telemetry.Setup(ctx, "cmsim")
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	s := solver.New(solver.WithLogger(logging.Adapt(logger)))
	h, err := s.CreateRun(m, rc)
	if err != nil {
		return reportModelError(cmd, err)
	}

	logger.Info("solving", "model", m.Name, "run_set", h.ID, "algorithm", rc.Algorithm.String(), "runs", rc.Runs, "seed", rc.Seed)
	start := time.Now()
	if err := s.Solve(ctx, h); err != nil {
		return err
	}
	elapsed := time.Since(start)

	rs := store.Capture(h, s.Trajectories(h))
	renderRunSetHeader(out, rs)
	fmt.Fprintf(out, "solved in %s\n", elapsed.Round(time.Millisecond))
	renderStatuses(out, rs.Statuses)
	if rs.Completed > 0 {
		renderFinals(out, rs, func(name string) int64 {
			n, _ := m.Initial(name)
			return n
		})
	}

	if err := writeExports(rs, cfg.Output); err != nil {
		return err
	}
	if cfg.Store != "" {
		if err := saveRunSet(ctx, cfg.Store, rs); err != nil {
			return err
		}
		fmt.Fprintf(out, "stored run set %s in %s\n", rs.ID, cfg.Store)
	}

	if rs.Completed == 0 {
		return firstRunError(h)
	}
	return nil
}

// reportModelError prints model violations as a table before returning err.
func reportModelError(cmd *cobra.Command, err error) error {
	var verr *cms.ValidationError
	if errors.As(err, &verr) {
		renderViolations(cmd.ErrOrStderr(), verr.Violations)
		return fmt.Errorf("model has %d violation(s)", len(verr.Violations))
	}
	return err
}

func firstRunError(h *solver.RunHandle) error {
	for i, st := range h.Statuses() {
		if st.Err != nil {
			return fmt.Errorf("no run completed; run %d: %w", i, st.Err)
		}
	}
	return errors.New("no run completed")
}

func writeExports(rs store.RunSet, out config.OutputConfig) error {
	if out.CSV != "" {
		f, err := os.Create(out.CSV)
		if err != nil {
			return fmt.Errorf("failed to create CSV file: %w", err)
		}
		if err := store.WriteCSV(f, rs); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close CSV file: %w", err)
		}
	}
	if out.JSON != "" {
		data, err := store.EncodeJSON(rs)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out.JSON, data, 0o644); err != nil {
			return fmt.Errorf("failed to write JSON file: %w", err)
		}
	}
	return nil
}

func openStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, errors.New("no run set store configured (use --store or CMSIM_STORE)")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return store.Open(path)
}

func saveRunSet(ctx context.Context, path string, rs store.RunSet) error {
	st, err := openStore(path)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.SaveRunSet(ctx, rs)
}
