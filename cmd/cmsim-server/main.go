// Command cmsim-server serves the cmsim HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/daniacca/cmsim/internal/config"
	"github.com/daniacca/cmsim/internal/logging"
	"github.com/daniacca/cmsim/internal/store"
	"github.com/daniacca/cmsim/internal/telemetry"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("cmsim-server", pflag.ContinueOnError)
	fs.String("config", "", "config file (default: ./cmsim.yaml)")
	fs.String("addr", "", "HTTP listen address (e.g. :8080, 0.0.0.0:8080)")
	fs.String("store", "", "SQLite file where solved run sets are kept")
	fs.StringSlice("webhook", nil, "URL receiving every run event (repeatable)")
	fs.String("log-level", "", "log level (debug|info|warn|error)")
	fs.String("log-format", "", "log format (text|json)")
	return fs
}

func run(args []string) error {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfgFile, _ := fs.GetString("config")
	cfg, err := config.Load(cfgFile, fs)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "cmsim-server")
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	var st *store.Store
	if cfg.Store != "" {
		if st, err = store.Open(cfg.Store); err != nil {
			return err
		}
		defer st.Close()
		logger.Info("run set store opened", "path", cfg.Store)
	}

	srv := NewServer(logger, st)
	for i, url := range cfg.Server.Webhooks {
		id := fmt.Sprintf("webhook-%d", i+1)
		if err := srv.AddWebhook(id, url); err != nil {
			return err
		}
		logger.Info("webhook registered", "notifier_id", id, "url", url)
	}

	serveErr := srv.Serve(ctx, cfg.Server.Addr)
	if err := srv.Close(); err != nil {
		logger.Warn("closing notifiers", "error", err)
	}
	return serveErr
}
