package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/yurifrl/mizan/pkg/config"
	"github.com/yurifrl/mizan/pkg/metrics"
	"github.com/yurifrl/mizan/pkg/server"
	"github.com/yurifrl/mizan/pkg/store"
)

func main() {
	flags := pflag.NewFlagSet("mizan-server", pflag.ExitOnError)
	cfgFile := flags.StringP("config", "c", "", "Config file (default is config.yaml)")
	flags.String("addr", "", "Listen address")
	flags.String("db", "", "SQLite database path")
	flags.StringSlice("cors", nil, "Allowed CORS origins")
	flags.String("fields", "", "YAML file replacing the built-in field tables")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("tolerant", false, "Treat unreadable statements as missing in reports")
	_ = flags.Parse(os.Args[1:])

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          "mizan",
	})

	cfg, err := config.Build(*cfgFile, flags)
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}
	logger.SetLevel(cfg.Level())

	tables, err := cfg.Tables()
	if err != nil {
		logger.Fatal("failed to load field tables", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database.Path, cfg.Database.Timeout, logger)
	if err != nil {
		logger.Fatal("failed to open store", "err", err)
	}
	defer st.Close()

	srv := server.New(cfg, st, tables, logger, metrics.NewRegistry())
	logger.Info("starting server", "addr", cfg.Server.Addr, "db", cfg.Database.Path)
	if err := srv.Start(ctx, cfg.Server.Addr); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
