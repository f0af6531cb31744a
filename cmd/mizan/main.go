package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/mizan/pkg/importer"
	"github.com/yurifrl/mizan/pkg/metrics"
	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/parser"
	"github.com/yurifrl/mizan/pkg/service"
	"github.com/yurifrl/mizan/pkg/store"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          "mizan",
	})

	var (
		company = flag.String("company", "", "Company the statements belong to")
		year    = flag.Int("year", 0, "Statement year")
		dbPath  = flag.String("db", "mizan.db", "SQLite database path")
	)
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 || *company == "" || *year <= 0 {
		logger.Error("invalid usage", "args", args)
		fmt.Fprintf(os.Stderr, "Usage: mizan -company NAME -year YYYY [-db path] <directory>\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, *dbPath, store.DefaultTimeout, logger)
	if err != nil {
		logger.Fatal("failed to open store", "err", err)
	}
	defer st.Close()

	imp := importer.New(models.DefaultTables(), st, logger, metrics.NewRegistry())
	processor := service.NewProcessor(parser.New(logger), imp, logger)

	results, err := processor.ProcessDirectory(ctx, args[0], importer.Target{Company: *company, Year: *year})
	if err != nil {
		logger.Fatal("processing failed", "error", err)
	}

	failed := 0
	for _, r := range results {
		saved := 0
		for _, s := range r.Sheets {
			if s.Saved() {
				saved++
			}
		}
		if r.Err != nil {
			failed++
			logger.Error("import failed", "file", r.File, "err", r.Err)
			continue
		}
		logger.Info("imported", "file", r.File, "sheets", saved)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
