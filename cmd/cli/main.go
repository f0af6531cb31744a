package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/yurifrl/mizan/pkg/compare"
	"github.com/yurifrl/mizan/pkg/config"
	"github.com/yurifrl/mizan/pkg/csv"
	"github.com/yurifrl/mizan/pkg/executors"
	"github.com/yurifrl/mizan/pkg/importer"
	"github.com/yurifrl/mizan/pkg/metrics"
	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/parser"
	"github.com/yurifrl/mizan/pkg/plan"
	"github.com/yurifrl/mizan/pkg/report"
	"github.com/yurifrl/mizan/pkg/server"
	"github.com/yurifrl/mizan/pkg/service"
	"github.com/yurifrl/mizan/pkg/store"
)

var (
	cliFilters filters
	cfgFile    string

	company        string
	year           int
	baseYear       int
	comparisonYear int
	mode           string
	kindName       string
	outPath        string
	inPath         string
	asCSV          bool
	debug          bool
)

// app is the wiring shared by every command.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	store   store.Store
	tables  models.Tables
	metrics *metrics.Registry
	parser  *parser.Parser
}

func newApp(cmd *cobra.Command) (*app, error) {
	// Load configuration (config file + env + flag overrides)
	cfg, err := config.Build(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          "mizan-cli",
		Level:           cfg.Level(),
	})

	tables, err := cfg.Tables()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cmd.Context(), cfg.Database.Path, cfg.Database.Timeout, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		tables:  tables,
		metrics: metrics.NewRegistry(),
		parser:  parser.New(logger).WithXLSCharset(cfg.Import.XLSCharset),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "err", err)
	}
}

func (a *app) importer() *importer.Importer {
	return importer.New(a.tables, a.store, a.logger, a.metrics)
}

// withApp runs fn with a fully wired app and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

var rootCmd = &cobra.Command{
	Use:           "mizan-cli",
	Short:         "Financial statement import and ratio comparison",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

// ---------------- import ----------------

var importCmd = &cobra.Command{
	Use:   "import [flags] <file_or_directory>",
	Short: "Import statement spreadsheets into the store",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		target, err := resolveTarget()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		path := args[0]

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			if kindName != "" {
				return errors.New("--kind cannot be used with a directory")
			}
			processor := service.NewProcessor(a.parser, a.importer(), a.logger)
			results, err := processor.ProcessDirectory(ctx, path, target)
			if err != nil {
				return err
			}
			var failed int
			for _, r := range results {
				fmt.Println(r.File)
				printSheets(os.Stdout, r.Sheets)
				if r.Err != nil {
					failed++
					fmt.Printf("  error: %v\n", r.Err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) failed", failed, len(results))
			}
			return nil
		}

		if kindName == "" {
			processor := service.NewProcessor(a.parser, a.importer(), a.logger)
			res := processor.ProcessFile(ctx, path, target)
			printSheets(os.Stdout, res.Sheets)
			return res.Err
		}

		kind, err := models.ParseKind(kindName)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		wb, err := a.parser.ProcessBytes(data, path)
		if err != nil {
			return err
		}
		res, err := a.importer().ImportFile(ctx, wb, kind, target)
		printSheets(os.Stdout, []importer.SheetResult{res})
		return err
	}),
}

// resolveTarget picks the company and year from --year, or from the
// comparison years and --mode.
func resolveTarget() (importer.Target, error) {
	if company == "" {
		return importer.Target{}, errors.New("--company is required")
	}
	if year > 0 {
		return importer.Target{Company: company, Year: year}, nil
	}
	c := models.Comparison{Company: company, BaseYear: baseYear, ComparisonYear: comparisonYear}
	if err := c.Validate(); err != nil {
		return importer.Target{}, errors.New("--year or both --base-year and --comparison-year are required")
	}
	return importer.TargetFor(c, models.Mode(mode)), nil
}

func printSheets(w io.Writer, sheets []importer.SheetResult) {
	for _, s := range sheets {
		switch {
		case s.Saved():
			discarded := 0
			for _, n := range s.Stats.Discarded {
				discarded += n
			}
			fmt.Fprintf(w, "  %s -> %s: matched %d, custom %d, discarded %d\n",
				s.Sheet, s.Kind, s.Stats.Matched, s.Stats.Custom, discarded)
		case !s.Recognized && s.Suggestion != "":
			fmt.Fprintf(w, "  %s: skipped (closest: %s)\n", s.Sheet, s.Suggestion)
		default:
			fmt.Fprintf(w, "  %s: %v\n", s.Sheet, s.Err)
		}
	}
}

// ---------------- plan / apply ----------------

var planCmd = &cobra.Command{
	Use:   "plan <plan_file>",
	Short: "Preview a YAML import plan against the store (dry-run)",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		planPath := args[0]

		p, err := plan.Load(planPath)
		if err != nil {
			return err
		}

		fmt.Printf("Plan preview for %s\n", planPath)
		p.Print(os.Stdout)
		fmt.Println()

		exec := executors.New(a.logger, a.parser, a.tables, a.store, nil)
		_, err = exec.Plan(cmd.Context(), p, os.Stdout)
		return err
	}),
}

var applyCmd = &cobra.Command{
	Use:   "apply <plan_file>",
	Short: "Import and save every statement of a YAML plan",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		p, err := plan.Load(args[0])
		if err != nil {
			return err
		}

		exec := executors.New(a.logger, a.parser, a.tables, a.store, a.metrics)
		changes, err := exec.Apply(cmd.Context(), p)
		for _, c := range changes {
			executors.Preview(os.Stdout, c)
		}
		if err != nil {
			return err
		}
		fmt.Printf("\nApplied %d statement file(s)\n", len(changes))
		return nil
	}),
}

// ---------------- report ----------------

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compare the financial ratios of two years",
	Long: "Builds the ratio comparison for --company. Without --base-year and\n" +
		"--comparison-year the most recently saved comparison is used.",
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		ctx := cmd.Context()
		if company == "" {
			return errors.New("--company is required")
		}
		c := models.Comparison{Company: company, BaseYear: baseYear, ComparisonYear: comparisonYear}
		if baseYear == 0 && comparisonYear == 0 {
			saved, err := a.store.Comparisons(ctx, company)
			if err != nil {
				return err
			}
			if len(saved) == 0 {
				return fmt.Errorf("no saved comparison for %s; pass --base-year and --comparison-year", company)
			}
			c = saved[0]
		}

		keep, err := cliFilters.toFilterFunc()
		if err != nil {
			return err
		}

		builder := report.NewBuilder(a.store, report.Options{TolerateFetchErrors: a.cfg.Report.TolerateFetchErrors}, a.logger, a.metrics)
		rep, err := builder.BuildFor(ctx, c)
		if err != nil {
			return err
		}

		out := io.Writer(os.Stdout)
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		if asCSV {
			_, err := out.Write(csv.Create(rep, keep))
			return err
		}
		renderReport(out, rep, keep)
		return nil
	}),
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	upStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	downStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	flatStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func trendStyle(t compare.Trend) lipgloss.Style {
	switch t {
	case compare.Up:
		return upStyle
	case compare.Down:
		return downStyle
	}
	return flatStyle
}

func renderReport(w io.Writer, rep *report.Report, keep csv.FilterFunc) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s: %d -> %d", rep.Company, rep.BaseYear, rep.ComparisonYear)))

	shown := 0
	for _, sec := range rep.Sections(false) {
		var rows [][]string
		for _, row := range sec.Rows {
			if keep != nil && !keep(row) {
				continue
			}
			rows = append(rows, []string{
				row.ID.String(),
				row.Label,
				row.BaseText(),
				row.ComparisonText(),
				trendStyle(row.Trend).Render(row.Trend.Symbol()),
			})
		}
		if len(rows) == 0 {
			continue
		}
		shown += len(rows)

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("", sec.Title, strconv.Itoa(rep.BaseYear), strconv.Itoa(rep.ComparisonYear), "").
			Rows(rows...)
		fmt.Fprintln(w, t.Render())
	}
	if shown == 0 {
		fmt.Fprintln(w, "No ratios available; import statements for these years first.")
	}
}

// ---------------- forms ----------------

var formCmd = &cobra.Command{
	Use:   "form",
	Short: "Read, save or reset one stored statement",
}

func formTarget(args []string) (models.Kind, importer.Target, error) {
	kind, err := models.ParseKind(args[0])
	if err != nil {
		return 0, importer.Target{}, err
	}
	if company == "" || year <= 0 {
		return 0, importer.Target{}, errors.New("--company and --year are required")
	}
	return kind, importer.Target{Company: company, Year: year}, nil
}

var formGetCmd = &cobra.Command{
	Use:   "get <balance-sheet|income-statement|cash-flow>",
	Short: "Print a stored statement",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		kind, target, err := formTarget(args)
		if err != nil {
			return err
		}
		snap, err := a.store.Fetch(cmd.Context(), kind, target.Company, target.Year)
		if err != nil {
			return err
		}

		if debug {
			pp.Println(snap)
			return nil
		}
		t := a.tables[kind]
		for _, f := range t.Fields {
			fmt.Printf("%-40s %s\n", f.Label, amountText(snap.Static[f.Key]))
		}
		for _, c := range snap.Custom {
			fmt.Printf("%-40s %s *\n", c.Label, amountText(c.Value))
		}
		return nil
	}),
}

func amountText(a models.Amount) string {
	if !a.Valid {
		return "-"
	}
	return a.String()
}

var formSaveCmd = &cobra.Command{
	Use:   "save <balance-sheet|income-statement|cash-flow>",
	Short: "Save a statement from a JSON snapshot ({\"static\": {...}, \"custom\": [...]})",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		kind, target, err := formTarget(args)
		if err != nil {
			return err
		}

		var data []byte
		if inPath == "" || inPath == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(inPath)
		}
		if err != nil {
			return err
		}

		var in models.Snapshot
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			return fmt.Errorf("invalid snapshot: %w", err)
		}

		snap := models.NewSnapshot(a.tables[kind])
		for k, v := range in.Static {
			snap.Static[k] = v
		}
		if in.Custom != nil {
			snap.Custom = in.Custom
		}
		if err := a.store.Save(cmd.Context(), kind, target.Company, target.Year, snap); err != nil {
			return err
		}
		fmt.Printf("saved %s for %s %d\n", kind, target.Company, target.Year)
		return nil
	}),
}

var formResetCmd = &cobra.Command{
	Use:   "reset <balance-sheet|income-statement|cash-flow>",
	Short: "Delete a stored statement",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		kind, target, err := formTarget(args)
		if err != nil {
			return err
		}
		if err := a.store.Reset(cmd.Context(), kind, target.Company, target.Year); err != nil {
			return err
		}
		fmt.Printf("reset %s for %s %d\n", kind, target.Company, target.Year)
		return nil
	}),
}

// ---------------- export ----------------

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write stored statements of one year to an xlsx workbook",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		if company == "" || year <= 0 {
			return errors.New("--company and --year are required")
		}
		if outPath == "" {
			outPath = fmt.Sprintf("%s-%d.xlsx", company, year)
		}

		kinds := models.Kinds
		if kindName != "" {
			kind, err := models.ParseKind(kindName)
			if err != nil {
				return err
			}
			kinds = []models.Kind{kind}
		}

		snaps := make(map[models.Kind]models.Snapshot)
		for _, kind := range kinds {
			snap, err := a.store.Fetch(cmd.Context(), kind, company, year)
			if errors.Is(err, store.ErrNotFound) {
				a.logger.Debug("nothing stored", "kind", kind, "company", company, "year", year)
				continue
			}
			if err != nil {
				return err
			}
			snaps[kind] = snap
		}
		if len(snaps) == 0 {
			return fmt.Errorf("no statements stored for %s %d", company, year)
		}

		var buf bytes.Buffer
		if err := parser.WriteStatements(&buf, a.tables, snaps); err != nil {
			return err
		}
		if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
			return err
		}
		fmt.Printf("exported %d statement(s) to %s\n", len(snaps), outPath)
		return nil
	}),
}

// ---------------- companies / comparisons ----------------

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "List companies with stored statements",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		names, err := a.store.Companies(cmd.Context())
		if err != nil {
			return err
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}),
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Manage saved comparison settings",
}

var compareSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save the base and comparison year of a company",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		c := models.Comparison{Company: company, BaseYear: baseYear, ComparisonYear: comparisonYear}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := a.store.SaveComparison(cmd.Context(), c); err != nil {
			return err
		}
		fmt.Printf("saved comparison %s %d -> %d\n", c.Company, c.BaseYear, c.ComparisonYear)
		return nil
	}),
}

var compareListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved comparisons of a company, newest first",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		if company == "" {
			return errors.New("--company is required")
		}
		cs, err := a.store.Comparisons(cmd.Context(), company)
		if err != nil {
			return err
		}
		for _, c := range cs {
			fmt.Printf("%d -> %d\n", c.BaseYear, c.ComparisonYear)
		}
		return nil
	}),
}

// ---------------- serve ----------------

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		srv := server.New(a.cfg, a.store, a.tables, a.logger, a.metrics)
		return srv.Start(cmd.Context(), a.cfg.Server.Addr)
	}),
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (empty keeps statements in memory)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Timeout for each store operation")
	rootCmd.PersistentFlags().String("fields", "", "YAML file replacing the built-in field tables")
	rootCmd.PersistentFlags().String("charset", "", "Charset of .xls files")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	// Target flags
	for _, cmd := range []*cobra.Command{importCmd, reportCmd, formGetCmd, formSaveCmd, formResetCmd, exportCmd, compareSetCmd, compareListCmd} {
		cmd.Flags().StringVar(&company, "company", "", "Company name")
	}
	for _, cmd := range []*cobra.Command{importCmd, formGetCmd, formSaveCmd, formResetCmd, exportCmd} {
		cmd.Flags().IntVar(&year, "year", 0, "Statement year")
	}
	for _, cmd := range []*cobra.Command{importCmd, reportCmd, compareSetCmd} {
		cmd.Flags().IntVar(&baseYear, "base-year", 0, "Base year")
		cmd.Flags().IntVar(&comparisonYear, "comparison-year", 0, "Comparison year")
	}
	importCmd.Flags().StringVar(&mode, "mode", string(models.ModeBase), "Which comparison year to import into (base or comp)")
	for _, cmd := range []*cobra.Command{importCmd, exportCmd} {
		cmd.Flags().StringVar(&kindName, "kind", "", "Statement kind (balance-sheet, income-statement, cash-flow)")
	}
	for _, cmd := range []*cobra.Command{reportCmd, exportCmd} {
		cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file")
	}

	// Flags specific to the report subcommand
	reportCmd.Flags().BoolVar(&asCSV, "csv", false, "Write CSV instead of a table")
	reportCmd.Flags().Bool("tolerant", false, "Treat unreadable statements as missing")
	reportCmd.Flags().BoolVar(&cliFilters.all, "all", false, "Include ratios missing in both years")
	reportCmd.Flags().StringVar(&cliFilters.category, "category", "", "Only show one category (debt, liquidity, activity, profitability)")
	reportCmd.Flags().StringSliceVar(&cliFilters.ratios, "ratio", nil, "Only show these ratios (e.g. ratio1,ratio24)")

	formGetCmd.Flags().BoolVar(&debug, "debug", false, "Dump the raw snapshot")
	formSaveCmd.Flags().StringVarP(&inPath, "file", "f", "-", "JSON snapshot file (- for stdin)")

	serveCmd.Flags().String("addr", "", "Listen address")
	serveCmd.Flags().StringSlice("cors", nil, "Allowed CORS origins")

	formCmd.AddCommand(formGetCmd, formSaveCmd, formResetCmd)
	compareCmd.AddCommand(compareSetCmd, compareListCmd)
	rootCmd.AddCommand(importCmd, planCmd, applyCmd, reportCmd, formCmd, exportCmd, companiesCmd, compareCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
