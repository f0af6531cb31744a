package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/schollz/closestmatch"
	"golang.org/x/sync/errgroup"

	"github.com/yurifrl/mizan/pkg/arabic"
	"github.com/yurifrl/mizan/pkg/matcher"
	"github.com/yurifrl/mizan/pkg/metrics"
	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/parser"
)

var (
	// ErrUnrecognizedSheet marks a sheet whose name belongs to no statement.
	ErrUnrecognizedSheet = errors.New("unrecognized sheet")
	// ErrDuplicateSheet marks a second sheet for a statement already imported
	// from the same workbook.
	ErrDuplicateSheet = errors.New("duplicate statement sheet")
	// ErrNoStatements is returned when a workbook has no recognised sheet.
	ErrNoStatements = errors.New("no statement sheets found")
)

// Saver persists an imported snapshot.
type Saver interface {
	Save(ctx context.Context, kind models.Kind, company string, year int, snap models.Snapshot) error
}

// Target names the company and year imported statements belong to.
type Target struct {
	Company string `json:"company"`
	Year    int    `json:"year"`
}

// TargetFor picks the year of c that an upload in mode fills.
func TargetFor(c models.Comparison, mode models.Mode) Target {
	return Target{Company: c.Company, Year: c.YearFor(mode)}
}

func (t Target) validate() error {
	if t.Company == "" {
		return errors.New("company is required")
	}
	if t.Year <= 0 {
		return errors.New("year is required")
	}
	return nil
}

// SheetResult reports the outcome for one workbook sheet.
type SheetResult struct {
	Sheet      string
	Kind       models.Kind
	Recognized bool
	// Suggestion is the closest known sheet name for unrecognised sheets.
	Suggestion string
	Result
	Err error
}

// Saved reports whether the sheet was imported and stored.
func (r SheetResult) Saved() bool {
	return r.Recognized && r.Err == nil
}

// MarshalJSON writes the outcome without the imported snapshot.
func (r SheetResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Sheet      string `json:"sheet"`
		Kind       string `json:"kind,omitempty"`
		Saved      bool   `json:"saved"`
		Suggestion string `json:"suggestion,omitempty"`
		Stats      *Stats `json:"stats,omitempty"`
		Error      string `json:"error,omitempty"`
	}{
		Sheet:      r.Sheet,
		Saved:      r.Saved(),
		Suggestion: r.Suggestion,
	}
	if r.Recognized {
		out.Kind = r.Kind.String()
		out.Stats = &r.Stats
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Importer reads statement sheets and saves them.
type Importer struct {
	tables   models.Tables
	matchers map[models.Kind]*matcher.Matcher
	sheets   map[string]models.Kind
	suggest  *closestmatch.ClosestMatch
	saver    Saver
	logger   *log.Logger
	metrics  *metrics.Registry
}

// New returns an Importer for tables. reg may be nil.
func New(tables models.Tables, saver Saver, logger *log.Logger, reg *metrics.Registry) *Importer {
	imp := &Importer{
		tables:   tables,
		matchers: make(map[models.Kind]*matcher.Matcher, len(tables)),
		sheets:   make(map[string]models.Kind),
		saver:    saver,
		logger:   logger,
		metrics:  reg,
	}

	var known []string
	for _, kind := range models.Kinds {
		table, ok := tables[kind]
		if !ok {
			continue
		}
		imp.matchers[kind] = matcher.New(table)
		names := append([]string{table.Title}, table.Sheets...)
		for _, name := range names {
			norm := arabic.Normalize(name)
			if norm == "" {
				continue
			}
			if _, dup := imp.sheets[norm]; !dup {
				imp.sheets[norm] = kind
				known = append(known, name)
			}
		}
	}
	imp.suggest = closestmatch.New(known, []int{2, 3})
	return imp
}

// Recognize maps a sheet name to the statement it holds.
func (imp *Importer) Recognize(sheet string) (models.Kind, bool) {
	kind, ok := imp.sheets[arabic.Normalize(sheet)]
	return kind, ok
}

// ImportWorkbook imports every recognised sheet of wb for target. Sheets are
// handled independently: an unrecognised or unreadable sheet is reported in
// its SheetResult and the others still import. The returned error is non-nil
// only when no sheet is recognised or when saving failed.
func (imp *Importer) ImportWorkbook(ctx context.Context, wb parser.Workbook, target Target) ([]SheetResult, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}

	names := wb.Sheets()
	results := make([]SheetResult, len(names))
	seen := make(map[models.Kind]string)

	var g errgroup.Group
	for i, name := range names {
		results[i].Sheet = name

		kind, ok := imp.Recognize(name)
		if !ok {
			results[i].Err = fmt.Errorf("%w: %q", ErrUnrecognizedSheet, name)
			results[i].Suggestion = imp.suggest.Closest(name)
			imp.logger.Debug("skipping unrecognized sheet", "sheet", name, "suggestion", results[i].Suggestion)
			imp.metrics.SheetSkipped("unrecognized")
			continue
		}
		results[i].Kind = kind
		if first, dup := seen[kind]; dup {
			results[i].Err = fmt.Errorf("%w: %q repeats %s from %q", ErrDuplicateSheet, name, kind, first)
			imp.logger.Debug("skipping duplicate sheet", "sheet", name, "kind", kind, "first", first)
			imp.metrics.SheetSkipped("duplicate")
			continue
		}
		seen[kind] = name
		results[i].Recognized = true

		res := &results[i]
		g.Go(func() error {
			imp.importSheet(ctx, wb, res, target)
			return nil
		})
	}
	_ = g.Wait()

	if len(seen) == 0 {
		return results, fmt.Errorf("%w in %d sheet(s)", ErrNoStatements, len(names))
	}
	return results, saveErrors(results)
}

// ImportFile imports the first sheet of wb as a statement of kind, whatever
// the sheet is called.
func (imp *Importer) ImportFile(ctx context.Context, wb parser.Workbook, kind models.Kind, target Target) (SheetResult, error) {
	if err := target.validate(); err != nil {
		return SheetResult{}, err
	}
	if _, ok := imp.tables[kind]; !ok {
		return SheetResult{}, fmt.Errorf("%w: %s", models.ErrUnknownKind, kind)
	}
	names := wb.Sheets()
	if len(names) == 0 {
		return SheetResult{}, ErrNoStatements
	}

	res := SheetResult{Sheet: names[0], Kind: kind, Recognized: true}
	imp.importSheet(ctx, wb, &res, target)
	if res.Err != nil {
		return res, res.Err
	}
	return res, nil
}

func (imp *Importer) importSheet(ctx context.Context, wb parser.Workbook, res *SheetResult, target Target) {
	rows, err := wb.Rows(res.Sheet)
	if err != nil {
		res.Err = fmt.Errorf("read sheet %q: %w", res.Sheet, err)
		imp.logger.Warn("failed to read sheet", "sheet", res.Sheet, "err", err)
		imp.metrics.SheetSkipped("unreadable")
		return
	}

	res.Result = importRows(rows, imp.tables[res.Kind], imp.matchers[res.Kind])
	imp.record(res)

	if err := imp.saver.Save(ctx, res.Kind, target.Company, target.Year, res.Snapshot); err != nil {
		res.Err = &SaveError{Kind: res.Kind, Sheet: res.Sheet, Err: err}
		imp.logger.Error("failed to save statement", "sheet", res.Sheet, "kind", res.Kind, "company", target.Company, "year", target.Year, "err", err)
		imp.metrics.StoreFailure("save")
		return
	}
	imp.metrics.SheetImported(res.Kind.String())
	imp.logger.Info("imported statement", "sheet", res.Sheet, "kind", res.Kind, "company", target.Company, "year", target.Year,
		"matched", res.Stats.Matched, "custom", res.Stats.Custom)
}

func (imp *Importer) record(res *SheetResult) {
	for reason, n := range res.Stats.Discarded {
		imp.metrics.RowsDropped(reason, n)
	}
	imp.metrics.CustomFieldsKept(res.Kind.String(), res.Stats.Custom)
	imp.logger.Debug("parsed sheet", "sheet", res.Sheet, "kind", res.Kind, "rows", res.Stats.Rows, "discarded", res.Stats.Discarded)
}

// SaveError is a store failure while saving one imported sheet.
type SaveError struct {
	Kind  models.Kind
	Sheet string
	Err   error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s from sheet %q: %v", e.Kind, e.Sheet, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

func saveErrors(results []SheetResult) error {
	var errs []error
	for _, r := range results {
		var se *SaveError
		if errors.As(r.Err, &se) {
			errs = append(errs, se)
		}
	}
	return errors.Join(errs...)
}
