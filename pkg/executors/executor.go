package executors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/mizan/pkg/importer"
	"github.com/yurifrl/mizan/pkg/metrics"
	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/parser"
	"github.com/yurifrl/mizan/pkg/plan"
	"github.com/yurifrl/mizan/pkg/reconcile"
	"github.com/yurifrl/mizan/pkg/store"
)

// Executor runs import plans against a statement store.
type Executor struct {
	logger  *log.Logger
	parser  *parser.Parser
	tables  models.Tables
	store   store.Store
	metrics *metrics.Registry
}

func New(logger *log.Logger, p *parser.Parser, tables models.Tables, st store.Store, reg *metrics.Registry) *Executor {
	return &Executor{
		logger:  logger,
		parser:  p,
		tables:  tables,
		store:   st,
		metrics: reg,
	}
}

// Change is the outcome of one plan statement.
type Change struct {
	Statement plan.Statement
	Sheets    []importer.SheetResult
	// Diffs holds one report per imported statement, in sheet order.
	Diffs []*reconcile.Report
	Err   error
}

// Saved counts the sheets that were (or, for a plan, would be) stored.
func (c Change) Saved() int {
	n := 0
	for _, s := range c.Sheets {
		if s.Saved() {
			n++
		}
	}
	return n
}

// run imports one statement file with imp.
func (e *Executor) run(ctx context.Context, imp *importer.Importer, st plan.Statement) ([]importer.SheetResult, error) {
	data, err := os.ReadFile(st.File)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", st.File, err)
	}
	wb, err := e.parser.ProcessBytes(data, st.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", st.File, err)
	}

	kind, single, err := st.StatementKind()
	if err != nil {
		return nil, err
	}
	if single {
		res, err := imp.ImportFile(ctx, wb, kind, st.Target())
		if res.Sheet == "" {
			return nil, err
		}
		return []importer.SheetResult{res}, err
	}
	return imp.ImportWorkbook(ctx, wb, st.Target())
}

// recorder sits between the importer and the store. It diffs every imported
// snapshot against the stored one and, unless dryRun is set, saves it.
type recorder struct {
	store  store.Store
	tables models.Tables
	dryRun bool

	mu    sync.Mutex
	diffs map[models.Kind]*reconcile.Report
}

func (e *Executor) newRecorder(dryRun bool) *recorder {
	return &recorder{
		store:  e.store,
		tables: e.tables,
		dryRun: dryRun,
		diffs:  make(map[models.Kind]*reconcile.Report),
	}
}

func (r *recorder) Save(ctx context.Context, kind models.Kind, company string, year int, snap models.Snapshot) error {
	var stored *models.Snapshot
	old, err := r.store.Fetch(ctx, kind, company, year)
	switch {
	case err == nil:
		stored = &old
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("failed to fetch stored %s: %w", kind, err)
	}

	d := reconcile.Build(r.tables[kind], stored, snap)
	r.mu.Lock()
	r.diffs[kind] = d
	r.mu.Unlock()

	if r.dryRun {
		return nil
	}
	return r.store.Save(ctx, kind, company, year, snap)
}

// reports returns the diffs in sheet order.
func (r *recorder) reports(sheets []importer.SheetResult) []*reconcile.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reconcile.Report
	for _, s := range sheets {
		if d, ok := r.diffs[s.Kind]; ok && s.Recognized {
			out = append(out, d)
		}
	}
	return out
}

// statement imports one plan statement through a fresh recorder.
func (e *Executor) statement(ctx context.Context, st plan.Statement, dryRun bool) Change {
	rec := e.newRecorder(dryRun)
	reg := e.metrics
	if dryRun {
		reg = nil
	}
	imp := importer.New(e.tables, rec, e.logger, reg)

	sheets, err := e.run(ctx, imp, st)
	return Change{Statement: st, Sheets: sheets, Diffs: rec.reports(sheets), Err: err}
}
