// Package report builds the year-over-year ratio comparison for a company.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/yurifrl/mizan/pkg/metrics"
	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/ratio"
	"github.com/yurifrl/mizan/pkg/store"
)

// Fetcher reads stored statements.
type Fetcher interface {
	Fetch(ctx context.Context, kind models.Kind, company string, year int) (models.Snapshot, error)
}

type Options struct {
	// TolerateFetchErrors treats a failed fetch like a missing statement
	// instead of failing the report.
	TolerateFetchErrors bool
}

// FetchError is a store failure while reading one statement of a report.
type FetchError struct {
	Kind    models.Kind
	Company string
	Year    int
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s %d: %v", e.Kind, e.Company, e.Year, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Report holds the ratio sets of the base and comparison years. It is built on
// demand and never stored.
type Report struct {
	Company        string    `json:"company"`
	BaseYear       int       `json:"baseYear"`
	ComparisonYear int       `json:"comparisonYear"`
	Base           ratio.Set `json:"base"`
	Comparison     ratio.Set `json:"comparison"`
}

type Builder struct {
	fetcher Fetcher
	opts    Options
	logger  *log.Logger
	metrics *metrics.Registry
}

func NewBuilder(fetcher Fetcher, opts Options, logger *log.Logger, reg *metrics.Registry) *Builder {
	return &Builder{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
		metrics: reg,
	}
}

// BuildFor builds the report for saved comparison settings.
func (b *Builder) BuildFor(ctx context.Context, c models.Comparison) (*Report, error) {
	return b.Build(ctx, c.Company, c.BaseYear, c.ComparisonYear)
}

// Build fetches the three statements of both years concurrently and computes
// both ratio sets. Missing statements leave their ratios empty; other fetch
// failures are returned as *FetchError unless tolerated.
func (b *Builder) Build(ctx context.Context, company string, baseYear, comparisonYear int) (*Report, error) {
	company = strings.TrimSpace(company)
	if err := (models.Comparison{Company: company, BaseYear: baseYear, ComparisonYear: comparisonYear}).Validate(); err != nil {
		return nil, err
	}

	years := [2]int{baseYear, comparisonYear}
	var fields [2][3]models.Fields

	g, gctx := errgroup.WithContext(ctx)
	for y, year := range years {
		for k, kind := range models.Kinds {
			g.Go(func() error {
				f, err := b.fetch(gctx, kind, company, year)
				if err != nil {
					return err
				}
				fields[y][k] = f
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &Report{
		Company:        company,
		BaseYear:       baseYear,
		ComparisonYear: comparisonYear,
		Base:           ratio.Compute(fields[0][0], fields[0][1], fields[0][2]),
		Comparison:     ratio.Compute(fields[1][0], fields[1][1], fields[1][2]),
	}
	b.record(r)
	return r, nil
}

// fetch returns nil fields for a statement that is missing or, when
// tolerated, could not be read.
func (b *Builder) fetch(ctx context.Context, kind models.Kind, company string, year int) (models.Fields, error) {
	snap, err := b.fetcher.Fetch(ctx, kind, company, year)
	if err == nil {
		return snap.Static, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		b.logger.Debug("statement missing", "kind", kind, "company", company, "year", year)
		return nil, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	b.metrics.StoreFailure("fetch")
	if b.opts.TolerateFetchErrors {
		b.logger.Warn("treating unreadable statement as missing", "kind", kind, "company", company, "year", year, "err", err)
		return nil, nil
	}
	return nil, &FetchError{Kind: kind, Company: company, Year: year, Err: err}
}

func (b *Builder) record(r *Report) {
	b.metrics.ReportBuilt()
	for _, set := range []ratio.Set{r.Base, r.Comparison} {
		for id, res := range set {
			if res == nil {
				b.metrics.RatioUnavailable(id.String())
			}
		}
	}
	b.logger.Info("built report", "company", r.Company, "base_year", r.BaseYear, "comparison_year", r.ComparisonYear,
		"base_available", r.Base.Available(), "comparison_available", r.Comparison.Available())
}
