package executors

import (
	"context"
	"fmt"

	"github.com/yurifrl/mizan/pkg/plan"
)

// Apply imports and saves every statement of p in order, stopping at the first
// failure. When p names a comparison it is saved once all statements are in.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan) ([]Change, error) {
	e.logger.Debug("applying plan", "statements", len(p.Statements))

	changes := make([]Change, 0, len(p.Statements))
	for _, st := range p.Statements {
		c := e.statement(ctx, st, false)
		changes = append(changes, c)
		if c.Err != nil {
			return changes, fmt.Errorf("apply %s: %w", st.File, c.Err)
		}
		e.logger.Info("applied statement", "file", st.File, "company", st.Company, "year", st.Year, "sheets", c.Saved())
	}

	if p.Comparison != nil {
		if err := e.store.SaveComparison(ctx, *p.Comparison); err != nil {
			return changes, fmt.Errorf("failed to save comparison: %w", err)
		}
		e.logger.Info("saved comparison", "company", p.Comparison.Company,
			"base_year", p.Comparison.BaseYear, "comparison_year", p.Comparison.ComparisonYear)
	}
	return changes, nil
}
