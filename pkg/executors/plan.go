package executors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"

	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/plan"
	"github.com/yurifrl/mizan/pkg/reconcile"
)

var (
	syncedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	changedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// Plan imports every statement of p without saving and writes a preview of
// the per-field changes to w. Statements that fail are reported and the rest
// still previewed; their errors are returned joined.
func (e *Executor) Plan(ctx context.Context, p *plan.Plan, w io.Writer) ([]Change, error) {
	e.logger.Debug("planning", "statements", len(p.Statements))

	changes := make([]Change, 0, len(p.Statements))
	var errs []error
	for _, st := range p.Statements {
		c := e.statement(ctx, st, true)
		if c.Err != nil {
			e.logger.Warn("statement failed", "file", st.File, "err", c.Err)
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(st.File), c.Err))
		}
		changes = append(changes, c)
		Preview(w, c)
	}

	var pending, inSync int
	for _, c := range changes {
		for _, d := range c.Diffs {
			if d.HasChanges() {
				pending++
			} else {
				inSync++
			}
		}
	}
	if pending == 0 {
		fmt.Fprintf(w, "\nPlan: all %d statement(s) are in sync\n", inSync)
	} else {
		fmt.Fprintf(w, "\nPlan: %d statement(s) will change, %d already in sync\n", pending, inSync)
	}
	return changes, errors.Join(errs...)
}

// Preview writes the field changes of one statement.
func Preview(w io.Writer, c Change) {
	st := c.Statement
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s -> %s %d", filepath.Base(st.File), st.Company, st.Year)))

	for _, s := range c.Sheets {
		if s.Recognized {
			continue
		}
		line := fmt.Sprintf("  ! sheet %q skipped", s.Sheet)
		if s.Suggestion != "" {
			line += fmt.Sprintf(" (closest: %q)", s.Suggestion)
		}
		fmt.Fprintln(w, syncedStyle.Render(line))
	}

	for _, d := range c.Diffs {
		title := "  " + d.Kind.String()
		if d.New {
			title += " (new)"
		}
		fmt.Fprintln(w, title)
		for _, entry := range d.Items {
			fmt.Fprintln(w, renderEntry(entry))
		}
	}
	if c.Err != nil {
		fmt.Fprintln(w, removedStyle.Render("  error: "+c.Err.Error()))
	}
}

func renderEntry(e reconcile.Entry) string {
	label := e.Label
	if e.Custom() {
		label += " *"
	}
	switch e.Status {
	case reconcile.Added:
		return addedStyle.Render(fmt.Sprintf("    + %s: %s", label, amount(e.Incoming)))
	case reconcile.Changed:
		return changedStyle.Render(fmt.Sprintf("    ~ %s: %s -> %s", label, amount(e.Stored), amount(e.Incoming)))
	case reconcile.Removed:
		return removedStyle.Render(fmt.Sprintf("    - %s: %s", label, amount(e.Stored)))
	}
	return syncedStyle.Render(fmt.Sprintf("    = %s: %s", label, amount(e.Incoming)))
}

func amount(a models.Amount) string {
	if !a.Valid {
		return "-"
	}
	return a.String()
}
