package executors

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/parser"
	"github.com/yurifrl/mizan/pkg/plan"
	"github.com/yurifrl/mizan/pkg/reconcile"
	"github.com/yurifrl/mizan/pkg/store"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func setup(t *testing.T) (*Executor, *store.Memory, *plan.Plan) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "balance.csv", "البند,القيمة\nاجمالى الاصول,1000\nاجمالى الالتزامات,450\n")
	writeFile(t, dir, "income.csv", "البند,القيمة\nتكلفة المبيعات,600\n")

	manifest := `
comparison:
  company: Acme
  base_year: 2022
  comparison_year: 2023
statements:
  - file: balance.csv
    kind: balance-sheet
  - file: income.csv
    kind: income-statement
    mode: comp
`
	p, err := plan.Parse([]byte(manifest), dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	logger := log.New(io.Discard)
	mem := store.NewMemory()
	tables := models.DefaultTables()

	stored := models.NewSnapshot(tables[models.BalanceSheet])
	stored.Static[models.TotalAssets] = models.NewAmount(1000)
	stored.Static[models.TotalDebits] = models.NewAmount(400)
	if err := mem.Save(context.Background(), models.BalanceSheet, "Acme", 2022, stored); err != nil {
		t.Fatal(err)
	}

	return New(logger, parser.New(logger), tables, mem, nil), mem, p
}

func TestPlan(t *testing.T) {
	e, mem, p := setup(t)

	var out bytes.Buffer
	changes, err := e.Plan(context.Background(), p, &out)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}

	bal := changes[0].Diffs
	if len(bal) != 1 || bal[0].New {
		t.Fatalf("balance diffs = %+v", bal)
	}
	if got := bal[0].Count(reconcile.Changed); got != 1 {
		t.Errorf("changed fields = %d, want 1", got)
	}
	if got := bal[0].Count(reconcile.Unchanged); got != 1 {
		t.Errorf("unchanged fields = %d, want 1", got)
	}

	inc := changes[1].Diffs
	if len(inc) != 1 || !inc[0].New || inc[0].Count(reconcile.Added) != 1 {
		t.Errorf("income diffs = %+v", inc)
	}

	snap, _ := mem.Fetch(context.Background(), models.BalanceSheet, "Acme", 2022)
	if snap.Static[models.TotalDebits] != models.NewAmount(400) {
		t.Error("plan must not save")
	}
	if _, err := mem.Fetch(context.Background(), models.IncomeStatement, "Acme", 2023); err == nil {
		t.Error("plan must not save new statements")
	}

	text := out.String()
	for _, want := range []string{"balance.csv -> Acme 2022", "~ ", "400 -> 450", "income-statement (new)", "Plan: 2 statement(s) will change"} {
		if !strings.Contains(text, want) {
			t.Errorf("preview missing %q:\n%s", want, text)
		}
	}
}

func TestApply(t *testing.T) {
	e, mem, p := setup(t)
	ctx := context.Background()

	changes, err := e.Apply(ctx, p)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(changes) != 2 || changes[0].Saved() != 1 || changes[1].Saved() != 1 {
		t.Fatalf("changes = %+v", changes)
	}

	snap, err := mem.Fetch(ctx, models.BalanceSheet, "Acme", 2022)
	if err != nil || snap.Static[models.TotalDebits] != models.NewAmount(450) {
		t.Errorf("balance = %+v, %v", snap.Static[models.TotalDebits], err)
	}
	snap, err = mem.Fetch(ctx, models.IncomeStatement, "Acme", 2023)
	if err != nil || snap.Static[models.CostSales] != models.NewAmount(600) {
		t.Errorf("income = %+v, %v", snap.Static[models.CostSales], err)
	}

	cs, err := mem.Comparisons(ctx, "Acme")
	if err != nil || len(cs) != 1 || cs[0].ComparisonYear != 2023 {
		t.Errorf("comparisons = %+v, %v", cs, err)
	}

	var out bytes.Buffer
	if _, err := e.Plan(ctx, p, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "all 2 statement(s) are in sync") {
		t.Errorf("after apply the plan should be empty:\n%s", out.String())
	}
}

func TestApplyStopsOnError(t *testing.T) {
	e, mem, p := setup(t)
	p.Statements[0].File = filepath.Join(t.TempDir(), "missing.csv")

	changes, err := e.Apply(context.Background(), p)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(changes) != 1 {
		t.Errorf("got %d changes, want 1", len(changes))
	}
	if _, err := mem.Fetch(context.Background(), models.IncomeStatement, "Acme", 2023); err == nil {
		t.Error("later statements must not run")
	}
	if cs, _ := mem.Comparisons(context.Background(), "Acme"); len(cs) != 0 {
		t.Error("comparison must not be saved")
	}
}
