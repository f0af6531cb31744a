package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yurifrl/mizan/pkg/metrics"
	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/parser"
	"github.com/yurifrl/mizan/pkg/store"
)

var tables = models.DefaultTables()

func row(cells ...any) []parser.Cell {
	out := make([]parser.Cell, len(cells))
	for i, c := range cells {
		switch v := c.(type) {
		case nil:
			out[i] = parser.Empty()
		case string:
			out[i] = parser.Text(v)
		case float64:
			out[i] = parser.Number(v)
		case int:
			out[i] = parser.Number(float64(v))
		default:
			panic(fmt.Sprintf("unsupported cell %T", c))
		}
	}
	return out
}

func header() []parser.Cell {
	return row("البند", "القيمة")
}

func TestImportRowsExample(t *testing.T) {
	res := ImportRows([][]parser.Cell{
		header(),
		row("اجمالى الاصول", "1,250.50"),
	}, tables[models.BalanceSheet])

	if got := res.Snapshot.Static[models.TotalAssets]; got != models.NewAmount(1250.5) {
		t.Errorf("totalAssets = %+v, want 1250.5", got)
	}
	if len(res.Snapshot.Custom) != 0 {
		t.Errorf("expected no custom fields, got %+v", res.Snapshot.Custom)
	}
	for _, key := range tables[models.BalanceSheet].Keys() {
		if _, ok := res.Snapshot.Static[key]; !ok {
			t.Errorf("key %s missing from snapshot", key)
		}
	}
	if res.Stats.Rows != 1 || res.Stats.Matched != 1 {
		t.Errorf("unexpected stats %+v", res.Stats)
	}
}

func TestImportRowsDiscards(t *testing.T) {
	res := ImportRows([][]parser.Cell{
		row("اجمالي الأصول", 999), // header row is never read
		row("31/12/2023", 500),
		row("1-1-23", 500),
		row("الحساب", 10),
		row("البند", "القيمة"),
		row("المخزون"),
		row(nil, "المخزون", nil, nil),
		row("  ", 100),
		row("المخزون", "n/a"),
		row("المخزون", "1e999"),
		row(nil, nil),
		row(nil, "المخزون", "", 75),
	}, tables[models.BalanceSheet])

	want := map[string]int{
		ReasonDate:       2,
		ReasonHeader:     2,
		ReasonFewerCells: 4,
		ReasonUnparsable: 2,
	}
	for reason, n := range want {
		if res.Stats.Discarded[reason] != n {
			t.Errorf("discarded[%s] = %d, want %d (all: %v)", reason, res.Stats.Discarded[reason], n, res.Stats.Discarded)
		}
	}
	if res.Stats.Rows != 11 {
		t.Errorf("expected 11 body rows, got %d", res.Stats.Rows)
	}
	if got := res.Snapshot.Static[models.Inventory]; got != models.NewAmount(75) {
		t.Errorf("inventory = %+v, want 75 from the gapped row", got)
	}
	if res.Snapshot.Static[models.TotalAssets].Valid {
		t.Error("header row must not be imported")
	}
}

func TestImportRowsCustomAndValues(t *testing.T) {
	res := ImportRows([][]parser.Cell{
		header(),
		row("كتاب", 10),                  // distance 3 from every variant
		row("صافى المبيعات", -2000),       // absolute value
		row("تكلفه المبيعات", "600 ج.م"), // numeric prefix
		row("صافي المبيعات", 2500),        // last assignment wins
		row("مصروفات أخرى", "0"),
	}, tables[models.IncomeStatement])

	static := res.Snapshot.Static
	if static[models.NetSell] != models.NewAmount(2500) {
		t.Errorf("netSell = %+v, want 2500", static[models.NetSell])
	}
	if static[models.CostSales] != models.NewAmount(600) {
		t.Errorf("costSales = %+v, want 600", static[models.CostSales])
	}

	want := []models.CustomField{
		{Label: "كتاب", Value: models.NewAmount(10)},
		{Label: "مصروفات أخرى", Value: models.NewAmount(0)},
	}
	if len(res.Snapshot.Custom) != len(want) {
		t.Fatalf("custom = %+v, want %+v", res.Snapshot.Custom, want)
	}
	for i := range want {
		if res.Snapshot.Custom[i] != want[i] {
			t.Errorf("custom[%d] = %+v, want %+v", i, res.Snapshot.Custom[i], want[i])
		}
	}
	if res.Stats.Matched != 3 || res.Stats.Custom != 2 || res.Stats.Kept() != 5 {
		t.Errorf("unexpected stats %+v", res.Stats)
	}
}

func TestImportRowsEmpty(t *testing.T) {
	for _, rows := range [][][]parser.Cell{nil, {header()}} {
		res := ImportRows(rows, tables[models.CashFlow])
		if len(res.Snapshot.Static) != len(tables[models.CashFlow].Fields) {
			t.Errorf("expected every key present, got %v", res.Snapshot.Static)
		}
		if res.Snapshot.Custom == nil || len(res.Snapshot.Custom) != 0 {
			t.Errorf("expected empty custom list, got %#v", res.Snapshot.Custom)
		}
	}
}

func TestCellNumber(t *testing.T) {
	tests := []struct {
		cell parser.Cell
		want float64
		ok   bool
	}{
		{parser.Number(12.5), 12.5, true},
		{parser.Text("1,250.50"), 1250.5, true},
		{parser.Text(" -3 "), -3, true},
		{parser.Text(".5"), 0.5, true},
		{parser.Text("2e3"), 2000, true},
		{parser.Text("abc"), 0, false},
		{parser.Text("Infinity"), 0, false},
		{parser.Text(""), 0, false},
	}
	for _, tt := range tests {
		got, ok := cellNumber(tt.cell)
		if ok != tt.ok || got != tt.want {
			t.Errorf("cellNumber(%q) = %v, %v; want %v, %v", tt.cell.String(), got, ok, tt.want, tt.ok)
		}
	}
}

type sheetsWorkbook struct {
	names []string
	rows  map[string][][]parser.Cell
}

func (w sheetsWorkbook) Sheets() []string { return w.names }

func (w sheetsWorkbook) Rows(sheet string) ([][]parser.Cell, error) {
	rows, ok := w.rows[sheet]
	if !ok {
		return nil, errors.New("corrupt sheet")
	}
	return rows, nil
}

type failingSaver struct {
	mu    sync.Mutex
	fail  map[models.Kind]bool
	saved map[models.Kind]models.Snapshot
}

func (s *failingSaver) Save(_ context.Context, kind models.Kind, _ string, _ int, snap models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[kind] {
		return errors.New("disk full")
	}
	if s.saved == nil {
		s.saved = make(map[models.Kind]models.Snapshot)
	}
	s.saved[kind] = snap
	return nil
}

func TestImportWorkbook(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	reg := metrics.NewRegistry()
	imp := New(tables, mem, log.Default(), reg)

	wb := sheetsWorkbook{
		names: []string{"قائمة المركز المالي", "ملاحظات", "قائمه الدخل", "قائمة التدفقات النقدية", "قائمة الدخل"},
		rows: map[string][][]parser.Cell{
			"قائمة المركز المالي": {header(), row("اجمالى الاصول", 1000), row("31/12/2023", 1)},
			"ملاحظات":             {header()},
			"قائمه الدخل":         {header(), row("صافي المبيعات", 2000), row("بند غريب جدا", 3)},
			"قائمة الدخل":         {header(), row("صافي المبيعات", 1)},
			// cash flow sheet listed but unreadable
		},
	}

	results, err := imp.ImportWorkbook(ctx, wb, Target{Company: "Acme", Year: 2023})
	if err != nil {
		t.Fatalf("ImportWorkbook failed: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}

	if !results[0].Saved() || results[0].Kind != models.BalanceSheet {
		t.Errorf("balance sheet not imported: %+v", results[0])
	}
	if !errors.Is(results[1].Err, ErrUnrecognizedSheet) || results[1].Recognized {
		t.Errorf("expected notes sheet to be unrecognised, got %+v", results[1])
	}
	if !results[2].Saved() || results[2].Kind != models.IncomeStatement {
		t.Errorf("income statement not recognised through normalisation: %+v", results[2])
	}
	if results[3].Saved() || results[3].Err == nil {
		t.Errorf("expected unreadable cash flow sheet to fail, got %+v", results[3])
	}
	if !errors.Is(results[4].Err, ErrDuplicateSheet) {
		t.Errorf("expected duplicate income sheet to be skipped, got %+v", results[4])
	}

	bs, err := mem.Fetch(ctx, models.BalanceSheet, "Acme", 2023)
	if err != nil {
		t.Fatal(err)
	}
	if bs.Static[models.TotalAssets] != models.NewAmount(1000) {
		t.Errorf("unexpected stored balance sheet %+v", bs.Static)
	}
	is, err := mem.Fetch(ctx, models.IncomeStatement, "Acme", 2023)
	if err != nil {
		t.Fatal(err)
	}
	if is.Static[models.NetSell] != models.NewAmount(2000) || len(is.Custom) != 1 {
		t.Errorf("unexpected stored income statement %+v", is)
	}
	if _, err := mem.Fetch(ctx, models.CashFlow, "Acme", 2023); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cash flow should not be stored, got %v", err)
	}

	if got := testutil.ToFloat64(reg.SheetsSkipped.WithLabelValues("unrecognized")); got != 1 {
		t.Errorf("sheets skipped (unrecognized) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(reg.RowsDiscarded.WithLabelValues(ReasonDate)); got != 1 {
		t.Errorf("rows discarded (date) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(reg.CustomFields.WithLabelValues(models.IncomeStatement.String())); got != 1 {
		t.Errorf("custom fields = %v, want 1", got)
	}

	data, err := json.Marshal(results[1])
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"kind"`) || !strings.Contains(string(data), `"saved":false`) {
		t.Errorf("unexpected JSON for unrecognised sheet: %s", data)
	}
}

func TestImportWorkbookNoStatements(t *testing.T) {
	imp := New(tables, store.NewMemory(), log.Default(), nil)
	wb := sheetsWorkbook{names: []string{"Sheet1"}, rows: map[string][][]parser.Cell{"Sheet1": {header()}}}

	results, err := imp.ImportWorkbook(context.Background(), wb, Target{Company: "Acme", Year: 2023})
	if !errors.Is(err, ErrNoStatements) {
		t.Errorf("expected ErrNoStatements, got %v", err)
	}
	if len(results) != 1 || !errors.Is(results[0].Err, ErrUnrecognizedSheet) {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestImportWorkbookSaveFailure(t *testing.T) {
	saver := &failingSaver{fail: map[models.Kind]bool{models.CashFlow: true}}
	imp := New(tables, saver, log.Default(), nil)
	wb := sheetsWorkbook{
		names: []string{"الميزانية", "قائمة التدفقات النقدية"},
		rows: map[string][][]parser.Cell{
			"الميزانية":              {header(), row("المخزون", 5)},
			"قائمة التدفقات النقدية": {header(), row("النقدية وما في حكمها", 5)},
		},
	}

	results, err := imp.ImportWorkbook(context.Background(), wb, Target{Company: "Acme", Year: 2023})
	if err == nil {
		t.Fatal("expected the store failure to be returned")
	}
	var se *SaveError
	if !errors.As(err, &se) || se.Kind != models.CashFlow {
		t.Errorf("expected a cash flow SaveError, got %v", err)
	}
	if !results[0].Saved() {
		t.Errorf("balance sheet should still be saved: %+v", results[0])
	}
	if _, ok := saver.saved[models.BalanceSheet]; !ok {
		t.Error("balance sheet missing from saver")
	}
}

func TestImportWorkbookValidatesTarget(t *testing.T) {
	imp := New(tables, store.NewMemory(), log.Default(), nil)
	if _, err := imp.ImportWorkbook(context.Background(), sheetsWorkbook{}, Target{Year: 2023}); err == nil {
		t.Error("expected an error without a company")
	}
	if _, err := imp.ImportWorkbook(context.Background(), sheetsWorkbook{}, Target{Company: "Acme"}); err == nil {
		t.Error("expected an error without a year")
	}
}

func TestImportFile(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	imp := New(tables, mem, log.Default(), nil)
	wb := sheetsWorkbook{
		names: []string{"Sheet1", "Sheet2"},
		rows: map[string][][]parser.Cell{
			"Sheet1": {header(), row("صافي التدفقات النقدية التشغيلية", 160)},
			"Sheet2": {header(), row("صافي التدفقات النقدية التشغيلية", 1)},
		},
	}

	c := models.Comparison{Company: "Acme", BaseYear: 2022, ComparisonYear: 2023}
	res, err := imp.ImportFile(ctx, wb, models.CashFlow, TargetFor(c, models.ModeComparison))
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if res.Sheet != "Sheet1" || res.Stats.Matched != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	got, err := mem.Fetch(ctx, models.CashFlow, "Acme", 2023)
	if err != nil {
		t.Fatal(err)
	}
	if got.Static[models.NetOperatingCashFlow] != models.NewAmount(160) {
		t.Errorf("unexpected stored cash flow %+v", got.Static)
	}
}

func TestImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	want := map[models.Kind]models.Snapshot{}
	for i, kind := range models.Kinds {
		snap := models.NewSnapshot(tables[kind])
		for j, f := range tables[kind].Fields {
			if j%3 != 2 {
				snap.Static[f.Key] = models.NewAmount(float64(1000*(i+1) + j*7))
			}
		}
		snap.Custom = append(snap.Custom, models.CustomField{Label: "بند خاص بالشركة رقم واحد", Value: models.NewAmount(12.25)})
		want[kind] = snap
	}

	var buf bytes.Buffer
	if err := parser.WriteStatements(&buf, tables, want); err != nil {
		t.Fatal(err)
	}
	wb, err := parser.New(log.Default()).ProcessBytes(buf.Bytes(), "export.xlsx")
	if err != nil {
		t.Fatal(err)
	}

	mem := store.NewMemory()
	imp := New(tables, mem, log.Default(), nil)
	if _, err := imp.ImportWorkbook(ctx, wb, Target{Company: "Acme", Year: 2023}); err != nil {
		t.Fatalf("ImportWorkbook failed: %v", err)
	}

	for _, kind := range models.Kinds {
		got, err := mem.Fetch(ctx, kind, "Acme", 2023)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		for key, amount := range want[kind].Static {
			if got.Static[key] != amount {
				t.Errorf("%s %s = %+v, want %+v", kind, key, got.Static[key], amount)
			}
		}
		if len(got.Custom) != 1 || got.Custom[0] != want[kind].Custom[0] {
			t.Errorf("%s custom = %+v, want %+v", kind, got.Custom, want[kind].Custom)
		}
	}
}
