package matcher

import (
	"testing"

	"github.com/yurifrl/mizan/pkg/models"
)

func TestMatchDefaultTables(t *testing.T) {
	tables := models.DefaultTables()

	tests := []struct {
		kind  models.Kind
		label string
		want  models.Key
		ok    bool
	}{
		{models.BalanceSheet, "اجمالى الاصول", models.TotalAssets, true},
		{models.BalanceSheet, "إجمالي الأصول", models.TotalAssets, true},
		{models.BalanceSheet, "المخزون", models.Inventory, true},
		{models.BalanceSheet, "الالتزامات المتداوله", models.CurrentDebits, true},
		{models.BalanceSheet, "اجمالي الالتزامات", models.TotalDebits, true},
		{models.IncomeStatement, "صافى المبيعات", models.NetSell, true},
		{models.IncomeStatement, "المبيعات الآجلة", models.FutureNetSales, true},
		{models.IncomeStatement, "مجمل الربح", models.TotalProfit, true},
		{models.IncomeStatement, "المصروفات الثابتة", models.FixedCommitments, true},
		{models.CashFlow, "التدفقات النقدية التشغيلية", models.NetOperatingCashFlow, true},
		{models.BalanceSheet, "مصروفات مدفوعة مقدما", "", false},
		{models.BalanceSheet, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := Match(tt.label, tables[tt.kind])
			if ok != tt.ok || got != tt.want {
				t.Errorf("Match(%q) = (%q, %v), want (%q, %v)", tt.label, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMatchIsReflexive(t *testing.T) {
	for _, table := range models.DefaultTables() {
		m := New(table)
		for _, f := range table.Fields {
			for _, v := range f.Variants {
				key, d, ok := m.Best(v)
				if !ok || d != 0 {
					t.Errorf("%s: variant %q has distance %d to its closest key", table.Kind, v, d)
					continue
				}
				if key != f.Key {
					t.Errorf("%s: variant %q matched %q, want %q", table.Kind, v, key, f.Key)
				}
			}
		}
	}
}

func TestMatchThreshold(t *testing.T) {
	table := models.Table{Fields: []models.Field{
		{Key: "k", Variants: []string{"كتاب"}},
	}}

	tests := []struct {
		label string
		ok    bool
	}{
		{"كتاب", true},     // 0
		{"كتابي", true},    // 1
		{"كتابين", true},   // 2
		{"الكتابين", false}, // 4
		{"كتابهما", false},  // 3
	}
	for _, tt := range tests {
		if _, ok := Match(tt.label, table); ok != tt.ok {
			_, d, _ := New(table).Best(tt.label)
			t.Errorf("Match(%q) ok = %v (distance %d), want %v", tt.label, ok, d, tt.ok)
		}
	}
}

func TestMatchTieBreakFollowsEnumerationOrder(t *testing.T) {
	// "بات" is one substitution away from both "باب" and "بيت".
	first := models.Table{Fields: []models.Field{
		{Key: "door", Variants: []string{"باب"}},
		{Key: "house", Variants: []string{"بيت"}},
	}}
	second := models.Table{Fields: []models.Field{
		{Key: "house", Variants: []string{"بيت"}},
		{Key: "door", Variants: []string{"باب"}},
	}}

	if got, _ := Match("بات", first); got != "door" {
		t.Errorf("expected first enumerated key door, got %q", got)
	}
	if got, _ := Match("بات", second); got != "house" {
		t.Errorf("expected first enumerated key house, got %q", got)
	}
}

func TestMatchEmptyTable(t *testing.T) {
	if _, ok := Match("اي شيء", models.Table{}); ok {
		t.Error("expected no match against an empty table")
	}
}
