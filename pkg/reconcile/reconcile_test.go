package reconcile

import (
	"testing"

	"github.com/yurifrl/mizan/pkg/models"
)

func TestBuild(t *testing.T) {
	table := models.DefaultTables()[models.BalanceSheet]

	stored := models.NewSnapshot(table)
	stored.Static[models.TotalAssets] = models.NewAmount(1000)
	stored.Static[models.TotalDebits] = models.NewAmount(400)
	stored.Static[models.Inventory] = models.NewAmount(50)
	stored.Custom = []models.CustomField{
		{Label: "بند قديم", Value: models.NewAmount(1)},
		{Label: "ارصده اخرى", Value: models.NewAmount(9)},
	}

	incoming := models.NewSnapshot(table)
	incoming.Static[models.TotalAssets] = models.NewAmount(1000)
	incoming.Static[models.TotalDebits] = models.NewAmount(450)
	incoming.Static[models.CurrentAssets] = models.NewAmount(300)
	incoming.Custom = []models.CustomField{
		{Label: "أرصدة اخرى", Value: models.NewAmount(9)},
		{Label: "بند جديد", Value: models.NewAmount(2)},
	}

	r := Build(table, &stored, incoming)
	if r.New {
		t.Error("report should not be new")
	}

	want := []struct {
		key    models.Key
		label  string
		status Status
	}{
		{models.TotalAssets, "", Unchanged},
		{models.TotalDebits, "", Changed},
		{models.CurrentAssets, "", Added},
		{models.Inventory, "", Removed},
		{"", "بند قديم", Removed},
		{"", "ارصده اخرى", Unchanged},
		{"", "بند جديد", Added},
	}
	if len(r.Items) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(r.Items), len(want), r.Items)
	}
	for i, w := range want {
		e := r.Items[i]
		if e.Key != w.key || e.Status != w.status {
			t.Errorf("entry %d = %s/%s %s, want %s %s", i, e.Key, e.Label, e.Status, w.key, w.status)
		}
		if w.label != "" && e.Label != w.label {
			t.Errorf("entry %d label = %q, want %q", i, e.Label, w.label)
		}
		if e.Custom() != (w.key == "") {
			t.Errorf("entry %d Custom() = %v", i, e.Custom())
		}
	}

	if got := r.Count(Added); got != 2 {
		t.Errorf("Count(Added) = %d, want 2", got)
	}
	if !r.HasChanges() {
		t.Error("expected changes")
	}
}

func TestBuildNew(t *testing.T) {
	table := models.DefaultTables()[models.CashFlow]
	incoming := models.NewSnapshot(table)
	incoming.Static[models.NetOperatingCashFlow] = models.NewAmount(-20)

	r := Build(table, nil, incoming)
	if !r.New {
		t.Error("expected new statement")
	}
	if len(r.Items) != 1 || r.Items[0].Status != Added {
		t.Errorf("Items = %+v, want one added entry", r.Items)
	}
}

func TestBuildIdentical(t *testing.T) {
	table := models.DefaultTables()[models.IncomeStatement]
	snap := models.NewSnapshot(table)
	snap.Static[models.NetSell] = models.NewAmount(0.1 + 0.2)
	other := models.NewSnapshot(table)
	other.Static[models.NetSell] = models.NewAmount(0.3)

	r := Build(table, &snap, other)
	if r.HasChanges() {
		t.Errorf("expected no changes, got %+v", r.Items)
	}
	if Changed.String() != "changed" || Status(42).String() != "unchanged" {
		t.Error("unexpected status names")
	}
}
