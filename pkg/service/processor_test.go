package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/mizan/pkg/importer"
	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/parser"
	"github.com/yurifrl/mizan/pkg/store"
)

func TestProcessDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"قائمة الدخل.csv": "البند,القيمة\nصافي المبيعات,900\n",
		"notes.csv":       "البند,القيمة\nشيء,1\n",
		"readme.txt":      "not a statement",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.csv"), 0o700); err != nil {
		t.Fatal(err)
	}

	logger := log.New(io.Discard)
	mem := store.NewMemory()
	imp := importer.New(models.DefaultTables(), mem, logger, nil)
	p := NewProcessor(parser.New(logger), imp, logger)

	target := importer.Target{Company: "Acme", Year: 2022}
	results, err := p.ProcessDirectory(context.Background(), dir, target)
	if err != nil {
		t.Fatalf("ProcessDirectory: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 spreadsheet files", len(results))
	}

	byName := map[string]FileResult{}
	for _, r := range results {
		byName[filepath.Base(r.File)] = r
	}
	if r := byName["notes.csv"]; !errors.Is(r.Err, importer.ErrNoStatements) {
		t.Errorf("notes.csv err = %v, want ErrNoStatements", r.Err)
	}
	if r := byName["قائمة الدخل.csv"]; r.Err != nil || len(r.Sheets) != 1 || !r.Sheets[0].Saved() {
		t.Errorf("income result = %+v", r)
	}

	snap, err := mem.Fetch(context.Background(), models.IncomeStatement, "Acme", 2022)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.Static[models.NetSell] != models.NewAmount(900) {
		t.Errorf("netSell = %+v, want 900", snap.Static[models.NetSell])
	}
}

func TestProcessDirectoryMissing(t *testing.T) {
	logger := log.New(io.Discard)
	imp := importer.New(models.DefaultTables(), store.NewMemory(), logger, nil)
	p := NewProcessor(parser.New(logger), imp, logger)
	if _, err := p.ProcessDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"), importer.Target{Company: "A", Year: 1}); err == nil {
		t.Error("expected error for missing directory")
	}
}
