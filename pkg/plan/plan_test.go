package plan

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yurifrl/mizan/pkg/models"
)

func TestParse(t *testing.T) {
	data := []byte(`
comparison:
  company: " Acme "
  base_year: 2022
  comparison_year: 2023
statements:
  - file: acme-2022.xlsx
  - file: acme-2023.xlsx
    mode: comp
  - file: /abs/income.csv
    kind: income-statement
    company: Other
    year: 2020
`)
	p, err := Parse(data, "/plans")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		file    string
		company string
		year    int
	}{
		{"/plans/acme-2022.xlsx", "Acme", 2022},
		{"/plans/acme-2023.xlsx", "Acme", 2023},
		{"/abs/income.csv", "Other", 2020},
	}
	for i, tt := range tests {
		st := p.Statements[i]
		if st.File != tt.file || st.Company != tt.company || st.Year != tt.year {
			t.Errorf("statement %d = %+v, want %s %s %d", i, st, tt.file, tt.company, tt.year)
		}
	}

	kind, ok, err := p.Statements[2].StatementKind()
	if err != nil || !ok || kind != models.IncomeStatement {
		t.Errorf("StatementKind = %v, %v, %v", kind, ok, err)
	}
	if _, ok, _ := p.Statements[0].StatementKind(); ok {
		t.Error("workbook statement should have no kind")
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          `statements: []`,
		"no file":        "statements:\n  - company: Acme\n    year: 2022\n",
		"no target":      "statements:\n  - file: a.xlsx\n",
		"bad kind":       "statements:\n  - file: a.xlsx\n    company: Acme\n    year: 2022\n    kind: payroll\n",
		"bad comparison": "comparison:\n  company: Acme\nstatements:\n  - file: a.xlsx\n",
		"bad yaml":       "statements: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(data), "."); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadAndPrint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	data := "statements:\n  - file: a.xlsx\n    company: Acme\n    year: 2022\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(dir, "a.xlsx"); p.Statements[0].File != want {
		t.Errorf("File = %s, want %s", p.Statements[0].File, want)
	}

	var buf bytes.Buffer
	p.Print(&buf)
	if got := buf.String(); !strings.Contains(got, "[1] file=a.xlsx company=Acme year=2022 kind=workbook") {
		t.Errorf("Print = %q", got)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
