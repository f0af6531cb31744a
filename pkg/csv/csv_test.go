package csv

import (
	"bytes"
	"strings"
	"testing"

	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/ratio"
	"github.com/yurifrl/mizan/pkg/report"
)

func testReport() *report.Report {
	base := models.Fields{models.TotalAssets: models.NewAmount(1000), models.TotalDebits: models.NewAmount(400)}
	comp := models.Fields{models.TotalAssets: models.NewAmount(1000), models.TotalDebits: models.NewAmount(500)}
	return &report.Report{
		Company:        "Acme",
		BaseYear:       2022,
		ComparisonYear: 2023,
		Base:           ratio.Compute(base, nil, nil),
		Comparison:     ratio.Compute(comp, nil, nil),
	}
}

func TestCreate(t *testing.T) {
	out := Create(testReport(), Available)
	if !bytes.HasPrefix(out, bom) {
		t.Fatal("missing byte order mark")
	}

	lines := strings.Split(strings.TrimSpace(string(out[len(bom):])), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header plus one row: %q", len(lines), lines)
	}
	if lines[0] != "Ratio,Category,Label,2022,2023,Trend" {
		t.Errorf("header = %q", lines[0])
	}
	want := "ratio1,نسب المديونية,نسبة اجمالي الديون إلى اجمالي الأصول,40.0%,50.0%,up"
	if lines[1] != want {
		t.Errorf("row = %q, want %q", lines[1], want)
	}
}

func TestCreateAll(t *testing.T) {
	out := string(Create(testReport(), nil))
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if got, want := len(lines), len(ratio.Definitions())+1; got != want {
		t.Fatalf("got %d lines, want %d", got, want)
	}
	if !strings.Contains(out, "ratio24,نسب النشاط,متوسط فتره التخزين,-,-,unknown") {
		t.Error("missing ratios should render as -")
	}
}
