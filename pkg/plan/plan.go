package plan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yurifrl/mizan/pkg/importer"
	"github.com/yurifrl/mizan/pkg/models"
)

// Plan is a batch of statement files to import, read from a YAML manifest.
//
//	comparison:
//	  company: Acme
//	  base_year: 2022
//	  comparison_year: 2023
//	statements:
//	  - file: acme-2022.xlsx
//	    mode: base
//	  - file: income-2023.csv
//	    kind: income-statement
//	    year: 2023
type Plan struct {
	// Comparison is optional. When set it supplies the default company and,
	// through mode, the year of each statement, and is saved on apply.
	Comparison *models.Comparison `yaml:"comparison"`
	Statements []Statement        `yaml:"statements"`
}

type Statement struct {
	File    string      `yaml:"file"`
	Company string      `yaml:"company"`
	Year    int         `yaml:"year"`
	Mode    models.Mode `yaml:"mode"`
	// Kind imports the first sheet as that statement whatever its name.
	// Without it every recognised sheet of the workbook is imported.
	Kind string `yaml:"kind"`
}

// Target is the company and year the statement is saved under.
func (s Statement) Target() importer.Target {
	return importer.Target{Company: s.Company, Year: s.Year}
}

// StatementKind returns the kind named by s, and false when s names none.
func (s Statement) StatementKind() (models.Kind, bool, error) {
	if strings.TrimSpace(s.Kind) == "" {
		return 0, false, nil
	}
	kind, err := models.ParseKind(s.Kind)
	if err != nil {
		return 0, false, err
	}
	return kind, true, nil
}

func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes a manifest, resolving relative file paths against dir and
// filling company and year from the comparison where a statement omits them.
func Parse(data []byte, dir string) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if len(p.Statements) == 0 {
		return nil, errors.New("plan has no statements")
	}
	if p.Comparison != nil {
		p.Comparison.Company = strings.TrimSpace(p.Comparison.Company)
		if err := p.Comparison.Validate(); err != nil {
			return nil, fmt.Errorf("plan comparison: %w", err)
		}
	}

	for i := range p.Statements {
		st := &p.Statements[i]
		if st.File == "" {
			return nil, fmt.Errorf("statement %d: file is required", i+1)
		}
		if !filepath.IsAbs(st.File) {
			st.File = filepath.Join(dir, st.File)
		}
		st.Company = strings.TrimSpace(st.Company)
		if p.Comparison != nil {
			if st.Company == "" {
				st.Company = p.Comparison.Company
			}
			if st.Year == 0 {
				st.Year = p.Comparison.YearFor(st.Mode)
			}
		}
		if st.Company == "" || st.Year <= 0 {
			return nil, fmt.Errorf("statement %d (%s): company and year are required", i+1, filepath.Base(st.File))
		}
		if _, _, err := st.StatementKind(); err != nil {
			return nil, fmt.Errorf("statement %d (%s): %w", i+1, filepath.Base(st.File), err)
		}
	}
	return &p, nil
}

func (p *Plan) Print(w io.Writer) {
	if c := p.Comparison; c != nil {
		fmt.Fprintf(w, "Comparison: %s %d -> %d\n", c.Company, c.BaseYear, c.ComparisonYear)
	}
	for i, st := range p.Statements {
		kind := st.Kind
		if kind == "" {
			kind = "workbook"
		}
		fmt.Fprintf(w, "[%d] file=%s company=%s year=%d kind=%s\n", i+1, filepath.Base(st.File), st.Company, st.Year, kind)
	}
}
