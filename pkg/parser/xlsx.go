package parser

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/yurifrl/mizan/pkg/models"
)

// Header cells written above exported statements.
const (
	HeaderLabel = "البند"
	HeaderValue = "القيمة"
)

type xlsxWorkbook struct {
	mu    sync.Mutex
	file  *excelize.File
	names []string
}

func (p *Parser) readXLSX(data []byte) (Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error opening workbook: %w", err)
	}
	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, fmt.Errorf("no sheets found in workbook")
	}
	p.logger.Debug("opened xlsx workbook", "sheets", names)
	return &xlsxWorkbook{file: f, names: names}, nil
}

func (w *xlsxWorkbook) Sheets() []string {
	return w.names
}

func (w *xlsxWorkbook) Rows(sheet string) ([][]Cell, error) {
	if !slices.Contains(w.names, sheet) {
		return nil, fmt.Errorf("%w: %q", ErrNoSheet, sheet)
	}

	w.mu.Lock()
	raw, err := w.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	w.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	rows := make([][]Cell, len(raw))
	for i, r := range raw {
		rows[i] = textRow(r)
	}
	return rows, nil
}

// SheetName is the sheet a statement of table is exported under. It is one of
// the names the importer recognises for that kind.
func SheetName(table models.Table) string {
	if len(table.Sheets) > 0 {
		return table.Sheets[0]
	}
	if table.Title != "" {
		return table.Title
	}
	return table.Kind.String()
}

// WriteStatement writes snap as a single-sheet workbook of label/value rows:
// the canonical fields in table order, then the custom fields.
func WriteStatement(w io.Writer, table models.Table, snap models.Snapshot) error {
	return WriteStatements(w, models.Tables{table.Kind: table}, map[models.Kind]models.Snapshot{table.Kind: snap})
}

// WriteStatements writes one sheet per snapshot, in statement kind order.
func WriteStatements(w io.Writer, tables models.Tables, snaps map[models.Kind]models.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for _, kind := range models.Kinds {
		snap, ok := snaps[kind]
		if !ok {
			continue
		}
		table, ok := tables[kind]
		if !ok {
			return fmt.Errorf("no field table for %s", kind)
		}

		name := SheetName(table)
		if first {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("failed to name sheet: %w", err)
			}
			first = false
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet: %w", err)
		}
		if err := writeSheet(f, name, table, snap); err != nil {
			return err
		}
	}
	if first {
		return fmt.Errorf("nothing to export")
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, table models.Table, snap models.Snapshot) error {
	rtl := true
	if err := f.SetSheetView(sheet, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
		return fmt.Errorf("failed to set sheet view: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", "A", 40); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	rows := [][]any{{HeaderLabel, HeaderValue}}
	for _, field := range table.Fields {
		rows = append(rows, []any{field.Label, cellValue(snap.Static[field.Key])})
	}
	for _, c := range snap.Custom {
		rows = append(rows, []any{c.Label, cellValue(c.Value)})
	}

	for i, row := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, axis, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	return nil
}

func cellValue(a models.Amount) any {
	if !a.Valid {
		return ""
	}
	return a.Value
}
