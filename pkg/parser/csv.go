package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readCSV exposes a CSV file as a workbook with one sheet called name.
func (p *Parser) readCSV(data []byte, name string) (Workbook, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1 // rows are ragged; the importer filters blanks
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv is empty")
	}

	rows := make([][]Cell, len(records))
	for i, rec := range records {
		rows[i] = textRow(rec)
	}

	p.logger.Debug("read csv sheet", "sheet", name, "rows", len(rows))
	return &sheetRows{
		names: []string{name},
		rows:  map[string][][]Cell{name: rows},
	}, nil
}
