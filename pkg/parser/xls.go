package parser

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
)

func (p *Parser) readXLS(data []byte) (Workbook, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), p.xlsCharset)
	if err != nil {
		return nil, fmt.Errorf("error creating workbook: %w", err)
	}

	wb := &sheetRows{rows: make(map[string][][]Cell)}
	for i := 0; i < workbook.NumSheets(); i++ {
		sheet := workbook.GetSheet(i)
		if sheet == nil {
			continue
		}

		var rows [][]Cell
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			raw := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				raw = append(raw, row.Col(c))
			}
			rows = append(rows, textRow(raw))
		}

		p.logger.Debug("read xls sheet", "sheet", sheet.Name, "rows", len(rows))
		wb.names = append(wb.names, sheet.Name)
		wb.rows[sheet.Name] = rows
	}

	if len(wb.names) == 0 {
		return nil, fmt.Errorf("no sheets found in workbook")
	}
	return wb, nil
}
