package csv

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/yurifrl/mizan/pkg/report"
)

// bom makes spreadsheet programs read the Arabic labels as UTF-8.
var bom = []byte{0xEF, 0xBB, 0xBF}

type FilterFunc func(report.Row) bool

// Available keeps rows with a value in at least one year.
func Available(r report.Row) bool {
	return r.Available()
}

// Create renders the report as one CSV line per ratio, values formatted the
// way the report shows them.
func Create(r *report.Report, filter FilterFunc) []byte {
	var buf bytes.Buffer
	buf.Write(bom)

	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Ratio", "Category", "Label", strconv.Itoa(r.BaseYear), strconv.Itoa(r.ComparisonYear), "Trend"})
	for _, row := range r.Rows() {
		if filter != nil && !filter(row) {
			continue
		}
		_ = w.Write([]string{
			row.ID.String(),
			row.Category.Title(),
			row.Label,
			row.BaseText(),
			row.ComparisonText(),
			string(row.Trend),
		})
	}
	w.Flush()
	return buf.Bytes()
}
