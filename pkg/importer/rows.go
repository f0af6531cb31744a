package importer

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/yurifrl/mizan/pkg/matcher"
	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/parser"
)

// Reasons a row is discarded.
const (
	ReasonFewerCells = "fewer_cells"
	ReasonHeader     = "header"
	ReasonDate       = "date"
	ReasonUnparsable = "unparsable"
)

var (
	dateLabel = regexp.MustCompile(`^\s*\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\s*$`)
	// leadingNumber accepts the longest numeric prefix, so "1250 ج.م" reads
	// as 1250.
	leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// headerLabels are column titles repeated inside statement bodies.
var headerLabels = map[string]bool{
	"البند":  true,
	"الحساب": true,
}

// Stats describes what happened to the rows of one sheet.
type Stats struct {
	Rows      int            `json:"rows"`
	Matched   int            `json:"matched"`
	Custom    int            `json:"custom"`
	Discarded map[string]int `json:"discarded,omitempty"`
}

// Kept is the number of rows that produced a value.
func (s Stats) Kept() int {
	return s.Matched + s.Custom
}

func (s *Stats) discard(reason string) {
	if s.Discarded == nil {
		s.Discarded = make(map[string]int)
	}
	s.Discarded[reason]++
}

// Result is the snapshot built from one sheet and how it was built.
type Result struct {
	Snapshot models.Snapshot `json:"snapshot"`
	Stats    Stats           `json:"stats"`
}

// ImportRows turns the rows of one statement sheet into a snapshot of table.
// Row 0 is the header and is skipped. Every table key is present in the
// result; keys no row matched stay empty. Rows that match no key become
// custom fields in sheet order.
func ImportRows(rows [][]parser.Cell, table models.Table) Result {
	return importRows(rows, table, matcher.New(table))
}

func importRows(rows [][]parser.Cell, table models.Table, m *matcher.Matcher) Result {
	res := Result{Snapshot: models.NewSnapshot(table)}
	if len(rows) == 0 {
		return res
	}

	for _, row := range rows[1:] {
		res.Stats.Rows++

		filled := make([]parser.Cell, 0, len(row))
		for _, c := range row {
			if !c.IsBlank() {
				filled = append(filled, c)
			}
		}
		if len(filled) < 2 {
			res.Stats.discard(ReasonFewerCells)
			continue
		}

		label := strings.TrimSpace(filled[0].String())
		if headerLabels[label] {
			res.Stats.discard(ReasonHeader)
			continue
		}
		if dateLabel.MatchString(label) {
			res.Stats.discard(ReasonDate)
			continue
		}

		value, ok := cellNumber(filled[1])
		if !ok {
			res.Stats.discard(ReasonUnparsable)
			continue
		}
		amount := models.NewAmount(math.Abs(value))

		if key, ok := m.Match(label); ok {
			res.Snapshot.Static[key] = amount
			res.Stats.Matched++
			continue
		}
		res.Snapshot.Custom = append(res.Snapshot.Custom, models.CustomField{Label: label, Value: amount})
		res.Stats.Custom++
	}
	return res
}

// cellNumber reads a finite number from a cell. Text has its thousands
// separators removed and is read up to the first non-numeric character.
func cellNumber(c parser.Cell) (float64, bool) {
	if v, ok := c.Float(); ok {
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	}

	s := strings.TrimSpace(strings.ReplaceAll(c.String(), ",", ""))
	num := leadingNumber.FindString(s)
	if num == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
