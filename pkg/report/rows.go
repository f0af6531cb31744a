package report

import (
	"fmt"
	"math"

	"github.com/yurifrl/mizan/pkg/compare"
	"github.com/yurifrl/mizan/pkg/ratio"
)

// Missing is shown in place of an unavailable ratio.
const Missing = "-"

// Row pairs one ratio across the two years.
type Row struct {
	ID         ratio.ID       `json:"id"`
	Category   ratio.Category `json:"category"`
	Label      string         `json:"label"`
	Unit       ratio.Unit     `json:"unit"`
	Base       *ratio.Result  `json:"base"`
	Comparison *ratio.Result  `json:"comparison"`
	Trend      compare.Trend  `json:"trend"`
}

// Available reports whether either year has a value.
func (r Row) Available() bool {
	return r.Base != nil || r.Comparison != nil
}

func (r Row) BaseText() string {
	return Format(r.Category, r.Unit, r.Base)
}

func (r Row) ComparisonText() string {
	return Format(r.Category, r.Unit, r.Comparison)
}

// Section is the rows of one ratio category.
type Section struct {
	Category ratio.Category `json:"category"`
	Title    string         `json:"title"`
	Rows     []Row          `json:"rows"`
}

// Rows returns every defined ratio in ID order.
func (r *Report) Rows() []Row {
	defs := ratio.Definitions()
	rows := make([]Row, 0, len(defs))
	for _, d := range defs {
		rows = append(rows, r.row(d))
	}
	return rows
}

// Sections groups the rows by category in report order. With onlyAvailable
// set, ratios missing in both years are left out, as are empty sections.
func (r *Report) Sections(onlyAvailable bool) []Section {
	var out []Section
	for _, c := range ratio.Categories() {
		sec := Section{Category: c, Title: c.Title()}
		for _, d := range ratio.InCategory(c) {
			row := r.row(d)
			if onlyAvailable && !row.Available() {
				continue
			}
			sec.Rows = append(sec.Rows, row)
		}
		if len(sec.Rows) > 0 || !onlyAvailable {
			out = append(out, sec)
		}
	}
	return out
}

func (r *Report) row(d ratio.Definition) Row {
	base, comp := r.Base.Get(d.ID), r.Comparison.Get(d.ID)
	return Row{
		ID:         d.ID,
		Category:   d.Category,
		Label:      d.Label,
		Unit:       d.Unit,
		Base:       base,
		Comparison: comp,
		Trend:      compare.Of(base, comp),
	}
}

// Format renders a ratio value the way statements are read: percentages with
// one decimal, periods in whole days, liquidity multiples with one decimal and
// other multiples with two.
func Format(c ratio.Category, u ratio.Unit, res *ratio.Result) string {
	if res == nil || math.IsNaN(res.Value) || math.IsInf(res.Value, 0) {
		return Missing
	}
	switch u {
	case ratio.Percent:
		return fmt.Sprintf("%.1f%%", res.Value*100)
	case ratio.Days:
		return fmt.Sprintf("%.0f يوم", res.Value)
	}
	if c == ratio.Liquidity {
		return fmt.Sprintf("%.1f", res.Value)
	}
	return fmt.Sprintf("%.2f", res.Value)
}
