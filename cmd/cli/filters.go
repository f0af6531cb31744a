package main

import (
	"fmt"
	"strings"

	"github.com/yurifrl/mizan/pkg/csv"
	"github.com/yurifrl/mizan/pkg/ratio"
	"github.com/yurifrl/mizan/pkg/report"
)

type filters struct {
	all      bool
	category string
	ratios   []string
}

// toFilterFunc keeps the report rows selected on the command line. By
// default rows missing in both years are hidden.
func (f *filters) toFilterFunc() (csv.FilterFunc, error) {
	var category ratio.Category
	if f.category != "" {
		category = ratio.Category(strings.ToLower(f.category))
		known := false
		for _, c := range ratio.Categories() {
			if c == category {
				known = true
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown category %q", f.category)
		}
	}

	var ids map[ratio.ID]bool
	if len(f.ratios) > 0 {
		ids = make(map[ratio.ID]bool, len(f.ratios))
		for _, s := range f.ratios {
			id, err := ratio.ParseID(strings.TrimSpace(s))
			if err != nil {
				return nil, err
			}
			ids[id] = true
		}
	}

	return func(r report.Row) bool {
		if !f.all && !r.Available() {
			return false
		}
		if category != "" && r.Category != category {
			return false
		}
		if ids != nil && !ids[r.ID] {
			return false
		}
		return true
	}, nil
}
