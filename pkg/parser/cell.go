package parser

import (
	"strconv"
	"strings"
)

type cellKind uint8

const (
	emptyCell cellKind = iota
	textCell
	numberCell
)

// Cell is a single spreadsheet value: text, a number, or empty.
type Cell struct {
	kind cellKind
	text string
	num  float64
}

// Text returns a text cell.
func Text(s string) Cell {
	return Cell{kind: textCell, text: s}
}

// Number returns a numeric cell.
func Number(v float64) Cell {
	return Cell{kind: numberCell, num: v}
}

// Empty returns an empty cell.
func Empty() Cell {
	return Cell{}
}

// IsBlank reports whether the cell is empty or holds only whitespace.
func (c Cell) IsBlank() bool {
	switch c.kind {
	case textCell:
		return strings.TrimSpace(c.text) == ""
	case numberCell:
		return false
	}
	return true
}

// Float returns the value of a numeric cell.
func (c Cell) Float() (float64, bool) {
	if c.kind != numberCell {
		return 0, false
	}
	return c.num, true
}

func (c Cell) String() string {
	switch c.kind {
	case textCell:
		return c.text
	case numberCell:
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	}
	return ""
}

// textRow converts raw strings into text cells, keeping empty strings empty.
func textRow(raw []string) []Cell {
	row := make([]Cell, len(raw))
	for i, s := range raw {
		if s != "" {
			row[i] = Text(s)
		}
	}
	return row
}
