package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// ErrUnknownFileType is returned for files that are not spreadsheets.
var ErrUnknownFileType = errors.New("unknown file type")

// ErrNoSheet is returned when a workbook has no sheet with the given name.
var ErrNoSheet = errors.New("no such sheet")

type FileType string

const (
	XLSX FileType = "xlsx"
	XLS  FileType = "xls"
	CSV  FileType = "csv"
)

// DefaultXLSCharset is used to decode legacy .xls strings.
const DefaultXLSCharset = "utf-8"

// Workbook is a read-only view of a spreadsheet file.
type Workbook interface {
	// Sheets returns the sheet names in workbook order.
	Sheets() []string
	// Rows returns every row of sheet, header included.
	Rows(sheet string) ([][]Cell, error)
}

type Parser struct {
	logger     *log.Logger
	xlsCharset string
}

func New(logger *log.Logger) *Parser {
	return &Parser{
		logger:     logger,
		xlsCharset: DefaultXLSCharset,
	}
}

// WithXLSCharset returns a copy of p decoding .xls files with charset.
func (p *Parser) WithXLSCharset(charset string) *Parser {
	cp := *p
	if charset != "" {
		cp.xlsCharset = charset
	}
	return &cp
}

// ProcessBytes opens data as a workbook, choosing the reader by the
// extension of filename.
func (p *Parser) ProcessBytes(data []byte, filename string) (Workbook, error) {
	fileType := detectType(filename)
	p.logger.Debug("detected file type", "type", fileType, "filename", filename)

	switch fileType {
	case XLSX:
		return p.readXLSX(data)
	case XLS:
		return p.readXLS(data)
	case CSV:
		name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		return p.readCSV(data, name)
	default:
		p.logger.Debug("unknown file type", "filename", filename)
		return nil, fmt.Errorf("%w: %s", ErrUnknownFileType, filename)
	}
}

// Supported reports whether filename has a spreadsheet extension.
func Supported(filename string) bool {
	return detectType(filename) != ""
}

func detectType(filename string) FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return XLSX
	case ".xls":
		return XLS
	case ".csv":
		return CSV
	}
	return ""
}

// sheetRows is a workbook whose sheets were read eagerly.
type sheetRows struct {
	names []string
	rows  map[string][][]Cell
}

func (s *sheetRows) Sheets() []string {
	return s.names
}

func (s *sheetRows) Rows(sheet string) ([][]Cell, error) {
	rows, ok := s.rows[sheet]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSheet, sheet)
	}
	return rows, nil
}
