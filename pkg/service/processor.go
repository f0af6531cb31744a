package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/mizan/pkg/importer"
	"github.com/yurifrl/mizan/pkg/parser"
)

// Processor imports statement files from disk.
type Processor struct {
	parser   *parser.Parser
	importer *importer.Importer
	logger   *log.Logger
}

func NewProcessor(p *parser.Parser, imp *importer.Importer, logger *log.Logger) *Processor {
	return &Processor{
		parser:   p,
		importer: imp,
		logger:   logger,
	}
}

// FileResult is the outcome of importing one file.
type FileResult struct {
	File   string                 `json:"file"`
	Sheets []importer.SheetResult `json:"sheets"`
	Err    error                  `json:"-"`
}

// ProcessDirectory imports every spreadsheet directly inside dir for target.
// A file that fails is logged and reported in its FileResult; the others
// still import.
func (p *Processor) ProcessDirectory(ctx context.Context, dir string, target importer.Target) ([]FileResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading directory: %w", err)
	}

	var results []FileResult
	for _, entry := range entries {
		if entry.IsDir() || !parser.Supported(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		path := filepath.Join(dir, entry.Name())
		res := p.ProcessFile(ctx, path, target)
		if res.Err != nil {
			p.logger.Error("failed to process file", "file", entry.Name(), "error", res.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

// ProcessFile imports every recognised sheet of the file at path.
func (p *Processor) ProcessFile(ctx context.Context, path string, target importer.Target) FileResult {
	res := FileResult{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = fmt.Errorf("error reading file: %w", err)
		return res
	}
	wb, err := p.parser.ProcessBytes(data, path)
	if err != nil {
		res.Err = fmt.Errorf("error parsing file: %w", err)
		return res
	}

	p.logger.Info("processing file", "path", path, "sheets", len(wb.Sheets()))
	res.Sheets, res.Err = p.importer.ImportWorkbook(ctx, wb, target)
	if res.Err == nil {
		p.logger.Info("processed file successfully", "path", path)
	}
	return res
}
