// Package sheetsource adapts spreadsheets to the source contract.
//
// Workbooks (.xlsx) are read with excelize; the base names the worksheet
// (empty means the first sheet). Comma-separated files (.csv) have a single
// table and ignore the base. In both cases the first row is the header and
// column types are inferred from the cells below it.
package sheetsource

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/fedq/internal/source"
	"github.com/roach88/fedq/internal/value"
)

// Format identifies the file layout.
type Format int

const (
	FormatXLSX Format = iota
	FormatCSV
)

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return FormatXLSX, fmt.Errorf("unsupported spreadsheet extension %q", filepath.Ext(path))
	}
}

// Adapter reads a spreadsheet file on every fetch.
type Adapter struct {
	name   string
	path   string
	format Format
	logger *slog.Logger
}

// Open creates an adapter for path. The file is not read until Schema or
// Fetch is called.
func Open(name, path string, logger *slog.Logger) (*Adapter, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, fmt.Errorf("open source %q: %w", name, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{name: name, path: path, format: format, logger: logger}, nil
}

// table is a header plus data rows, padded to the header width.
type table struct {
	header []string
	rows   [][]string
}

func (a *Adapter) read(ctx context.Context, base string) (*table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records [][]string
	var err error
	switch a.format {
	case FormatCSV:
		records, err = a.readCSV()
	default:
		records, err = a.readXLSX(base)
	}
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, source.NewSchemaMismatch(a.name, "sheet %q has no header row", base)
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "Column" + strconv.Itoa(i+1)
		}
		header[i] = h
	}

	t := &table{header: header}
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func isBlank(rec []string) bool {
	return !slices.ContainsFunc(rec, func(s string) bool { return strings.TrimSpace(s) != "" })
}

func (a *Adapter) readCSV() ([][]string, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, source.NewUnavailable(a.name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, source.NewSchemaMismatch(a.name, "malformed csv: %v", err)
	}
	return records, nil
}

func (a *Adapter) readXLSX(sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(a.path)
	if err != nil {
		return nil, source.NewUnavailable(a.name, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, source.NewSchemaMismatch(a.name, "no worksheet %q", sheet)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, source.NewUnavailable(a.name, err)
	}
	return rows, nil
}

// Schema reads the header and infers each column's type.
func (a *Adapter) Schema(ctx context.Context, base string) (value.Schema, error) {
	t, err := a.read(ctx, base)
	if err != nil {
		return value.Schema{}, err
	}
	return inferSchema(t), nil
}

func inferSchema(t *table) value.Schema {
	cols := make([]value.Column, len(t.header))
	for i, name := range t.header {
		samples := make([]string, len(t.rows))
		for j, row := range t.rows {
			samples[j] = row[i]
		}
		cols[i] = value.Column{Name: name, Type: value.InferType(samples)}
	}
	return value.NewSchema(cols...)
}

// Fetch returns every data row, typed by the inferred schema and projected
// to the requested columns. The filter is not applied here.
func (a *Adapter) Fetch(ctx context.Context, req source.Request) ([]source.Row, error) {
	t, err := a.read(ctx, req.Base)
	if err != nil {
		return nil, err
	}
	schema := inferSchema(t)
	if err := source.CheckColumns(a.name, schema, req.Columns); err != nil {
		return nil, err
	}

	rows := make([]source.Row, 0, len(t.rows))
	for _, rec := range t.rows {
		row := make(source.Row, len(t.header))
		for i, col := range schema.Columns {
			v, err := cell(rec[i], col.Type)
			if err != nil {
				return nil, source.NewSchemaMismatch(a.name, "column %q: %v", col.Name, err)
			}
			row[i] = source.Field{Name: col.Name, Value: v}
		}
		rows = append(rows, row)
	}

	a.logger.Debug("sheet fetch",
		"source", a.name,
		"base", req.Base,
		"rows", len(rows))
	return source.Project(rows, req.Columns), nil
}

func cell(s string, t value.Type) (value.Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return value.Null{}, nil
	}
	return value.Coerce(value.String(s), t)
}
