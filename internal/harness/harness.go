package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/fedq/internal/compiler"
	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/querystore"
	"github.com/roach88/fedq/internal/source"
	"github.com/roach88/fedq/internal/source/memsource"
	"github.com/roach88/fedq/internal/testutil"
	"github.com/roach88/fedq/internal/value"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every query met its expectations.
	Pass bool `json:"pass"`

	// Queries holds one entry per scenario query, in order.
	Queries []QueryResult `json:"queries"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// QueryResult is the observed outcome of one query.
type QueryResult struct {
	Root    string          `json:"root"`
	Columns []string        `json:"columns,omitempty"`
	Rows    [][]value.Value `json:"-"`
	Error   string          `json:"error,omitempty"`
}

func newResult() *Result {
	return &Result{Pass: true, Queries: []QueryResult{}, Errors: []string{}}
}

// addError adds an expectation failure and marks the result as failed.
func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh registry and engine. Request IDs are fixed
// and logs are discarded. An error is returned only when the scenario
// cannot be set up (bad source declarations, invalid definition); query
// failures are recorded in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry, err := buildSources(ctx, scenario.Sources, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to register sources: %w", err)
	}
	def, err := loadDefinition(scenario, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to build definition: %w", err)
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRequestIDs(testutil.NewFixedRequestIDs(scenario.Name)),
	}
	if scenario.MaxFanOut > 0 {
		opts = append(opts, engine.WithMaxFanOut(scenario.MaxFanOut))
	}
	eng := engine.New(engine.NewCatalog(def), opts...)

	result := newResult()
	for i, q := range scenario.Queries {
		name := q.Definition
		if name == "" {
			name = def.Name
		}
		qr := QueryResult{Root: q.Root}
		rs, err := eng.Execute(ctx, name, q.Root)
		if err != nil {
			qr.Error = ErrorCode(err)
		} else {
			qr.Columns = rs.Columns
			qr.Rows = rs.Rows
		}
		result.Queries = append(result.Queries, qr)
		checkExpect(result, fmt.Sprintf("queries[%d] (%s)", i, q.Root), q.Expect, qr, err)
	}
	return result, nil
}

// ErrorCode returns the taxonomy code carried by err, or "ERROR".
func ErrorCode(err error) string {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	var be *graph.BuildError
	if errors.As(err, &be) {
		return string(be.Code)
	}
	var se *source.Error
	if errors.As(err, &se) {
		return string(se.Code)
	}
	var de *querystore.DecodeError
	if errors.As(err, &de) {
		return string(de.Code)
	}
	return "ERROR"
}

func buildSources(ctx context.Context, specs []SourceSpec, logger *slog.Logger) (*source.Registry, error) {
	registry := source.NewRegistry().WithLogger(logger)
	for _, spec := range specs {
		adapter, err := buildAdapter(spec, logger)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", spec.Name, err)
		}
		if err := registry.Register(ctx, spec.Name, adapter, ""); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func buildAdapter(spec SourceSpec, logger *slog.Logger) (source.Adapter, error) {
	if len(spec.Records) > 0 {
		return memsource.New(spec.Name, memsource.Items(spec.Records...), logger), nil
	}

	cols := make([]value.Column, len(spec.Columns))
	for i, c := range spec.Columns {
		t, err := value.ParseType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		cols[i] = value.Column{Name: c.Name, Type: t}
		if c.Elem != "" {
			et, err := value.ParseType(c.Elem)
			if err != nil {
				return nil, fmt.Errorf("column %q elem: %w", c.Name, err)
			}
			cols[i].Elem = &value.Column{Type: et}
		}
	}
	if spec.Fail != "" {
		return testutil.NewFailingAdapter(errors.New(spec.Fail), cols...), nil
	}

	rows := make([]source.Row, len(spec.Rows))
	for i, raw := range spec.Rows {
		row := make(source.Row, len(raw))
		for j, cell := range raw {
			v, err := value.FromGo(cell)
			if err != nil {
				return nil, fmt.Errorf("rows[%d][%d]: %w", i, j, err)
			}
			row[j] = source.Field{Name: cols[j].Name, Value: v}
		}
		rows[i] = row
	}
	return testutil.NewStaticRows(value.NewSchema(cols...), rows), nil
}

func loadDefinition(s *Scenario, registry *source.Registry) (*graph.Definition, error) {
	if s.Definition != nil {
		return querystore.Build(s.Definition, registry)
	}

	path := s.DefinitionFile
	if !filepath.IsAbs(path) && s.dir != "" {
		path = filepath.Join(s.dir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return compiler.CompileDir(path, registry)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return querystore.Load(data, registry)
}

func checkExpect(result *Result, where string, want Expect, got QueryResult, err error) {
	if want.Error != "" {
		if err == nil {
			result.addError("%s: expected error %s, got %d rows", where, want.Error, len(got.Rows))
		} else if got.Error != want.Error {
			result.addError("%s: expected error %s, got %s (%v)", where, want.Error, got.Error, err)
		}
		return
	}
	if err != nil {
		result.addError("%s: unexpected error: %v", where, err)
		return
	}

	if want.Columns != nil && !slices.Equal(want.Columns, got.Columns) {
		result.addError("%s: columns = %v, want %v", where, got.Columns, want.Columns)
	}
	if want.Count != nil && *want.Count != len(got.Rows) {
		result.addError("%s: %d rows, want %d", where, len(got.Rows), *want.Count)
	}
	if want.Rows != nil {
		if len(want.Rows) != len(got.Rows) {
			result.addError("%s: %d rows, want %d", where, len(got.Rows), len(want.Rows))
			return
		}
		for i := range want.Rows {
			if msg := compareRow(want.Rows[i], got.Rows[i]); msg != "" {
				result.addError("%s: row %d: %s", where, i, msg)
			}
		}
	}
}

func compareRow(want []any, got []value.Value) string {
	if len(want) != len(got) {
		return fmt.Sprintf("%d values, want %d", len(got), len(want))
	}
	for i, raw := range want {
		w, err := value.FromGo(raw)
		if err != nil {
			return fmt.Sprintf("column %d: bad expected value: %v", i, err)
		}
		if !cellEqual(w, got[i]) {
			return fmt.Sprintf("column %d = %s, want %s", i, value.Format(got[i]), value.Format(w))
		}
	}
	return ""
}

func cellEqual(want, got value.Value) bool {
	if value.IsNull(want) || value.IsNull(got) {
		return value.IsNull(want) && value.IsNull(got)
	}
	eq, err := value.Equal(want, got)
	return err == nil && eq
}
