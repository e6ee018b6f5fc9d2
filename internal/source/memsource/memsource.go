// Package memsource adapts in-memory object collections to the source
// contract.
//
// Records are produced by a Loader on every fetch. A record is a struct
// (exported fields, json tag names) or a map with string keys. Struct
// collections take their schema from the struct type; map collections
// infer it from the records.
package memsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fedq/internal/source"
	"github.com/roach88/fedq/internal/value"
)

// Loader produces the records of the collection named by base.
type Loader func(ctx context.Context, base string) ([]any, error)

// Items returns a Loader that always yields items.
func Items(items ...any) Loader {
	return func(context.Context, string) ([]any, error) {
		return items, nil
	}
}

// Slice returns a Loader over a typed slice. The slice is read on every
// fetch, so callers may replace its contents between requests through
// the pointer.
func Slice[T any](items *[]T) Loader {
	return func(context.Context, string) ([]any, error) {
		out := make([]any, len(*items))
		for i, item := range *items {
			out[i] = item
		}
		return out, nil
	}
}

// YAMLFile returns a Loader that reads records from a YAML file. A top
// level sequence is the collection; a top level mapping holds named
// collections selected by base.
func YAMLFile(path string) Loader {
	return func(ctx context.Context, base string) ([]any, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &source.Error{Code: source.ErrCodeSchemaMismatch, Message: "malformed yaml: " + err.Error(), Err: err}
		}

		switch d := doc.(type) {
		case []any:
			return d, nil
		case map[string]any:
			items, ok := d[base]
			if !ok {
				return nil, &source.Error{Code: source.ErrCodeSchemaMismatch, Message: fmt.Sprintf("no collection %q", base)}
			}
			list, ok := items.([]any)
			if !ok {
				return nil, &source.Error{Code: source.ErrCodeSchemaMismatch, Message: fmt.Sprintf("collection %q is not a list", base)}
			}
			return list, nil
		case nil:
			return nil, nil
		default:
			return nil, &source.Error{Code: source.ErrCodeSchemaMismatch, Message: "yaml document holds no records"}
		}
	}
}

// Adapter serves records produced by a Loader.
type Adapter struct {
	name   string
	loader Loader
	logger *slog.Logger
}

// New creates an adapter over loader.
func New(name string, loader Loader, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{name: name, loader: loader, logger: logger}
}

type record struct {
	keys   []string
	fields value.Object
}

func (a *Adapter) load(ctx context.Context, base string) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := a.loader(ctx, base)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		var srcErr *source.Error
		if errors.As(err, &srcErr) {
			if srcErr.Source == "" {
				srcErr.Source = a.name
			}
			return nil, srcErr
		}
		return nil, source.NewUnavailable(a.name, err)
	}
	return items, nil
}

func (a *Adapter) records(items []any) ([]record, error) {
	recs := make([]record, 0, len(items))
	for i, item := range items {
		v, err := value.FromGo(item)
		if err != nil {
			return nil, source.NewSchemaMismatch(a.name, "record %d: %v", i, err)
		}
		obj, ok := v.(value.Object)
		if !ok {
			return nil, source.NewSchemaMismatch(a.name, "record %d is %s, not an object", i, v.Kind())
		}

		keys := obj.SortedKeys()
		if st, ok := structType(item); ok {
			keys = keys[:0]
			for _, f := range value.StructFields(st) {
				keys = append(keys, f.Name)
			}
		}
		recs = append(recs, record{keys: keys, fields: obj})
	}
	return recs, nil
}

// Schema reports the struct type's fields when the collection holds
// structs, and otherwise the union of record keys with inferred types.
func (a *Adapter) Schema(ctx context.Context, base string) (value.Schema, error) {
	items, err := a.load(ctx, base)
	if err != nil {
		return value.Schema{}, err
	}

	for _, item := range items {
		if st, ok := structType(item); ok {
			return value.NewSchema(structColumns(st)...), nil
		}
	}

	recs, err := a.records(items)
	if err != nil {
		return value.Schema{}, err
	}
	var order []string
	samples := make(map[string][]value.Value)
	for _, rec := range recs {
		for _, k := range rec.keys {
			if _, seen := samples[k]; !seen {
				order = append(order, k)
			}
			samples[k] = append(samples[k], rec.fields[k])
		}
	}
	cols := make([]value.Column, len(order))
	for i, name := range order {
		cols[i] = value.InferColumn(name, samples[name])
	}
	return value.NewSchema(cols...), nil
}

// Fetch loads the collection and converts every record to a row.
func (a *Adapter) Fetch(ctx context.Context, req source.Request) ([]source.Row, error) {
	schema, err := a.Schema(ctx, req.Base)
	if err != nil {
		return nil, err
	}
	if err := source.CheckColumns(a.name, schema, req.Columns); err != nil {
		return nil, err
	}

	items, err := a.load(ctx, req.Base)
	if err != nil {
		return nil, err
	}
	recs, err := a.records(items)
	if err != nil {
		return nil, err
	}

	rows := make([]source.Row, len(recs))
	for i, rec := range recs {
		rows[i] = source.RowFromObject(rec.fields, rec.keys)
	}

	a.logger.Debug("object fetch",
		"source", a.name,
		"base", req.Base,
		"rows", len(rows))
	return source.Project(rows, req.Columns), nil
}

var timeType = reflect.TypeOf(time.Time{})

func structType(item any) (reflect.Type, bool) {
	t := reflect.TypeOf(item)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct || t == timeType {
		return nil, false
	}
	return t, true
}

func structColumns(t reflect.Type) []value.Column {
	fields := value.StructFields(t)
	cols := make([]value.Column, len(fields))
	for i, f := range fields {
		cols[i] = columnOf(f.Name, f.Type)
	}
	return cols
}

// columnOf describes a Go type as a column, including element and field
// shapes for slices and structs.
func columnOf(name string, t reflect.Type) value.Column {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	col := value.Column{Name: name}
	switch t.Kind() {
	case reflect.String:
		col.Type = value.TypeString
	case reflect.Bool:
		col.Type = value.TypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		col.Type = value.TypeInt
	case reflect.Float32, reflect.Float64:
		col.Type = value.TypeFloat
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			col.Type = value.TypeString
			break
		}
		col.Type = value.TypeArray
		elem := columnOf("", t.Elem())
		col.Elem = &elem
	case reflect.Map:
		col.Type = value.TypeObject
	case reflect.Struct:
		if t == timeType {
			col.Type = value.TypeDate
			break
		}
		col.Type = value.TypeObject
		col.Fields = structColumns(t)
	}
	return col
}
