// Package docsource adapts JSON documents to the source contract.
//
// The base is a dotted path to the record array ("data.categories"); an
// empty base selects the document root. A root that is a single object is
// one record. Nested arrays and objects are kept as structured values so
// the engine can unfold and flatten them.
package docsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/roach88/fedq/internal/source"
	"github.com/roach88/fedq/internal/value"
)

// Adapter serves records from a JSON document, either held in memory or
// read from a file on every fetch.
type Adapter struct {
	name   string
	path   string
	data   []byte
	logger *slog.Logger
}

// New serves records from an in-memory document.
func New(name string, data []byte, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{name: name, data: data, logger: logger}
}

// Open serves records from the file at path.
func Open(name, path string, logger *slog.Logger) *Adapter {
	a := New(name, nil, logger)
	a.path = path
	return a
}

// record is one decoded object plus its keys in document order.
type record struct {
	keys   []string
	fields value.Object
}

func (a *Adapter) document() ([]byte, error) {
	if a.path == "" {
		return a.data, nil
	}
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, source.NewUnavailable(a.name, err)
	}
	return data, nil
}

func (a *Adapter) records(ctx context.Context, base string) ([]record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := a.document()
	if err != nil {
		return nil, err
	}

	var keys []string
	if base != "" {
		keys = strings.Split(base, ".")
	}
	raw, dataType, _, err := jsonparser.Get(doc, keys...)
	if err != nil {
		if errors.Is(err, jsonparser.KeyPathNotFoundError) {
			return nil, source.NewSchemaMismatch(a.name, "path %q not found", base)
		}
		return nil, source.NewSchemaMismatch(a.name, "malformed document: %v", err)
	}

	switch dataType {
	case jsonparser.Object:
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, source.NewSchemaMismatch(a.name, "malformed record: %v", err)
		}
		return []record{rec}, nil
	case jsonparser.Array:
		var out []record
		var recErr error
		_, err := jsonparser.ArrayEach(raw, func(elem []byte, t jsonparser.ValueType, _ int, _ error) {
			if recErr != nil {
				return
			}
			if t != jsonparser.Object {
				recErr = fmt.Errorf("record %d is %s, not an object", len(out), t)
				return
			}
			rec, err := decodeRecord(elem)
			if err != nil {
				recErr = err
				return
			}
			out = append(out, rec)
		})
		if err == nil {
			err = recErr
		}
		if err != nil {
			return nil, source.NewSchemaMismatch(a.name, "malformed records at %q: %v", base, err)
		}
		return out, nil
	default:
		return nil, source.NewSchemaMismatch(a.name, "path %q holds %s, not records", base, dataType)
	}
}

func decodeRecord(raw []byte) (record, error) {
	rec := record{fields: make(value.Object)}
	err := jsonparser.ObjectEach(raw, func(key, val []byte, t jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		v, err := fromJSON(val, t)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		if _, dup := rec.fields[name]; !dup {
			rec.keys = append(rec.keys, name)
		}
		rec.fields[name] = v
		return nil
	})
	return rec, err
}

func fromJSON(raw []byte, t jsonparser.ValueType) (value.Value, error) {
	switch t {
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return nil, err
		}
		return value.String(s), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return nil, err
		}
		return value.Bool(b), nil
	case jsonparser.Null:
		return value.Null{}, nil
	case jsonparser.Number, jsonparser.Object, jsonparser.Array:
		return value.UnmarshalJSON(raw)
	default:
		return nil, fmt.Errorf("unexpected JSON value type %s", t)
	}
}

// Schema is the union of record keys in first-seen order, with array
// element and object field shapes inferred from the values.
func (a *Adapter) Schema(ctx context.Context, base string) (value.Schema, error) {
	recs, err := a.records(ctx, base)
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

// Fetch returns one row per record. Keys absent from a record are absent
// from its row. The filter is not applied here.
func (a *Adapter) Fetch(ctx context.Context, req source.Request) ([]source.Row, error) {
	schema, err := a.Schema(ctx, req.Base)
	if err != nil {
		return nil, err
	}
	if err := source.CheckColumns(a.name, schema, req.Columns); err != nil {
		return nil, err
	}
	recs, err := a.records(ctx, req.Base)
	if err != nil {
		return nil, err
	}

	rows := make([]source.Row, len(recs))
	for i, rec := range recs {
		rows[i] = source.RowFromObject(rec.fields, rec.keys)
	}

	a.logger.Debug("document fetch",
		"source", a.name,
		"base", req.Base,
		"rows", len(rows))
	return source.Project(rows, req.Columns), nil
}
