package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/value"
)

func (r *request) evalTransform(ctx context.Context, n *graph.TransformationNode) ([][]value.Value, error) {
	rows, err := r.eval(ctx, n.Input)
	if err != nil {
		return nil, err
	}
	for _, step := range n.Steps() {
		next := make([][]value.Value, 0, len(rows))
		for _, row := range rows {
			expanded, err := applyStep(step, row)
			if err != nil {
				return nil, &RuntimeError{Code: ErrCodeSchemaMismatch, Alias: n.Alias(), Err: err}
			}
			next = append(next, expanded...)
		}
		rows = next
	}
	return rows, nil
}

// applyStep rewrites one row. Unfolding a Null or empty array drops the row.
func applyStep(step graph.Step, row []value.Value) ([][]value.Value, error) {
	v := row[step.Index]
	if !step.Unfold {
		out, err := replace(step, row, v)
		if err != nil {
			return nil, err
		}
		return [][]value.Value{out}, nil
	}

	if value.IsNull(v) {
		return nil, nil
	}
	arr, ok := v.(value.Array)
	if !ok {
		return nil, fmt.Errorf("cannot unfold %q: value is %s, not array", step.Column, v.Kind())
	}
	out := make([][]value.Value, 0, len(arr))
	for _, elem := range arr {
		expanded, err := replace(step, row, elem)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded)
	}
	return out, nil
}

func replace(step graph.Step, row []value.Value, v value.Value) ([]value.Value, error) {
	if v == nil {
		v = value.Null{}
	}
	if len(step.Fields) == 0 {
		out := slices.Clone(row)
		out[step.Index] = v
		return out, nil
	}

	var obj value.Object
	switch o := v.(type) {
	case value.Object:
		obj = o
	case value.Null:
	default:
		return nil, fmt.Errorf("cannot flatten %q: value is %s, not object", step.Column, v.Kind())
	}

	out := make([]value.Value, 0, len(row)+len(step.Fields)-1)
	out = append(out, row[:step.Index]...)
	for _, f := range step.Fields {
		fv, ok := obj[f]
		if !ok || fv == nil {
			fv = value.Null{}
		}
		out = append(out, fv)
	}
	return append(out, row[step.Index+1:]...), nil
}
