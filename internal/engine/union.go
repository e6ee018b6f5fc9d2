package engine

import (
	"context"
	"fmt"

	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/value"
)

// evalUnion concatenates its inputs in declaration order, coercing each
// value to the column type of the first input. Union mode keeps only the
// first occurrence of each distinct row.
func (r *request) evalUnion(ctx context.Context, n *graph.UnionNode) ([][]value.Value, error) {
	inputs, err := r.evalAll(ctx, n.InputList)
	if err != nil {
		return nil, err
	}

	types := n.Schema().Types()
	dedup := n.Mode == graph.Union
	var seen map[string]bool
	if dedup {
		seen = make(map[string]bool)
	}

	var out [][]value.Value
	for i, rows := range inputs {
		for _, row := range rows {
			coerced := make([]value.Value, len(row))
			for j, v := range row {
				c, err := value.Coerce(v, types[j])
				if err != nil {
					return nil, &RuntimeError{
						Code:    ErrCodeUnionTypeMismatch,
						Alias:   n.Alias(),
						Message: fmt.Sprintf("input %q column %d", n.InputList[i], j),
						Err:     err,
					}
				}
				coerced[j] = c
			}
			if dedup {
				k := value.RowKey(coerced)
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			out = append(out, coerced)
		}
	}
	return out, nil
}
