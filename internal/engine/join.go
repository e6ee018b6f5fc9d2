package engine

import (
	"context"
	"errors"
	"slices"

	"github.com/roach88/fedq/internal/expr"
	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/value"
)

// evalJoin evaluates both sides concurrently and emits the concatenation
// of every matching pair, left rows in order, and for each left row the
// right rows in order.
func (r *request) evalJoin(ctx context.Context, n *graph.JoinNode) ([][]value.Value, error) {
	if err := checkJoinTypes(n); err != nil {
		return nil, err
	}
	sides, err := r.evalAll(ctx, []string{n.Left, n.Right})
	if err != nil {
		return nil, err
	}
	left, right := sides[0], sides[1]

	if li, ri, ok := hashKeys(n); ok {
		r.logger.Debug("hash join", "node", n.Alias())
		return hashJoin(ctx, n.Alias(), left, right, li, ri)
	}
	return nestedLoop(ctx, n, left, right)
}

// checkJoinTypes rejects comparisons between declared column types that
// can never compare, before any rows are fetched.
func checkJoinTypes(n *graph.JoinNode) error {
	cols := n.Schema().Columns
	typeOf := func(e expr.Expr) (value.Type, bool) {
		switch ex := e.(type) {
		case expr.ColumnRef:
			idx, err := n.Resolve(ex)
			if err != nil {
				return value.TypeAny, false
			}
			return cols[idx].Type, true
		case expr.Literal:
			if value.IsNull(ex.Value) {
				return value.TypeAny, false
			}
			return ex.Value.Kind(), true
		}
		return value.TypeAny, false
	}

	var err error
	compares(n.On, func(c expr.Compare) {
		if err != nil {
			return
		}
		lt, lok := typeOf(c.Left)
		rt, rok := typeOf(c.Right)
		if lok && rok && !value.Comparable(lt, rt) {
			err = errorf(ErrCodeIncompatibleJoinTypes, n.Alias(),
				"%s compares %s with %s", c, lt, rt)
		}
	})
	return err
}

func compares(p expr.Predicate, fn func(expr.Compare)) {
	switch pred := p.(type) {
	case expr.Compare:
		fn(pred)
	case expr.And:
		for _, t := range pred.Terms {
			compares(t, fn)
		}
	case expr.Or:
		for _, t := range pred.Terms {
			compares(t, fn)
		}
	case expr.Not:
		compares(pred.Term, fn)
	}
}

// hashKeys reports whether n can run as a hash join: a single equality
// between one column of each side whose declared types share a key
// normalization. It returns the key positions within each side.
func hashKeys(n *graph.JoinNode) (li, ri int, ok bool) {
	l, r, ok := expr.EquiJoin(n.On)
	if !ok {
		return 0, 0, false
	}
	li, lerr := n.Resolve(l)
	ri, rerr := n.Resolve(r)
	if lerr != nil || rerr != nil {
		return 0, 0, false
	}
	w := n.LeftWidth()
	if li >= w && ri < w {
		li, ri = ri, li
	}
	if li >= w || ri < w {
		return 0, 0, false
	}
	cols := n.Schema().Columns
	if !sameFamily(cols[li].Type, cols[ri].Type) {
		return 0, 0, false
	}
	return li, ri - w, true
}

func sameFamily(a, b value.Type) bool {
	if a.Numeric() && b.Numeric() {
		return true
	}
	if a != b {
		return false
	}
	switch a {
	case value.TypeString, value.TypeDate, value.TypeBool:
		return true
	}
	return false
}

func hashJoin(ctx context.Context, alias string, left, right [][]value.Value, li, ri int) ([][]value.Value, error) {
	index := make(map[string][]int, len(right))
	for j, row := range right {
		if value.IsNull(row[ri]) {
			continue
		}
		k := value.Key(row[ri])
		index[k] = append(index[k], j)
	}

	var out [][]value.Value
	for _, l := range left {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(alias, err)
		}
		if value.IsNull(l[li]) {
			continue
		}
		for _, j := range index[value.Key(l[li])] {
			out = append(out, concat(l, right[j]))
		}
	}
	return out, nil
}

func nestedLoop(ctx context.Context, n *graph.JoinNode, left, right [][]value.Value) ([][]value.Value, error) {
	w := n.LeftWidth()
	bindings := make(map[expr.ColumnRef]int)
	for _, ref := range expr.Refs(n.On) {
		idx, err := n.Resolve(ref)
		if err != nil {
			return nil, err
		}
		bindings[ref] = idx
	}

	var out [][]value.Value
	for _, l := range left {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(n.Alias(), err)
		}
		for _, rr := range right {
			ok, err := expr.Eval(n.On, func(ref expr.ColumnRef) (value.Value, error) {
				idx := bindings[ref]
				if idx < w {
					return l[idx], nil
				}
				return rr[idx-w], nil
			})
			if err != nil {
				var cmp *expr.ComparisonError
				if errors.As(err, &cmp) {
					return nil, &RuntimeError{Code: ErrCodeIncompatibleJoinTypes, Alias: n.Alias(), Err: err}
				}
				return nil, err
			}
			if ok {
				out = append(out, concat(l, rr))
			}
		}
	}
	return out, nil
}

func concat(l, r []value.Value) []value.Value {
	return append(slices.Clip(l), r...)
}
