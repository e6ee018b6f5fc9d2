package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/fedq/internal/expr"
	"github.com/roach88/fedq/internal/graph"
	"github.com/roach88/fedq/internal/source"
	"github.com/roach88/fedq/internal/value"
)

// request evaluates one execution. Node results are memoized by alias so
// a node reached through several paths is computed once.
type request struct {
	engine *Engine
	graph  *graph.Graph
	target string
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu   sync.Mutex
	memo map[string]*memo
}

type memo struct {
	once sync.Once
	rows [][]value.Value
	err  error
}

func newRequest(e *Engine, g *graph.Graph, target string, logger *slog.Logger) *request {
	return &request{
		engine: e,
		graph:  g,
		target: target,
		sem:    semaphore.NewWeighted(int64(e.maxFanOut)),
		logger: logger,
		memo:   make(map[string]*memo),
	}
}

// eval returns the rows of the node called alias. Returned rows are shared
// between consumers and must not be modified.
func (r *request) eval(ctx context.Context, alias string) ([][]value.Value, error) {
	r.mu.Lock()
	m, ok := r.memo[alias]
	if !ok {
		m = &memo{}
		r.memo[alias] = m
	}
	r.mu.Unlock()

	m.once.Do(func() {
		if err := ctx.Err(); err != nil {
			m.err = cancelled(alias, err)
			return
		}
		node, ok := r.graph.Node(alias)
		if !ok {
			m.err = errorf(ErrCodeUnknownAlias, alias, "node not in graph %q", r.graph.Name())
			return
		}

		start := time.Now()
		m.rows, m.err = r.evalNode(ctx, node)
		if m.err != nil {
			return
		}
		kind := kindOf(node)
		r.engine.metrics.addRows(kind, len(m.rows))
		r.logger.Debug("node evaluated",
			"node", alias,
			"kind", kind,
			"rows", len(m.rows),
			"duration", time.Since(start))
	})
	return m.rows, m.err
}

func kindOf(n graph.Node) string {
	switch n.(type) {
	case *graph.SourceNode:
		return "source"
	case *graph.SelectNode:
		return "select"
	case *graph.JoinNode:
		return "join"
	case *graph.UnionNode:
		return "union"
	case *graph.TransformationNode:
		return "transformation"
	}
	return "unknown"
}

func (r *request) evalNode(ctx context.Context, node graph.Node) ([][]value.Value, error) {
	switch n := node.(type) {
	case *graph.SourceNode:
		return r.evalSource(ctx, n)
	case *graph.SelectNode:
		return r.evalSelect(ctx, n)
	case *graph.JoinNode:
		return r.evalJoin(ctx, n)
	case *graph.UnionNode:
		return r.evalUnion(ctx, n)
	case *graph.TransformationNode:
		return r.evalTransform(ctx, n)
	default:
		return nil, fmt.Errorf("unsupported node type %T", node)
	}
}

// evalAll evaluates aliases concurrently and returns their rows in order.
func (r *request) evalAll(ctx context.Context, aliases []string) ([][][]value.Value, error) {
	results := make([][][]value.Value, len(aliases))
	g, gctx := errgroup.WithContext(ctx)
	for i, alias := range aliases {
		g.Go(func() error {
			rows, err := r.eval(gctx, alias)
			results[i] = rows
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// evalSource fetches the source rows, aligns them to the declared schema
// by name and coerces every value to its declared type.
func (r *request) evalSource(ctx context.Context, n *graph.SourceNode) ([][]value.Value, error) {
	src := n.Source
	schema := n.Schema()
	req := source.Request{
		Base:    src.Base,
		Columns: schema.Names(),
		Filter:  r.pushdown(n),
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, cancelled(n.Alias(), err)
	}
	start := time.Now()
	fetched, err := src.Adapter.Fetch(ctx, req)
	r.sem.Release(1)
	r.engine.metrics.observeFetch(src.Name, time.Since(start))
	if err != nil {
		return nil, fetchError(n.Alias(), src.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(n.Alias(), err)
	}

	rows := make([][]value.Value, len(fetched))
	for i, f := range fetched {
		row := make([]value.Value, schema.Len())
		for j, col := range schema.Columns {
			v, ok := f.Get(col.Name)
			if !ok || v == nil {
				row[j] = value.Null{}
				continue
			}
			c, err := value.Coerce(v, col.Type)
			if err != nil {
				return nil, &RuntimeError{
					Code:    ErrCodeSchemaMismatch,
					Alias:   n.Alias(),
					Message: fmt.Sprintf("row %d", i),
					Err:     source.NewSchemaMismatch(src.Name, "column %q: %v", col.Name, err),
				}
			}
			row[j] = c
		}
		rows[i] = row
	}
	return rows, nil
}

// pushdown returns the filter hint for a source node. A filter is pushed
// only when the source's sole consumer is a select whose filter maps onto
// source columns, and the source itself is not the requested node.
func (r *request) pushdown(n *graph.SourceNode) expr.Predicate {
	if n.Alias() == r.target {
		return nil
	}
	consumers := r.graph.Consumers(n.Alias())
	if len(consumers) != 1 {
		return nil
	}
	c, _ := r.graph.Node(consumers[0])
	sel, ok := c.(*graph.SelectNode)
	if !ok || sel.Filter == nil {
		return nil
	}

	cols := n.Schema().Columns
	pushable := true
	filter := expr.Rewrite(sel.Filter, func(ref expr.ColumnRef) expr.ColumnRef {
		projected, idx, err := sel.ResolveFilter(ref)
		if err != nil {
			pushable = false
			return ref
		}
		if projected {
			if idx = sel.InputIndex(idx); idx < 0 {
				pushable = false
				return ref
			}
		}
		return expr.Ref("", cols[idx].Name)
	})
	if !pushable {
		return nil
	}
	return filter
}

type binding struct {
	projected bool
	idx       int
}

func (r *request) evalSelect(ctx context.Context, n *graph.SelectNode) ([][]value.Value, error) {
	in, err := r.eval(ctx, n.Input)
	if err != nil {
		return nil, err
	}

	var bindings map[expr.ColumnRef]binding
	if n.Filter != nil {
		bindings = make(map[expr.ColumnRef]binding)
		for _, ref := range expr.Refs(n.Filter) {
			projected, idx, err := n.ResolveFilter(ref)
			if err != nil {
				return nil, fmt.Errorf("select %q: %w", n.Alias(), err)
			}
			bindings[ref] = binding{projected: projected, idx: idx}
		}
	}

	out := make([][]value.Value, 0, len(in))
	for _, row := range in {
		proj := make([]value.Value, len(n.Columns))
		for i, c := range n.Columns {
			if idx := n.InputIndex(i); idx >= 0 {
				proj[i] = row[idx]
				continue
			}
			lit := c.Expr.(expr.Literal)
			proj[i] = lit.Value
			if lit.Value == nil {
				proj[i] = value.Null{}
			}
		}

		if n.Filter != nil {
			keep, err := expr.Eval(n.Filter, func(ref expr.ColumnRef) (value.Value, error) {
				b := bindings[ref]
				if b.projected {
					return proj[b.idx], nil
				}
				return row[b.idx], nil
			})
			if err != nil {
				return nil, &RuntimeError{Code: ErrCodeFilterTypeMismatch, Alias: n.Alias(), Err: err}
			}
			if !keep {
				continue
			}
		}
		out = append(out, proj)
	}
	return out, nil
}
