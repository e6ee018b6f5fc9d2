package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/fedq/internal/graph"
)

// DefaultMaxFanOut is the default number of concurrent adapter Fetch
// calls per execution request.
const DefaultMaxFanOut = 4

// Engine executes query graphs.
//
// Thread-safety model:
//   - Execute() and ExecuteGraph(): safe from any goroutine
//   - each call evaluates in its own request scope; node results are
//     memoized per request and never shared across requests
//
// The engine holds no per-request state between calls.
type Engine struct {
	definitions DefinitionProvider
	maxFanOut   int
	logger      *slog.Logger
	metrics     *Metrics
	ids         RequestIDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxFanOut bounds concurrent adapter Fetch calls per request.
//
// Default: 4 (DefaultMaxFanOut). Values below 1 are treated as 1.
func WithMaxFanOut(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.maxFanOut = n
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRequestIDs sets the request ID generator.
//
// Default: UUIDv7Generator.
func WithRequestIDs(gen RequestIDGenerator) Option {
	return func(e *Engine) {
		e.ids = gen
	}
}

// New creates an Engine resolving definition names through definitions.
// definitions may be nil when only ExecuteGraph is used.
func New(definitions DefinitionProvider, opts ...Option) *Engine {
	e := &Engine{
		definitions: definitions,
		maxFanOut:   DefaultMaxFanOut,
		logger:      slog.Default(),
		ids:         UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute evaluates rootAlias of the named definition.
//
// The alias is resolved with graph.Definition.Resolve. On success the
// returned RowSet is fully materialized. On any failure, including
// cancellation, no rows are returned.
func (e *Engine) Execute(ctx context.Context, definitionName, rootAlias string) (*RowSet, error) {
	if e.definitions == nil {
		return nil, errorf(ErrCodeUnknownAlias, "", "no definition provider configured")
	}
	def, err := e.definitions.Definition(ctx, definitionName)
	if err != nil {
		if errors.Is(err, ErrDefinitionNotFound) {
			return nil, &RuntimeError{Code: ErrCodeUnknownAlias, Message: "unknown definition " + definitionName, Err: err}
		}
		return nil, fmt.Errorf("load definition %q: %w", definitionName, err)
	}
	g, alias, ok := def.Resolve(rootAlias)
	if !ok {
		return nil, errorf(ErrCodeUnknownAlias, rootAlias, "no graph in %q has root %q", definitionName, rootAlias)
	}
	return e.run(ctx, def.Name, g, alias)
}

// ExecuteGraph evaluates the node called alias in g.
func (e *Engine) ExecuteGraph(ctx context.Context, g *graph.Graph, alias string) (*RowSet, error) {
	if _, ok := g.Node(alias); !ok {
		return nil, errorf(ErrCodeUnknownAlias, alias, "node not in graph %q", g.Name())
	}
	return e.run(ctx, "", g, alias)
}

func (e *Engine) run(ctx context.Context, definition string, g *graph.Graph, alias string) (*RowSet, error) {
	logger := e.logger.With(
		"request_id", e.ids.Generate(),
		"definition", definition,
		"graph", g.Name(),
		"alias", alias)
	logger.Info("execution started")
	start := time.Now()

	req := newRequest(e, g, alias, logger)
	rows, err := req.eval(ctx, alias)
	if err == nil && ctx.Err() != nil {
		err = cancelled(alias, ctx.Err())
	}
	e.metrics.execution(err)
	if err != nil {
		logger.Error("execution failed",
			"error", err,
			"duration", time.Since(start))
		return nil, err
	}

	node, _ := g.Node(alias)
	schema := node.Schema()
	rs := &RowSet{Schema: schema, Columns: labels(schema.Names(), schema.QualifiedNames()), Rows: rows}
	logger.Info("execution finished",
		"rows", len(rows),
		"duration", time.Since(start))
	return rs, nil
}

// labels picks plain names unless they repeat, as in join outputs.
func labels(names, qualified []string) []string {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return qualified
		}
		seen[n] = true
	}
	return names
}
