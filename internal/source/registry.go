package source

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/fedq/internal/value"
)

// Source is a registered, named data provider.
type Source struct {
	Name    string
	Adapter Adapter
	Base    string
	Schema  value.Schema
}

// Registry maps short names to sources.
//
// Thread-safety: Register is expected at startup; Lookup and Names are
// safe from any goroutine at any time.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*Source
	order   []string
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]*Source),
		logger:  slog.Default(),
	}
}

// WithLogger sets the registry logger and returns the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register binds name to adapter and base, discovering the schema once.
//
// Fails if name is empty or already registered, or if the adapter cannot
// report its schema.
func (r *Registry) Register(ctx context.Context, name string, adapter Adapter, base string) error {
	if name == "" {
		return fmt.Errorf("register source: empty name")
	}
	if adapter == nil {
		return fmt.Errorf("register source %q: nil adapter", name)
	}

	r.mu.RLock()
	_, exists := r.sources[name]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("register source %q: already registered", name)
	}

	schema, err := adapter.Schema(ctx, base)
	if err != nil {
		return fmt.Errorf("register source %q: %w", name, err)
	}
	if schema.Len() == 0 {
		return NewSchemaMismatch(name, "source reports no columns")
	}
	if dup := duplicateName(schema); dup != "" {
		return NewSchemaMismatch(name, "duplicate column %q", dup)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("register source %q: already registered", name)
	}
	r.sources[name] = &Source{
		Name:    name,
		Adapter: adapter,
		Base:    base,
		Schema:  schema.Qualified(""),
	}
	r.order = append(r.order, name)

	r.logger.Debug("source registered",
		"source", name,
		"base", base,
		"columns", schema.Len())
	return nil
}

func duplicateName(schema value.Schema) string {
	seen := make(map[string]bool, schema.Len())
	for _, c := range schema.Columns {
		if seen[c.Name] {
			return c.Name
		}
		seen[c.Name] = true
	}
	return ""
}

// Lookup returns the source registered under name.
func (r *Registry) Lookup(name string) (*Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := slices.Clone(r.order)
	slices.Sort(names)
	return names
}
