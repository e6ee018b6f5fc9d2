package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/fedq/internal/graph"
)

// ErrDefinitionNotFound is returned by providers for unknown names.
var ErrDefinitionNotFound = errors.New("definition not found")

// DefinitionProvider looks up federated query definitions by name.
// Implemented by Catalog (in memory), store.Store (SQLite) and
// redis.Store.
type DefinitionProvider interface {
	Definition(ctx context.Context, name string) (*graph.Definition, error)
}

// Catalog is an in-memory DefinitionProvider.
//
// Thread-safety: safe for concurrent use.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]*graph.Definition
}

// NewCatalog returns a catalog holding defs.
func NewCatalog(defs ...*graph.Definition) *Catalog {
	c := &Catalog{defs: make(map[string]*graph.Definition, len(defs))}
	for _, d := range defs {
		c.defs[d.Name] = d
	}
	return c
}

// Put adds or replaces a definition.
func (c *Catalog) Put(def *graph.Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[def.Name] = def
}

// Definition returns the named definition.
func (c *Catalog) Definition(ctx context.Context, name string) (*graph.Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDefinitionNotFound, name)
	}
	return d, nil
}

// Names returns the definition names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.defs))
	for n := range c.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
