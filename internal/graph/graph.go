package graph

import (
	"slices"
	"sort"
)

// Graph is a named, immutable DAG of nodes reachable from its roots.
type Graph struct {
	name      string
	roots     []string
	nodes     map[string]Node
	order     []string
	consumers map[string][]string
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Roots returns the root aliases in declaration order.
func (g *Graph) Roots() []string { return slices.Clone(g.roots) }

// Node returns the node called alias.
func (g *Graph) Node(alias string) (Node, bool) {
	n, ok := g.nodes[alias]
	return n, ok
}

// Nodes returns every node in insertion order. Inputs always precede the
// nodes that read them.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.order))
	for i, alias := range g.order {
		out[i] = g.nodes[alias]
	}
	return out
}

// Consumers returns the aliases of nodes reading alias, in insertion order.
func (g *Graph) Consumers(alias string) []string {
	return slices.Clone(g.consumers[alias])
}

// HasRoot reports whether alias is one of the graph's roots.
func (g *Graph) HasRoot(alias string) bool {
	return slices.Contains(g.roots, alias)
}

// Definition is a named collection of graphs, the unit persisted by the
// query store.
type Definition struct {
	Name   string
	Graphs map[string]*Graph
}

// NewDefinition groups graphs under name. Graph names must be unique.
func NewDefinition(name string, graphs ...*Graph) (*Definition, error) {
	if name == "" {
		return nil, invalidGraph("", "definition name must not be empty")
	}
	d := &Definition{Name: name, Graphs: make(map[string]*Graph, len(graphs))}
	for _, g := range graphs {
		if _, dup := d.Graphs[g.Name()]; dup {
			return nil, &BuildError{Code: ErrCodeDuplicateAlias, Alias: g.Name(), Message: "graph already defined in " + name}
		}
		d.Graphs[g.Name()] = g
	}
	return d, nil
}

// GraphNames returns the graph names in sorted order.
func (d *Definition) GraphNames() []string {
	names := make([]string, 0, len(d.Graphs))
	for name := range d.Graphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve finds the graph and node to evaluate for a requested alias.
//
// A graph keyed by alias wins; its node called alias is evaluated when it
// has one, otherwise its first root. Failing that, the first graph (by
// name) with a root called alias is used.
func (d *Definition) Resolve(alias string) (*Graph, string, bool) {
	if g, ok := d.Graphs[alias]; ok {
		if _, has := g.Node(alias); has {
			return g, alias, true
		}
		return g, g.roots[0], true
	}
	for _, name := range d.GraphNames() {
		g := d.Graphs[name]
		if g.HasRoot(alias) {
			return g, alias, true
		}
	}
	return nil, "", false
}
