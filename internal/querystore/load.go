package querystore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/roach88/fedq/internal/expr"
	"github.com/roach88/fedq/internal/graph"
)

// Load decodes a persisted definition and rebuilds it against sources.
//
// Structural problems fail with a MALFORMED_DEFINITION *DecodeError.
// Every graph is rebuilt through graph.Builder, so graph invariants are
// re-validated and violations surface as *graph.BuildError.
func Load(data []byte, sources graph.Sources) (*graph.Definition, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Build(doc, sources)
}

// Decode parses data strictly: unknown fields, trailing content and
// unsupported versions are rejected.
func Decode(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, malformedErr("", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, malformed("", "unexpected content after definition")
	}
	if doc.Version != Version {
		return nil, malformed("version", "unsupported version %d (want %d)", doc.Version, Version)
	}
	return &doc, nil
}

// Build validates doc structurally and rebuilds its graphs.
func Build(doc *Document, sources graph.Sources) (*graph.Definition, error) {
	if doc.Name == "" {
		return nil, malformed("name", "definition name is required")
	}
	graphs := make([]*graph.Graph, 0, len(doc.Graphs))
	for i, gd := range doc.Graphs {
		path := fmt.Sprintf("graphs[%d]", i)
		g, err := buildGraph(path, gd, sources)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graph.NewDefinition(doc.Name, graphs...)
}

func buildGraph(path string, gd GraphDocument, sources graph.Sources) (*graph.Graph, error) {
	if gd.Name == "" {
		return nil, malformed(path+".name", "graph name is required")
	}
	if len(gd.Nodes) == 0 {
		return nil, malformed(path+".nodes", "graph %q has no nodes", gd.Name)
	}
	for i, nd := range gd.Nodes {
		if err := checkNode(fmt.Sprintf("%s.nodes[%d]", path, i), nd); err != nil {
			return nil, err
		}
	}

	order, err := topoSort(gd.Nodes)
	if err != nil {
		return nil, err
	}
	b := graph.NewBuilder(sources)
	for _, i := range order {
		b, err = addNode(fmt.Sprintf("%s.nodes[%d]", path, i), b, gd.Nodes[i])
		if err != nil {
			return nil, err
		}
	}
	return b.Build(gd.Name, gd.Roots...)
}

// checkNode verifies the type tag and that the tag's parameters are
// present with the right arity.
func checkNode(path string, nd NodeDocument) error {
	if nd.Alias == "" {
		return malformed(path+".alias", "alias is required")
	}
	// hi < 0 means unbounded.
	inputs := func(lo, hi int) error {
		n := len(nd.Inputs)
		if n < lo || (hi >= 0 && n > hi) {
			if lo == hi {
				return malformed(path+".inputs", "%s node takes %d input(s), got %d", nd.Type, lo, n)
			}
			return malformed(path+".inputs", "%s node takes at least %d inputs, got %d", nd.Type, lo, n)
		}
		return nil
	}

	switch nd.Type {
	case TypeSource:
		if nd.Source == "" {
			return malformed(path+".source", "source name is required")
		}
		return inputs(0, 0)
	case TypeSelect:
		if len(nd.Columns) == 0 {
			return malformed(path+".columns", "select requires columns")
		}
		return inputs(1, 1)
	case TypeJoin:
		if nd.On == "" {
			return malformed(path+".on", "join requires a predicate")
		}
		if nd.Kind != "" && nd.Kind != JoinInner {
			return malformed(path+".kind", "unsupported join kind %q", nd.Kind)
		}
		return inputs(2, 2)
	case TypeUnion:
		if _, err := graph.ParseUnionMode(nd.Mode); err != nil {
			return malformedErr(path+".mode", err)
		}
		return inputs(2, -1)
	case TypeTransformation:
		if len(nd.Rules) == 0 {
			return malformed(path+".rules", "transformation requires rules")
		}
		return inputs(1, 1)
	case "":
		return malformed(path+".type", "type is required")
	default:
		return malformed(path+".type", "unknown node type %q", nd.Type)
	}
}

// topoSort orders nodes so inputs precede consumers, keeping document
// order where it is already valid. Inputs naming no node in the list are
// left for the builder to report.
func topoSort(nodes []NodeDocument) ([]int, error) {
	index := make(map[string]int, len(nodes))
	for i, nd := range nodes {
		if _, dup := index[nd.Alias]; dup {
			return nil, &graph.BuildError{Code: graph.ErrCodeDuplicateAlias, Alias: nd.Alias, Message: "alias defined twice"}
		}
		index[nd.Alias] = i
	}

	const (
		visiting = iota + 1
		done
	)
	state := make([]int, len(nodes))
	order := make([]int, 0, len(nodes))
	var visit func(i int, trail []string) error
	visit = func(i int, trail []string) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return graph.InvalidGraph(nodes[i].Alias, "cycle: %v", append(trail, nodes[i].Alias))
		}
		state[i] = visiting
		next := append(slices.Clip(trail), nodes[i].Alias)
		for _, in := range nodes[i].Inputs {
			if j, ok := index[in]; ok {
				if err := visit(j, next); err != nil {
					return err
				}
			}
		}
		state[i] = done
		order = append(order, i)
		return nil
	}
	for i := range nodes {
		if err := visit(i, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func addNode(path string, b graph.Builder, nd NodeDocument) (graph.Builder, error) {
	switch nd.Type {
	case TypeSource:
		return b.Source(nd.Alias, nd.Source)

	case TypeSelect:
		cols := make([]graph.SelectColumn, len(nd.Columns))
		for i, cd := range nd.Columns {
			e, err := expr.ParseExpr(cd.Expr)
			if err != nil {
				return b, malformedErr(fmt.Sprintf("%s.columns[%d].expr", path, i), err)
			}
			cols[i] = graph.SelectColumn{Expr: e, As: cd.As}
		}
		var filter expr.Predicate
		if nd.Filter != "" {
			p, err := expr.Parse(nd.Filter)
			if err != nil {
				return b, malformedErr(path+".filter", err)
			}
			filter = p
		}
		return b.Select(nd.Alias, nd.Inputs[0], cols, filter)

	case TypeJoin:
		on, err := expr.Parse(nd.On)
		if err != nil {
			return b, malformedErr(path+".on", err)
		}
		return b.Join(nd.Alias, nd.Inputs[0], nd.Inputs[1], on)

	case TypeUnion:
		return b.Union(nd.Alias, graph.UnionMode(nd.Mode), nd.Inputs...)

	case TypeTransformation:
		rules := make([]graph.Rule, len(nd.Rules))
		for i, rd := range nd.Rules {
			rules[i] = graph.Rule{Column: rd.Column, Alias: rd.Alias, Unfold: rd.Unfold, Flatten: rd.Flatten}
		}
		return b.Transform(nd.Alias, nd.Inputs[0], rules...)
	}
	return b, malformed(path+".type", "unknown node type %q", nd.Type)
}
