package querystore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/fedq/internal/graph"
)

// Version is the persisted format version written by Save.
const Version = 1

// Node type tags.
const (
	TypeSource         = "source"
	TypeSelect         = "select"
	TypeJoin           = "join"
	TypeUnion          = "union"
	TypeTransformation = "transformation"
)

// JoinInner is the only supported join kind.
const JoinInner = "inner"

// Document is the persisted form of a federated query definition.
//
// Predicates and select expressions are stored in their textual form
// ([alias.column] references, SQL-style literals) so documents stay
// readable and diffable.
type Document struct {
	Version int             `json:"version"`
	Name    string          `json:"name"`
	Graphs  []GraphDocument `json:"graphs"`
}

// GraphDocument is one named graph.
type GraphDocument struct {
	Name  string         `json:"name"`
	Roots []string       `json:"roots,omitempty"`
	Nodes []NodeDocument `json:"nodes"`
}

// NodeDocument is one node. Type selects which parameters apply.
type NodeDocument struct {
	Alias   string           `json:"alias"`
	Type    string           `json:"type"`
	Source  string           `json:"source,omitempty"`
	Inputs  []string         `json:"inputs,omitempty"`
	Columns []ColumnDocument `json:"columns,omitempty"`
	Filter  string           `json:"filter,omitempty"`
	On      string           `json:"on,omitempty"`
	Kind    string           `json:"kind,omitempty"`
	Mode    string           `json:"mode,omitempty"`
	Rules   []RuleDocument   `json:"rules,omitempty"`
}

// ColumnDocument is one select output column.
type ColumnDocument struct {
	Expr string `json:"expr"`
	As   string `json:"as,omitempty"`
}

// RuleDocument is one transformation rule.
type RuleDocument struct {
	Column  string `json:"column"`
	Alias   string `json:"alias,omitempty"`
	Unfold  bool   `json:"unfold,omitempty"`
	Flatten bool   `json:"flatten,omitempty"`
}

// Save serializes def.
//
// Output is deterministic: graphs are ordered by name, nodes in insertion
// order (which is topological), and the encoding is indented JSON ending
// in a newline. Save(Load(Save(d))) is byte-identical to Save(d).
func Save(def *graph.Definition) ([]byte, error) {
	doc, err := Encode(def)
	if err != nil {
		return nil, err
	}
	return Marshal(doc)
}

// Marshal encodes doc in the persisted layout.
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode definition %q: %w", doc.Name, err)
	}
	return buf.Bytes(), nil
}

// Encode converts def to its document form.
func Encode(def *graph.Definition) (*Document, error) {
	doc := &Document{Version: Version, Name: def.Name, Graphs: []GraphDocument{}}
	for _, name := range def.GraphNames() {
		g := def.Graphs[name]
		gd := GraphDocument{Name: name, Roots: g.Roots()}
		for _, n := range g.Nodes() {
			nd, err := encodeNode(n)
			if err != nil {
				return nil, fmt.Errorf("encode graph %q: %w", name, err)
			}
			gd.Nodes = append(gd.Nodes, nd)
		}
		doc.Graphs = append(doc.Graphs, gd)
	}
	return doc, nil
}

func encodeNode(n graph.Node) (NodeDocument, error) {
	nd := NodeDocument{Alias: n.Alias(), Inputs: n.Inputs()}
	switch node := n.(type) {
	case *graph.SourceNode:
		nd.Type = TypeSource
		nd.Source = node.Source.Name
	case *graph.SelectNode:
		nd.Type = TypeSelect
		for _, c := range node.Columns {
			cd := ColumnDocument{Expr: c.Expr.String(), As: c.As}
			nd.Columns = append(nd.Columns, cd)
		}
		if node.Filter != nil {
			nd.Filter = node.Filter.String()
		}
	case *graph.JoinNode:
		nd.Type = TypeJoin
		nd.On = node.On.String()
		nd.Kind = JoinInner
	case *graph.UnionNode:
		nd.Type = TypeUnion
		nd.Mode = string(node.Mode)
	case *graph.TransformationNode:
		nd.Type = TypeTransformation
		for _, r := range node.Rules {
			nd.Rules = append(nd.Rules, RuleDocument{
				Column:  r.Column,
				Alias:   r.Alias,
				Unfold:  r.Unfold,
				Flatten: r.Flatten,
			})
		}
	default:
		return NodeDocument{}, fmt.Errorf("unsupported node type %T", n)
	}
	return nd, nil
}
