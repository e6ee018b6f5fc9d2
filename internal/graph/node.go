package graph

import (
	"errors"
	"fmt"

	"github.com/roach88/fedq/internal/expr"
	"github.com/roach88/fedq/internal/source"
	"github.com/roach88/fedq/internal/value"
)

// Node is one operation in a query graph.
//
// Node is a sealed interface; only the types in this package implement it:
// *SourceNode, *SelectNode, *JoinNode, *UnionNode, *TransformationNode.
// Nodes are created by the Builder and never modified afterwards.
type Node interface {
	// Alias is the node's name, unique within its graph.
	Alias() string

	// Schema is the declared output schema. Columns are qualified by the
	// alias of the node that introduced them.
	Schema() value.Schema

	// Inputs lists the aliases this node reads, in order.
	Inputs() []string

	node()
}

type header struct {
	alias  string
	schema value.Schema
}

func (h header) Alias() string        { return h.alias }
func (h header) Schema() value.Schema { return h.schema }

// SourceNode is a leaf reading a registered source.
type SourceNode struct {
	header

	// Source is the registry entry. The node references it; the registry
	// owns it.
	Source *source.Source
}

func (*SourceNode) node()            {}
func (*SourceNode) Inputs() []string { return nil }

// SelectColumn is one entry of a projection list. As names the output
// column; when empty the referenced column's name is used.
type SelectColumn struct {
	Expr expr.Expr
	As   string
}

// Col is shorthand for a projection of a column reference.
func Col(ref expr.ColumnRef, as string) SelectColumn {
	return SelectColumn{Expr: ref, As: as}
}

// OutputName returns the column name this entry produces.
func (c SelectColumn) OutputName() string {
	if c.As != "" {
		return c.As
	}
	if ref, ok := c.Expr.(expr.ColumnRef); ok {
		return ref.Column
	}
	return ""
}

// SelectNode projects and filters its input.
type SelectNode struct {
	header

	Input   string
	Columns []SelectColumn

	// Filter is optional. References resolve against the projected names
	// first, then against the input columns.
	Filter expr.Predicate

	input   value.Schema
	indexes []int
}

func (*SelectNode) node()              {}
func (n *SelectNode) Inputs() []string { return []string{n.Input} }

// InputIndex returns the input position read by projection entry i, or -1
// when the entry is a literal.
func (n *SelectNode) InputIndex(i int) int {
	return n.indexes[i]
}

// ResolveFilter locates a filter reference. It reports whether the
// reference names a projected column and its position in the projected
// or input schema respectively.
func (n *SelectNode) ResolveFilter(ref expr.ColumnRef) (projected bool, idx int, err error) {
	if ref.Source == "" || ref.Source == n.alias {
		i, err := n.schema.Index("", ref.Column)
		if err == nil {
			return true, i, nil
		}
		if errors.Is(err, value.ErrAmbiguousColumn) {
			return false, -1, err
		}
		if ref.Source == n.alias {
			ref.Source = ""
		}
	}
	i, err := resolve(n.input, n.Input, ref)
	return false, i, err
}

// JoinNode is an inner join of two inputs.
type JoinNode struct {
	header

	Left  string
	Right string

	// On is the join predicate over left and right columns.
	On expr.Predicate

	left  value.Schema
	right value.Schema
}

func (*JoinNode) node()              {}
func (n *JoinNode) Inputs() []string { return []string{n.Left, n.Right} }

// Resolve locates a predicate reference in the joined schema. A reference
// qualified by an input's alias matches that input's columns by name.
func (n *JoinNode) Resolve(ref expr.ColumnRef) (int, error) {
	switch ref.Source {
	case n.Left:
		return n.left.Index("", ref.Column)
	case n.Right:
		i, err := n.right.Index("", ref.Column)
		if err != nil {
			return -1, err
		}
		return n.left.Len() + i, nil
	}
	return n.schema.Index(ref.Source, ref.Column)
}

// LeftWidth returns the number of columns contributed by the left input.
func (n *JoinNode) LeftWidth() int {
	return n.left.Len()
}

// UnionMode selects duplicate handling for a UnionNode.
type UnionMode string

const (
	// Union removes duplicate rows, keeping first occurrences.
	Union UnionMode = "union"

	// UnionAll keeps every row.
	UnionAll UnionMode = "union_all"
)

// ParseUnionMode converts a stored mode tag.
func ParseUnionMode(s string) (UnionMode, error) {
	switch UnionMode(s) {
	case Union, UnionAll:
		return UnionMode(s), nil
	}
	return "", fmt.Errorf("unknown union mode %q", s)
}

// UnionNode concatenates its inputs positionally.
type UnionNode struct {
	header

	Mode      UnionMode
	InputList []string
}

func (*UnionNode) node()              {}
func (n *UnionNode) Inputs() []string { return n.InputList }

// Rule rewrites one column of a TransformationNode's rows.
//
// Unfold expands an array column into one row per element. Flatten hoists
// the fields of an object value into sibling columns named
// "<prefix>.<field>", where the prefix is Alias when set and Column
// otherwise. A rule with neither flag renames Column to Alias.
type Rule struct {
	Column  string
	Alias   string
	Unfold  bool
	Flatten bool
}

// OutputName returns the name of the rewritten column.
func (r Rule) OutputName() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Column
}

// Step is a rule bound to the schema it applies to.
type Step struct {
	Rule

	// Index is the rule column's position before the rule applies.
	Index int

	// Fields lists the hoisted object fields when the rule flattens.
	Fields []string
}

// TransformationNode applies rules left to right to each input row.
type TransformationNode struct {
	header

	Input string
	Rules []Rule

	steps []Step
}

func (*TransformationNode) node()              {}
func (n *TransformationNode) Inputs() []string { return []string{n.Input} }

// Steps returns the rules bound to their schemas, in application order.
func (n *TransformationNode) Steps() []Step {
	return n.steps
}

// resolve locates ref in the output schema of the node called alias.
func resolve(schema value.Schema, alias string, ref expr.ColumnRef) (int, error) {
	if ref.Source == "" || ref.Source == alias {
		return schema.Index("", ref.Column)
	}
	return schema.Index(ref.Source, ref.Column)
}
