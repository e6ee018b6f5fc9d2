package graph

import (
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/fedq/internal/expr"
	"github.com/roach88/fedq/internal/source"
	"github.com/roach88/fedq/internal/value"
)

// Sources resolves source names. *source.Registry implements it.
type Sources interface {
	Lookup(name string) (*source.Source, bool)
}

// Builder assembles a query graph.
//
// Builder is persistent: every method returns a new Builder and leaves the
// receiver unchanged, so a partial graph can be branched into several
// continuations. Validation is incremental; each call checks the node it
// adds against the nodes already present.
type Builder struct {
	sources Sources
	nodes   map[string]Node
	order   []string
}

// NewBuilder returns an empty builder resolving sources in sources.
func NewBuilder(sources Sources) Builder {
	return Builder{sources: sources, nodes: map[string]Node{}}
}

// Has reports whether alias is defined.
func (b Builder) Has(alias string) bool {
	_, ok := b.nodes[alias]
	return ok
}

// Node returns the node called alias.
func (b Builder) Node(alias string) (Node, bool) {
	n, ok := b.nodes[alias]
	return n, ok
}

// Aliases returns the defined aliases in insertion order.
func (b Builder) Aliases() []string {
	return slices.Clone(b.order)
}

func (b Builder) with(n Node) Builder {
	nodes := maps.Clone(b.nodes)
	nodes[n.Alias()] = n
	return Builder{
		sources: b.sources,
		nodes:   nodes,
		order:   append(slices.Clip(b.order), n.Alias()),
	}
}

// checkAlias validates a new alias. Aliases are used in bracketed
// references, so they may not contain '.', '[' or ']'.
func (b Builder) checkAlias(alias string) error {
	if alias == "" {
		return invalidGraph("", "alias must not be empty")
	}
	if strings.ContainsAny(alias, ".[]") {
		return invalidGraph(alias, "alias must not contain '.', '[' or ']'")
	}
	if b.Has(alias) {
		return duplicateAlias(alias)
	}
	return nil
}

func (b Builder) input(consumer, alias string) (Node, error) {
	n, ok := b.nodes[alias]
	if !ok {
		return nil, unknownAlias(consumer, "input %q is not defined", alias)
	}
	return n, nil
}

func refError(alias string, ref expr.ColumnRef, err error) error {
	if errors.Is(err, value.ErrAmbiguousColumn) {
		return &BuildError{Code: ErrCodeInvalidGraph, Alias: alias, Message: "ambiguous column " + ref.String(), Err: err}
	}
	return &BuildError{Code: ErrCodeUnknownAlias, Alias: alias, Message: "cannot resolve column " + ref.String(), Err: err}
}

// Source adds a leaf reading the registered source sourceName.
func (b Builder) Source(alias, sourceName string) (Builder, error) {
	if err := b.checkAlias(alias); err != nil {
		return b, err
	}
	var src *source.Source
	ok := false
	if b.sources != nil {
		src, ok = b.sources.Lookup(sourceName)
	}
	if !ok {
		return b, unknownAlias(alias, "source %q is not registered", sourceName)
	}
	return b.with(&SourceNode{
		header: header{alias: alias, schema: src.Schema.Qualified(alias)},
		Source: src,
	}), nil
}

// Select adds a projection of input with an optional filter.
func (b Builder) Select(alias, input string, columns []SelectColumn, filter expr.Predicate) (Builder, error) {
	if err := b.checkAlias(alias); err != nil {
		return b, err
	}
	in, err := b.input(alias, input)
	if err != nil {
		return b, err
	}
	if len(columns) == 0 {
		return b, invalidGraph(alias, "select requires at least one column")
	}

	inSchema := in.Schema()
	cols := make([]value.Column, len(columns))
	indexes := make([]int, len(columns))
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		name := c.OutputName()
		if name == "" {
			return b, invalidGraph(alias, "select column %d needs an output name", i+1)
		}
		if strings.ContainsAny(name, "[]") {
			return b, invalidGraph(alias, "column name %q must not contain '[' or ']'", name)
		}
		if seen[name] {
			return b, invalidGraph(alias, "duplicate output column %q", name)
		}
		seen[name] = true

		switch e := c.Expr.(type) {
		case expr.ColumnRef:
			idx, err := resolve(inSchema, input, e)
			if err != nil {
				return b, refError(alias, e, err)
			}
			col := inSchema.Columns[idx]
			col.Name = name
			cols[i] = col
			indexes[i] = idx
		case expr.Literal:
			t := value.TypeAny
			if e.Value != nil {
				t = e.Value.Kind()
			}
			cols[i] = value.Column{Name: name, Type: t}
			indexes[i] = -1
		default:
			return b, invalidGraph(alias, "unsupported select expression %T", c.Expr)
		}
	}

	n := &SelectNode{
		header:  header{alias: alias, schema: value.NewSchema(cols...).Qualified(alias)},
		Input:   input,
		Columns: slices.Clone(columns),
		Filter:  filter,
		input:   inSchema,
		indexes: indexes,
	}
	if filter != nil {
		for _, ref := range expr.Refs(filter) {
			if _, _, err := n.ResolveFilter(ref); err != nil {
				return b, refError(alias, ref, err)
			}
		}
	}
	return b.with(n), nil
}

// Join adds an inner join of left and right on the predicate on.
//
// The output keeps each input's column qualifiers, so the inputs must not
// share a qualifier.
func (b Builder) Join(alias, left, right string, on expr.Predicate) (Builder, error) {
	if err := b.checkAlias(alias); err != nil {
		return b, err
	}
	l, err := b.input(alias, left)
	if err != nil {
		return b, err
	}
	r, err := b.input(alias, right)
	if err != nil {
		return b, err
	}
	if left == right {
		return b, invalidGraph(alias, "join inputs must differ, got %q twice", left)
	}
	if on == nil {
		return b, invalidGraph(alias, "join requires a predicate")
	}

	ls, rs := l.Schema(), r.Schema()
	leftQualifiers := ls.Qualifiers()
	for _, q := range rs.Qualifiers() {
		if slices.Contains(leftQualifiers, q) {
			return b, invalidGraph(alias, "join inputs %q and %q both expose columns of %q", left, right, q)
		}
	}

	cols := make([]value.Column, 0, ls.Len()+rs.Len())
	cols = append(cols, ls.Columns...)
	cols = append(cols, rs.Columns...)

	n := &JoinNode{
		header: header{alias: alias, schema: value.NewSchema(cols...)},
		Left:   left,
		Right:  right,
		On:     on,
		left:   ls,
		right:  rs,
	}
	for _, ref := range expr.Refs(on) {
		if _, err := n.Resolve(ref); err != nil {
			return b, refError(alias, ref, err)
		}
	}
	return b.with(n), nil
}

// Union adds a positional concatenation of two or more inputs. The output
// schema is the first input's; every input must have the same column
// count and pairwise compatible types.
func (b Builder) Union(alias string, mode UnionMode, inputs ...string) (Builder, error) {
	if err := b.checkAlias(alias); err != nil {
		return b, err
	}
	if _, err := ParseUnionMode(string(mode)); err != nil {
		return b, invalidGraph(alias, "%v", err)
	}
	if len(inputs) < 2 {
		return b, invalidGraph(alias, "union requires at least two inputs, got %d", len(inputs))
	}

	var first value.Schema
	for i, name := range inputs {
		in, err := b.input(alias, name)
		if err != nil {
			return b, err
		}
		s := in.Schema()
		if i == 0 {
			first = s
			continue
		}
		if s.Len() != first.Len() {
			return b, invalidGraph(alias, "union input %q has %d columns, %q has %d",
				name, s.Len(), inputs[0], first.Len())
		}
		for j, c := range s.Columns {
			want := first.Columns[j]
			if !value.Compatible(want.Type, c.Type) {
				return b, invalidGraph(alias, "union column %d: %s is not compatible with %s",
					j+1, c, want)
			}
		}
	}

	return b.with(&UnionNode{
		header:    header{alias: alias, schema: first.Qualified(alias)},
		Mode:      mode,
		InputList: slices.Clone(inputs),
	}), nil
}

// Transform adds a node applying rules to each row of input.
func (b Builder) Transform(alias, input string, rules ...Rule) (Builder, error) {
	if err := b.checkAlias(alias); err != nil {
		return b, err
	}
	in, err := b.input(alias, input)
	if err != nil {
		return b, err
	}
	if len(rules) == 0 {
		return b, invalidGraph(alias, "transformation requires at least one rule")
	}

	cols := slices.Clone(in.Schema().Columns)
	steps := make([]Step, len(rules))
	for i, r := range rules {
		step, next, err := bindRule(alias, cols, r)
		if err != nil {
			return b, err
		}
		steps[i] = step
		cols = next
	}

	return b.with(&TransformationNode{
		header: header{alias: alias, schema: value.NewSchema(cols...).Qualified(alias)},
		Input:  input,
		Rules:  slices.Clone(rules),
		steps:  steps,
	}), nil
}

// bindRule checks r against cols and returns the columns after r applies.
func bindRule(alias string, cols []value.Column, r Rule) (Step, []value.Column, error) {
	idx := -1
	for i, c := range cols {
		if c.Name == r.Column {
			if idx >= 0 {
				return Step{}, nil, invalidGraph(alias, "rule column %q is ambiguous", r.Column)
			}
			idx = i
		}
	}
	if idx < 0 {
		return Step{}, nil, invalidGraph(alias, "rule column %q is not in the input schema", r.Column)
	}
	if strings.ContainsAny(r.Alias, "[]") {
		return Step{}, nil, invalidGraph(alias, "rule alias %q must not contain '[' or ']'", r.Alias)
	}

	step := Step{Rule: r, Index: idx}
	target := cols[idx]

	if r.Unfold {
		switch target.Type {
		case value.TypeArray:
			if target.Elem != nil {
				elem := *target.Elem
				elem.Qualifier = target.Qualifier
				target = elem
			} else {
				target = value.Column{Qualifier: target.Qualifier, Type: value.TypeAny}
			}
		case value.TypeAny:
		default:
			return Step{}, nil, invalidGraph(alias, "cannot unfold %s column %q", target.Type, r.Column)
		}
	}

	// Flatten hoists fields only when the object shape is known; any other
	// value stays a single column under the output name.
	var replacement []value.Column
	if r.Flatten && target.HasShape() {
		prefix := r.OutputName()
		for _, f := range target.Fields {
			step.Fields = append(step.Fields, f.Name)
			f.Qualifier = target.Qualifier
			f.Name = prefix + "." + f.Name
			replacement = append(replacement, f)
		}
	} else {
		target.Name = r.OutputName()
		replacement = []value.Column{target}
	}

	next := make([]value.Column, 0, len(cols)+len(replacement)-1)
	next = append(next, cols[:idx]...)
	next = append(next, replacement...)
	next = append(next, cols[idx+1:]...)

	taken := make(map[string]bool, len(cols))
	for i, c := range cols {
		if i != idx {
			taken[c.Name] = true
		}
	}
	for _, c := range replacement {
		if taken[c.Name] {
			return Step{}, nil, invalidGraph(alias, "rule on %q produces duplicate column %q", r.Column, c.Name)
		}
		taken[c.Name] = true
	}
	return step, next, nil
}

// Build closes the graph under name.
//
// Roots default to every node that no other node consumes, in insertion
// order. Nodes unreachable from the roots are dropped.
func (b Builder) Build(name string, roots ...string) (*Graph, error) {
	if name == "" {
		return nil, invalidGraph("", "graph name must not be empty")
	}
	if len(b.order) == 0 {
		return nil, invalidGraph("", "graph %q has no nodes", name)
	}

	consumed := make(map[string]bool)
	for _, alias := range b.order {
		for _, in := range b.nodes[alias].Inputs() {
			consumed[in] = true
		}
	}
	if len(roots) == 0 {
		for _, alias := range b.order {
			if !consumed[alias] {
				roots = append(roots, alias)
			}
		}
	}

	reachable := make(map[string]bool)
	var visit func(alias string)
	visit = func(alias string) {
		if reachable[alias] {
			return
		}
		reachable[alias] = true
		for _, in := range b.nodes[alias].Inputs() {
			visit(in)
		}
	}
	seenRoot := make(map[string]bool, len(roots))
	for _, r := range roots {
		if !b.Has(r) {
			return nil, unknownAlias(r, "root is not defined in graph %q", name)
		}
		if seenRoot[r] {
			return nil, invalidGraph(r, "root listed twice in graph %q", name)
		}
		seenRoot[r] = true
		visit(r)
	}

	g := &Graph{
		name:      name,
		roots:     slices.Clone(roots),
		nodes:     make(map[string]Node, len(reachable)),
		consumers: make(map[string][]string),
	}
	for _, alias := range b.order {
		if !reachable[alias] {
			continue
		}
		n := b.nodes[alias]
		g.nodes[alias] = n
		g.order = append(g.order, alias)
		for _, in := range n.Inputs() {
			if !slices.Contains(g.consumers[in], alias) {
				g.consumers[in] = append(g.consumers[in], alias)
			}
		}
	}
	return g, nil
}
