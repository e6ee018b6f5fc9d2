package expr

import (
	"strconv"
	"strings"

	"github.com/roach88/fedq/internal/value"
)

// ColumnRef names a column visible in a node's scope.
//
// Textual form: [Source.Column], or [Column] when Source is empty. A bare
// column whose name contains a dot is written [.Column]; a literal ']'
// inside a name is doubled.
type ColumnRef struct {
	Source string
	Column string
}

// Ref is a convenience constructor for ColumnRef.
func Ref(source, column string) ColumnRef {
	return ColumnRef{Source: source, Column: column}
}

func (ColumnRef) exprNode() {}

func (r ColumnRef) String() string {
	var b strings.Builder
	b.WriteByte('[')
	switch {
	case r.Source != "":
		b.WriteString(escapeName(r.Source))
		b.WriteByte('.')
	case strings.Contains(r.Column, "."):
		b.WriteByte('.')
	}
	b.WriteString(escapeName(r.Column))
	b.WriteByte(']')
	return b.String()
}

func escapeName(s string) string {
	return strings.ReplaceAll(s, "]", "]]")
}

// Expr is a value-producing expression: a column reference or a literal.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
	String() string
}

// Literal is a constant value.
type Literal struct {
	Value value.Value
}

// Lit wraps v as a Literal.
func Lit(v value.Value) Literal {
	return Literal{Value: v}
}

func (Literal) exprNode() {}

func (l Literal) String() string {
	switch v := l.Value.(type) {
	case nil, value.Null:
		return "NULL"
	case value.String:
		return "'" + strings.ReplaceAll(string(v), "'", "''") + "'"
	case value.Int:
		return strconv.FormatInt(int64(v), 10)
	case value.Float:
		s := strconv.FormatFloat(float64(v), 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEIN") {
			s += ".0"
		}
		return s
	case value.Bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case value.Date:
		return "#" + v.String() + "#"
	default:
		return value.Format(l.Value)
	}
}

// Predicate is a boolean condition over expressions.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Compare: left <op> right
//   - IsNull: expr IS [NOT] NULL
//   - And / Or: conjunction / disjunction of terms
//   - Not: negation
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
	String() string
}

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "<>"
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Valid reports whether op is a known operator.
func (op Op) Valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Flip returns the operator with operands swapped (a < b becomes b > a).
func (op Op) Flip() Op {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return op
}

// Compare compares two expressions.
//
// A comparison involving Null is false for every operator.
type Compare struct {
	Op    Op
	Left  Expr
	Right Expr
}

func (Compare) predicateNode() {}

func (c Compare) String() string {
	return c.Left.String() + " " + string(c.Op) + " " + c.Right.String()
}

// Eq builds "left = right".
func Eq(left, right Expr) Compare {
	return Compare{Op: OpEq, Left: left, Right: right}
}

// IsNull tests whether an expression is Null.
type IsNull struct {
	Expr    Expr
	Negated bool
}

func (IsNull) predicateNode() {}

func (n IsNull) String() string {
	if n.Negated {
		return n.Expr.String() + " IS NOT NULL"
	}
	return n.Expr.String() + " IS NULL"
}

// And is true when every term is true.
type And struct {
	Terms []Predicate
}

func (And) predicateNode() {}

func (a And) String() string {
	return joinTerms(a.Terms, " AND ", true)
}

// Or is true when any term is true.
type Or struct {
	Terms []Predicate
}

func (Or) predicateNode() {}

func (o Or) String() string {
	return joinTerms(o.Terms, " OR ", false)
}

// Not negates its term.
type Not struct {
	Term Predicate
}

func (Not) predicateNode() {}

func (n Not) String() string {
	return "NOT " + wrap(n.Term, true)
}

func joinTerms(terms []Predicate, sep string, inAnd bool) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = wrap(t, inAnd)
	}
	return strings.Join(parts, sep)
}

// wrap parenthesizes compound terms so String output parses back to the
// same tree. An And nested in an Or needs no parentheses since AND binds
// tighter.
func wrap(p Predicate, tight bool) string {
	switch p.(type) {
	case Or:
		return "(" + p.String() + ")"
	case And:
		if tight {
			return "(" + p.String() + ")"
		}
	}
	return p.String()
}

// Refs returns every column reference in p, in textual order.
func Refs(p Predicate) []ColumnRef {
	var refs []ColumnRef
	walk(p, func(e Expr) {
		if r, ok := e.(ColumnRef); ok {
			refs = append(refs, r)
		}
	})
	return refs
}

func walk(p Predicate, fn func(Expr)) {
	switch pred := p.(type) {
	case Compare:
		fn(pred.Left)
		fn(pred.Right)
	case IsNull:
		fn(pred.Expr)
	case And:
		for _, t := range pred.Terms {
			walk(t, fn)
		}
	case Or:
		for _, t := range pred.Terms {
			walk(t, fn)
		}
	case Not:
		walk(pred.Term, fn)
	}
}

// Rewrite returns a copy of p with every column reference passed through fn.
func Rewrite(p Predicate, fn func(ColumnRef) ColumnRef) Predicate {
	rewriteExpr := func(e Expr) Expr {
		if r, ok := e.(ColumnRef); ok {
			return fn(r)
		}
		return e
	}
	switch pred := p.(type) {
	case Compare:
		return Compare{Op: pred.Op, Left: rewriteExpr(pred.Left), Right: rewriteExpr(pred.Right)}
	case IsNull:
		return IsNull{Expr: rewriteExpr(pred.Expr), Negated: pred.Negated}
	case And:
		return And{Terms: rewriteTerms(pred.Terms, fn)}
	case Or:
		return Or{Terms: rewriteTerms(pred.Terms, fn)}
	case Not:
		return Not{Term: Rewrite(pred.Term, fn)}
	}
	return p
}

func rewriteTerms(terms []Predicate, fn func(ColumnRef) ColumnRef) []Predicate {
	out := make([]Predicate, len(terms))
	for i, t := range terms {
		out[i] = Rewrite(t, fn)
	}
	return out
}

// EquiJoin reports whether p is a single equality between two column
// references, returning them in textual order.
func EquiJoin(p Predicate) (left, right ColumnRef, ok bool) {
	c, isCmp := p.(Compare)
	if !isCmp || c.Op != OpEq {
		return ColumnRef{}, ColumnRef{}, false
	}
	l, lok := c.Left.(ColumnRef)
	r, rok := c.Right.(ColumnRef)
	if !lok || !rok {
		return ColumnRef{}, ColumnRef{}, false
	}
	return l, r, true
}
