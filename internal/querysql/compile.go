package querysql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/fedq/internal/expr"
	"github.com/roach88/fedq/internal/value"
)

// Dialect selects identifier quoting for the target database.
type Dialect int

const (
	// DialectSQLite quotes identifiers with double quotes.
	DialectSQLite Dialect = iota

	// DialectMySQL quotes identifiers with backticks.
	DialectMySQL
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	case "mysql":
		return DialectMySQL, nil
	default:
		return DialectSQLite, fmt.Errorf("unsupported SQL driver %q", driver)
	}
}

// QuoteIdent quotes a column or table name for the dialect.
func (d Dialect) QuoteIdent(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Query is a compiled fetch: SQL text plus positional parameters and the
// part of the filter that was translated.
type Query struct {
	SQL    string
	Params []any

	// Pushed is the subset of the requested filter that SQL evaluates.
	// Nil when nothing could be pushed.
	Pushed expr.Predicate
}

// SQLCompiler compiles fetch requests to parameterized SQL.
//
// CRITICAL: All values are parameterized (never interpolated).
// Only predicates whose SQL semantics match local evaluation are pushed;
// the engine re-applies the full filter to whatever comes back.
type SQLCompiler struct {
	Dialect Dialect

	// Schema describes the base relation. Comparisons against columns
	// whose type is not comparable with the literal stay local.
	Schema value.Schema
}

// NewSQLCompiler creates a compiler for the dialect and base schema.
func NewSQLCompiler(d Dialect, schema value.Schema) *SQLCompiler {
	return &SQLCompiler{Dialect: d, Schema: schema}
}

var selectPrefix = regexp.MustCompile(`(?is)^\s*(select|with)\s`)

// IsQueryText reports whether base is a SELECT statement rather than a
// table name.
func IsQueryText(base string) bool {
	return selectPrefix.MatchString(base)
}

// From renders the FROM clause target for base: a derived table for SQL
// text, a quoted identifier for a table name.
func (c *SQLCompiler) From(base string) string {
	if IsQueryText(base) {
		return "(" + strings.TrimRight(strings.TrimSpace(base), ";") + ") AS src"
	}
	return c.Dialect.QuoteIdent(base)
}

// Compile converts a column list and optional filter over base to SQL.
//
// Example:
//
//	SELECT "OrderID", "OrderDate" FROM (SELECT * FROM Orders) AS src
//	WHERE "OrderID" = ?
func (c *SQLCompiler) Compile(base string, columns []string, filter expr.Predicate) (Query, error) {
	if base == "" {
		return Query{}, fmt.Errorf("cannot compile query with empty base")
	}

	selectClause := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, col := range columns {
			quoted[i] = c.Dialect.QuoteIdent(col)
		}
		selectClause = strings.Join(quoted, ", ")
	}

	q := Query{SQL: fmt.Sprintf("SELECT %s FROM %s", selectClause, c.From(base))}

	if filter != nil {
		sql, params, pushed := c.compilePredicate(filter)
		if pushed != nil {
			q.SQL += " WHERE " + sql
			q.Params = params
			q.Pushed = pushed
		}
	}

	return q, nil
}

// compilePredicate translates p. It returns the pushed predicate, or nil
// when p cannot be evaluated by SQL with identical results.
//
// And pushes its pushable terms. Or pushes only when every term is
// pushable. Not is never pushed: SQL three-valued logic keeps
// NOT (col = 1) false for a NULL col, while local evaluation yields true.
func (c *SQLCompiler) compilePredicate(p expr.Predicate) (string, []any, expr.Predicate) {
	switch pred := p.(type) {
	case expr.Compare:
		return c.compileCompare(pred)
	case *expr.Compare:
		return c.compileCompare(*pred)
	case expr.IsNull:
		return c.compileIsNull(pred)
	case expr.And:
		return c.compileAnd(pred)
	case expr.Or:
		return c.compileOr(pred)
	default:
		return "", nil, nil
	}
}

func (c *SQLCompiler) compileCompare(cmp expr.Compare) (string, []any, expr.Predicate) {
	left, leftType, leftParams, ok := c.compileOperand(cmp.Left)
	if !ok {
		return "", nil, nil
	}
	right, rightType, rightParams, ok := c.compileOperand(cmp.Right)
	if !ok {
		return "", nil, nil
	}
	if !value.Comparable(leftType, rightType) {
		return "", nil, nil
	}
	// Date comparisons depend on the storage format; keep them local.
	if leftType == value.TypeDate || rightType == value.TypeDate {
		return "", nil, nil
	}
	// MySQL's default collation is case-insensitive, which only widens "=".
	if c.Dialect == DialectMySQL && cmp.Op != expr.OpEq &&
		(leftType == value.TypeString || rightType == value.TypeString) {
		return "", nil, nil
	}

	sql := fmt.Sprintf("%s %s %s", left, cmp.Op, right)
	return sql, append(leftParams, rightParams...), cmp
}

// compileOperand renders a column or literal operand with its type.
// Null literals are not pushable.
func (c *SQLCompiler) compileOperand(e expr.Expr) (string, value.Type, []any, bool) {
	switch ex := e.(type) {
	case expr.ColumnRef:
		idx, err := c.Schema.Index("", ex.Column)
		if err != nil {
			return "", value.TypeAny, nil, false
		}
		col := c.Schema.Columns[idx]
		if col.Type == value.TypeAny {
			return "", value.TypeAny, nil, false
		}
		return c.Dialect.QuoteIdent(ex.Column), col.Type, nil, true
	case expr.Literal:
		if value.IsNull(ex.Value) {
			return "", value.TypeAny, nil, false
		}
		param, err := valueToParam(ex.Value)
		if err != nil {
			return "", value.TypeAny, nil, false
		}
		return "?", ex.Value.Kind(), []any{param}, true
	default:
		return "", value.TypeAny, nil, false
	}
}

func (c *SQLCompiler) compileIsNull(n expr.IsNull) (string, []any, expr.Predicate) {
	ref, ok := n.Expr.(expr.ColumnRef)
	if !ok {
		return "", nil, nil
	}
	if _, err := c.Schema.Index("", ref.Column); err != nil {
		return "", nil, nil
	}
	op := "IS NULL"
	if n.Negated {
		op = "IS NOT NULL"
	}
	return c.Dialect.QuoteIdent(ref.Column) + " " + op, nil, n
}

// compileAnd compiles the pushable terms of an And with AND.
func (c *SQLCompiler) compileAnd(and expr.And) (string, []any, expr.Predicate) {
	var sqlParts []string
	var allParams []any
	var pushed []expr.Predicate

	for _, term := range and.Terms {
		sql, params, p := c.compilePredicate(term)
		if p == nil {
			continue
		}
		sqlParts = append(sqlParts, "("+sql+")")
		allParams = append(allParams, params...)
		pushed = append(pushed, p)
	}

	switch len(pushed) {
	case 0:
		return "", nil, nil
	case 1:
		return strings.TrimSuffix(strings.TrimPrefix(sqlParts[0], "("), ")"), allParams, pushed[0]
	default:
		return strings.Join(sqlParts, " AND "), allParams, expr.And{Terms: pushed}
	}
}

// compileOr compiles an Or only when every term is pushable.
func (c *SQLCompiler) compileOr(or expr.Or) (string, []any, expr.Predicate) {
	sqlParts := make([]string, 0, len(or.Terms))
	var allParams []any
	for _, term := range or.Terms {
		sql, params, p := c.compilePredicate(term)
		if p == nil {
			return "", nil, nil
		}
		sqlParts = append(sqlParts, "("+sql+")")
		allParams = append(allParams, params...)
	}
	return strings.Join(sqlParts, " OR "), allParams, or
}

// valueToParam converts a value.Value to a Go native type for a SQL parameter.
// Arrays and objects are not supported as SQL parameters.
func valueToParam(v value.Value) (any, error) {
	switch val := v.(type) {
	case value.String:
		return string(val), nil
	case value.Int:
		return int64(val), nil
	case value.Float:
		return float64(val), nil
	case value.Bool:
		return bool(val), nil
	case value.Date:
		t := val.Time()
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(value.DateLayout), nil
		}
		return t.Format("2006-01-02 15:04:05"), nil
	case value.Null:
		return nil, nil
	case value.Array:
		return nil, fmt.Errorf("array cannot be used as SQL parameter directly")
	case value.Object:
		return nil, fmt.Errorf("object cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
