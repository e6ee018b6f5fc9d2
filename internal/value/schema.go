package value

import (
	"errors"
	"fmt"
	"strings"
)

// Type is the declared type of a column.
type Type uint8

const (
	// TypeAny means the type was not declared. It is compatible with every type.
	TypeAny Type = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeDate
	TypeArray
	TypeObject
)

var typeNames = map[Type]string{
	TypeAny:    "any",
	TypeString: "string",
	TypeInt:    "int",
	TypeFloat:  "float",
	TypeBool:   "bool",
	TypeDate:   "date",
	TypeArray:  "array",
	TypeObject: "object",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType parses a type name as produced by Type.String.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return TypeAny, fmt.Errorf("unknown type %q", s)
}

// Numeric reports whether t is TypeInt or TypeFloat.
func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeFloat
}

// Scalar reports whether values of t can be ordered by Compare.
func (t Type) Scalar() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeDate:
		return true
	}
	return false
}

// Compatible reports whether values of a and b can share a column position.
// Equal types, TypeAny, any numeric pair, and string/date are compatible.
func Compatible(a, b Type) bool {
	switch {
	case a == b, a == TypeAny, b == TypeAny:
		return true
	case a.Numeric() && b.Numeric():
		return true
	case (a == TypeString && b == TypeDate) || (a == TypeDate && b == TypeString):
		return true
	}
	return false
}

// Comparable reports whether columns of types a and b may be compared by a
// join or filter predicate. Arrays and objects are never comparable.
func Comparable(a, b Type) bool {
	if a == TypeArray || a == TypeObject || b == TypeArray || b == TypeObject {
		return false
	}
	return Compatible(a, b)
}

// Column describes one column of a schema.
//
// Qualifier is the alias of the node that owns the column. Elem describes
// array elements and Fields describes object members; both are optional.
type Column struct {
	Qualifier string
	Name      string
	Type      Type
	Elem      *Column
	Fields    []Column
}

// QualifiedName returns "qualifier.name", or just the name when unqualified.
func (c Column) QualifiedName() string {
	if c.Qualifier == "" {
		return c.Name
	}
	return c.Qualifier + "." + c.Name
}

// Field returns the object member called name, if the shape is known.
func (c Column) Field(name string) (Column, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Column{}, false
}

// HasShape reports whether object fields are known for c.
func (c Column) HasShape() bool {
	return c.Type == TypeObject && len(c.Fields) > 0
}

func (c Column) String() string {
	var b strings.Builder
	b.WriteString(c.QualifiedName())
	b.WriteByte(' ')
	b.WriteString(c.Type.String())
	if c.Elem != nil {
		b.WriteString("<")
		b.WriteString(c.Elem.Type.String())
		b.WriteString(">")
	}
	return b.String()
}

// Errors returned by Schema.Index.
var (
	ErrColumnNotFound  = errors.New("column not found")
	ErrAmbiguousColumn = errors.New("ambiguous column reference")
)

// Schema is an ordered list of columns.
type Schema struct {
	Columns []Column
}

// NewSchema returns a schema over cols.
func NewSchema(cols ...Column) Schema {
	return Schema{Columns: cols}
}

// Len returns the number of columns.
func (s Schema) Len() int {
	return len(s.Columns)
}

// Index resolves (qualifier, name) to a column position.
//
// An empty qualifier matches by name alone and must be unambiguous.
func (s Schema) Index(qualifier, name string) (int, error) {
	found := -1
	for i, c := range s.Columns {
		if c.Name != name {
			continue
		}
		if qualifier != "" && c.Qualifier != qualifier {
			continue
		}
		if found >= 0 {
			return -1, fmt.Errorf("%w: %s", ErrAmbiguousColumn, refName(qualifier, name))
		}
		found = i
	}
	if found < 0 {
		return -1, fmt.Errorf("%w: %s", ErrColumnNotFound, refName(qualifier, name))
	}
	return found, nil
}

func refName(qualifier, name string) string {
	if qualifier == "" {
		return name
	}
	return qualifier + "." + name
}

// Names returns the plain column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// QualifiedNames returns "qualifier.name" labels in order.
func (s Schema) QualifiedNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.QualifiedName()
	}
	return names
}

// Qualifiers returns the distinct qualifiers in first-occurrence order.
func (s Schema) Qualifiers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range s.Columns {
		if !seen[c.Qualifier] {
			seen[c.Qualifier] = true
			out = append(out, c.Qualifier)
		}
	}
	return out
}

// Qualified returns a copy of s with every column re-qualified by alias.
func (s Schema) Qualified(alias string) Schema {
	cols := make([]Column, len(s.Columns))
	for i, c := range s.Columns {
		c.Qualifier = alias
		cols[i] = c
	}
	return Schema{Columns: cols}
}

// Types returns the declared column types in order.
func (s Schema) Types() []Type {
	types := make([]Type, len(s.Columns))
	for i, c := range s.Columns {
		types[i] = c.Type
	}
	return types
}
