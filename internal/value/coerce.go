package value

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Errors returned by Coerce and Compare.
var (
	ErrNotConvertible = errors.New("value not convertible")
	ErrIncomparable   = errors.New("values not comparable")
)

// Coerce converts v to the declared type t.
//
// Null and TypeAny pass through unchanged. Numeric conversions must be
// lossless, strings parse into numbers, bools and dates, and every scalar
// renders into a string. Arrays and objects only coerce to themselves.
func Coerce(v Value, t Type) (Value, error) {
	if IsNull(v) {
		return Null{}, nil
	}
	if t == TypeAny || v.Kind() == t {
		return v, nil
	}

	switch t {
	case TypeString:
		switch val := v.(type) {
		case Int, Float, Bool, Date:
			return String(Format(val)), nil
		}
	case TypeInt:
		switch val := v.(type) {
		case Float:
			f := float64(val)
			if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
				return Int(int64(f)), nil
			}
		case String:
			if n, err := strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64); err == nil {
				return Int(n), nil
			}
		}
	case TypeFloat:
		switch val := v.(type) {
		case Int:
			return Float(float64(val)), nil
		case String:
			if f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64); err == nil {
				return Float(f), nil
			}
		}
	case TypeBool:
		if s, ok := v.(String); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(string(s))); err == nil {
				return Bool(b), nil
			}
		}
	case TypeDate:
		if s, ok := v.(String); ok {
			if d, err := ParseDate(string(s)); err == nil {
				return d, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s %s to %s", ErrNotConvertible, v.Kind(), Format(v), t)
}

// Compare orders two non-null scalar values.
//
// Int and Float compare numerically, strings lexically, bools false<true and
// dates chronologically. A string compared with a date is parsed as a date.
// Any other pairing, and any array or object, returns ErrIncomparable.
// Callers must handle Null before calling Compare.
func Compare(a, b Value) (int, error) {
	if IsNull(a) || IsNull(b) {
		return 0, fmt.Errorf("%w: null", ErrIncomparable)
	}

	switch av := a.(type) {
	case Int:
		switch bv := b.(type) {
		case Int:
			return cmp.Compare(av, bv), nil
		case Float:
			return compareIntFloat(int64(av), float64(bv)), nil
		}
	case Float:
		switch bv := b.(type) {
		case Int:
			return -compareIntFloat(int64(bv), float64(av)), nil
		case Float:
			return cmp.Compare(av, bv), nil
		}
	case String:
		switch bv := b.(type) {
		case String:
			return strings.Compare(string(av), string(bv)), nil
		case Date:
			ad, err := ParseDate(string(av))
			if err != nil {
				break
			}
			return ad.Time().Compare(bv.Time()), nil
		}
	case Date:
		switch bv := b.(type) {
		case Date:
			return av.Time().Compare(bv.Time()), nil
		case String:
			bd, err := ParseDate(string(bv))
			if err != nil {
				break
			}
			return av.Time().Compare(bd.Time()), nil
		}
	case Bool:
		if bv, ok := b.(Bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case !bool(av):
				return -1, nil
			default:
				return 1, nil
			}
		}
	}

	return 0, fmt.Errorf("%w: %s %s and %s %s", ErrIncomparable,
		a.Kind(), Format(a), b.Kind(), Format(b))
}

// compareIntFloat orders i and f without rounding i through float64, so
// integers beyond 2^53 keep the same identity they have under Key.
func compareIntFloat(i int64, f float64) int {
	switch {
	case math.IsNaN(f):
		return cmp.Compare(float64(i), f)
	case f >= 0x1p63:
		return -1
	case f < -0x1p63:
		return 1
	}
	whole := math.Trunc(f)
	if c := cmp.Compare(i, int64(whole)); c != 0 {
		return c
	}
	return cmp.Compare(whole, f)
}

// Equal reports whether a and b are equal. Null is never equal to anything.
// Arrays and objects compare element-wise by Key.
func Equal(a, b Value) (bool, error) {
	if IsNull(a) || IsNull(b) {
		return false, nil
	}
	if a.Kind() == TypeArray || a.Kind() == TypeObject ||
		b.Kind() == TypeArray || b.Kind() == TypeObject {
		if a.Kind() != b.Kind() {
			return false, fmt.Errorf("%w: %s and %s", ErrIncomparable, a.Kind(), b.Kind())
		}
		return Key(a) == Key(b), nil
	}
	c, err := Compare(a, b)
	if err != nil {
		return false, err
	}
	return c == 0, nil
}

// Key returns the canonical identity of v. Key(a) == Key(b) exactly when a
// and b are equal after numeric normalization, so integral floats share a
// key with the matching Int. Every encoding is self-delimiting, so keys of
// several values may be concatenated into a row key.
func Key(v Value) string {
	var b strings.Builder
	writeKey(&b, v)
	return b.String()
}

// RowKey concatenates the keys of vals.
func RowKey(vals []Value) string {
	var b strings.Builder
	for _, v := range vals {
		writeKey(&b, v)
	}
	return b.String()
}

func writeKey(b *strings.Builder, v Value) {
	switch val := v.(type) {
	case nil, Null:
		b.WriteString("n;")
	case Int:
		b.WriteString("i")
		b.WriteString(strconv.FormatInt(int64(val), 10))
		b.WriteByte(';')
	case Float:
		f := float64(val)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			b.WriteString("i")
			b.WriteString(strconv.FormatInt(int64(f), 10))
		} else {
			b.WriteString("f")
			b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		}
		b.WriteByte(';')
	case String:
		b.WriteString("s")
		b.WriteString(strconv.Itoa(len(val)))
		b.WriteByte(':')
		b.WriteString(string(val))
	case Bool:
		if val {
			b.WriteString("b1;")
		} else {
			b.WriteString("b0;")
		}
	case Date:
		b.WriteString("d")
		b.WriteString(strconv.FormatInt(val.Time().UnixNano(), 10))
		b.WriteByte(';')
	case Array:
		b.WriteString("a")
		b.WriteString(strconv.Itoa(len(val)))
		b.WriteByte('[')
		for _, elem := range val {
			writeKey(b, elem)
		}
		b.WriteByte(']')
	case Object:
		keys := val.SortedKeys()
		b.WriteString("o")
		b.WriteString(strconv.Itoa(len(keys)))
		b.WriteByte('{')
		for _, k := range keys {
			writeKey(b, String(k))
			writeKey(b, val[k])
		}
		b.WriteByte('}')
	}
}

// InferType returns the narrowest type that fits every string in samples.
// Empty strings are ignored. With no samples the result is TypeString.
func InferType(samples []string) Type {
	candidates := []Type{TypeInt, TypeFloat, TypeBool, TypeDate}
	seen := false
	for _, s := range samples {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		seen = true
		candidates = slices.DeleteFunc(candidates, func(t Type) bool {
			_, err := Coerce(String(s), t)
			return err != nil
		})
		if len(candidates) == 0 {
			return TypeString
		}
	}
	if !seen {
		return TypeString
	}
	return candidates[0]
}

// Unify returns the type that covers both a and b, used when inferring
// column types from heterogeneous records.
func Unify(a, b Type) Type {
	switch {
	case a == b:
		return a
	case a == TypeAny:
		return b
	case b == TypeAny:
		return a
	case a.Numeric() && b.Numeric():
		return TypeFloat
	}
	return TypeAny
}

// InferColumn derives a column description from sample values. Object
// fields are listed in RFC 8785 key order.
func InferColumn(name string, samples []Value) Column {
	col := Column{Name: name}
	known := false
	for _, v := range samples {
		if IsNull(v) {
			continue
		}
		if !known {
			col.Type = v.Kind()
			known = true
			continue
		}
		// mixed kinds stay untyped
		if col.Type = Unify(col.Type, v.Kind()); col.Type == TypeAny {
			break
		}
	}

	switch col.Type {
	case TypeArray:
		var elems []Value
		for _, v := range samples {
			if arr, ok := v.(Array); ok {
				elems = append(elems, arr...)
			}
		}
		elem := InferColumn("", elems)
		col.Elem = &elem
	case TypeObject:
		keys := make(Object)
		fieldSamples := make(map[string][]Value)
		for _, v := range samples {
			obj, ok := v.(Object)
			if !ok {
				continue
			}
			for k, fv := range obj {
				keys[k] = Null{}
				fieldSamples[k] = append(fieldSamples[k], fv)
			}
		}
		for _, k := range keys.SortedKeys() {
			col.Fields = append(col.Fields, InferColumn(k, fieldSamples[k]))
		}
	}
	return col
}

