// Package value provides the typed value model shared by every fedq package.
//
// Rows flowing through the engine hold Values. A Value is one of Null,
// String, Int, Float, Bool, Date, Array or Object. Sources report a Schema
// (ordered Columns with a declared Type) and the engine coerces fetched
// values to those declared types before any node sees them.
//
// This package imports nothing internal. Everything else imports value.
//
// Key constraints:
//   - Int is always int64 and Float is always float64
//   - Object iteration uses SortedKeys (RFC 8785 UTF-16 order) for determinism
//   - Null never compares equal to anything, including another Null
//   - Key produces the canonical identity used by hash joins and Union dedup
package value
