// Package expr defines column references, select expressions and
// predicates, with a textual form that parses back to the same tree.
//
//	[sql.OrderID] = [excel.OrderID]
//	[json.Category] <> 'Beverages' AND NOT [json.Discontinued] = TRUE
//	[sql.OrderDate] >= #2024-01-01# OR [sql.ShipDate] IS NULL
//
// Literals: 'text' (quote doubled to escape), integers, floats (always with
// a '.' or exponent), TRUE, FALSE, NULL and #date#.
package expr
