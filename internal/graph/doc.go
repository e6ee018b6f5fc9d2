// Package graph models federated queries as immutable DAGs of typed nodes.
//
// A graph is assembled with a persistent Builder:
//
//	b := graph.NewBuilder(registry)
//	b, _ = b.Source("sqlSource", "sqlSource")
//	b, _ = b.Source("excelSource", "excelSource")
//	b, _ = b.Join("joined", "sqlSource", "excelSource",
//	    expr.MustParse("[sqlSource.OrderID] = [excelSource.OrderID]"))
//	g, _ := b.Build("orders")
//
// Each node declares its output schema when it is added, so reference,
// arity and type errors surface at construction time and never reach
// execution. Node kinds:
//
//   - SourceNode reads a registered source
//   - SelectNode projects and filters one input
//   - JoinNode inner-joins two inputs on a predicate
//   - UnionNode concatenates two or more inputs (Union or UnionAll)
//   - TransformationNode unfolds and flattens nested columns
//
// Graphs are grouped into a Definition, the unit the query store persists
// and the engine executes.
package graph
