// Package harness provides conformance testing for federated query
// definitions.
//
// A scenario declares inline sources, a definition and the queries to run
// against it, each with its expected outcome. Run executes the queries
// through the engine and reports every mismatch; RunWithGolden also
// snapshots the results under testdata/golden.
//
// # Scenario Format
//
//	name: orders_join
//	description: "Join SQL orders with spreadsheet sales"
//	max_fan_out: 2
//	sources:
//	  - name: sqlSource
//	    columns:
//	      - {name: OrderID, type: int}
//	      - {name: OrderDate, type: date}
//	    rows:
//	      - [1, "2024-01-01"]
//	  - name: invoices
//	    records:
//	      - {InvoiceID: 10, OrderID: 1}
//	  - name: flaky
//	    columns: [{name: OrderID, type: int}]
//	    fail: "connection refused"
//	definition:
//	  name: sales
//	  graphs:
//	    - name: orders
//	      nodes:
//	        - {alias: sqlSource, type: source, source: sqlSource}
//	queries:
//	  - root: sqlSource
//	    expect:
//	      columns: [OrderID, OrderDate]
//	      rows:
//	        - [1, "2024-01-01"]
//	  - root: broken
//	    expect:
//	      error: SOURCE_UNAVAILABLE
//
// The definition may instead live in a file: definition_file names a
// persisted JSON document or a directory of CUE files, relative to the
// scenario file.
//
// # Expectations
//
//   - columns: exact result labels, in order
//   - rows: exact rows, in order; cells compare by value, so a string
//     matches an equal date and 1 matches 1.0
//   - count: number of rows
//   - error: error code (UNKNOWN_ALIAS, SOURCE_UNAVAILABLE, ...)
//
// # Golden Files
//
// Golden files hold the canonical JSON of every query result. To
// regenerate them:
//
//	go test ./internal/harness -update
package harness
