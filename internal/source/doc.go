// Package source defines the Source Adapter Contract and the Source Registry.
//
// An Adapter produces rows for a Request; the Registry binds a short name to
// an adapter plus an optional base query, sheet or collection identifier and
// caches the schema the adapter reports at registration.
//
// Concrete adapters live in subpackages:
//   - sqlsource: relational databases via database/sql (SQLite, MySQL)
//   - sheetsource: .xlsx workbooks and .csv files
//   - docsource: JSON documents
//   - memsource: in-memory object collections
package source
