// Package store provides SQLite-backed storage for federated query
// definitions.
//
// Each definition is stored as its querystore document plus a content
// fingerprint and a revision counter. Reads rebuild the definition through
// querystore.Load against the live source registry, so stored documents are
// never trusted without re-validation.
//
// *Store implements engine.DefinitionProvider.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Graph rows cascade with their definition
//
// Listing queries order by name with COLLATE BINARY so output is stable
// across platforms.
package store
