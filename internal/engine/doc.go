// Package engine evaluates query graphs against registered sources.
//
// An execution request names a definition and a root alias. The engine
// resolves the alias to one node of one graph and evaluates that node's
// inputs recursively, materializing every intermediate result in memory.
//
// EVALUATION:
//
// Request scope:
// Each Execute call owns a request. Node results are memoized per request,
// so a node reached through several paths is fetched and computed once.
// Nothing is cached across requests.
//
// Concurrency:
// Join sides and union inputs are evaluated concurrently with errgroup.
// Adapter Fetch calls are bounded by a per-request semaphore
// (WithMaxFanOut). The first failure cancels sibling work and the request
// returns that error with no partial rows.
//
// Ordering:
// Select and transformation preserve input order. Join emits left rows in
// order and, for each, matching right rows in order. Union concatenates
// inputs in declaration order; Union mode keeps first occurrences.
//
// Pushdown:
// When a source's only consumer is a select whose filter maps onto source
// columns, the filter is passed to the adapter as a hint. The select still
// applies it locally, so adapters may ignore it.
//
// Joins:
// A single equality between one column of each side, with declared types
// that share a key normalization, runs as a hash join. Every other
// predicate runs as a nested loop. Both produce identical rows in
// identical order.
//
// ERRORS:
//
// Failures are *RuntimeError values carrying the alias of the node being
// evaluated. Source errors keep their *source.Error cause.
package engine
