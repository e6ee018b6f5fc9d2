package testutil

// FixedRequestIDs returns the same request ID on every call.
//
// Log lines and golden snapshots that carry the request ID stay
// byte-identical across runs.
//
// Thread-safety: FixedRequestIDs is stateless and safe for concurrent use.
type FixedRequestIDs struct {
	id string
}

// NewFixedRequestIDs creates a generator returning id. An empty id becomes
// "test-request".
func NewFixedRequestIDs(id string) *FixedRequestIDs {
	if id == "" {
		id = "test-request"
	}
	return &FixedRequestIDs{id: id}
}

// Generate returns the fixed request ID.
//
// Implements engine.RequestIDGenerator.
func (g *FixedRequestIDs) Generate() string {
	return g.id
}
