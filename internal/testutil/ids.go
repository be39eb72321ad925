package testutil

// FixedRequestID hands out the same request id on every call.
//
// Scenario runs use it so that every call-log row of a run carries one known
// id and golden traces stay byte-identical across runs. flow.FixedGenerator
// is the sequence variant.
//
// Thread-safety: FixedRequestID is immutable and safe for concurrent use.
type FixedRequestID struct {
	id string
}

// NewFixedRequestID creates a generator for id.
// An empty id falls back to "test-request-default".
func NewFixedRequestID(id string) *FixedRequestID {
	if id == "" {
		id = "test-request-default"
	}
	return &FixedRequestID{id: id}
}

// Generate implements flow.IDGenerator.
func (g *FixedRequestID) Generate() string {
	return g.id
}
