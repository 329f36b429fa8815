package testutil

// FixedIDGenerator returns the same run id every time.
//
// Trace recorders and the history store take an id generator. Tests use
// this one so golden traces do not depend on random uuids.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator that always returns id.
//
// If id is empty, Generate() returns "test-run-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed run id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
