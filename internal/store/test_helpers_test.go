package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/gwt/internal/gotest"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSummary builds a summary with one passing, one failing and one
// skipped clause.
func createTestSummary() *gotest.Summary {
	sum := &gotest.Summary{
		Packages: []string{"example.com/shop"},
		Clauses: []gotest.ClauseResult{
			{Package: "example.com/shop", Scenario: "TestCart/cart", Clause: "total is 3", Outcome: gotest.OutcomePass, Elapsed: 12 * time.Millisecond},
			{Package: "example.com/shop", Scenario: "TestCart/cart/empty", Clause: "total is 0", Outcome: gotest.OutcomeFail, Elapsed: 3 * time.Millisecond, Output: "failed by returning false\n"},
			{Package: "example.com/shop", Scenario: "TestCart/cart", Clause: "discount", Outcome: gotest.OutcomeSkip},
		},
	}
	sum.Passed, sum.Failed, sum.Skipped = 1, 1, 1
	return sum
}
