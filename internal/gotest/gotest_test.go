package gotest

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFile(t *testing.T, path string) *Summary {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	sum, err := Parse(f)
	require.NoError(t, err)
	return sum
}

func TestParse_Stream(t *testing.T) {
	sum := parseFile(t, "testdata/stream.jsonl")

	assert.Equal(t, []string{"example.com/shop", "example.com/util"}, sum.Packages)
	assert.Equal(t, 3, sum.Total())
	assert.Equal(t, 1, sum.Passed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, []string{"example.com/shop"}, sum.FailedPackages)
	assert.False(t, sum.OK())

	require.Len(t, sum.Clauses, 3)
	assert.Equal(t, ClauseResult{
		Package:  "example.com/shop",
		Test:     "TestCart/cart/then_total_is_3",
		Scenario: "TestCart/cart",
		Clause:   "total is 3",
		Outcome:  OutcomePass,
		Elapsed:  250 * time.Millisecond,
		Output:   "=== RUN   TestCart/cart/then_total_is_3\n",
	}, sum.Clauses[0])

	failed := sum.Failures()
	require.Len(t, failed, 1)
	assert.Equal(t, "TestCart/cart/empty", failed[0].Scenario)
	assert.Equal(t, "total is 0", failed[0].Clause)
	assert.Equal(t, 500*time.Millisecond, failed[0].Elapsed)
	assert.Contains(t, failed[0].Output, "failed by returning false")

	assert.Equal(t, OutcomeSkip, sum.Clauses[2].Outcome)
	assert.Empty(t, sum.Clauses[2].Output)
}

func TestParse_KeepsStrayLines(t *testing.T) {
	sum := parseFile(t, "testdata/stream.jsonl")

	assert.Equal(t, []string{
		"# example.com/broken",
		"broken.go:3:1: syntax error: non-declaration statement outside function body",
	}, sum.Stray)
}

func TestParse_Empty(t *testing.T) {
	sum, err := Parse(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Zero(t, sum.Total())
	assert.True(t, sum.OK())
}

func TestParse_MalformedJSONIsStray(t *testing.T) {
	sum, err := Parse(strings.NewReader(`{"Action": "pass", "Test": ` + "\n"))
	require.NoError(t, err)
	assert.Len(t, sum.Stray, 1)
}

func TestIsClause(t *testing.T) {
	tests := map[string]bool{
		"TestCart/cart/then_total_is_3": true,
		"then_x":                        true,
		"TestCart/cart":                 false,
		"TestCart/thenx":                false,
		"TestCart/then_a/nested":        false,
	}
	for name, want := range tests {
		assert.Equal(t, want, IsClause(name), name)
	}
}

func TestSplitClause(t *testing.T) {
	scenario, clause := SplitClause("TestCart/cart/empty/then_c.Value()_==_1")
	assert.Equal(t, "TestCart/cart/empty", scenario)
	assert.Equal(t, "c.Value() == 1", clause)

	scenario, clause = SplitClause("then_alone")
	assert.Empty(t, scenario)
	assert.Equal(t, "alone", clause)
}

func TestParse_KeepsExactTestName(t *testing.T) {
	stream := `{"Action":"run","Package":"p","Test":"TestItems/then_items_count_==_1"}
{"Action":"pass","Package":"p","Test":"TestItems/then_items_count_==_1","Elapsed":0}
`
	sum, err := Parse(strings.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, sum.Clauses, 1)

	// Underscores in the label itself cannot be told apart from spaces.
	assert.Equal(t, "items count == 1", sum.Clauses[0].Clause)
	assert.Equal(t, "TestItems/then_items_count_==_1", sum.Clauses[0].Test)
}
