package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeHistory(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewHistoryCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func seedTwoRuns(t *testing.T) string {
	t.Helper()
	return seedHistory(t, map[string]string{
		"run-a": "stream.jsonl",
		"run-b": "passing.jsonl",
	}, "run-a", "run-b")
}

func TestHistoryCommandListsNewestFirst(t *testing.T) {
	db := seedTwoRuns(t)

	out, err := executeHistory(t, "text", "--db", db)
	require.NoError(t, err)

	assert.Contains(t, out, "SEQ")
	a := bytes.Index([]byte(out), []byte("run-a"))
	b := bytes.Index([]byte(out), []byte("run-b"))
	require.NotEqual(t, -1, a)
	require.NotEqual(t, -1, b)
	assert.Less(t, b, a, "newest run should be listed first")
}

func TestHistoryCommandLimit(t *testing.T) {
	db := seedTwoRuns(t)

	out, err := executeHistory(t, "json", "--db", db, "--limit", "1")
	require.NoError(t, err)

	var response struct {
		Status string        `json:"status"`
		Data   HistoryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
	require.Len(t, response.Data.Runs, 1)
	assert.Equal(t, "run-b", response.Data.Runs[0].ID)
	assert.Equal(t, int64(2), response.Data.Runs[0].Seq)
}

func TestHistoryCommandShowsRun(t *testing.T) {
	db := seedTwoRuns(t)

	out, err := executeHistory(t, "text", "--db", db, "--run", "run-a")
	require.NoError(t, err)

	assert.Contains(t, out, "Run run-a (seq 1)")
	assert.Contains(t, out, "package example.com/shop")
	assert.Contains(t, out, "✓ TestCart/cart: total is 3 (250ms)")
	assert.Contains(t, out, "✗ TestCart/cart/empty: total is 0 (500ms)")
	assert.Contains(t, out, "Then clause `total() == 0` failed by returning false")
	assert.Contains(t, out, "- TestCart/cart: discount")
	assert.Contains(t, out, "Clause Summary: 1 passed, 1 failed, 1 skipped, 3 total")
}

func TestHistoryCommandFailedOnly(t *testing.T) {
	db := seedTwoRuns(t)

	out, err := executeHistory(t, "json", "--db", db, "--run", "run-a", "--failed")
	require.NoError(t, err)

	var response struct {
		Data HistoryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	require.NotNil(t, response.Data.Run)
	assert.Equal(t, "run-a", response.Data.Run.ID)
	require.Len(t, response.Data.Clauses, 1)
	assert.Equal(t, "total is 0", response.Data.Clauses[0].Clause)
	assert.Equal(t, "fail", response.Data.Clauses[0].Outcome)
}

func TestHistoryCommandUnknownRun(t *testing.T) {
	db := seedTwoRuns(t)

	_, err := executeHistory(t, "text", "--db", db, "--run", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found: nope")
}

func TestHistoryCommandMissingDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing.db")

	_, err := executeHistory(t, "text", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")

	_, statErr := os.Stat(db)
	assert.True(t, os.IsNotExist(statErr), "history must not create the database")
}

func TestHistoryCommandRequiresDB(t *testing.T) {
	_, err := executeHistory(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}

func TestHistoryCommandEmptyDatabase(t *testing.T) {
	db := seedHistory(t, nil)

	out, err := executeHistory(t, "text", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded")
}
