package cli

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/gwt/internal/gotest"
	"github.com/roach88/gwt/internal/store"
)

// clearConfigEnv unsets every GWT_* variable for the test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"GWT_CONFIG", "GWT_TIMEOUT", "GWT_VERBOSE", "GWT_LOG_LEVEL", "GWT_IMPLICIT_GIVEN"} {
		t.Setenv(name, "")
	}
}

func readTestdata(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

// seedHistory records the testdata streams as runs, in order, with the
// given ids and returns the database path.
func seedHistory(t *testing.T, runs map[string]string, order ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	for _, id := range order {
		f, err := os.Open(filepath.Join("testdata", runs[id]))
		require.NoError(t, err)
		sum, err := gotest.Parse(f)
		f.Close()
		require.NoError(t, err)
		_, err = st.WriteRun(context.Background(), id, sum)
		require.NoError(t, err)
	}
	return path
}

func listRuns(t *testing.T, path string) []store.Run {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	return runs
}

func readRecordedRun(t *testing.T, path, id string) (store.Run, error) {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.ReadRun(context.Background(), id)
	if err == sql.ErrNoRows {
		return store.Run{}, err
	}
	require.NoError(t, err)
	return run, nil
}
