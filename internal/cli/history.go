package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gwt/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	DBPath string
	Limit  int
	RunID  string
	Failed bool
}

// HistoryResult is the JSON payload of the history command.
type HistoryResult struct {
	Runs    []store.Run    `json:"runs,omitempty"`
	Run     *store.Run     `json:"run,omitempty"`
	Clauses []store.Clause `json:"clauses,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `List the runs recorded with --record, newest first, or show the
clauses of one run.

Examples:
  gwt history --db .gwt/history.db
  gwt history --db .gwt/history.db --limit 5
  gwt history --db .gwt/history.db --run <run-id> --failed`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "history database path (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the clauses of this run")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "with --run, show only failed clauses")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	f := newFormatter(cmd, opts.RootOptions)

	// Opening would create the file, so a missing database is an error.
	if _, err := os.Stat(opts.DBPath); errors.Is(err, os.ErrNotExist) {
		if opts.Format == "json" {
			_ = f.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.DBPath), nil)
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.DBPath))
	}

	st, err := store.Open(opts.DBPath)
	if err != nil {
		if opts.Format == "json" {
			_ = f.Error(ErrCodeStoreFailed, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if opts.RunID != "" {
		run, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, sql.ErrNoRows) {
			if opts.Format == "json" {
				_ = f.Error(ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
			}
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
		}
		if err != nil {
			return f.CommandError(ErrCodeStoreFailed, "failed to read run", err)
		}

		read := st.ReadClauses
		if opts.Failed {
			read = st.ReadFailures
		}
		clauses, err := read(ctx, opts.RunID)
		if err != nil {
			return f.CommandError(ErrCodeStoreFailed, "failed to read clauses", err)
		}

		if opts.Format == "json" {
			return f.Success(HistoryResult{Run: &run, Clauses: clauses})
		}
		printRun(cmd, run, clauses)
		return nil
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return f.CommandError(ErrCodeStoreFailed, "failed to list runs", err)
	}
	if opts.Format == "json" {
		return f.Success(HistoryResult{Runs: runs})
	}
	printRuns(cmd, runs)
	return nil
}

func printRuns(cmd *cobra.Command, runs []store.Run) {
	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	fmt.Fprintf(w, "%-5s %-36s %6s %6s %7s %5s\n", "SEQ", "RUN", "PASSED", "FAILED", "SKIPPED", "TOTAL")
	for _, r := range runs {
		fmt.Fprintf(w, "%-5d %-36s %6d %6d %7d %5d\n", r.Seq, r.ID, r.Passed, r.Failed, r.Skipped, r.Total)
	}
}

func printRun(cmd *cobra.Command, run store.Run, clauses []store.Clause) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s (seq %d)\n", run.ID, run.Seq)
	for _, pkg := range run.Packages {
		fmt.Fprintf(w, "  package %s\n", pkg)
	}
	fmt.Fprintln(w)
	for _, c := range clauses {
		icon := "✓"
		switch c.Outcome {
		case "fail":
			icon = "✗"
		case "skip":
			icon = "-"
		}
		fmt.Fprintf(w, "%s %s: %s (%dms)\n", icon, c.Scenario, c.Clause, c.ElapsedMS)
		if c.Outcome == "fail" {
			for _, line := range failureLines(c.Output) {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Clause Summary: %d passed, %d failed, %d skipped, %d total\n",
		run.Passed, run.Failed, run.Skipped, run.Total)
}
