package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gwt/internal/gotest"
	"github.com/roach88/gwt/internal/store"
	"github.com/roach88/gwt/internal/trace"
)

// SummaryResult is the JSON payload of the test and summarize commands.
type SummaryResult struct {
	*gotest.Summary
	Total int        `json:"total"`
	Run   *store.Run `json:"run,omitempty"`
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// finishSummary optionally records sum in the history database at
// record, then prints it. It returns an ExitFailure error when a clause
// or a package failed.
func finishSummary(cmd *cobra.Command, opts *RootOptions, sum *gotest.Summary, record string, ids trace.IDGenerator) error {
	f := newFormatter(cmd, opts)

	var run *store.Run
	if record != "" {
		r, err := recordRun(cmd.Context(), record, ids, sum)
		if err != nil {
			if opts.Format == "json" {
				_ = f.Error(ErrCodeStoreFailed, err.Error(), nil)
			}
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		run = &r
		f.VerboseLog("Recorded run %s (seq %d) in %s", r.ID, r.Seq, record)
	}

	if opts.Format == "json" {
		return outputSummaryJSON(cmd, sum, run)
	}
	return outputSummaryText(cmd, f, sum, run)
}

func recordRun(ctx context.Context, path string, ids trace.IDGenerator, sum *gotest.Summary) (store.Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ids == nil {
		ids = trace.UUIDGenerator{}
	}
	st, err := store.Open(path)
	if err != nil {
		return store.Run{}, err
	}
	defer st.Close()
	return st.WriteRun(ctx, ids.Generate(), sum)
}

func summaryExitError(sum *gotest.Summary) error {
	if sum.OK() {
		return nil
	}
	if sum.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d clause(s) failed", sum.Failed))
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d package(s) failed", len(sum.FailedPackages)))
}

// outputSummaryJSON outputs the summary as JSON.
func outputSummaryJSON(cmd *cobra.Command, sum *gotest.Summary, run *store.Run) error {
	response := CLIResponse{
		Status: "ok",
		Data:   SummaryResult{Summary: sum, Total: sum.Total(), Run: run},
	}
	exitErr := summaryExitError(sum)
	if exitErr != nil {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: exitErr.Error(),
		}
	}
	if run != nil {
		response.TraceID = run.ID
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	return exitErr
}

// outputSummaryText outputs the summary as text.
func outputSummaryText(cmd *cobra.Command, f *OutputFormatter, sum *gotest.Summary, run *store.Run) error {
	w := cmd.OutOrStdout()

	for _, c := range sum.Clauses {
		switch c.Outcome {
		case gotest.OutcomePass:
			fmt.Fprintf(w, "✓ %s: %s\n", c.Scenario, c.Clause)
		case gotest.OutcomeSkip:
			fmt.Fprintf(w, "- %s: %s (skipped)\n", c.Scenario, c.Clause)
		default:
			fmt.Fprintf(w, "✗ %s: %s\n", c.Scenario, c.Clause)
			for _, line := range failureLines(c.Output) {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
		f.VerboseLog("  %s took %s", c.Clause, c.Elapsed)
	}
	for _, pkg := range sum.FailedPackages {
		fmt.Fprintf(w, "✗ package %s failed\n", pkg)
	}
	if !sum.OK() {
		// Build errors and other text go test printed outside its events.
		for _, line := range sum.Stray {
			fmt.Fprintf(f.GetErrWriter(), "  %s\n", line)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Clause Summary: %d passed, %d failed, %d skipped, %d total\n",
		sum.Passed, sum.Failed, sum.Skipped, sum.Total())
	if run != nil {
		fmt.Fprintf(w, "Recorded as run %s\n", run.ID)
	}

	if err := summaryExitError(sum); err != nil {
		return err
	}
	fmt.Fprintln(w, "✓ All clauses passed")
	return nil
}

// failureLines drops go test's own framing lines from a clause's output.
func failureLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "=== ") || strings.HasPrefix(trimmed, "--- ") {
			continue
		}
		lines = append(lines, trimmed)
	}
	return lines
}
