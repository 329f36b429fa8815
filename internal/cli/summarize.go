package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gwt/internal/gotest"
	"github.com/roach88/gwt/internal/trace"
)

// SummarizeOptions holds flags for the summarize command.
type SummarizeOptions struct {
	*RootOptions
	Record string

	ids trace.IDGenerator
}

// NewSummarizeCommand creates the summarize command.
func NewSummarizeCommand(rootOpts *RootOptions) *cobra.Command {
	return newSummarizeCommand(&SummarizeOptions{RootOptions: rootOpts, ids: trace.UUIDGenerator{}})
}

func newSummarizeCommand(opts *SummarizeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize [file]",
		Short: "Summarize a saved go test -json stream",
		Long: `Report the Then clauses of a "go test -json" stream read from a file,
or from stdin when the file is "-" or omitted.

Examples:
  go test -json ./... | gwt summarize
  gwt summarize results.jsonl --record .gwt/history.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runSummarize(cmd, opts, path)
		},
	}

	cmd.Flags().StringVar(&opts.Record, "record", "", "record the run in this SQLite database")

	return cmd
}

func runSummarize(cmd *cobra.Command, opts *SummarizeOptions, path string) error {
	f := newFormatter(cmd, opts.RootOptions)

	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			if opts.Format == "json" {
				_ = f.Error(ErrCodeNotFound, err.Error(), nil)
			}
			return WrapExitError(ExitCommandError, "failed to open test stream", err)
		}
		defer file.Close()
		in = file
	}

	sum, err := gotest.Parse(in)
	if err != nil {
		if opts.Format == "json" {
			_ = f.Error(ErrCodeParseFailed, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "failed to read test stream", err)
	}
	f.VerboseLog("Read %d clause(s) from %d package(s)", sum.Total(), len(sum.Packages))

	return finishSummary(cmd, opts.RootOptions, sum, opts.Record, opts.ids)
}
