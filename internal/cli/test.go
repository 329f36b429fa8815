package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/gwt/internal/config"
	"github.com/roach88/gwt/internal/gotest"
	"github.com/roach88/gwt/internal/trace"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Run    string // go test -run pattern
	Record string // history database path
	Config string // gwt config file passed to the specs
	Dir    string // working directory for go test

	goTest GoTestFunc
	ids    trace.IDGenerator
}

// GoTestFunc runs "go test -json" with args in dir and writes the stream
// to w. A non-zero exit of go test itself is reported as *exec.ExitError.
type GoTestFunc func(ctx context.Context, dir string, args, env []string, w io.Writer) error

// ExecGoTest runs the go tool found on PATH.
func ExecGoTest(ctx context.Context, dir string, args, env []string, w io.Writer) error {
	c := exec.CommandContext(ctx, "go", append([]string{"test", "-json"}, args...)...)
	c.Dir = dir
	c.Env = append(os.Environ(), env...)
	c.Stdout = w
	c.Stderr = w
	return c.Run()
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	return newTestCommand(&TestOptions{
		RootOptions: rootOpts,
		goTest:      ExecGoTest,
		ids:         trace.UUIDGenerator{},
	})
}

func newTestCommand(opts *TestOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test [packages...]",
		Short: "Run specs with go test and report their clauses",
		Long: `Run specs with "go test -json" and report every Then clause.

Packages default to ./... . Tests that are not Then clauses are not
listed, but a failing package still fails the command.

Exit codes:
  0 - All clauses passed
  1 - A clause or a package failed
  2 - Command error (go test could not run, invalid config, etc.)

Examples:
  gwt test
  gwt test ./internal/... --run TestCart
  gwt test --record .gwt/history.db
  gwt test --config gwt.yaml --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run only tests matching the regular expression")
	cmd.Flags().StringVar(&opts.Record, "record", "", "record the run in this SQLite database")
	cmd.Flags().StringVar(&opts.Config, "config", "", "gwt config file for the specs")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory to run go test in")

	return cmd
}

func runTest(cmd *cobra.Command, opts *TestOptions, pkgs []string) error {
	f := newFormatter(cmd, opts.RootOptions)

	var env []string
	if opts.Config != "" {
		if _, err := config.Load(opts.Config); err != nil {
			if opts.Format == "json" {
				_ = f.Error(ErrCodeConfigInvalid, err.Error(), nil)
			}
			return WrapExitError(ExitCommandError, "invalid config", err)
		}
		path, err := filepath.Abs(opts.Config)
		if err != nil {
			return f.CommandError(ErrCodeGeneric, "invalid config path", err)
		}
		env = append(env, config.EnvConfig+"="+path)
	}

	args := []string{}
	if opts.Run != "" {
		args = append(args, "-run", opts.Run)
	}
	if len(pkgs) == 0 {
		pkgs = []string{"./..."}
	}
	args = append(args, pkgs...)

	f.VerboseLog("Running go test -json %v", args)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var stream bytes.Buffer
	if err := opts.goTest(ctx, opts.Dir, args, env, &stream); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			if opts.Format == "json" {
				_ = f.Error(ErrCodeGoTestFailed, err.Error(), nil)
			}
			return WrapExitError(ExitCommandError, "failed to run go test", err)
		}
		f.VerboseLog("go test exited with status %d", exitErr.ExitCode())
	}

	sum, err := gotest.Parse(&stream)
	if err != nil {
		if opts.Format == "json" {
			_ = f.Error(ErrCodeParseFailed, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "failed to read go test output", err)
	}
	if len(sum.Packages) == 0 && len(sum.Stray) > 0 {
		// go test printed only text, e.g. a package pattern matching nothing.
		if opts.Format == "json" {
			_ = f.Error(ErrCodeGoTestFailed, sum.Stray[0], sum.Stray)
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("go test produced no results: %s", sum.Stray[0]))
	}

	return finishSummary(cmd, opts.RootOptions, sum, opts.Record, opts.ids)
}
