package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/gwt/internal/config"
)

// ConfigView is the resolved configuration as the config command prints it.
type ConfigView struct {
	Timeout       string `json:"timeout" yaml:"timeout"`
	Verbose       bool   `json:"verbose" yaml:"verbose"`
	LogLevel      string `json:"log_level" yaml:"log_level"`
	ImplicitGiven bool   `json:"implicit_given" yaml:"implicit_given"`
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [file]",
		Short: "Show the effective spec configuration",
		Long: `Resolve the settings specs will run with: built-in defaults, then the
config file (the argument, or $GWT_CONFIG), then GWT_* environment
variables. YAML and CUE files are accepted; CUE files are checked
against the config schema.

Examples:
  gwt config
  gwt config gwt.cue --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runConfig(cmd, rootOpts, path)
		},
	}
	return cmd
}

func runConfig(cmd *cobra.Command, opts *RootOptions, path string) error {
	f := newFormatter(cmd, opts)

	cfg, err := config.Resolve(path, nil)
	if err != nil {
		if opts.Format == "json" {
			_ = f.Error(ErrCodeConfigInvalid, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	view := ConfigView{
		Timeout:       cfg.Timeout.String(),
		Verbose:       cfg.Verbose,
		LogLevel:      cfg.LogLevel,
		ImplicitGiven: cfg.ImplicitGiven,
	}
	if opts.Format == "json" {
		return f.Success(view)
	}

	out, err := yaml.Marshal(view)
	if err != nil {
		return f.CommandError(ErrCodeGeneric, "failed to encode config", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}
