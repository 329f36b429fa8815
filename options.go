package gwt

import (
	"log/slog"
	"time"

	"github.com/roach88/gwt/internal/config"
	"github.com/roach88/gwt/internal/trace"
)

// Option configures a Run.
type Option func(*options)

type options struct {
	configFile    string
	timeout       *time.Duration
	implicitGiven *bool
	logger        *slog.Logger
	recorder      *trace.Recorder
}

// WithTimeout bounds each phase of every test. An asynchronous step that
// never signals done fails its test after d.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = &d }
}

// WithLogger sets the logger that receives step diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConfigFile reads settings from a YAML or CUE file instead of
// $GWT_CONFIG.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithRecorder records every executed step in rec.
func WithRecorder(rec *trace.Recorder) Option {
	return func(o *options) { o.recorder = rec }
}

// WithImplicitGiven lets an And with nothing to continue act as Given.
func WithImplicitGiven(enabled bool) Option {
	return func(o *options) { o.implicitGiven = &enabled }
}

// resolve layers defaults, file, environment and options.
func (o *options) resolve() (config.Config, error) {
	cfg, err := config.Resolve(o.configFile, nil)
	if err != nil {
		return config.Config{}, err
	}
	if o.timeout != nil {
		cfg.Timeout = *o.timeout
	}
	if o.implicitGiven != nil {
		cfg.ImplicitGiven = *o.implicitGiven
	}
	return cfg, cfg.Validate()
}
