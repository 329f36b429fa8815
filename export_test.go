package gwt

import "github.com/roach88/gwt/internal/suite"

// RunOn is Run against any suite.Runner, so tests can observe failures
// through a fake host.
func RunOn(r suite.Runner, name string, body func(s *Spec), opts ...Option) bool {
	return run(r, name, body, opts...)
}
