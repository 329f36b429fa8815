package gwt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/roach88/gwt/internal/dsl"
	"github.com/roach88/gwt/internal/report"
	"github.com/roach88/gwt/internal/suite"
	"github.com/roach88/gwt/internal/trace"
)

type (
	// Context is the per-test record shared by every step of one test.
	Context = dsl.Context
	// Done signals that an asynchronous step has finished.
	Done = dsl.Done
	// Comparison is an assertion that carries its operands.
	Comparison = report.Comparison
	// Recorder collects the steps a spec executes.
	Recorder = trace.Recorder
)

// Spec registers the steps and tests of one Run. Its methods panic with a
// *dsl.UsageError on misuse; Run turns that into a test failure.
type Spec struct {
	suite *suite.Suite
	reg   *dsl.Registry
}

// Chain extends the clauses of one Then.
type Chain struct {
	ch *dsl.Chain
}

// Run executes the spec built by body as a subtest of t named name.
func Run(t *testing.T, name string, body func(s *Spec), opts ...Option) {
	t.Helper()
	run(suite.GoTest(t), name, body, opts...)
}

func run(r suite.Runner, name string, body func(s *Spec), opts ...Option) bool {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	return r.Run(name, func(r suite.Runner) {
		r.Helper()
		cfg, err := o.resolve()
		if err != nil {
			r.Fatalf("gwt: %v", err)
			return
		}

		s := suite.New(name, suite.Config{
			Timeout: cfg.Timeout,
			Logger:  o.logger,
			Verbose: cfg.Verbose,
			Level:   cfg.Level(),
		})
		reg, err := dsl.NewRegistry(s, dsl.Options{
			ImplicitGiven: cfg.ImplicitGiven,
			Recorder:      o.recorder,
			Logger:        o.logger,
		})
		if err != nil {
			r.Fatalf("gwt: %v", err)
			return
		}

		if err := register(body, &Spec{suite: s, reg: reg}); err != nil {
			r.Fatalf("gwt: %v", err)
			return
		}
		s.Run(r)
	})
}

// register runs body, converting a usage panic into an error.
func register(body func(s *Spec), spec *Spec) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if e, ok := rec.(error); ok && dsl.IsUsageError(e) {
			err = e
			return
		}
		panic(rec)
	}()
	body(spec)
	return nil
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Describe opens a nested scope. Steps registered inside body apply only
// to the tests registered inside it.
func (s *Spec) Describe(name string, body func()) {
	if err := s.suite.Describe(name, body); err != nil {
		if errors.Is(err, suite.ErrRunning) {
			err = &dsl.UsageError{Code: dsl.ErrCodeHostRunning, Message: fmt.Sprintf("cannot describe %q while tests are running", name), Err: err}
		}
		panic(err)
	}
}

// Given registers a setup step. With a leading name, the step's value is
// stored in the Context under that name.
func (s *Spec) Given(args ...any) {
	must(s.reg.Given(args...))
}

// When registers an action.
func (s *Spec) When(args ...any) {
	must(s.reg.When(args...))
}

// Invariant registers a check run after the actions of every test in
// scope. Unlike Then, a false result does not fail the test.
func (s *Spec) Invariant(args ...any) {
	must(s.reg.Invariant(args...))
}

// Then registers a test asserting its step. A leading string names the
// test; otherwise the name comes from the step's source.
func (s *Spec) Then(args ...any) *Chain {
	ch, err := s.reg.Then(args...)
	must(err)
	return &Chain{ch: ch}
}

// ThenOnly is Then, except that only ThenOnly tests run in this spec.
func (s *Spec) ThenOnly(args ...any) *Chain {
	ch, err := s.reg.ThenOnly(args...)
	must(err)
	return &Chain{ch: ch}
}

// And continues whichever registrar was called last.
func (s *Spec) And(args ...any) {
	must(s.reg.And(args...))
}

// Context returns the Context of the running test, or nil between tests.
func (s *Spec) Context() *Context {
	return s.reg.Context()
}

// And appends a clause checked after the previous ones in the same test.
func (c *Chain) And(args ...any) *Chain {
	must(c.ch.And(args...))
	return c
}

// Then appends a clause, like And.
func (c *Chain) Then(args ...any) *Chain {
	must(c.ch.Then(args...))
	return c
}

// Compare builds a comparison of left and right with op, one of
// "==", "===", "!=", "!==", "<", "<=", ">", ">=" or "deepEquals".
// An operand that is a func() any is called when the comparison is checked.
func Compare(left any, op string, right any) Comparison {
	return report.Compare(left, report.Op(op), right)
}

// Equal builds a deep-equality comparison.
func Equal(left, right any) Comparison {
	return report.Equal(left, right)
}

// Get returns the Context value stored under name as a T.
func Get[T any](c *Context, name string) T {
	return dsl.Get[T](c, name)
}

// NewRecorder creates a recorder with a random run id.
func NewRecorder() *Recorder {
	return trace.NewRecorder(nil)
}
