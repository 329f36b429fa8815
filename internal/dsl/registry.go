package dsl

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/onsi/gomega"

	"github.com/roach88/gwt/internal/report"
	"github.com/roach88/gwt/internal/suite"
	"github.com/roach88/gwt/internal/trace"
	"github.com/roach88/gwt/internal/waterfall"
)

// modulePath prefixes the function names of frames that belong to the DSL.
const modulePath = "github.com/roach88/gwt"

// Kind names a step category.
type Kind string

const (
	KindGiven     Kind = "given"
	KindWhen      Kind = "when"
	KindInvariant Kind = "invariant"
	KindThen      Kind = "then"
)

// Host is the test runner the registry registers hooks and tests with.
// *suite.Suite implements it.
type Host interface {
	BeforeEach(step waterfall.Step) error
	AfterEach(step waterfall.Step) error
	It(name string, body waterfall.Step) error
	ItOnly(name string, body waterfall.Step) error
	Current() *suite.Instance
}

// Options tune a Registry.
type Options struct {
	// ImplicitGiven makes a leading And act as Given instead of failing.
	ImplicitGiven bool
	// Recorder, when set, receives an event for every executed step.
	Recorder *trace.Recorder
	// Logger receives registration diagnostics. Nil discards.
	Logger *slog.Logger
}

type registrar int

const (
	registrarNone registrar = iota
	registrarGiven
	registrarWhen
	registrarInvariant
	registrarChain
)

// Registry turns Given/When/Invariant/Then registrations into host hooks
// and tests. It owns the scope stacks and the most-recently-used
// registrar for one spec, so independent specs never share state.
//
// Registration must happen on a single goroutine. The scope stacks are
// mutated by host hooks during execution and are guarded by a mutex.
type Registry struct {
	host   Host
	opts   Options
	logger *slog.Logger

	mostRecent registrar
	chain      *Chain

	mu         sync.Mutex
	ctx        *Context
	whens      []waterfall.Step
	invariants []waterfall.Step
}

// NewRegistry creates a registry and installs the hooks that give every
// test instance a fresh Context and drop it afterwards. It must be created before any other hook
// is registered with host so that hook runs first.
func NewRegistry(host Host, opts Options) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Registry{host: host, opts: opts, logger: logger}
	if err := host.BeforeEach(waterfall.Sync(r.begin)); err != nil {
		return nil, hostError(err)
	}
	if err := host.AfterEach(waterfall.Sync(r.end)); err != nil {
		return nil, hostError(err)
	}
	return r, nil
}

// Context returns the execution context of the running instance, or nil
// between instances.
func (r *Registry) Context() *Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx
}

func (r *Registry) begin() {
	inst := r.host.Current()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = NewContext(inst)
	r.whens = nil
	r.invariants = nil
}

func (r *Registry) end() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = nil
}

// Given registers a setup step run before every test in scope. A leading
// string argument names a context field that receives the step's value.
func (r *Registry) Given(args ...any) error {
	return r.given("Given", args)
}

// When registers an action run at the start of every test in scope.
func (r *Registry) When(args ...any) error {
	return r.scoped("When", KindWhen, registrarWhen, &r.whens, args)
}

// Invariant registers a check run after the Whens of every test in scope.
func (r *Registry) Invariant(args ...any) error {
	return r.scoped("Invariant", KindInvariant, registrarInvariant, &r.invariants, args)
}

// Then registers a test asserting the step. A leading string argument
// names the test; otherwise the name is derived from the step's source.
func (r *Registry) Then(args ...any) (*Chain, error) {
	return r.then("Then", false, args)
}

// ThenOnly is Then registered as the only test to run.
func (r *Registry) ThenOnly(args ...any) (*Chain, error) {
	return r.then("ThenOnly", true, args)
}

// And continues whichever registrar was used most recently.
func (r *Registry) And(args ...any) error {
	switch r.mostRecent {
	case registrarGiven:
		return r.given("And", args)
	case registrarWhen:
		return r.scoped("And", KindWhen, registrarWhen, &r.whens, args)
	case registrarInvariant:
		return r.scoped("And", KindInvariant, registrarInvariant, &r.invariants, args)
	case registrarChain:
		return r.ContinueThen("And", args...)
	}
	if r.opts.ImplicitGiven {
		return r.given("And", args)
	}
	return usageErrorf(ErrCodeNoRegistrar, "And has nothing to continue: call Given, When, Invariant or Then first")
}

// ContinueThen appends a clause to the most recent Then.
func (r *Registry) ContinueThen(method string, args ...any) error {
	if r.chain == nil {
		return usageErrorf(ErrCodeNoThen, "%s can only continue a Then", method)
	}
	return r.chain.add(method, args)
}

func (r *Registry) given(method string, args []any) error {
	name, block, origin, err := r.parse(method, args)
	if err != nil {
		return err
	}
	if name != "" && !block.Returns {
		return usageErrorf(ErrCodeBadStep, "%s %q needs a step that returns a value, got %T", method, name, stepArg(args))
	}
	label := report.Label(origin, method, 0)

	assign := func(v any) {
		if name == "" {
			return
		}
		ctx := r.Context()
		if err := ctx.Set(name, v); err != nil {
			ctx.Errorf("%v", err)
			suite.Abort()
		}
	}
	if err := r.host.BeforeEach(r.step(KindGiven, label, block, assign)); err != nil {
		return hostError(err)
	}
	r.mostRecent = registrarGiven
	r.logger.Debug("registered step", "kind", KindGiven, "label", label, "assign", name)
	return nil
}

func (r *Registry) scoped(method string, kind Kind, reg registrar, stack *[]waterfall.Step, args []any) error {
	_, block, origin, err := r.parse(method, args)
	if err != nil {
		return err
	}
	label := report.Label(origin, method, 0)
	step := r.step(kind, label, block, nil)

	push := waterfall.Sync(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		*stack = append(*stack, step)
	})
	pop := waterfall.Sync(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if n := len(*stack); n > 0 {
			*stack = (*stack)[:n-1]
		}
	})
	if err := r.host.BeforeEach(push); err != nil {
		return hostError(err)
	}
	if err := r.host.AfterEach(pop); err != nil {
		return hostError(err)
	}
	r.mostRecent = reg
	r.logger.Debug("registered step", "kind", kind, "label", label)
	return nil
}

func (r *Registry) then(method string, only bool, args []any) (*Chain, error) {
	name, block, origin, err := r.parse(method, args)
	if err != nil {
		return nil, err
	}
	label := report.Label(origin, method, 0)
	if name == "" {
		name = label
	}

	ch := &Chain{reg: r}
	ch.clauses = append(ch.clauses, clause{method: method, block: block, label: label, origin: origin})

	body := waterfall.Async(func(done waterfall.Done) { r.execute(ch, done) })
	testName := "then " + name
	if only {
		err = r.host.ItOnly(testName, body)
	} else {
		err = r.host.It(testName, body)
	}
	if err != nil {
		return nil, hostError(err)
	}

	r.chain = ch
	r.mostRecent = registrarChain
	r.logger.Debug("registered test", "name", testName, "only", only)
	return ch, nil
}

// execute runs Whens, Invariants and the chain's clauses for the current
// instance, then signals done.
func (r *Registry) execute(ch *Chain, done waterfall.Done) {
	clauses := ch.seal()
	inst := r.host.Current()

	r.mu.Lock()
	steps := make([]waterfall.Step, 0, len(r.whens)+len(r.invariants)+len(clauses))
	steps = append(steps, r.whens...)
	steps = append(steps, r.invariants...)
	r.mu.Unlock()
	for i, cl := range clauses {
		steps = append(steps, r.clauseStep(i+1, cl))
	}

	guarded := make([]waterfall.Step, len(steps))
	for i, st := range steps {
		guarded[i] = inst.Guard("test", st, false)
	}
	waterfall.New(guarded, func() { done() }).Flow()
}

// step wraps a Given/When/Invariant block. after receives the block's
// value once it has finished; the value never fails the step.
func (r *Registry) step(kind Kind, label string, block *Block, after func(any)) waterfall.Step {
	if block.Async {
		return waterfall.Async(func(done waterfall.Done) {
			ctx := r.Context()
			block.CallAsync(ctx, func() {
				r.record(ctx, kind, label, trace.OutcomeOK)
				done()
			})
		})
	}
	return waterfall.Sync(func() {
		ctx := r.Context()
		defer func() {
			if rec := recover(); rec != nil {
				r.record(ctx, kind, label, trace.OutcomeFailed)
				panic(rec)
			}
		}()
		v := block.Call(ctx)
		if after != nil {
			after(v)
		}
		r.record(ctx, kind, label, trace.OutcomeOK)
	})
}

func (r *Registry) clauseStep(n int, cl clause) waterfall.Step {
	return waterfall.Async(func(done waterfall.Done) {
		ctx := r.Context()
		c := &report.Clause{
			N:        n,
			Label:    cl.label,
			Stack:    cl.origin.Stack,
			Asserted: ctx.endClause,
		}
		ctx.beginClause()

		if !cl.block.Async {
			c.Invoke = func() any { return cl.block.Call(ctx) }
			if !r.assert(ctx, c) {
				suite.Abort()
			}
			done()
			return
		}

		var (
			thrown  any
			aborted bool
		)
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					if suite.IsAbort(rec) {
						aborted = true
						return
					}
					thrown = rec
				}
			}()
			cl.block.CallAsync(ctx, func() {
				// May run on another goroutine, so stop instead of Abort.
				if !r.assert(ctx, c) {
					ctx.inst.Stop()
				}
				done()
			})
		}()
		if thrown != nil || aborted {
			if thrown != nil {
				c.Invoke = func() any { panic(thrown) }
			}
			if !r.assert(ctx, c) {
				suite.Abort()
			}
			done()
		}
	})
}

// assert evaluates a clause through the gomega matcher and reports a
// failure on the instance.
func (r *Registry) assert(ctx *Context, c *report.Clause) bool {
	passed := gomega.NewWithT(&clauseSink{ctx: ctx}).Expect(c).NotTo(report.FailThenClause())
	if passed {
		r.record(ctx, KindThen, c.Label, trace.OutcomeOK)
	} else {
		r.record(ctx, KindThen, c.Label, trace.OutcomeFailed)
	}
	return passed
}

func (r *Registry) record(ctx *Context, kind Kind, label, outcome string) {
	if ctx == nil {
		return
	}
	ctx.Logger().Debug("step finished", "kind", kind, "label", label, "outcome", outcome)
	if r.opts.Recorder != nil {
		r.opts.Recorder.Record(ctx.Name(), string(kind), label, outcome)
	}
}

// clauseSink receives gomega failures for a clause and reports them on
// the instance.
type clauseSink struct {
	ctx *Context
}

func (s *clauseSink) Helper() {}

func (s *clauseSink) Fatalf(format string, args ...any) {
	s.ctx.Errorf("%s", strings.TrimLeft(fmt.Sprintf(format, args...), "\n"))
}

// parse splits registrar arguments into an optional leading name and a
// step, classifies the step and captures the registration site.
func (r *Registry) parse(method string, args []any) (string, *Block, report.Origin, error) {
	var name string
	if len(args) > 0 {
		if s, ok := args[0].(string); ok {
			name = s
		}
	}
	fn := stepArg(args)
	if fn == nil {
		return "", nil, report.Origin{}, usageErrorf(ErrCodeMissingStep, "%s needs a step function", method)
	}
	block, err := Classify(fn)
	if err != nil {
		return "", nil, report.Origin{}, fmt.Errorf("%s: %w", method, err)
	}
	return name, block, report.CallSite(isDSLFrame), nil
}

func stepArg(args []any) any {
	for _, a := range args {
		if _, ok := a.(string); !ok {
			return a
		}
	}
	return nil
}

func isDSLFrame(f runtime.Frame) bool {
	if strings.HasSuffix(f.File, "_test.go") {
		return false
	}
	return strings.HasPrefix(f.Function, modulePath+".") || strings.HasPrefix(f.Function, modulePath+"/internal/")
}

func hostError(err error) error {
	if errors.Is(err, suite.ErrRunning) {
		return &UsageError{Code: ErrCodeHostRunning, Message: "cannot register while tests are running", Err: err}
	}
	return err
}
