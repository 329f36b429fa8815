package suite

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/gwt/internal/config"
	"github.com/roach88/gwt/internal/testutil"
	"github.com/roach88/gwt/internal/waterfall"
)

// ErrRunning is returned when hooks or tests are registered after Run.
var ErrRunning = errors.New("suite is already running: register hooks and tests before Run")

// Config controls execution.
type Config struct {
	// Timeout bounds each phase (before hooks, body, after hooks).
	// Zero means config.DefaultTimeout.
	Timeout time.Duration

	// Logger is the base logger for instances. Nil discards.
	Logger *slog.Logger

	// Verbose routes instance logs to the test's log output at Level.
	Verbose bool
	Level   slog.Level
}

type group struct {
	name     string
	parent   *group
	before   []waterfall.Step
	after    []waterfall.Step
	children []entry
}

type entry struct {
	group *group
	test  *test
}

type test struct {
	name string
	body waterfall.Step
	only bool
}

// Suite is a tree of groups, hooks and tests executed on top of a Runner.
//
// Registration happens on a single goroutine before Run. During Run, the
// tests execute one at a time in declaration order; for each test the
// before hooks run outer to inner, then the body, then the after hooks
// inner to outer. After hooks always run, even when an earlier step failed.
type Suite struct {
	name  string
	cfg   Config
	clock *testutil.DeterministicClock

	root    *group
	cur     *group
	hasOnly bool

	mu      sync.Mutex
	running bool
	current *Instance
}

// New creates an empty suite.
func New(name string, cfg Config) *Suite {
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultTimeout
	}
	root := &group{name: name}
	return &Suite{
		name:  name,
		cfg:   cfg,
		clock: testutil.NewDeterministicClock(),
		root:  root,
		cur:   root,
	}
}

// Name returns the suite name.
func (s *Suite) Name() string {
	return s.name
}

// Describe declares a nested group. Hooks and tests registered inside body
// belong to it.
func (s *Suite) Describe(name string, body func()) error {
	if err := s.checkIdle(); err != nil {
		return err
	}
	g := &group{name: name, parent: s.cur}
	s.cur.children = append(s.cur.children, entry{group: g})

	prev := s.cur
	s.cur = g
	defer func() { s.cur = prev }()
	body()
	return nil
}

// BeforeEach registers a hook that runs before every test in the current group.
func (s *Suite) BeforeEach(step waterfall.Step) error {
	if err := s.checkIdle(); err != nil {
		return err
	}
	s.cur.before = append(s.cur.before, step)
	return nil
}

// AfterEach registers a hook that runs after every test in the current group.
func (s *Suite) AfterEach(step waterfall.Step) error {
	if err := s.checkIdle(); err != nil {
		return err
	}
	s.cur.after = append(s.cur.after, step)
	return nil
}

// It registers a test in the current group.
func (s *Suite) It(name string, body waterfall.Step) error {
	return s.addTest(name, body, false)
}

// ItOnly registers an exclusive test. When any exclusive test exists, only
// exclusive tests run.
func (s *Suite) ItOnly(name string, body waterfall.Step) error {
	return s.addTest(name, body, true)
}

func (s *Suite) addTest(name string, body waterfall.Step, only bool) error {
	if err := s.checkIdle(); err != nil {
		return err
	}
	s.cur.children = append(s.cur.children, entry{test: &test{name: name, body: body, only: only}})
	if only {
		s.hasOnly = true
	}
	return nil
}

// Current returns the instance being executed, or nil between tests.
func (s *Suite) Current() *Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Run executes every registered test as a subtest of r.
func (s *Suite) Run(r Runner) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.runGroup(r, s.root, nil)
}

func (s *Suite) checkIdle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunning
	}
	return nil
}

func (s *Suite) runGroup(r Runner, g *group, path []string) {
	for _, e := range g.children {
		switch {
		case e.group != nil:
			if s.hasOnly && !containsOnly(e.group) {
				continue
			}
			child := e.group
			r.Run(child.name, func(sub Runner) {
				s.runGroup(sub, child, appendPath(path, child.name))
			})
		case e.test != nil:
			if s.hasOnly && !e.test.only {
				continue
			}
			t := e.test
			r.Run(t.name, func(sub Runner) {
				s.runTest(sub, g, t, appendPath(path, t.name))
			})
		}
	}
}

func (s *Suite) runTest(tb TB, g *group, t *test, path []string) {
	tb.Helper()
	inst := &Instance{TB: tb, Path: path, Seq: s.clock.Next()}
	inst.Logger = s.instanceLogger(inst)

	s.mu.Lock()
	s.current = inst
	s.mu.Unlock()
	defer func() {
		inst.close()
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}()

	var chain []*group
	for n := g; n != nil; n = n.parent {
		chain = append([]*group{n}, chain...)
	}
	var before, after []waterfall.Step
	for _, n := range chain {
		before = append(before, n.before...)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		after = append(after, chain[i].after...)
	}

	inst.Logger.Debug("test started", "hooks_before", len(before), "hooks_after", len(after))
	if s.phase(inst, "before each", before, false) {
		s.phase(inst, "test", []waterfall.Step{t.body}, false)
	}
	s.phase(inst, "after each", after, true)
	inst.Logger.Debug("test finished", "stopped", inst.Stopped())
}

// phase runs steps as one waterfall and waits for it, bounded by the
// timeout. It reports whether the instance may continue.
func (s *Suite) phase(inst *Instance, name string, steps []waterfall.Step, always bool) bool {
	if len(steps) == 0 {
		return !inst.Stopped()
	}

	guarded := make([]waterfall.Step, len(steps))
	for i, st := range steps {
		guarded[i] = inst.Guard(name, st, always)
	}

	finished := make(chan struct{})
	w := waterfall.New(guarded, func() { close(finished) })
	go w.Flow()

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case <-finished:
		return !inst.Stopped()
	case <-timer.C:
		inst.stop()
		inst.Logger.Error("phase timed out", "phase", name, "pending", w.Len())
		inst.Errorf("%s timed out after %s: an asynchronous step never signalled completion", name, s.cfg.Timeout)
		return false
	}
}

func (s *Suite) instanceLogger(inst *Instance) *slog.Logger {
	base := s.cfg.Logger
	if s.cfg.Verbose {
		base = slog.New(slog.NewTextHandler(logWriter{inst: inst}, &slog.HandlerOptions{Level: s.cfg.Level}))
	}
	if base == nil {
		base = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return base.With("suite", s.name, "test", inst.Name(), "seq", inst.Seq)
}

func containsOnly(g *group) bool {
	for _, e := range g.children {
		if e.test != nil && e.test.only {
			return true
		}
		if e.group != nil && containsOnly(e.group) {
			return true
		}
	}
	return false
}

func appendPath(path []string, name string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, name)
}
