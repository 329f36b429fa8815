package dsl

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/gwt/internal/report"
	"github.com/roach88/gwt/internal/suite"
)

// Context is the per-instance record shared by every step of one test.
// A fresh Context is created before each test instance, so values never
// leak between instances.
//
// Context satisfies testify's require.TestingT and gomega's
// GomegaTestingT, so those libraries can assert from inside steps. While a
// Then clause runs, reported errors are collected and become part of the
// clause's failure message; otherwise they go straight to the test.
//
// FailNow and Fatalf stop the instance by unwinding the calling step. Like
// their testing.T counterparts they must be called from the step's own
// goroutine, not from a goroutine it started.
type Context struct {
	inst *suite.Instance

	mu         sync.Mutex
	vars       map[string]any
	failed     bool
	collecting bool
	collected  []string
}

// NewContext creates an empty context reporting to inst.
func NewContext(inst *suite.Instance) *Context {
	return &Context{inst: inst, vars: make(map[string]any)}
}

// Set assigns a named value. A name may be assigned only once per
// instance.
func (c *Context) Set(name string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.vars[name]; ok {
		return usageErrorf(ErrCodeAlreadyAssigned,
			"Unfortunately, the variable '%s' is already assigned to: %s", name, report.FormatValue(prev))
	}
	c.vars[name] = v
	return nil
}

// Get returns the named value, or nil if it was never set.
func (c *Context) Get(name string) any {
	v, _ := c.Lookup(name)
	return v
}

// Lookup returns the named value and whether it was set.
func (c *Context) Lookup(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[name]
	return v, ok
}

// MustGet returns the named value and panics if it was never set.
func (c *Context) MustGet(name string) any {
	v, ok := c.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("variable '%s' is not set", name))
	}
	return v
}

// Get returns the named value as a T. It panics when the value is missing
// or has another type; inside a Then clause that panic is reported as the
// clause throwing.
func Get[T any](c *Context, name string) T {
	v := c.MustGet(name)
	t, ok := v.(T)
	if !ok {
		var zero T
		panic(fmt.Sprintf("variable '%s' is %T, not %T", name, v, zero))
	}
	return t
}

// Errorf reports a failure.
func (c *Context) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.mu.Lock()
	c.failed = true
	if c.collecting {
		c.collected = append(c.collected, msg)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	if c.inst != nil {
		c.inst.Errorf("%s", msg)
	}
}

// FailNow stops the instance. Remaining steps are skipped; after hooks
// still run.
func (c *Context) FailNow() {
	c.mu.Lock()
	silent := !c.failed || (c.collecting && len(c.collected) == 0)
	c.mu.Unlock()
	if silent {
		c.Errorf("FailNow called")
	}
	suite.Abort()
}

// Fatalf reports a failure and stops the instance.
func (c *Context) Fatalf(format string, args ...any) {
	c.Errorf(format, args...)
	suite.Abort()
}

// Failed reports whether any failure was reported through c.
func (c *Context) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// Helper is a no-op.
func (c *Context) Helper() {}

// Logf writes to the test log.
func (c *Context) Logf(format string, args ...any) {
	if c.inst != nil {
		c.inst.Logf(format, args...)
	}
}

// Log writes to the test log.
func (c *Context) Log(args ...any) {
	c.Logf("%s", fmt.Sprint(args...))
}

// Name returns the instance path.
func (c *Context) Name() string {
	if c.inst == nil {
		return ""
	}
	return c.inst.Name()
}

// TempDir returns a directory removed when the instance ends.
func (c *Context) TempDir() string {
	return c.inst.TB.TempDir()
}

// Cleanup registers fn to run when the instance ends.
func (c *Context) Cleanup(fn func()) {
	c.inst.TB.Cleanup(fn)
}

// Logger returns the instance logger.
func (c *Context) Logger() *slog.Logger {
	if c.inst == nil || c.inst.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.inst.Logger
}

func (c *Context) beginClause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collecting = true
	c.collected = nil
}

func (c *Context) endClause() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.collected
	c.collecting = false
	c.collected = nil
	return msgs
}
