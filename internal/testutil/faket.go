package testutil

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// FakeT is an in-memory stand-in for *testing.T.
//
// It records errors and logs instead of failing the real test, so specs
// that are expected to fail can be executed and inspected. Subtests run
// sequentially on the calling goroutine, and each one gets its own FakeT
// in a tree rooted at the value returned by NewFakeT.
//
// Thread-safety: Errorf, Logf and Failed may be called from any goroutine.
type FakeT struct {
	mu       sync.Mutex
	name     string
	parent   *FakeT
	failed   bool
	errors   []string
	logs     []string
	children []*FakeT
	cleanups []func()
}

type fakeFatal struct{}

// NewFakeT creates a root FakeT with the given name.
func NewFakeT(name string) *FakeT {
	return &FakeT{name: name}
}

// Helper is a no-op.
func (f *FakeT) Helper() {}

// Name returns the slash-separated path from the root.
func (f *FakeT) Name() string {
	if f.parent == nil {
		return f.name
	}
	return f.parent.Name() + "/" + f.name
}

// Errorf records a failure message and marks f and its ancestors failed.
func (f *FakeT) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	f.mu.Lock()
	f.errors = append(f.errors, msg)
	f.mu.Unlock()
	f.markFailed()
}

// Fatalf records a failure and stops the current subtest.
func (f *FakeT) Fatalf(format string, args ...any) {
	f.Errorf(format, args...)
	panic(fakeFatal{})
}

// Logf records a log line.
func (f *FakeT) Logf(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, fmt.Sprintf(format, args...))
}

// Failed reports whether f or any of its subtests failed.
func (f *FakeT) Failed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

// TempDir creates a directory that is removed when f's cleanups run.
func (f *FakeT) TempDir() string {
	dir, err := os.MkdirTemp("", "gwt-fake-")
	if err != nil {
		f.Fatalf("TempDir: %v", err)
	}
	f.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// Cleanup registers fn to run, last-in first-out, when f's subtest ends.
func (f *FakeT) Cleanup(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups = append(f.cleanups, fn)
}

// Run executes fn as a named subtest and reports whether it passed.
func (f *FakeT) Run(name string, fn func(*FakeT)) bool {
	child := &FakeT{name: name, parent: f}
	f.mu.Lock()
	f.children = append(f.children, child)
	f.mu.Unlock()

	func() {
		defer child.runCleanups()
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(fakeFatal); !ok {
					panic(r)
				}
			}
		}()
		fn(child)
	}()

	return !child.Failed()
}

// Errors returns the messages recorded directly on f.
func (f *FakeT) Errors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.errors...)
}

// AllErrors returns the messages recorded on f and every descendant, in
// the order the subtests ran.
func (f *FakeT) AllErrors() []string {
	out := f.Errors()
	for _, c := range f.Children() {
		out = append(out, c.AllErrors()...)
	}
	return out
}

// Logs returns the log lines recorded directly on f.
func (f *FakeT) Logs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logs...)
}

// Children returns the direct subtests in run order.
func (f *FakeT) Children() []*FakeT {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeT(nil), f.children...)
}

// Find returns the descendant at the slash-separated path relative to f.
func (f *FakeT) Find(path string) *FakeT {
	cur := f
	for _, part := range strings.Split(path, "/") {
		var next *FakeT
		for _, c := range cur.Children() {
			if c.name == part {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// Leaves returns the names, relative to f, of every subtest that has no
// subtests of its own.
func (f *FakeT) Leaves() []string {
	var out []string
	var walk func(prefix string, n *FakeT)
	walk = func(prefix string, n *FakeT) {
		children := n.Children()
		if len(children) == 0 && prefix != "" {
			out = append(out, prefix)
			return
		}
		for _, c := range children {
			p := c.name
			if prefix != "" {
				p = prefix + "/" + c.name
			}
			walk(p, c)
		}
	}
	walk("", f)
	return out
}

func (f *FakeT) markFailed() {
	for n := f; n != nil; n = n.parent {
		n.mu.Lock()
		n.failed = true
		n.mu.Unlock()
	}
}

func (f *FakeT) runCleanups() {
	f.mu.Lock()
	fns := f.cleanups
	f.cleanups = nil
	f.mu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
