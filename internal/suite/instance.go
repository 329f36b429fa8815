package suite

import (
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/roach88/gwt/internal/waterfall"
)

// Instance is one execution of one test: the hooks of every enclosing
// group plus the test body, reported against a single TB.
//
// Reports made after the instance has ended are dropped. This covers
// asynchronous steps that signal long after a timeout was reported.
type Instance struct {
	TB     TB
	Path   []string
	Seq    int64
	Logger *slog.Logger

	mu      sync.Mutex
	stopped bool
	closed  bool
}

// Errorf reports a failure unless the instance has ended. The report
// holds the instance lock, so close waits for it to reach the TB.
func (i *Instance) Errorf(format string, args ...any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.TB.Helper()
	i.TB.Errorf(format, args...)
}

// Logf writes a log line unless the instance has ended.
func (i *Instance) Logf(format string, args ...any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.TB.Logf(format, args...)
}

// Stopped reports whether a step failed hard (panic, abort or timeout).
// Remaining setup and body steps are skipped once this is true.
func (i *Instance) Stopped() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stopped
}

// Name returns the path joined with "/".
func (i *Instance) Name() string {
	return strings.Join(i.Path, "/")
}

// Guard wraps a step so that a panic stops the instance instead of
// escaping the goroutine it runs on. Unless always is set, a stopped
// instance skips the step. The wrapped step always signals completion,
// even after a panic.
func (i *Instance) Guard(phase string, st waterfall.Step, always bool) waterfall.Step {
	return waterfall.Async(func(done waterfall.Done) {
		if !always && i.Stopped() {
			done()
			return
		}
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			i.stop()
			if !IsAbort(r) {
				i.log().Error("step panicked", "phase", phase, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
				i.Errorf("%s step panicked: %v", phase, r)
			}
			done()
		}()
		st.Invoke(done)
	})
}

func (i *Instance) log() *slog.Logger {
	if i.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return i.Logger
}

// Stop marks the instance stopped without unwinding the caller. Use it
// from goroutines where Abort cannot be recovered.
func (i *Instance) Stop() {
	i.stop()
}

func (i *Instance) stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stopped = true
}

func (i *Instance) close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
}

// logWriter routes slog output through the instance's Logf.
type logWriter struct {
	inst *Instance
}

func (w logWriter) Write(p []byte) (int, error) {
	w.inst.Logf("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
