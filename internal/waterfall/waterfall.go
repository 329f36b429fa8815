package waterfall

import (
	"sync"
	"sync/atomic"
)

// Done signals that an asynchronous step has finished.
// Calls after the first have no effect.
type Done func()

// Step is a single unit of work. The zero value is a no-op synchronous step.
type Step struct {
	sync  func()
	async func(Done)
}

// Sync creates a step that has finished when fn returns.
func Sync(fn func()) Step {
	return Step{sync: fn}
}

// Async creates a step that has finished when fn calls its Done argument.
func Async(fn func(Done)) Step {
	return Step{async: fn}
}

// IsAsync reports whether the step waits for a completion signal.
func (s Step) IsAsync() bool {
	return s.async != nil
}

// Invoke runs the step on its own, calling done once it has finished.
// A synchronous step calls done after returning. If it panics, done is
// not called.
func (s Step) Invoke(done Done) {
	switch {
	case s.async != nil:
		s.async(done)
	case s.sync != nil:
		s.sync()
		done()
	default:
		done()
	}
}

// Waterfall drains a private copy of a step list in order.
//
// Thread-safety: Done callbacks may be invoked from any goroutine. The
// queue is protected by a mutex and at most one goroutine drains at a time.
type Waterfall struct {
	mu       sync.Mutex
	steps    []Step
	final    func()
	started  bool
	draining bool // a goroutine is inside drain
	resumed  bool // the in-flight async step signalled while draining
	finished bool
}

// New creates a runner over a copy of steps. Mutating the caller's slice
// afterwards does not affect the run. final may be nil.
func New(steps []Step, final func()) *Waterfall {
	own := make([]Step, len(steps))
	copy(own, steps)
	return &Waterfall{steps: own, final: final}
}

// Flow starts draining. Only the first call has an effect.
//
// If every step is synchronous (or signals Done before returning), Flow
// returns after the final callback has run. Otherwise it returns as soon as
// an asynchronous step is pending; the rest of the list runs on whichever
// goroutine calls Done.
func (w *Waterfall) Flow() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.drain()
}

// Len returns the number of steps not yet started.
func (w *Waterfall) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.steps)
}

// Finished reports whether the final callback has been invoked.
func (w *Waterfall) Finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}

func (w *Waterfall) drain() {
	w.mu.Lock()
	if w.draining {
		// Done fired synchronously inside the step the loop is running.
		w.resumed = true
		w.mu.Unlock()
		return
	}
	w.draining = true

	for {
		if len(w.steps) == 0 {
			w.draining = false
			if w.finished {
				w.mu.Unlock()
				return
			}
			w.finished = true
			final := w.final
			w.mu.Unlock()
			if final != nil {
				final()
			}
			return
		}

		step := w.steps[0]
		w.steps[0] = Step{}
		w.steps = w.steps[1:]
		w.resumed = false
		w.mu.Unlock()

		switch {
		case step.async != nil:
			step.async(w.doneOnce())
		case step.sync != nil:
			step.sync()
		default:
		}

		w.mu.Lock()
		if step.async != nil && !w.resumed {
			// Still pending; the eventual Done call re-enters drain.
			w.draining = false
			w.mu.Unlock()
			return
		}
	}
}

func (w *Waterfall) doneOnce() Done {
	var called atomic.Bool
	return func() {
		if called.CompareAndSwap(false, true) {
			w.drain()
		}
	}
}
