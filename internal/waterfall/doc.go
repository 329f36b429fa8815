// Package waterfall runs an ordered list of steps strictly one after another.
//
// A step is either synchronous (it has finished when it returns) or
// asynchronous (it receives a Done callback and has finished when Done is
// called, possibly from another goroutine). The runner never starts step k+1
// before step k has finished, and it calls the final callback exactly once,
// after the last step.
//
// The drain loop is iterative. An asynchronous step that calls Done before
// returning does not grow the call stack, so very long step lists are safe.
//
// Usage:
//
//	w := waterfall.New([]waterfall.Step{
//		waterfall.Sync(func() { counter++ }),
//		waterfall.Async(func(done waterfall.Done) {
//			time.AfterFunc(time.Millisecond, done)
//		}),
//	}, func() { close(finished) })
//	w.Flow()
package waterfall
