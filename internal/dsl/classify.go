package dsl

import (
	"reflect"

	"github.com/roach88/gwt/internal/report"
	"github.com/roach88/gwt/internal/waterfall"
)

// Done signals completion of an asynchronous step.
type Done = waterfall.Done

// Block is a classified user step.
type Block struct {
	// Async is set when the step takes a completion callback.
	Async bool
	// Returns is set when the step produces a value.
	Returns bool

	call      func(*Context) any
	callAsync func(*Context, Done)
}

// Call runs a synchronous block and returns its value (nil when the block
// returns nothing).
func (b *Block) Call(c *Context) any {
	return b.call(c)
}

// CallAsync runs an asynchronous block.
func (b *Block) CallAsync(c *Context, done Done) {
	b.callAsync(c, done)
}

const acceptedShapes = "func(), func() T, func(*gwt.Context), func(*gwt.Context) T, " +
	"func(gwt.Done), func(*gwt.Context, gwt.Done), func(func()) or func(*gwt.Context, func())"

var contextType = reflect.TypeOf((*Context)(nil))

// Classify decides how a step function is run from its static type.
// Functions taking a Done (or func()) are asynchronous; everything else
// is synchronous. A single result of any type is the step's value.
func Classify(fn any) (*Block, error) {
	switch f := fn.(type) {
	case nil:
		return nil, usageErrorf(ErrCodeMissingStep, "step is nil")
	case func():
		return syncBlock(false, func(*Context) any { f(); return nil }), nil
	case func(*Context):
		return syncBlock(false, func(c *Context) any { f(c); return nil }), nil
	case func() bool:
		return syncBlock(true, func(*Context) any { return f() }), nil
	case func(*Context) bool:
		return syncBlock(true, func(c *Context) any { return f(c) }), nil
	case func() error:
		return syncBlock(true, func(*Context) any { return errorValue(f()) }), nil
	case func(*Context) error:
		return syncBlock(true, func(c *Context) any { return errorValue(f(c)) }), nil
	case func() any:
		return syncBlock(true, func(*Context) any { return f() }), nil
	case func(*Context) any:
		return syncBlock(true, func(c *Context) any { return f(c) }), nil
	case func() report.Comparison:
		return syncBlock(true, func(*Context) any { return f() }), nil
	case func(*Context) report.Comparison:
		return syncBlock(true, func(c *Context) any { return f(c) }), nil
	case func(Done):
		return asyncBlock(func(_ *Context, d Done) { f(d) }), nil
	case func(*Context, Done):
		return asyncBlock(f), nil
	case func(func()):
		return asyncBlock(func(_ *Context, d Done) { f(d) }), nil
	case func(*Context, func()):
		return asyncBlock(func(c *Context, d Done) { f(c, d) }), nil
	}
	return classifyReflect(fn)
}

// classifyReflect accepts func() T and func(*Context) T for any T.
func classifyReflect(fn any) (*Block, error) {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func || t.IsVariadic() || t.NumOut() != 1 {
		return nil, badStep(fn)
	}
	switch {
	case t.NumIn() == 0:
		return syncBlock(true, func(*Context) any {
			return v.Call(nil)[0].Interface()
		}), nil
	case t.NumIn() == 1 && t.In(0) == contextType:
		return syncBlock(true, func(c *Context) any {
			return v.Call([]reflect.Value{reflect.ValueOf(c)})[0].Interface()
		}), nil
	}
	return nil, badStep(fn)
}

func badStep(fn any) error {
	return usageErrorf(ErrCodeBadStep, "unsupported step %T: expected %s", fn, acceptedShapes)
}

func syncBlock(returns bool, call func(*Context) any) *Block {
	return &Block{Returns: returns, call: call}
}

func asyncBlock(call func(*Context, Done)) *Block {
	return &Block{Async: true, callAsync: call}
}

// errorValue keeps a nil error from becoming a typed nil interface.
func errorValue(err error) any {
	if err == nil {
		return nil
	}
	return err
}
