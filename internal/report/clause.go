package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/gwt/internal/suite"
)

// Clause is one Then (or chained And) assertion awaiting evaluation.
type Clause struct {
	// N is the 1-based position within its chain.
	N int
	// Label is the display text for the assertion.
	Label string
	// Stack is the formatted registration site, appended to failures.
	Stack string
	// Invoke runs the assertion and returns its value. Nil means the
	// assertion already ran and produced no value.
	Invoke func() any
	// Asserted returns messages reported through the execution context
	// while the assertion ran.
	Asserted func() []string
}

// Reason classifies why a clause failed.
type Reason int

const (
	Passed Reason = iota
	ReturnedFalse
	ReturnedError
	Threw
	Asserted
	Unsupported
)

// Outcome is the evaluated result of a Clause.
type Outcome struct {
	Clause     *Clause
	Reason     Reason
	Value      any
	Err        error
	Messages   []string
	Comparison *Evaluation
}

// Evaluate runs the clause once and classifies the result.
func (c *Clause) Evaluate() Outcome {
	out := Outcome{Clause: c}

	var panicked error
	if c.Invoke != nil {
		out.Value, panicked = invoke(c.Invoke)
	}
	if c.Asserted != nil {
		out.Messages = c.Asserted()
	}

	switch {
	case panicked != nil:
		out.Reason, out.Err = Threw, panicked
	case len(out.Messages) > 0:
		out.Reason = Asserted
	default:
		out.classifyValue()
	}
	return out
}

func (o *Outcome) classifyValue() {
	switch v := o.Value.(type) {
	case bool:
		if !v {
			o.Reason = ReturnedFalse
		}
	case error:
		if v != nil {
			o.Reason, o.Err = ReturnedError, v
		}
	case Comparison:
		ev := v.Evaluate()
		o.Comparison = &ev
		switch {
		case ev.Err() != nil:
			o.Reason, o.Err = Threw, ev.Err()
		case ev.Unsupported != "":
			o.Reason = Unsupported
		case !ev.Holds:
			o.Reason = ReturnedFalse
		}
	}
}

// Failed reports whether the clause did not hold.
func (o Outcome) Failed() bool {
	return o.Reason != Passed
}

// Message renders the failure text:
//
//	Then clause[ #n] `label` failed by <reason>[insight][\n\n<stack>]
func (o Outcome) Message() string {
	if !o.Failed() {
		return ""
	}
	c := o.Clause
	var b strings.Builder
	b.WriteString("Then clause")
	if c.N > 1 {
		fmt.Fprintf(&b, " #%d", c.N)
	}
	fmt.Fprintf(&b, " `%s` failed by ", c.Label)

	switch o.Reason {
	case ReturnedFalse:
		b.WriteString("returning false")
	case ReturnedError:
		fmt.Fprintf(&b, "returning error: %v", o.Err)
	case Threw:
		fmt.Fprintf(&b, "throwing: %v", o.Err)
	case Asserted:
		fmt.Fprintf(&b, "asserting: %s", strings.Join(o.Messages, "\n"))
	case Unsupported:
		b.WriteString("comparing incomparable values")
	}

	if o.Comparison != nil {
		b.WriteString(o.Comparison.Insight(c.Label))
	}
	if c.Stack != "" {
		b.WriteString("\n\n")
		b.WriteString(c.Stack)
	}
	return b.String()
}

func invoke(fn func() any) (v any, panicked error) {
	defer func() {
		r := recover()
		if r == nil || suite.IsAbort(r) {
			// An abort has already reported through Asserted.
			return
		}
		panicked = panicError(r)
	}()
	return fn(), nil
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New(fmt.Sprint(r))
}
