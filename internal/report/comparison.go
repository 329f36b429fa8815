package report

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
)

// Op is a comparison operator.
type Op string

const (
	// OpEqual compares by value: numbers of different Go types compare
	// numerically, everything else as OpStrictEqual.
	OpEqual Op = "=="
	// OpStrictEqual requires identical dynamic types and Go == equality.
	// Uncomparable values are never strictly equal.
	OpStrictEqual    Op = "==="
	OpNotEqual       Op = "!="
	OpStrictNotEqual Op = "!=="
	OpLess           Op = "<"
	OpLessEqual      Op = "<="
	OpGreater        Op = ">"
	OpGreaterEqual   Op = ">="
	// OpDeepEqual compares structurally, including unexported fields.
	OpDeepEqual Op = "deepEquals"
)

// Comparison is a structured binary assertion. A Then step returns one
// instead of a bare bool so a failure can show both operand values.
//
// Either operand may be a func() any. It is called lazily when the
// comparison is evaluated; a panic inside it is captured and rendered as
// <Error: "msg"> rather than escaping.
type Comparison struct {
	Left  any
	Op    Op
	Right any
}

// Compare builds a Comparison.
func Compare(left any, op Op, right any) Comparison {
	return Comparison{Left: left, Op: op, Right: right}
}

// Equal builds a deep-equality Comparison.
func Equal(left, right any) Comparison {
	return Compare(left, OpDeepEqual, right)
}

// Operand is an evaluated side of a Comparison.
type Operand struct {
	Value any
	Err   error // set when a thunk panicked
}

// Render formats the operand for failure messages.
func (o Operand) Render() string {
	if o.Err != nil {
		return fmt.Sprintf("<Error: %q>", o.Err.Error())
	}
	return FormatValue(o.Value)
}

// Evaluation is the result of evaluating a Comparison once.
type Evaluation struct {
	Left  Operand
	Op    Op
	Right Operand
	Holds bool
	// DeepEqual is set when an equality check failed but the operands are
	// structurally equal.
	DeepEqual bool
	// Unsupported describes why the operator cannot apply to the operands.
	Unsupported string
}

// Err returns the first operand error.
func (e Evaluation) Err() error {
	if e.Left.Err != nil {
		return e.Left.Err
	}
	return e.Right.Err
}

// Evaluate computes operands and the result.
func (c Comparison) Evaluate() Evaluation {
	ev := Evaluation{Left: evalOperand(c.Left), Op: c.Op, Right: evalOperand(c.Right)}
	if ev.Err() != nil {
		return ev
	}
	l, r := ev.Left.Value, ev.Right.Value

	switch c.Op {
	case OpEqual:
		ev.Holds = looseEqual(l, r)
	case OpStrictEqual:
		ev.Holds = strictEqual(l, r)
	case OpNotEqual:
		ev.Holds = !looseEqual(l, r)
	case OpStrictNotEqual:
		ev.Holds = !strictEqual(l, r)
	case OpDeepEqual:
		ev.Holds = deepEqual(l, r)
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		order, ok := compareOrdered(l, r)
		if !ok {
			ev.Unsupported = fmt.Sprintf("cannot order %T and %T", l, r)
			return ev
		}
		switch c.Op {
		case OpLess:
			ev.Holds = order < 0
		case OpLessEqual:
			ev.Holds = order <= 0
		case OpGreater:
			ev.Holds = order > 0
		default:
			ev.Holds = order >= 0
		}
	default:
		ev.Unsupported = fmt.Sprintf("unknown operator %q", string(c.Op))
		return ev
	}

	if !ev.Holds && (c.Op == OpEqual || c.Op == OpStrictEqual) {
		ev.DeepEqual = deepEqual(l, r)
	}
	return ev
}

// Insight renders the "comparison was detected" section appended to
// failure messages. It is empty when both operands failed to evaluate.
func (e Evaluation) Insight(label string) string {
	if e.Left.Err != nil && e.Right.Err != nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nThis comparison was detected:\n")
	fmt.Fprintf(&b, "  %s\n", label)
	fmt.Fprintf(&b, "  %s %s %s", e.Left.Render(), e.Op, e.Right.Render())
	if e.Unsupported != "" {
		fmt.Fprintf(&b, "\n  (%s)", e.Unsupported)
	}
	if e.DeepEqual {
		b.WriteString("\n\nHowever, these items are deeply equal! Try an expectation like this instead:\n")
		fmt.Fprintf(&b, "  gwt.Equal(%s, %s)", e.Left.Render(), e.Right.Render())
	}
	return b.String()
}

// FormatValue renders a value the way failure messages show it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(x)
	case error:
		return fmt.Sprintf("error(%q)", x.Error())
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("%+v", v)
}

func evalOperand(v any) (op Operand) {
	fn, ok := v.(func() any)
	if !ok {
		return Operand{Value: v}
	}
	defer func() {
		if r := recover(); r != nil {
			op = Operand{Err: panicError(r)}
		}
	}()
	return Operand{Value: fn()}
}

func strictEqual(a, b any) (eq bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

func looseEqual(a, b any) bool {
	if order, ok := compareNumbers(a, b); ok {
		return order == 0
	}
	return strictEqual(a, b)
}

func deepEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = reflect.DeepEqual(a, b)
		}
	}()
	return cmp.Equal(a, b, cmp.Exporter(func(reflect.Type) bool { return true }))
}

// compareOrdered returns -1, 0 or 1 for numbers, strings, durations
// and times.
func compareOrdered(a, b any) (int, bool) {
	if order, ok := compareNumbers(a, b); ok {
		return order, true
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), true
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt), true
		}
	}
	return 0, false
}

type number struct {
	kind rune // 'i', 'u' or 'f'
	i    int64
	u    uint64
	f    float64
}

func toNumber(v any) (number, bool) {
	if v == nil {
		return number{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{kind: 'i', i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{kind: 'u', u: rv.Uint()}, true
	case reflect.Float32, reflect.Float64:
		return number{kind: 'f', f: rv.Float()}, true
	}
	return number{}, false
}

func compareNumbers(a, b any) (int, bool) {
	x, ok := toNumber(a)
	if !ok {
		return 0, false
	}
	y, ok := toNumber(b)
	if !ok {
		return 0, false
	}

	switch {
	case x.kind == 'i' && y.kind == 'i':
		return cmpOrdered(x.i, y.i), true
	case x.kind == 'u' && y.kind == 'u':
		return cmpOrdered(x.u, y.u), true
	case x.kind == 'i' && y.kind == 'u':
		if x.i < 0 {
			return -1, true
		}
		return cmpOrdered(uint64(x.i), y.u), true
	case x.kind == 'u' && y.kind == 'i':
		if y.i < 0 {
			return 1, true
		}
		return cmpOrdered(x.u, uint64(y.i)), true
	}
	return cmpOrdered(x.float(), y.float()), true
}

func (n number) float() float64 {
	switch n.kind {
	case 'i':
		return float64(n.i)
	case 'u':
		return float64(n.u)
	}
	return n.f
}

func cmpOrdered[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
