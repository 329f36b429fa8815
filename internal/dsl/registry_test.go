package dsl

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gwt/internal/report"
	"github.com/roach88/gwt/internal/suite"
	"github.com/roach88/gwt/internal/testutil"
	"github.com/roach88/gwt/internal/trace"
)

// runSpec registers a spec on a fresh suite and executes it against a FakeT.
func runSpec(t *testing.T, opts Options, body func(s *suite.Suite, r *Registry)) *testutil.FakeT {
	t.Helper()
	s := suite.New("spec", suite.Config{Timeout: time.Second})
	r, err := NewRegistry(s, opts)
	require.NoError(t, err)

	body(s, r)

	ft := testutil.NewFakeT("root")
	s.Run(suite.Fake(ft))
	return ft
}

func must(t *testing.T, err error) {
	t.Helper()
	require.NoError(t, err)
}

func mustThen(t *testing.T) func(*Chain, error) *Chain {
	return func(ch *Chain, err error) *Chain {
		t.Helper()
		require.NoError(t, err)
		return ch
	}
}

type journal struct {
	entries []string
}

func (j *journal) note(entry string) func() {
	return func() { j.entries = append(j.entries, entry) }
}

func TestRegistry_ExecutionOrderAcrossScopes(t *testing.T) {
	j := &journal{}
	then := mustThen(t)

	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		must(t, r.Invariant(j.note("outer invariant")))
		must(t, r.When(j.note("outer when")))
		must(t, r.Given(j.note("outer given")))
		must(t, s.Describe("inner", func() {
			must(t, r.Invariant(j.note("inner invariant")))
			must(t, r.When(j.note("inner when")))
			must(t, r.Given(j.note("inner given")))
			then(r.Then(j.note("then")))
		}))
	})

	assert.False(t, ft.Failed(), ft.AllErrors())
	assert.Equal(t, []string{
		"outer given", "inner given",
		"outer when", "inner when",
		"outer invariant", "inner invariant",
		"then",
	}, j.entries)
}

func TestRegistry_WhensAreScopedToTheirGroup(t *testing.T) {
	j := &journal{}
	then := mustThen(t)

	runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		must(t, s.Describe("a", func() {
			must(t, r.When(j.note("a when")))
			then(r.Then(j.note("a then")))
		}))
		must(t, s.Describe("b", func() {
			then(r.Then(j.note("b then")))
		}))
	})

	assert.Equal(t, []string{"a when", "a then", "b then"}, j.entries)
}

func TestRegistry_EachInstanceGetsAFreshContext(t *testing.T) {
	then := mustThen(t)
	var lengths []int

	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		must(t, r.Given("items", func() any { return &[]int{} }))
		must(t, r.When(func(c *Context) {
			items := Get[*[]int](c, "items")
			*items = append(*items, 1)
		}))
		then(r.Then("first", func(c *Context) bool {
			lengths = append(lengths, len(*Get[*[]int](c, "items")))
			return true
		}))
		then(r.Then("second", func(c *Context) bool {
			lengths = append(lengths, len(*Get[*[]int](c, "items")))
			return true
		}))
	})

	assert.False(t, ft.Failed(), ft.AllErrors())
	assert.Equal(t, []int{1, 1}, lengths)
	assert.Equal(t, []string{"then first", "then second"}, ft.Leaves())
}

func TestRegistry_ContextIsDroppedAfterEachInstance(t *testing.T) {
	then := mustThen(t)
	var during *Context
	var reg *Registry

	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		reg = r
		then(r.Then("sees a context", func() { during = r.Context() }))
	})

	assert.False(t, ft.Failed(), ft.AllErrors())
	assert.NotNil(t, during)
	assert.Nil(t, reg.Context())
}

func TestRegistry_NamedGivenAssignsValue(t *testing.T) {
	then := mustThen(t)
	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		must(t, r.Given("total", func() int { return 2 }))
		must(t, r.And("doubled", func(c *Context) int { return Get[int](c, "total") * 2 }))
		then(r.Then(func(c *Context) bool { return Get[int](c, "doubled") == 4 }))
	})
	assert.False(t, ft.Failed(), ft.AllErrors())
}

func TestRegistry_NamedGivenRefusesOverwrite(t *testing.T) {
	then := mustThen(t)
	ran := false

	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		must(t, r.Given("x", func() int { return 1 }))
		must(t, s.Describe("nested", func() {
			must(t, r.Given("x", func() int { return 2 }))
			then(r.Then(func() bool { ran = true; return true }))
		}))
	})

	assert.False(t, ran)
	errs := ft.AllErrors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Unfortunately, the variable 'x' is already assigned to: 1")
}

func TestRegistry_NamedGivenNeedsValue(t *testing.T) {
	s := suite.New("spec", suite.Config{})
	r, err := NewRegistry(s, Options{})
	require.NoError(t, err)

	err = r.Given("x", func() {})
	assert.True(t, HasCode(err, ErrCodeBadStep))

	err = r.Given("x")
	assert.True(t, HasCode(err, ErrCodeMissingStep))

	err = r.When(func(int) {})
	assert.True(t, IsUsageError(err))
}

func TestRegistry_ThenReturningFalseFails(t *testing.T) {
	then := mustThen(t)
	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		then(r.Then(func() bool { return 1+1 == 3 }))
	})

	errs := ft.AllErrors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Then clause `1+1 == 3` failed by returning false")
	assert.Contains(t, errs[0], "failed expectation\n    at ")
	assert.Contains(t, errs[0], "registry_test.go")
	assert.Equal(t, []string{"then 1+1 == 3"}, ft.Leaves())
}

func TestRegistry_ThenPanicIsReportedAsThrowing(t *testing.T) {
	then := mustThen(t)
	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		then(r.Then("explodes", func() bool { panic("boom") }))
	})

	errs := ft.AllErrors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "failed by throwing: boom")
}

func TestRegistry_ThenReturningErrorFails(t *testing.T) {
	then := mustThen(t)
	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		then(r.Then("errs", func() error { return errors.New("not ready") }))
	})
	require.Len(t, ft.AllErrors(), 1)
	assert.Contains(t, ft.AllErrors()[0], "failed by returning error: not ready")
}

func TestRegistry_ThenWithTestify(t *testing.T) {
	then := mustThen(t)
	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		then(r.Then("testify", func(c *Context) { assert.Equal(c, 1, 2) }))
	})
	require.Len(t, ft.AllErrors(), 1)
	assert.Contains(t, ft.AllErrors()[0], "failed by asserting: ")
	assert.Contains(t, ft.AllErrors()[0], "Not equal")
}

func TestRegistry_ComparisonInsight(t *testing.T) {
	then := mustThen(t)
	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		must(t, r.Given("x", func() int { return 1 }))
		then(r.Then(func(c *Context) report.Comparison { return report.Compare(c.Get("x"), report.OpStrictEqual, 3) }))
		then(r.Then(func() report.Comparison { return report.Compare([]int{1}, report.OpStrictEqual, []int{1}) }))
	})

	errs := ft.AllErrors()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "This comparison was detected:")
	assert.Contains(t, errs[0], "\n  1 === 3")
	assert.NotContains(t, errs[0], "deeply equal")
	assert.Contains(t, errs[1], "However, these items are deeply equal!")
}

func TestRegistry_ChainedClausesShareContext(t *testing.T) {
	then := mustThen(t)
	var seen []int

	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		must(t, r.Given("n", func() int { return 7 }))
		ch := then(r.Then(func(c *Context) bool { seen = append(seen, Get[int](c, "n")); return true }))
		must(t, ch.And(func(c *Context) bool { seen = append(seen, Get[int](c, "n")); return true }))
		must(t, r.And(func(c *Context) bool { seen = append(seen, Get[int](c, "n")); return true }))
		assert.Equal(t, 3, ch.Len())
	})

	assert.False(t, ft.Failed(), ft.AllErrors())
	assert.Equal(t, []int{7, 7, 7}, seen)
	assert.Len(t, ft.Leaves(), 1)
}

func TestRegistry_FailingClauseStopsTheChain(t *testing.T) {
	then := mustThen(t)
	thirdRan := false

	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		ch := then(r.Then("chain", func() bool { return true }))
		must(t, ch.And(func() bool { return false }))
		must(t, ch.And(func() bool { thirdRan = true; return true }))
	})

	assert.False(t, thirdRan)
	errs := ft.AllErrors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Then clause #2 `false` failed by returning false")
}

func TestRegistry_AndFollowsMostRecentRegistrar(t *testing.T) {
	j := &journal{}
	then := mustThen(t)

	runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		must(t, r.When(j.note("when")))
		must(t, r.And(j.note("and after when")))
		must(t, r.Given(j.note("given")))
		must(t, r.And(j.note("and after given")))
		must(t, r.Invariant(j.note("invariant")))
		must(t, r.And(j.note("and after invariant")))
		then(r.Then(j.note("then")))
	})

	assert.Equal(t, []string{
		"given", "and after given",
		"when", "and after when",
		"invariant", "and after invariant",
		"then",
	}, j.entries)
}

func TestRegistry_LeadingAnd(t *testing.T) {
	s := suite.New("spec", suite.Config{})
	r, err := NewRegistry(s, Options{})
	require.NoError(t, err)

	err = r.And(func() {})
	assert.True(t, HasCode(err, ErrCodeNoRegistrar), err)

	err = r.ContinueThen("And", func() bool { return true })
	assert.True(t, HasCode(err, ErrCodeNoThen), err)

	j := &journal{}
	then := mustThen(t)
	runSpec(t, Options{ImplicitGiven: true}, func(s *suite.Suite, r *Registry) {
		must(t, r.And(j.note("implicit given")))
		must(t, r.When(j.note("when")))
		then(r.Then(j.note("then")))
	})
	assert.Equal(t, []string{"implicit given", "when", "then"}, j.entries)
}

func TestRegistry_FalseFromWhenOrInvariantIsNotAFailure(t *testing.T) {
	then := mustThen(t)
	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		must(t, r.Given(func() bool { return false }))
		must(t, r.When(func() bool { return false }))
		must(t, r.Invariant(func() any { return 0 }))
		then(r.Then("passes", func() bool { return true }))
	})
	assert.False(t, ft.Failed(), ft.AllErrors())
}

func TestRegistry_ChainSealedOnceRunning(t *testing.T) {
	var lateErr error
	var ch *Chain
	then := mustThen(t)

	runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		ch = then(r.Then("seals", func() bool {
			lateErr = ch.And(func() bool { return true })
			return true
		}))
	})

	assert.True(t, HasCode(lateErr, ErrCodeChainSealed), lateErr)
}

func TestRegistry_RegistrationWhileRunningIsUsageError(t *testing.T) {
	var lateErr error
	then := mustThen(t)

	runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		then(r.Then("registers late", func() bool {
			lateErr = r.When(func() {})
			return true
		}))
	})

	assert.True(t, HasCode(lateErr, ErrCodeHostRunning), lateErr)
	assert.ErrorIs(t, lateErr, suite.ErrRunning)
}

func TestRegistry_AsyncSteps(t *testing.T) {
	then := mustThen(t)
	var count atomic.Int64
	inc := func(done Done) {
		time.AfterFunc(time.Millisecond, func() {
			count.Add(1)
			done()
		})
	}

	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		must(t, r.Invariant(inc))
		must(t, r.Invariant(func() { count.Add(1) }))
		must(t, r.When(inc))
		must(t, r.And(func() { count.Add(1) }))
		ch := then(r.Then("boatload", inc))
		must(t, ch.And(func() { count.Add(1) }))
		must(t, ch.And(inc))
		must(t, ch.And(func() bool { return count.Add(1) == 8 }))
	})

	assert.False(t, ft.Failed(), ft.AllErrors())
	assert.Equal(t, int64(8), count.Load())
}

func TestRegistry_AsyncThenReportsFailures(t *testing.T) {
	then := mustThen(t)
	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		then(r.Then("async failure", func(c *Context, done Done) {
			time.AfterFunc(time.Millisecond, func() {
				c.Errorf("arrived too late")
				done()
			})
		}))
	})

	errs := ft.AllErrors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "failed by asserting: arrived too late")
}

func TestRegistry_HungWhenTimesOut(t *testing.T) {
	thenRan := false
	s := suite.New("spec", suite.Config{Timeout: 20 * time.Millisecond})
	r, err := NewRegistry(s, Options{})
	require.NoError(t, err)
	must(t, r.When(func(Done) {}))
	_, err = r.Then("never", func() bool { thenRan = true; return true })
	require.NoError(t, err)

	ft := testutil.NewFakeT("root")
	s.Run(suite.Fake(ft))

	assert.False(t, thenRan)
	errs := ft.AllErrors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "test timed out after 20ms")
}

func TestRegistry_ThenOnly(t *testing.T) {
	j := &journal{}
	then := mustThen(t)

	ft := runSpec(t, Options{}, func(s *suite.Suite, r *Registry) {
		then(r.Then("skipped", j.note("skipped")))
		then(r.ThenOnly("focused", j.note("focused")))
	})

	assert.Equal(t, []string{"focused"}, j.entries)
	assert.Equal(t, []string{"then focused"}, ft.Leaves())
}

func TestRegistry_GoldenTrace(t *testing.T) {
	j := &journal{}
	then := mustThen(t)
	rec := trace.NewRecorder(testutil.NewFixedIDGenerator("order"))

	runSpec(t, Options{Recorder: rec}, func(s *suite.Suite, r *Registry) {
		must(t, s.Describe("outer", func() {
			must(t, r.Given(j.note("outer given")))
			must(t, r.When(j.note("outer when")))
			must(t, r.Invariant(j.note("outer invariant")))
			must(t, s.Describe("middle", func() {
				must(t, r.Given(j.note("middle given")))
				must(t, r.When(j.note("middle when")))
				must(t, s.Describe("inner", func() {
					must(t, r.Invariant(j.note("inner invariant")))
					then(r.Then("deep", j.note("inner then")))
				}))
			}))
			then(r.Then("shallow", j.note("outer then")))
		}))
	})

	trace.AssertGolden(t, "registry_order", rec)
}
