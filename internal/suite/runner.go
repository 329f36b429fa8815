package suite

import (
	"testing"

	"github.com/roach88/gwt/internal/testutil"
)

// TB is the reporting surface the suite needs from a test.
// *testing.T and *testutil.FakeT both satisfy it.
type TB interface {
	Helper()
	Name() string
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Failed() bool
	TempDir() string
	Cleanup(func())
}

// Runner is a TB that can start named subtests.
type Runner interface {
	TB
	Run(name string, fn func(Runner)) bool
}

type goTest struct {
	*testing.T
}

// GoTest adapts a *testing.T to Runner. Subtests map onto t.Run.
func GoTest(t *testing.T) Runner {
	return goTest{T: t}
}

func (g goTest) Run(name string, fn func(Runner)) bool {
	return g.T.Run(name, func(t *testing.T) {
		fn(goTest{T: t})
	})
}

type fakeTest struct {
	*testutil.FakeT
}

// Fake adapts a FakeT to Runner, for specs whose failures are under test.
func Fake(f *testutil.FakeT) Runner {
	return fakeTest{FakeT: f}
}

func (f fakeTest) Run(name string, fn func(Runner)) bool {
	return f.FakeT.Run(name, func(child *testutil.FakeT) {
		fn(fakeTest{FakeT: child})
	})
}
