// Package gwt is a Given/When/Then DSL for behavioural tests on top of the
// go test runner.
//
// A spec is a tree of scopes. Given steps set up state, When steps act on
// it, Invariant steps check what must hold after every action, and each
// Then registers one test whose clauses are the assertions:
//
//	func TestCounter(t *testing.T) {
//		gwt.Run(t, "counter", func(s *gwt.Spec) {
//			var n int
//			s.Given(func() { n = 0 })
//			s.When(func() { n++ })
//
//			s.Then(func() bool { return n == 1 })
//
//			s.Describe("incremented twice", func() {
//				s.When(func() { n++ })
//				s.Then(func() bool { return n == 2 })
//			})
//		})
//	}
//
// For every Then, the steps of the enclosing scopes run outer to inner:
// all Givens first, then all Whens, then all Invariants, then the Then
// clauses in order. Each run gets a fresh Context, so nothing leaks from
// one test to the next.
//
// A step is a function of one of these shapes:
//
//	func()                      func(*gwt.Context)
//	func() T                    func(*gwt.Context) T
//	func(gwt.Done)              func(*gwt.Context, gwt.Done)
//
// The Done forms are asynchronous: the next step starts only once done
// has been called. A Then fails when its clause returns false, returns a
// non-nil error, panics, reports through the Context (testify and gomega
// both accept a *gwt.Context), or returns a Comparison that does not hold.
// Comparisons built with Compare and Equal carry their operands, so a
// failure shows the values that were compared.
//
// And continues whichever of Given, When, Invariant or Then was called
// last. A Then returns a Chain whose And appends further clauses that run
// in the same test.
package gwt
