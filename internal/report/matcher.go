package report

import (
	"fmt"

	"github.com/onsi/gomega/types"
)

// FailThenClause matches a *Clause whose evaluation fails. Assert with
//
//	g.Expect(clause).NotTo(report.FailThenClause())
//
// The clause is evaluated once, in Match, and the failure text is only
// rendered if gomega asks for it.
func FailThenClause() types.GomegaMatcher {
	return &failThenClauseMatcher{}
}

type failThenClauseMatcher struct {
	outcome *Outcome
}

func (m *failThenClauseMatcher) Match(actual any) (bool, error) {
	clause, ok := actual.(*Clause)
	if !ok {
		return false, fmt.Errorf("FailThenClause expects a *report.Clause, got %T", actual)
	}
	out := clause.Evaluate()
	m.outcome = &out
	return out.Failed(), nil
}

func (m *failThenClauseMatcher) FailureMessage(actual any) string {
	if clause, ok := actual.(*Clause); ok {
		return fmt.Sprintf("Expected Then clause `%s` to fail, but it held", clause.Label)
	}
	return "Expected Then clause to fail"
}

func (m *failThenClauseMatcher) NegatedFailureMessage(any) string {
	if m.outcome == nil {
		return "Then clause was not evaluated"
	}
	return m.outcome.Message()
}
