// Package gotest reads the event stream written by "go test -json" and
// extracts the results of Then clauses.
//
// Every Then registers one subtest named "then <label>", which go test
// reports as "then_<label>". The path above it names the scenario: the
// Go test function, the Run name and any Describe scopes.
package gotest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Action values in the event stream.
const (
	ActionRun    = "run"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// Outcome is the result of one clause.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
	OutcomeSkip Outcome = "skip"
)

// Event is one line of "go test -json" output.
type Event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// ClauseResult is a finished Then test.
type ClauseResult struct {
	Package string `json:"package"`
	// Test is the full go test name, as the stream reported it.
	Test     string        `json:"test"`
	Scenario string        `json:"scenario"`
	Clause   string        `json:"clause"`
	Outcome  Outcome       `json:"outcome"`
	Elapsed  time.Duration `json:"elapsed"`
	Output   string        `json:"output,omitempty"`
}

// Summary collects the clause results of a stream.
type Summary struct {
	Packages []string       `json:"packages"`
	Clauses  []ClauseResult `json:"clauses"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Skipped  int            `json:"skipped"`

	// Stray holds lines that were not JSON events, such as build errors.
	Stray []string `json:"stray,omitempty"`

	// FailedPackages lists packages that failed as a whole, including
	// failures outside any Then (build errors, panics, plain tests).
	FailedPackages []string `json:"failed_packages,omitempty"`
}

// Total returns the number of clauses.
func (s *Summary) Total() int {
	return len(s.Clauses)
}

// OK reports whether no clause and no package failed.
func (s *Summary) OK() bool {
	return s.Failed == 0 && len(s.FailedPackages) == 0
}

// Failures returns the failed clauses.
func (s *Summary) Failures() []ClauseResult {
	var out []ClauseResult
	for _, c := range s.Clauses {
		if c.Outcome == OutcomeFail {
			out = append(out, c)
		}
	}
	return out
}

// IsClause reports whether a go test name is a Then test.
func IsClause(test string) bool {
	last := test[strings.LastIndex(test, "/")+1:]
	return strings.HasPrefix(last, "then_")
}

// SplitClause splits a Then test name into its scenario path and clause
// label, undoing go test's space rewriting in the label.
//
// go test writes spaces as underscores, so the undo is lossy: a label
// that held underscores of its own comes back with spaces there too.
// ClauseResult.Test keeps the name exactly as go test reported it.
func SplitClause(test string) (scenario, clause string) {
	i := strings.LastIndex(test, "/")
	scenario, last := "", test
	if i >= 0 {
		scenario, last = test[:i], test[i+1:]
	}
	clause = strings.ReplaceAll(strings.TrimPrefix(last, "then_"), "_", " ")
	return scenario, clause
}

type testKey struct {
	pkg  string
	test string
}

// Parse reads a "go test -json" stream to the end.
func Parse(r io.Reader) (*Summary, error) {
	sum := &Summary{}
	seenPkg := map[string]bool{}
	output := map[testKey]*strings.Builder{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var ev Event
		if line[0] != '{' || json.Unmarshal(line, &ev) != nil {
			sum.Stray = append(sum.Stray, string(line))
			continue
		}

		if ev.Package != "" && !seenPkg[ev.Package] {
			seenPkg[ev.Package] = true
			sum.Packages = append(sum.Packages, ev.Package)
		}
		if ev.Test == "" {
			if ev.Action == ActionFail && ev.Package != "" {
				sum.FailedPackages = append(sum.FailedPackages, ev.Package)
			}
			continue
		}
		if !IsClause(ev.Test) {
			continue
		}

		key := testKey{pkg: ev.Package, test: ev.Test}
		switch ev.Action {
		case ActionRun:
			output[key] = &strings.Builder{}
		case ActionOutput:
			b, ok := output[key]
			if !ok {
				b = &strings.Builder{}
				output[key] = b
			}
			b.WriteString(ev.Output)
		case ActionPass, ActionFail, ActionSkip:
			scenario, clause := SplitClause(ev.Test)
			res := ClauseResult{
				Package:  ev.Package,
				Test:     ev.Test,
				Scenario: scenario,
				Clause:   clause,
				Outcome:  Outcome(ev.Action),
				Elapsed:  time.Duration(ev.Elapsed * float64(time.Second)),
			}
			if b, ok := output[key]; ok {
				res.Output = b.String()
				delete(output, key)
			}
			sum.add(res)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read test stream: %w", err)
	}
	return sum, nil
}

func (s *Summary) add(res ClauseResult) {
	s.Clauses = append(s.Clauses, res)
	switch res.Outcome {
	case OutcomePass:
		s.Passed++
	case OutcomeFail:
		s.Failed++
	case OutcomeSkip:
		s.Skipped++
	}
}
