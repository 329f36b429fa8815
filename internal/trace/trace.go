// Package trace records the steps a spec executes, in order, so runs can be
// compared against golden files.
//
// Events are ordered by a logical clock rather than wall time, and the run
// id comes from an injectable generator. With a fixed generator the same
// spec renders byte-identical traces on every run.
package trace

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/gwt/internal/testutil"
)

// Outcome values recorded for a step.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Event is one executed step.
type Event struct {
	Seq     int64  `json:"seq"`
	RunID   string `json:"run_id"`
	Test    string `json:"test"`
	Kind    string `json:"kind"`
	Label   string `json:"label"`
	Outcome string `json:"outcome"`
}

// IDGenerator produces run ids.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator produces random v4 run ids.
type UUIDGenerator struct{}

// Generate returns a new uuid string.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// Recorder collects events. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	runID  string
	clock  *testutil.DeterministicClock
	events []Event
}

// NewRecorder creates a recorder whose run id comes from gen.
// A nil gen uses UUIDGenerator.
func NewRecorder(gen IDGenerator) *Recorder {
	if gen == nil {
		gen = UUIDGenerator{}
	}
	return &Recorder{runID: gen.Generate(), clock: testutil.NewDeterministicClock()}
}

// RunID returns the id shared by every event of this recorder.
func (r *Recorder) RunID() string {
	return r.runID
}

// Record appends an event and returns it with Seq and RunID filled in.
func (r *Recorder) Record(test, kind, label, outcome string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := Event{
		Seq:     r.clock.Next(),
		RunID:   r.runID,
		Test:    norm.NFC.String(test),
		Kind:    kind,
		Label:   norm.NFC.String(label),
		Outcome: outcome,
	}
	r.events = append(r.events, ev)
	return ev
}

// Events returns a copy of the recorded events in seq order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset drops all events and restarts the sequence. The run id is kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.clock.Reset()
}

// Render formats the trace as text, one event per line:
//
//	run <id>
//	<seq> | <test> | <kind> | <outcome> | <label>
func (r *Recorder) Render() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "run %s\n", r.runID)
	for _, ev := range r.Events() {
		fmt.Fprintf(&buf, "%d | %s | %s | %s | %s\n", ev.Seq, ev.Test, ev.Kind, ev.Outcome, ev.Label)
	}
	return buf.Bytes()
}

// AssertGolden compares the rendered trace with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./... -update
func AssertGolden(t *testing.T, name string, r *Recorder) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, r.Render())
}
