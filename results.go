package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// ScreenshotProperty is the user property name under which artifacts are attached
const ScreenshotProperty = "screenshot"

// noMessage stands in for a failure without a recorded message
const noMessage = "<no message>"

// RunResultDocument is the persisted record of a run and the only input to reporting
type RunResultDocument struct {
	Created  float64      `json:"created,omitempty"`
	Duration float64      `json:"duration,omitempty"`
	ExitCode int          `json:"exitcode"`
	Root     string       `json:"root,omitempty"`
	Summary  Summary      `json:"summary"`
	Tests    []TestRecord `json:"tests"`
}

// Summary holds outcome counts
type Summary struct {
	Total     int `json:"total"`
	Collected int `json:"collected,omitempty"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped,omitempty"`
	Errored   int `json:"error,omitempty"`
}

// UnmarshalJSON falls back to "collected" when "total" is absent
func (s *Summary) UnmarshalJSON(data []byte) error {
	var raw struct {
		Total     *int `json:"total"`
		Collected int  `json:"collected"`
		Passed    int  `json:"passed"`
		Failed    int  `json:"failed"`
		Skipped   int  `json:"skipped"`
		Errored   int  `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Summary{
		Collected: raw.Collected,
		Passed:    raw.Passed,
		Failed:    raw.Failed,
		Skipped:   raw.Skipped,
		Errored:   raw.Errored,
	}
	if raw.Total != nil {
		s.Total = *raw.Total
	} else {
		s.Total = raw.Collected
	}
	return nil
}

// TestRecord is one test's entry in the document
type TestRecord struct {
	NodeID         string         `json:"nodeid"`
	Outcome        Outcome        `json:"outcome"`
	Setup          *PhaseReport   `json:"setup,omitempty"`
	Call           *PhaseReport   `json:"call,omitempty"`
	Teardown       *PhaseReport   `json:"teardown,omitempty"`
	UserProperties []UserProperty `json:"user_properties,omitempty"`

	// malformed holds user_properties entries dropped while decoding
	malformed []string
}

// UnmarshalJSON decodes the record, skipping user_properties entries that are
// not [name, value] pairs so one bad attachment cannot hide the others
func (r *TestRecord) UnmarshalJSON(data []byte) error {
	type plain TestRecord
	aux := struct {
		*plain
		UserProperties json.RawMessage `json:"user_properties"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.UserProperties, r.malformed = nil, nil
	if len(aux.UserProperties) == 0 || string(aux.UserProperties) == "null" {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(aux.UserProperties, &entries); err != nil {
		r.malformed = append(r.malformed, fmt.Sprintf("user_properties is not a list: %v", err))
		return nil
	}
	for _, raw := range entries {
		var p UserProperty
		if err := json.Unmarshal(raw, &p); err != nil {
			r.malformed = append(r.malformed, err.Error())
			continue
		}
		r.UserProperties = append(r.UserProperties, p)
	}
	return nil
}

// PhaseReport describes one lifecycle phase of a test
type PhaseReport struct {
	Duration float64 `json:"duration"`
	Outcome  Outcome `json:"outcome"`
	Crash    *Crash  `json:"crash,omitempty"`
}

// Crash carries a failure message
type Crash struct {
	Message string `json:"message"`
}

// UnmarshalJSON normalizes known outcome spellings and keeps unknown ones verbatim
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if parsed, err := ParseOutcome(s); err == nil {
		*o = parsed
	} else {
		*o = Outcome(s)
	}
	return nil
}

// UserProperty is a [name, value] pair
type UserProperty struct {
	Name  string
	Value any
}

// MarshalJSON encodes the property as a two-element array
func (p UserProperty) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Name, p.Value})
}

// UnmarshalJSON decodes a two-element array
func (p *UserProperty) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("user property must be a [name, value] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("user property must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &p.Name); err != nil {
		return fmt.Errorf("user property name: %w", err)
	}
	return json.Unmarshal(pair[1], &p.Value)
}

// MalformedProperties lists the user_properties entries skipped on load
func (d *RunResultDocument) MalformedProperties() []string {
	var out []string
	for _, rec := range d.Tests {
		for _, msg := range rec.malformed {
			out = append(out, rec.NodeID+": "+msg)
		}
	}
	return out
}

// FailureMessage returns the first crash message across phases, or a placeholder
func (r *TestRecord) FailureMessage() string {
	for _, ph := range []*PhaseReport{r.Call, r.Setup, r.Teardown} {
		if ph != nil && ph.Crash != nil && ph.Crash.Message != "" {
			return ph.Crash.Message
		}
	}
	return noMessage
}

// Screenshot returns the attached screenshot path, if any
func (r *TestRecord) Screenshot() (string, bool) {
	for _, p := range r.UserProperties {
		if p.Name != ScreenshotProperty {
			continue
		}
		if s, ok := p.Value.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// FailedTests returns the records whose outcome is failed, in document order
func (d *RunResultDocument) FailedTests() []TestRecord {
	var failed []TestRecord
	for _, t := range d.Tests {
		if t.Outcome == OutcomeFailed {
			failed = append(failed, t)
		}
	}
	return failed
}

// LoadDocument reads a persisted run-result document
func LoadDocument(path string) (*RunResultDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPersistenceMissing, path)
		}
		return nil, &DocumentError{Path: path, Err: err}
	}

	var doc RunResultDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &DocumentError{Path: path, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	return &doc, nil
}

// ResultCollector builds the document rows from lifecycle events
type ResultCollector struct {
	mu       sync.Mutex
	root     string
	records  []TestRecord
	seen     map[string]bool
	started  time.Time
	duration time.Duration
}

// NewResultCollector creates a collector for a run rooted at root
func NewResultCollector(root string) *ResultCollector {
	return &ResultCollector{
		root:    root,
		seen:    make(map[string]bool),
		started: time.Now(),
	}
}

// TestFinished implements Subscriber
func (c *ResultCollector) TestFinished(ctx context.Context, ev TestEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen[ev.Identity] {
		return
	}
	c.seen[ev.Identity] = true
	c.records = append(c.records, recordFromEvent(ev))
}

// SessionFinished implements Subscriber
func (c *ResultCollector) SessionFinished(ctx context.Context, ev SessionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !ev.StartedAt.IsZero() {
		c.started = ev.StartedAt
	}
	c.duration = ev.Duration
	if ev.Root != "" {
		c.root = ev.Root
	}
}

func recordFromEvent(ev TestEvent) TestRecord {
	rec := TestRecord{NodeID: ev.Identity, Outcome: ev.Outcome}
	phase := &PhaseReport{Duration: ev.Duration.Seconds(), Outcome: ev.Outcome}
	if ev.Outcome == OutcomeFailed || ev.Outcome == OutcomeErrored {
		phase.Outcome = OutcomeFailed
		msg := ev.Message
		if msg == "" {
			msg = noMessage
		}
		phase.Crash = &Crash{Message: msg}
	}

	switch ev.Phase {
	case PhaseSetup:
		rec.Setup = phase
	case PhaseTeardown:
		rec.Call = &PhaseReport{Outcome: OutcomePassed}
		rec.Teardown = phase
	default:
		rec.Call = phase
	}
	return rec
}

// Document assembles the run-result document from everything collected so far
func (c *ResultCollector) Document() *RunResultDocument {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc := &RunResultDocument{
		Created:  float64(c.started.UnixNano()) / 1e9,
		Duration: c.duration.Seconds(),
		Root:     c.root,
		Tests:    make([]TestRecord, len(c.records)),
	}
	copy(doc.Tests, c.records)
	doc.Summary = Summarize(doc.Tests)
	if doc.Summary.Failed > 0 || doc.Summary.Errored > 0 {
		doc.ExitCode = 1
	}
	return doc
}

// Summarize counts outcomes
func Summarize(tests []TestRecord) Summary {
	s := Summary{Total: len(tests), Collected: len(tests)}
	for _, t := range tests {
		switch t.Outcome {
		case OutcomePassed:
			s.Passed++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeErrored:
			s.Errored++
		}
	}
	return s
}
