package main

import (
	"context"
	"fmt"
	"sync"
)

// RunState is the pipeline state of one run
type RunState string

const (
	StateNotStarted RunState = "not_started"
	StateRunning    RunState = "running"
	StateFinalizing RunState = "finalizing"
	StateReporting  RunState = "reporting"
	StateDone       RunState = "done"
)

// RunSession owns the run-scoped pipeline state: the correlation index, the
// observer and the result collector. It enforces the order
// NotStarted → Running → Finalizing → Reporting → Done. Reporting requires
// a document persisted by Finalize.
type RunSession struct {
	mu        sync.Mutex
	state     RunState
	persisted bool

	root       string
	docPath    string
	store      *ArtifactStore
	logger     *RunLogger
	bus        *EventBus
	index      *CorrelationIndex
	observer   *Observer
	collector  *ResultCollector
	serializer *ResultSerializer
}

// NewRunSession prepares a session that persists its document to docPath
func NewRunSession(root, docPath string, store *ArtifactStore, logger *RunLogger) *RunSession {
	if logger == nil {
		logger = NopLogger()
	}
	return &RunSession{
		state:   StateNotStarted,
		root:    root,
		docPath: docPath,
		store:   store,
		logger:  logger,
	}
}

// State returns the current state
func (rs *RunSession) State() RunState {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state
}

// DocPath returns where the run-result document is persisted
func (rs *RunSession) DocPath() string {
	return rs.docPath
}

// Index returns the live correlation index; nil before Start and after Close
func (rs *RunSession) Index() *CorrelationIndex {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.index
}

func (rs *RunSession) transition(from []RunState, to RunState) error {
	for _, s := range from {
		if rs.state == s {
			rs.logger.StateChange(string(rs.state), string(to))
			rs.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, rs.state, to)
}

// Start creates a fresh index and returns the bus the runner must emit on.
// Extra subscribers receive events after the observer and collector.
func (rs *RunSession) Start(extra ...Subscriber) (*EventBus, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := rs.transition([]RunState{StateNotStarted}, StateRunning); err != nil {
		return nil, err
	}

	rs.index = NewCorrelationIndex()
	rs.observer = NewObserver(rs.store, rs.index, rs.logger)
	rs.collector = NewResultCollector(rs.root)
	rs.serializer = NewResultSerializer(rs.root, rs.logger)

	rs.bus = NewEventBus()
	rs.bus.Subscribe(rs.observer)
	rs.bus.Subscribe(rs.collector)
	for _, s := range extra {
		rs.bus.Subscribe(s)
	}
	return rs.bus, nil
}

// Finalize drains the index into the collected document and persists it.
// Must be called after the runner emitted its last event.
func (rs *RunSession) Finalize() (*RunResultDocument, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := rs.transition([]RunState{StateRunning}, StateFinalizing); err != nil {
		return nil, err
	}

	doc := rs.collector.Document()
	if err := rs.serializer.Finalize(rs.docPath, doc, rs.index); err != nil {
		return doc, err
	}
	rs.persisted = true
	return doc, nil
}

// Report runs stage against the persisted document. It may be repeated,
// also after Close, but never before Finalize has persisted the document.
func (rs *RunSession) Report(ctx context.Context, stage ReportStage) (*SynthesisResult, error) {
	rs.mu.Lock()
	if !rs.persisted {
		err := fmt.Errorf("%w: %s → %s without a persisted document", ErrInvalidTransition, rs.state, StateReporting)
		rs.mu.Unlock()
		return nil, err
	}
	if err := rs.transition([]RunState{StateFinalizing, StateReporting, StateDone}, StateReporting); err != nil {
		rs.mu.Unlock()
		return nil, err
	}
	rs.mu.Unlock()

	return stage.Synthesize(ctx, rs.docPath)
}

// Close marks the run done and discards the index
func (rs *RunSession) Close() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.state != StateDone {
		rs.logger.StateChange(string(rs.state), string(StateDone))
	}
	rs.state = StateDone
	rs.index = nil
	rs.observer = nil
	rs.bus = nil
}
