package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// Observer captures a screenshot when a test fails in its call phase while
// holding a snapshot-capable resource, and records it in the index.
type Observer struct {
	store  *ArtifactStore
	index  *CorrelationIndex
	logger *RunLogger

	mu        sync.Mutex
	attempted map[string]bool
}

// NewObserver creates an observer writing into index
func NewObserver(store *ArtifactStore, index *CorrelationIndex, logger *RunLogger) *Observer {
	if logger == nil {
		logger = NopLogger()
	}
	return &Observer{
		store:     store,
		index:     index,
		logger:    logger,
		attempted: make(map[string]bool),
	}
}

// ShouldCapture reports whether ev qualifies for a screenshot and returns the
// first resource able to take one. Setup and teardown failures never qualify.
func ShouldCapture(ev TestEvent) (SnapshotCapable, bool) {
	if ev.Phase != PhaseCall || ev.Outcome != OutcomeFailed {
		return nil, false
	}
	for _, r := range ev.Resources {
		if s, ok := r.(SnapshotCapable); ok {
			return s, true
		}
	}
	return nil, false
}

// TestFinished implements Subscriber
func (o *Observer) TestFinished(ctx context.Context, ev TestEvent) {
	session, ok := ShouldCapture(ev)
	if !ok {
		return
	}

	o.mu.Lock()
	if o.attempted[ev.Identity] {
		o.mu.Unlock()
		o.logger.Warning(fmt.Sprintf("duplicate failure event for %s, capture skipped", ev.Identity))
		return
	}
	o.attempted[ev.Identity] = true
	o.mu.Unlock()

	path := o.store.ResolvePath(ev.Identity)
	o.logger.CaptureStart(ev.Identity, path)
	start := time.Now()

	ref, err := o.store.Capture(ctx, ev.Identity, session, path)
	o.logger.CaptureEnd(ev.Identity, err == nil, time.Since(start).Nanoseconds(), err)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ Could not capture screenshot for %s: %v\n", ev.Identity, err)
		return
	}

	if err := o.index.Record(ev.Identity, *ref); err != nil {
		o.logger.Error("failed to record screenshot", err)
		fmt.Fprintf(os.Stderr, "⚠️ Screenshot for %s not recorded: %v\n", ev.Identity, err)
		return
	}
	o.logger.IndexRecord(ev.Identity, ref.Path)
}

// SessionFinished implements Subscriber
func (o *Observer) SessionFinished(ctx context.Context, ev SessionEvent) {}

// Attempts returns how many captures were attempted
func (o *Observer) Attempts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.attempted)
}
