package main

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Outcome is the terminal result of one test
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeErrored Outcome = "error"
	OutcomeSkipped Outcome = "skipped"
)

// ParseOutcome accepts the serialized outcome names, including "errored"
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passed":
		return OutcomePassed, nil
	case "failed":
		return OutcomeFailed, nil
	case "error", "errored":
		return OutcomeErrored, nil
	case "skipped":
		return OutcomeSkipped, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// Phase is the part of a test's lifecycle an event belongs to
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseCall     Phase = "call"
	PhaseTeardown Phase = "teardown"
)

// TestEvent is emitted once per test when it reaches its terminal state.
// Phase names the phase that decided the outcome.
type TestEvent struct {
	Identity  string
	Phase     Phase
	Outcome   Outcome
	Message   string
	Duration  time.Duration
	Resources []any
}

// SessionEvent is emitted once after every test has finished
type SessionEvent struct {
	StartedAt time.Time
	Duration  time.Duration
	Root      string
}

// Subscriber receives lifecycle events from the runner
type Subscriber interface {
	TestFinished(ctx context.Context, ev TestEvent)
	SessionFinished(ctx context.Context, ev SessionEvent)
}

// EventBus fans lifecycle events out to subscribers in registration order
type EventBus struct {
	subscribers []Subscriber
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers s for all future events
func (b *EventBus) Subscribe(s Subscriber) {
	if s == nil {
		return
	}
	b.subscribers = append(b.subscribers, s)
}

// EmitTestFinished delivers ev to every subscriber synchronously
func (b *EventBus) EmitTestFinished(ctx context.Context, ev TestEvent) {
	for _, s := range b.subscribers {
		s.TestFinished(ctx, ev)
	}
}

// EmitSessionFinished delivers ev to every subscriber synchronously
func (b *EventBus) EmitSessionFinished(ctx context.Context, ev SessionEvent) {
	for _, s := range b.subscribers {
		s.SessionFinished(ctx, ev)
	}
}
