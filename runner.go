package main

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ConsoleReporter is implemented by sessions that record uncaught page errors
type ConsoleReporter interface {
	ConsoleErrors() []string
}

// consoleErrors returns the page errors recorded by session, if it keeps any
func consoleErrors(session any) []string {
	if cr, ok := session.(ConsoleReporter); ok {
		return cr.ConsoleErrors()
	}
	return nil
}

// withConsoleErrors appends the page errors seen after the first seen ones
func withConsoleErrors(msg string, errs []string, seen int) string {
	if seen >= len(errs) {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	b.WriteString("\nConsole errors:")
	for _, e := range errs[seen:] {
		b.WriteString("\n  - ")
		b.WriteString(e)
	}
	return b.String()
}

// RunTotals counts outcomes emitted by a runner pass
type RunTotals struct {
	Passed  int
	Failed  int
	Errored int
	Skipped int
}

// Runner executes planned tests one after another on a single shared
// session and emits one terminal event per test.
type Runner struct {
	session BrowserSession
	bus     *EventBus
	logger  *RunLogger

	started  bool
	startErr error
}

// NewRunner creates a runner emitting on bus
func NewRunner(session BrowserSession, bus *EventBus, logger *RunLogger) *Runner {
	if logger == nil {
		logger = NopLogger()
	}
	return &Runner{session: session, bus: bus, logger: logger}
}

// Run executes tests in order and then emits the session-finished event
func (r *Runner) Run(ctx context.Context, tests []PlannedTest, root string) RunTotals {
	var totals RunTotals
	start := time.Now()

	for _, pt := range tests {
		if ctx.Err() != nil {
			break
		}
		ev := r.runOne(ctx, pt)
		switch ev.Outcome {
		case OutcomePassed:
			totals.Passed++
		case OutcomeFailed:
			totals.Failed++
		case OutcomeErrored:
			totals.Errored++
		case OutcomeSkipped:
			totals.Skipped++
		}
	}

	r.bus.EmitSessionFinished(ctx, SessionEvent{
		StartedAt: start,
		Duration:  time.Since(start),
		Root:      root,
	})
	return totals
}

func (r *Runner) ensureStarted(ctx context.Context) error {
	if !r.started {
		r.started = true
		r.startErr = r.session.Start(ctx)
		r.logger.BrowserStart(r.startErr == nil)
	}
	return r.startErr
}

func (r *Runner) runSteps(ctx context.Context, steps []BrowserStep) error {
	for _, step := range steps {
		err := r.session.RunStep(ctx, step)
		r.logger.BrowserStep(step.Action, err == nil, map[string]interface{}{
			"selector": step.Selector,
			"url":      step.URL,
		})
		if err != nil {
			if step.Selector != "" {
				return fmt.Errorf("%s %s: %w", step.Action, step.Selector, err)
			}
			return fmt.Errorf("%s: %w", step.Action, err)
		}
	}
	return nil
}

// runOne drives setup, call and teardown for one test. A call failure is
// emitted before teardown runs, so observers see the page as it failed.
func (r *Runner) runOne(ctx context.Context, pt PlannedTest) TestEvent {
	r.logger.TestStart(pt.Identity)
	start := time.Now()

	emit := func(phase Phase, outcome Outcome, msg string) TestEvent {
		ev := TestEvent{
			Identity:  pt.Identity,
			Phase:     phase,
			Outcome:   outcome,
			Message:   msg,
			Duration:  time.Since(start),
			Resources: []any{r.session},
		}
		r.logger.TestEnd(ev)
		r.logger.LogPrintln(fmt.Sprintf("%s %s", outcomeLabel(outcome), pt.Identity))
		r.bus.EmitTestFinished(ctx, ev)
		return ev
	}

	if pt.Case.Skip != "" {
		return emit(PhaseSetup, OutcomeSkipped, pt.Case.Skip)
	}

	if err := r.ensureStarted(ctx); err != nil {
		return emit(PhaseSetup, OutcomeErrored, err.Error())
	}
	if err := r.runSteps(ctx, pt.Case.Setup); err != nil {
		return emit(PhaseSetup, OutcomeErrored, err.Error())
	}

	seen := len(consoleErrors(r.session))
	if err := r.runSteps(ctx, pt.Case.Steps); err != nil {
		msg := withConsoleErrors(err.Error(), consoleErrors(r.session), seen)
		ev := emit(PhaseCall, OutcomeFailed, msg)
		if terr := r.runSteps(ctx, pt.Case.Teardown); terr != nil {
			r.logger.Warning(fmt.Sprintf("teardown after failure of %s: %v", pt.Identity, terr))
		}
		return ev
	}

	if err := r.runSteps(ctx, pt.Case.Teardown); err != nil {
		return emit(PhaseTeardown, OutcomeErrored, err.Error())
	}
	return emit(PhaseCall, OutcomePassed, "")
}

func outcomeLabel(o Outcome) string {
	switch o {
	case OutcomePassed:
		return "PASSED"
	case OutcomeFailed:
		return "FAILED"
	case OutcomeErrored:
		return "ERROR"
	case OutcomeSkipped:
		return "SKIPPED"
	}
	return string(o)
}
