package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type stageFunc func(ctx context.Context, docPath string) (*SynthesisResult, error)

func (f stageFunc) Synthesize(ctx context.Context, docPath string) (*SynthesisResult, error) {
	return f(ctx, docPath)
}

func newTestRunSession(t *testing.T) *RunSession {
	t.Helper()
	root := t.TempDir()
	return NewRunSession(root, filepath.Join(root, "report.json"), NewArtifactStore(filepath.Join(root, "screenshots")), nil)
}

func TestRunSession_HappyPath(t *testing.T) {
	rs := newTestRunSession(t)
	if rs.State() != StateNotStarted {
		t.Fatalf("expected not_started, got %s", rs.State())
	}
	if rs.Index() != nil {
		t.Error("index should not exist before start")
	}

	bus, err := rs.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if rs.State() != StateRunning || rs.Index() == nil {
		t.Fatalf("expected running with a fresh index, got %s", rs.State())
	}

	bus.EmitTestFinished(context.Background(), failedCall("a::b", "boom", &fakeSession{}))
	bus.EmitSessionFinished(context.Background(), SessionEvent{})

	doc, err := rs.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if rs.State() != StateFinalizing {
		t.Errorf("expected finalizing, got %s", rs.State())
	}
	if shot, ok := doc.Tests[0].Screenshot(); !ok || shot != "screenshots/a__b.png" {
		t.Errorf("expected attached screenshot, got %q %v", shot, ok)
	}
	if !fileExists(rs.DocPath()) {
		t.Error("expected persisted document")
	}

	var seen string
	stage := stageFunc(func(ctx context.Context, docPath string) (*SynthesisResult, error) {
		seen = docPath
		return &SynthesisResult{}, nil
	})
	if _, err := rs.Report(context.Background(), stage); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if seen != rs.DocPath() {
		t.Errorf("stage got %s, want %s", seen, rs.DocPath())
	}
	if rs.State() != StateReporting {
		t.Errorf("expected reporting, got %s", rs.State())
	}

	rs.Close()
	if rs.State() != StateDone || rs.Index() != nil {
		t.Errorf("expected done with index discarded, got %s", rs.State())
	}

	// Reports may be regenerated after the run
	if _, err := rs.Report(context.Background(), stage); err != nil {
		t.Errorf("report after close: %v", err)
	}
}

func TestRunSession_OutOfOrder(t *testing.T) {
	stage := stageFunc(func(ctx context.Context, docPath string) (*SynthesisResult, error) {
		t.Fatal("stage must not run")
		return nil, nil
	})

	rs := newTestRunSession(t)
	if _, err := rs.Finalize(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("finalize before start: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := rs.Report(context.Background(), stage); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("report before finalize: expected ErrInvalidTransition, got %v", err)
	}

	rs.Start()
	if _, err := rs.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second start: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := rs.Report(context.Background(), stage); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("report while running: expected ErrInvalidTransition, got %v", err)
	}

	rs.Finalize()
	if _, err := rs.Finalize(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second finalize: expected ErrInvalidTransition, got %v", err)
	}

	closed := newTestRunSession(t)
	closed.Start()
	closed.Close()
	if _, err := closed.Report(context.Background(), stage); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("report after close without finalize: expected ErrInvalidTransition, got %v", err)
	}
	if closed.State() != StateDone {
		t.Errorf("expected done, got %s", closed.State())
	}
}

func TestRunSession_ReportRequiresPersistedDocument(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	rs := NewRunSession(root, filepath.Join(blocker, "report.json"), NewArtifactStore(filepath.Join(root, "screenshots")), nil)

	rs.Start()
	if _, err := rs.Finalize(); err == nil {
		t.Fatal("expected persist error under a regular file")
	}

	ran := false
	stage := stageFunc(func(ctx context.Context, docPath string) (*SynthesisResult, error) {
		ran = true
		return &SynthesisResult{}, nil
	})
	if _, err := rs.Report(context.Background(), stage); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	rs.Close()
	if _, err := rs.Report(context.Background(), stage); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("report after close: expected ErrInvalidTransition, got %v", err)
	}
	if ran {
		t.Error("stage must not run without a persisted document")
	}
}

func TestRunSession_FreshIndexPerRun(t *testing.T) {
	first := newTestRunSession(t)
	first.Start()
	idx := first.Index()

	second := newTestRunSession(t)
	second.Start()
	if second.Index() == idx {
		t.Error("each run must get its own index")
	}
}

func TestRunSession_ExtraSubscribers(t *testing.T) {
	rs := newTestRunSession(t)
	c := NewResultCollector("")
	bus, _ := rs.Start(c)

	bus.EmitTestFinished(context.Background(), TestEvent{Identity: "x", Phase: PhaseCall, Outcome: OutcomePassed})
	if len(c.Document().Tests) != 1 {
		t.Error("extra subscriber should receive events")
	}
}
