package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewRunLogger(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewRunLogger(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer logger.Close()

	if logger.RunNumber() != 1 {
		t.Errorf("expected run number 1, got %d", logger.RunNumber())
	}

	logPath := logger.LogPath()
	if !strings.Contains(logPath, "run-001.jsonl") {
		t.Errorf("expected log path to contain 'run-001.jsonl', got %s", logPath)
	}

	if _, err := os.Stat(filepath.Join(dir, "logs")); os.IsNotExist(err) {
		t.Error("logs directory was not created")
	}
}

func TestRunLogger_Disabled(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewRunLogger(dir, &LoggingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer logger.Close()

	logger.RunStart("suite.json", 5)
	logger.RunEnd(true, "done")

	if logger.LogPath() != "" {
		t.Errorf("expected no log path when disabled, got %s", logger.LogPath())
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not be created when disabled")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.RunStart("s", 1)
	logger.CaptureEnd("t", false, 0, errDiskFull)
	logger.ReportEnd(true, &SynthesisResult{})
	if logger.LogPath() != "" {
		t.Error("nop logger should have no log path")
	}
}

func TestRunLogger_EventLogging(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewRunLogger(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id := "tests/test_login.py::test_bad_password"
	logger.RunStart("tests/test_login.py", 2)
	logger.BrowserStart(true)
	logger.TestStart(id)
	logger.BrowserStep("click", false, map[string]interface{}{"selector": "#go"})
	logger.TestEnd(TestEvent{Identity: id, Phase: PhaseCall, Outcome: OutcomeFailed, Message: "boom", Duration: time.Second})
	logger.CaptureStart(id, "screenshots/x.png")
	logger.CaptureEnd(id, true, 1000, nil)
	logger.IndexRecord(id, "screenshots/x.png")
	logger.StateChange("running", "finalizing")
	logger.Finalize("report.json", 2, 1)
	logger.ReportStart("report.json")
	logger.ReportEnd(true, &SynthesisResult{TextPath: "TEST_REPORT.md"})
	logger.Warning("Test warning")
	logger.Error("Test error", errors.New("something failed"))
	logger.BrowserEnd(true, 0)
	logger.RunEnd(false, "1 passed, 1 failed")

	logPath := logger.LogPath()
	logger.Close()

	events, err := ReadEvents(logPath, nil)
	if err != nil {
		t.Fatalf("failed to read events: %v", err)
	}
	if len(events) != 16 {
		t.Errorf("expected 16 events, got %d", len(events))
	}
	if events[0].Type != EventRunStart {
		t.Errorf("expected first event to be run_start, got %s", events[0].Type)
	}
	if events[len(events)-1].Type != EventRunEnd {
		t.Errorf("expected last event to be run_end, got %s", events[len(events)-1].Type)
	}

	// Events after TestStart inherit the current test
	steps, _ := ReadEvents(logPath, &EventFilter{EventType: EventBrowserStep})
	if len(steps) != 1 || steps[0].TestID != id {
		t.Errorf("expected browser step attributed to %s, got %+v", id, steps)
	}

	ends, _ := ReadEvents(logPath, &EventFilter{EventType: EventTestEnd})
	if len(ends) != 1 || ends[0].Data["outcome"] != "failed" || ends[0].Data["phase"] != "call" {
		t.Errorf("unexpected test_end %+v", ends)
	}
}

func TestRunLogger_NextRunNumber(t *testing.T) {
	dir := t.TempDir()
	logsDir := filepath.Join(dir, "logs")
	os.MkdirAll(logsDir, 0755)

	os.WriteFile(filepath.Join(logsDir, "run-001.jsonl"), []byte{}, 0644)
	os.WriteFile(filepath.Join(logsDir, "run-002.jsonl"), []byte{}, 0644)
	os.WriteFile(filepath.Join(logsDir, "run-005.jsonl"), []byte{}, 0644)

	logger, err := NewRunLogger(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer logger.Close()

	if logger.RunNumber() != 6 {
		t.Errorf("expected run number 6, got %d", logger.RunNumber())
	}
}

func TestRunLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	logsDir := filepath.Join(dir, "logs")
	os.MkdirAll(logsDir, 0755)

	for i := 1; i <= 12; i++ {
		os.WriteFile(filepath.Join(logsDir, fmt.Sprintf("run-%03d.jsonl", i)), []byte("test"), 0644)
	}

	logger, err := NewRunLogger(dir, &LoggingConfig{Enabled: true, MaxRuns: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Close()

	// 9 old runs survive, plus the new one
	entries, _ := os.ReadDir(logsDir)
	if len(entries) != 10 {
		t.Errorf("expected 10 files, got %d", len(entries))
	}
	for _, gone := range []string{"run-001.jsonl", "run-002.jsonl", "run-003.jsonl"} {
		if fileExists(filepath.Join(logsDir, gone)) {
			t.Errorf("%s should have been deleted", gone)
		}
	}
	if !fileExists(filepath.Join(logsDir, "run-004.jsonl")) {
		t.Error("run-004.jsonl should still exist")
	}
	if !fileExists(filepath.Join(logsDir, "run-013.jsonl")) {
		t.Error("run-013.jsonl should have been created")
	}
}

func TestEventFilter(t *testing.T) {
	filter := &EventFilter{
		EventType: EventCaptureEnd,
		TestID:    "a::b",
	}

	e1 := &Event{Type: EventCaptureEnd, TestID: "a::b"}
	if !filter.Match(e1) {
		t.Error("expected e1 to match filter")
	}

	e2 := &Event{Type: EventWarning, TestID: "a::b"}
	if filter.Match(e2) {
		t.Error("expected e2 to not match filter (wrong type)")
	}

	e3 := &Event{Type: EventCaptureEnd, TestID: "a::c"}
	if filter.Match(e3) {
		t.Error("expected e3 to not match filter (wrong test)")
	}

	emptyFilter := &EventFilter{}
	if !emptyFilter.Match(e1) || !emptyFilter.Match(e2) || !emptyFilter.Match(e3) {
		t.Error("empty filter should match all events")
	}
}

func TestReadEvents(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.jsonl")

	f, _ := os.Create(logPath)
	events := []Event{
		{Timestamp: time.Now(), Type: EventRunStart},
		{Timestamp: time.Now(), Type: EventError, TestID: "a"},
		{Timestamp: time.Now(), Type: EventWarning, TestID: "b"},
		{Timestamp: time.Now(), Type: EventRunEnd},
	}
	enc := json.NewEncoder(f)
	for _, e := range events {
		enc.Encode(e)
	}
	f.WriteString("not json\n")
	f.Close()

	all, err := ReadEvents(logPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 events (malformed line skipped), got %d", len(all))
	}

	filtered, err := ReadEvents(logPath, &EventFilter{EventType: EventError})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(filtered) != 1 {
		t.Errorf("expected 1 error event, got %d", len(filtered))
	}
}

func TestSummarizeCaptures(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewRunLogger(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.CaptureStart("a", "a.png")
	logger.CaptureEnd("a", true, 10, nil)
	logger.IndexRecord("a", "a.png")
	logger.CaptureStart("b", "b.png")
	logger.CaptureEnd("b", false, 10, errDiskFull)
	logPath := logger.LogPath()
	logger.Close()

	summary, err := SummarizeCaptures(logPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Attempts != 2 || summary.Succeeded != 1 || summary.Recorded != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.Failures["b"] != errDiskFull.Error() {
		t.Errorf("expected failure for b, got %v", summary.Failures)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{45 * time.Second, "45.0s"},
		{90 * time.Second, "1m30s"},
		{5 * time.Minute, "5m"},
		{5*time.Minute + 30*time.Second, "5m30s"},
	}

	for _, tt := range tests {
		got := FormatDuration(tt.d)
		if got != tt.expected {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.expected)
		}
	}
}

func TestListRuns(t *testing.T) {
	dir := t.TempDir()
	logsDir := filepath.Join(dir, "logs")
	os.MkdirAll(logsDir, 0755)

	for i := 1; i <= 3; i++ {
		f, _ := os.Create(filepath.Join(logsDir, fmt.Sprintf("run-%03d.jsonl", i)))
		enc := json.NewEncoder(f)
		enc.Encode(Event{Timestamp: time.Now(), Type: EventRunStart})
		enc.Encode(Event{Timestamp: time.Now(), Type: EventRunEnd, Success: ptrBool(i%2 == 1), Message: "done"})
		f.Close()
	}

	runs, err := ListRuns(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].RunNumber != 3 {
		t.Errorf("expected first run to be #3, got #%d", runs[0].RunNumber)
	}
	if runs[1].Success == nil || *runs[1].Success {
		t.Error("expected run #2 to be unsuccessful")
	}
	if runs[0].Summary != "done" {
		t.Errorf("expected summary from run_end, got %q", runs[0].Summary)
	}
}

func TestListRuns_NoLogs(t *testing.T) {
	runs, err := ListRuns(t.TempDir())
	if err != nil || runs != nil {
		t.Errorf("expected no runs and no error, got %v, %v", runs, err)
	}
}

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	if !cfg.Enabled {
		t.Error("expected Enabled=true by default")
	}
	if cfg.MaxRuns != 10 {
		t.Errorf("expected MaxRuns=10, got %d", cfg.MaxRuns)
	}
	if !cfg.ConsoleTimestamps {
		t.Error("expected ConsoleTimestamps=true by default")
	}
}

func ptrBool(b bool) *bool {
	return &b
}

func TestRunLogger_RunID(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewRunLogger(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := uuid.Parse(logger.RunID()); err != nil {
		t.Fatalf("run id %q is not a UUID: %v", logger.RunID(), err)
	}

	logger.RunStart("suite", 1)
	logger.RunEnd(true, "ok")
	logger.Close()

	runs, err := ListRuns(dir)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns: %v (%d runs)", err, len(runs))
	}
	if runs[0].RunID != logger.RunID() {
		t.Errorf("expected run id %s in summary, got %q", logger.RunID(), runs[0].RunID)
	}

	other, _ := NewRunLogger(t.TempDir(), nil)
	if other.RunID() == logger.RunID() {
		t.Error("run ids must differ between runs")
	}
	other.Close()
}
