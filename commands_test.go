package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitProject(t *testing.T) {
	dir := t.TempDir()

	suitePath, err := initProject(dir, false)
	if err != nil {
		t.Fatalf("initProject: %v", err)
	}

	if !fileExists(ConfigPath(dir)) {
		t.Error("config should be written")
	}
	if suitePath != filepath.Join(dir, "failshot.suite.json") || !fileExists(suitePath) {
		t.Errorf("expected example suite at %s", suitePath)
	}

	data, err := os.ReadFile(filepath.Join(StateDir(dir), ".gitignore"))
	if err != nil {
		t.Fatalf("failed to read .gitignore: %v", err)
	}
	for _, pattern := range []string{"run.lock", "logs/"} {
		if !strings.Contains(string(data), pattern) {
			t.Errorf(".gitignore should contain %q, got:\n%s", pattern, data)
		}
	}
}

func TestInitProject_KeepsExistingSuite(t *testing.T) {
	dir := t.TempDir()
	suitePath := filepath.Join(dir, "failshot.suite.json")
	os.WriteFile(suitePath, []byte(`{"custom": true}`), 0644)

	if _, err := initProject(dir, false); err != nil {
		t.Fatalf("initProject: %v", err)
	}
	data, _ := os.ReadFile(suitePath)
	if string(data) != `{"custom": true}` {
		t.Error("existing suite should not be overwritten without force")
	}

	if _, err := initProject(dir, true); err != nil {
		t.Fatalf("initProject with force: %v", err)
	}
	data, _ = os.ReadFile(suitePath)
	if strings.Contains(string(data), "custom") {
		t.Error("force should overwrite the suite")
	}
}

func TestWriteRunTable(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	runs := []RunSummary{
		{RunNumber: 2, StartTime: start},
		{RunNumber: 1, StartTime: start, EndTime: &end, Success: ptrBool(false), Summary: "1 passed, 1 failed"},
	}

	var buf bytes.Buffer
	writeRunTable(&buf, runs)
	out := buf.String()

	for _, want := range []string{"#2", "#1", "2026-03-01 10:00:00", "1m30s", "1 passed, 1 failed", "✗", "○"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in table:\n%s", want, out)
		}
	}
	if strings.Index(out, "#2") > strings.Index(out, "#1") {
		t.Error("runs should keep the given order")
	}
}

func TestWriteCaptureSummary_SortedFailures(t *testing.T) {
	summary := &CaptureSummary{
		Attempts: 3,
		Recorded: 0,
		Failures: map[string]string{
			"tests/z.py::test_c": "disk full",
			"tests/a.py::test_a": "no session",
			"tests/m.py::test_b": "timeout",
		},
	}

	var buf bytes.Buffer
	writeCaptureSummary(&buf, 4, summary)

	want := "Run #4 captures: 3 attempted, 0 written, 0 recorded\n" +
		"  ✗ tests/a.py::test_a: no session\n" +
		"  ✗ tests/m.py::test_b: timeout\n" +
		"  ✗ tests/z.py::test_c: disk full\n"
	if buf.String() != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", buf.String(), want)
	}
}
