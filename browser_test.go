package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

var _ BrowserSession = (*ChromeSession)(nil)
var _ ConsoleReporter = (*ChromeSession)(nil)

func TestResolveURL(t *testing.T) {
	cs := NewChromeSession(&BrowserConfig{}, "http://localhost:3000/")

	tests := []struct {
		input    string
		expected string
	}{
		{"/login", "http://localhost:3000/login"},
		{"login", "http://localhost:3000/login"},
		{"", "http://localhost:3000"},
		{"https://example.com/x", "https://example.com/x"},
		{"http://other:8080/", "http://other:8080/"},
	}

	for _, tt := range tests {
		if got := cs.resolveURL(tt.input); got != tt.expected {
			t.Errorf("resolveURL(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestStepTimeout(t *testing.T) {
	tests := []struct {
		name     string
		config   *BrowserConfig
		step     BrowserStep
		expected time.Duration
	}{
		{"step override", &BrowserConfig{StepTimeout: 10}, BrowserStep{Timeout: 3}, 3 * time.Second},
		{"config value", &BrowserConfig{StepTimeout: 20}, BrowserStep{}, 20 * time.Second},
		{"nil config", nil, BrowserStep{}, 10 * time.Second},
		{"zero config", &BrowserConfig{}, BrowserStep{}, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := NewChromeSession(tt.config, "")
			if got := cs.stepTimeout(tt.step); got != tt.expected {
				t.Errorf("stepTimeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestChromeOptions(t *testing.T) {
	base := len(chromeOptions(&BrowserConfig{}, "/tmp/profile"))

	full := chromeOptions(&BrowserConfig{Headless: true, NoSandbox: true, ExecutablePath: "/usr/bin/chromium"}, "/tmp/profile")
	if len(full) != base+3 {
		t.Errorf("expected 3 extra options, got %d", len(full)-base)
	}
}

func TestChromeSession_NotStarted(t *testing.T) {
	cs := NewChromeSession(&BrowserConfig{}, "http://localhost:3000")

	if err := cs.RunStep(context.Background(), BrowserStep{Action: "click", Selector: "#x"}); err == nil {
		t.Error("expected error before start")
	}

	err := cs.CaptureSnapshot(context.Background(), filepath.Join(t.TempDir(), "x.png"))
	if !errors.Is(err, ErrNotCapturable) {
		t.Errorf("expected ErrNotCapturable before start, got %v", err)
	}

	// Terminate is safe without a running browser
	if err := cs.Terminate(); err != nil {
		t.Errorf("terminate: %v", err)
	}
	if err := cs.Terminate(); err != nil {
		t.Errorf("second terminate: %v", err)
	}
	if len(cs.ConsoleErrors()) != 0 {
		t.Error("expected no console errors")
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello..."},
		{"", 5, ""},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc..."},
	}

	for _, tt := range tests {
		result := truncateText(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncateText(%q, %d) = %q, want %q", tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestChromeSession_NilCaptureSnapshot(t *testing.T) {
	var cs *ChromeSession
	err := cs.CaptureSnapshot(context.Background(), filepath.Join(t.TempDir(), "x.png"))
	if !errors.Is(err, ErrNotCapturable) {
		t.Errorf("expected ErrNotCapturable from nil session, got %v", err)
	}
}
