package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// fakeSession is a BrowserSession that records calls and writes a small PNG
type fakeSession struct {
	startErr     error
	captureErr   error
	terminateErr error
	stepErrs   map[string]error // keyed by selector, or action when selector is empty

	started    int
	captures   []string
	steps      []BrowserStep
	terminated int
}

func (f *fakeSession) Start(ctx context.Context) error {
	f.started++
	return f.startErr
}

func (f *fakeSession) RunStep(ctx context.Context, step BrowserStep) error {
	f.steps = append(f.steps, step)
	key := step.Selector
	if key == "" {
		key = step.Action
	}
	return f.stepErrs[key]
}

func (f *fakeSession) CaptureSnapshot(ctx context.Context, path string) error {
	f.captures = append(f.captures, path)
	if f.captureErr != nil {
		return f.captureErr
	}
	return os.WriteFile(path, pngBytes(), 0644)
}

func (f *fakeSession) Terminate() error {
	f.terminated++
	return f.terminateErr
}

// consoleSession records a page error every time a step fails
type consoleSession struct {
	*fakeSession
	pageErrors []string
}

func (c *consoleSession) RunStep(ctx context.Context, step BrowserStep) error {
	err := c.fakeSession.RunStep(ctx, step)
	if err != nil {
		c.pageErrors = append(c.pageErrors, "Uncaught TypeError at "+step.Selector)
	}
	return err
}

func (c *consoleSession) ConsoleErrors() []string {
	return append([]string(nil), c.pageErrors...)
}

// plainResource holds no snapshot capability
type plainResource struct{}

var errDiskFull = errors.New("no space left on device")

func pngBytes() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for x := 0; x < 4; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
		img.Set(x, 1, color.RGBA{B: 200, A: 255})
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, pngBytes(), 0644); err != nil {
		t.Fatalf("write png: %v", err)
	}
}

func failedCall(id, msg string, resources ...any) TestEvent {
	return TestEvent{Identity: id, Phase: PhaseCall, Outcome: OutcomeFailed, Message: msg, Resources: resources}
}

func testConfig(t *testing.T) *ResolvedConfig {
	t.Helper()
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	return cfg
}

// sampleDocument has one pass and one failure with a screenshot reference
func sampleDocument(shot string) *RunResultDocument {
	failed := TestRecord{
		NodeID:  "tests/test_login.py::test_bad_password",
		Outcome: OutcomeFailed,
		Call: &PhaseReport{
			Outcome: OutcomeFailed,
			Crash:   &Crash{Message: "AssertionError: expected redirect"},
		},
	}
	if shot != "" {
		failed.UserProperties = []UserProperty{{Name: ScreenshotProperty, Value: shot}}
	}
	return &RunResultDocument{
		Summary: Summary{Total: 2, Passed: 1, Failed: 1},
		Tests: []TestRecord{
			{NodeID: "tests/test_login.py::test_ok", Outcome: OutcomePassed, Call: &PhaseReport{Outcome: OutcomePassed}},
			failed,
		},
	}
}
