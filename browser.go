package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// BrowserSession is the browser collaborator the runner drives. It can
// always take a snapshot, so the observer sees it as capturable.
type BrowserSession interface {
	SnapshotCapable
	Terminable
	Start(ctx context.Context) error
	RunStep(ctx context.Context, step BrowserStep) error
}

// ChromeSession is a long-lived headless Chrome shared by all tests of a run
type ChromeSession struct {
	config  *BrowserConfig
	baseURL string

	ctx        context.Context
	cancel     context.CancelFunc
	userData   string
	mu         sync.Mutex
	consoleErr []string
}

// NewChromeSession creates a session; the browser starts on Start
func NewChromeSession(config *BrowserConfig, baseURL string) *ChromeSession {
	return &ChromeSession{
		config:  config,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// chromeOptions builds allocator flags, including a fresh user-data dir so
// concurrent runs on the same host never share a profile.
func chromeOptions(config *BrowserConfig, userDataDir string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.UserDataDir(userDataDir),
	}

	if config.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if config.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if config.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecutablePath))
	}
	return opts
}

// Start launches Chrome
func (cs *ChromeSession) Start(ctx context.Context) error {
	if cs.ctx != nil {
		return nil
	}

	userData, err := os.MkdirTemp("", "chrome-user-data-")
	if err != nil {
		return fmt.Errorf("failed to create user data dir: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chromeOptions(cs.config, userData)...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	cs.ctx = browserCtx
	cs.userData = userData
	cs.cancel = func() {
		cancel()
		allocCancel()
	}

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if ev, ok := ev.(*runtime.EventExceptionThrown); ok {
			cs.mu.Lock()
			cs.consoleErr = append(cs.consoleErr, ev.ExceptionDetails.Text)
			cs.mu.Unlock()
		}
	})

	// An empty Run forces the browser process to start
	if err := chromedp.Run(browserCtx); err != nil {
		cs.Terminate()
		return fmt.Errorf("failed to start browser: %w", err)
	}
	return nil
}

// Terminate closes the browser and removes its profile
func (cs *ChromeSession) Terminate() error {
	if cs.cancel != nil {
		cs.cancel()
		cs.cancel = nil
	}
	cs.ctx = nil
	if cs.userData != "" {
		err := os.RemoveAll(cs.userData)
		cs.userData = ""
		return err
	}
	return nil
}

// ConsoleErrors returns uncaught page exceptions seen so far
func (cs *ChromeSession) ConsoleErrors() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]string(nil), cs.consoleErr...)
}

// CaptureSnapshot writes a full-page PNG of the current page to path
func (cs *ChromeSession) CaptureSnapshot(ctx context.Context, path string) error {
	if cs == nil || cs.ctx == nil {
		return ErrNotCapturable
	}

	runCtx, cancel := cs.stepContext(ctx, 30*time.Second)
	defer cancel()

	var buf []byte
	// quality 100 selects PNG encoding
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	if len(buf) == 0 {
		return fmt.Errorf("screenshot returned no data")
	}
	return AtomicWriteFile(path, buf)
}

// stepContext derives a timeout context from the browser context that is
// also cancelled when parent is.
func (cs *ChromeSession) stepContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(cs.ctx, timeout)
	stop := context.AfterFunc(parent, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// resolveURL prefixes relative step URLs with the base URL
func (cs *ChromeSession) resolveURL(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	if url != "" && !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return cs.baseURL + url
}

// stepTimeout returns the per-step timeout
func (cs *ChromeSession) stepTimeout(step BrowserStep) time.Duration {
	if step.Timeout > 0 {
		return time.Duration(step.Timeout) * time.Second
	}
	if cs.config != nil && cs.config.StepTimeout > 0 {
		return time.Duration(cs.config.StepTimeout) * time.Second
	}
	return 10 * time.Second
}

// RunStep executes a single browser step against the current page
func (cs *ChromeSession) RunStep(ctx context.Context, step BrowserStep) error {
	if cs.ctx == nil {
		return fmt.Errorf("browser not started")
	}

	timeout := cs.stepTimeout(step)
	if step.Action == "wait" {
		// the step timeout is the wait itself; leave headroom for the round trip
		timeout += 5 * time.Second
	}
	ctx, cancel := cs.stepContext(ctx, timeout)
	defer cancel()

	switch step.Action {
	case "navigate":
		return chromedp.Run(ctx,
			chromedp.Navigate(cs.resolveURL(step.URL)),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)

	case "click":
		return chromedp.Run(ctx,
			chromedp.WaitVisible(step.Selector, chromedp.ByQuery),
			chromedp.Click(step.Selector, chromedp.ByQuery),
		)

	case "type":
		return chromedp.Run(ctx,
			chromedp.WaitVisible(step.Selector, chromedp.ByQuery),
			chromedp.Clear(step.Selector, chromedp.ByQuery),
			chromedp.SendKeys(step.Selector, step.Value, chromedp.ByQuery),
		)

	case "waitFor":
		return chromedp.Run(ctx,
			chromedp.WaitVisible(step.Selector, chromedp.ByQuery),
		)

	case "assertVisible":
		var nodes []*cdp.Node
		if err := chromedp.Run(ctx, chromedp.Nodes(step.Selector, &nodes, chromedp.ByQuery)); err != nil {
			return err
		}
		if len(nodes) == 0 {
			return fmt.Errorf("AssertionError: element not found: %s", step.Selector)
		}
		return nil

	case "assertText":
		var text string
		err := chromedp.Run(ctx,
			chromedp.WaitVisible(step.Selector, chromedp.ByQuery),
			chromedp.Text(step.Selector, &text, chromedp.ByQuery),
		)
		if err != nil {
			return err
		}
		if !strings.Contains(text, step.Contains) {
			return fmt.Errorf("AssertionError: text '%s' not found in element (got: '%s')", step.Contains, truncateText(text, 100))
		}
		return nil

	case "assertNotVisible":
		var nodes []*cdp.Node
		if err := chromedp.Run(ctx, chromedp.Nodes(step.Selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
			return err
		}
		if len(nodes) == 0 {
			return nil
		}
		var visible bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(
			`document.querySelector(%q).offsetParent !== null`, step.Selector), &visible)); err != nil {
			return err
		}
		if visible {
			return fmt.Errorf("AssertionError: element should not be visible: %s", step.Selector)
		}
		return nil

	case "submit":
		return chromedp.Run(ctx,
			chromedp.WaitVisible(step.Selector, chromedp.ByQuery),
			chromedp.Click(step.Selector, chromedp.ByQuery),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)

	case "wait":
		waitTime := time.Duration(step.Timeout) * time.Second
		if waitTime == 0 {
			waitTime = time.Second
		}
		return chromedp.Run(ctx, chromedp.Sleep(waitTime))
	}

	return fmt.Errorf("unknown action: %s", step.Action)
}

// truncateText truncates text to maxLen characters
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
