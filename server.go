package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/acarl005/stripansi"
)

// ServerConfig describes the application under test. With Start empty the
// server is expected to be running already and is only waited for.
type ServerConfig struct {
	Start        string `json:"start,omitempty"`
	Ready        string `json:"ready,omitempty"`        // URL polled until it answers below 500
	ReadyTimeout int    `json:"readyTimeout,omitempty"` // seconds, default 30
}

// outputTail keeps the most recent output of a process
type outputTail struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	maxBytes int
}

func (o *outputTail) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buf.Len()+len(p) > o.maxBytes {
		data := o.buf.Bytes()
		keep := o.maxBytes / 2
		if len(data) > keep {
			data = data[len(data)-keep:]
		}
		rest := append([]byte(nil), data...)
		o.buf.Reset()
		o.buf.Write(rest)
	}
	o.buf.Write(p)
	return len(p), nil
}

func (o *outputTail) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

// AppServer starts the application under test and stops it after the run
type AppServer struct {
	projectRoot string
	config      ServerConfig
	httpClient  *http.Client
	poll        time.Duration

	mu     sync.Mutex
	cmd    *exec.Cmd
	output *outputTail
}

// NewAppServer creates a server manager; nothing starts until EnsureRunning
func NewAppServer(projectRoot string, config ServerConfig) *AppServer {
	return &AppServer{
		projectRoot: projectRoot,
		config:      config,
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		poll:        500 * time.Millisecond,
	}
}

// Configured reports whether there is anything to start or wait for
func (s *AppServer) Configured() bool {
	return s.config.Start != "" || s.config.Ready != ""
}

// EnsureRunning starts the server if it is not already answering and
// waits until the ready URL responds.
func (s *AppServer) EnsureRunning(ctx context.Context) error {
	if s.config.Ready != "" && s.isReady(s.config.Ready) {
		return nil
	}
	if s.config.Start != "" {
		if err := s.start(); err != nil {
			return err
		}
	}
	if s.config.Ready == "" {
		return nil
	}
	if err := s.waitForReady(ctx); err != nil {
		if tail := s.RecentOutput(20); tail != "" {
			return fmt.Errorf("%w\n\nRecent server output:\n%s", err, tail)
		}
		return err
	}
	return nil
}

func (s *AppServer) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := exec.Command("sh", "-c", s.config.Start)
	cmd.Dir = s.projectRoot
	out := &outputTail{maxBytes: 256 * 1024}
	cmd.Stdout = out
	cmd.Stderr = out
	// Own process group so children die with it
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.cmd = cmd
	s.output = out
	fmt.Printf("Started server (PID %d): %s\n", cmd.Process.Pid, s.config.Start)
	return nil
}

func (s *AppServer) waitForReady(ctx context.Context) error {
	timeout := time.Duration(s.config.ReadyTimeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for server (%s)", s.config.Ready)
		case <-ticker.C:
			if s.isReady(s.config.Ready) {
				fmt.Printf("Server ready: %s\n", s.config.Ready)
				return nil
			}
		}
	}
}

func (s *AppServer) isReady(url string) bool {
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// Terminate stops a server this process started. Safe to call repeatedly.
func (s *AppServer) Terminate() error {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	fmt.Printf("Stopping server (PID %d)\n", cmd.Process.Pid)
	syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
	}
	return nil
}

// RecentOutput returns the last maxLines lines the server printed, with
// terminal color codes removed
func (s *AppServer) RecentOutput(maxLines int) string {
	s.mu.Lock()
	out := s.output
	s.mu.Unlock()
	if out == nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(stripansi.Strip(out.String()), "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}
