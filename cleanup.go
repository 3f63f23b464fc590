package main

import (
	"sync"
)

// CleanupCoordinator releases run resources on interrupt, even when the
// process exits before deferred calls run.
type CleanupCoordinator struct {
	mu      sync.Mutex
	session Terminable
	server  Terminable
	logger  *RunLogger
	lock    *RunLock
	done    bool
}

// NewCleanupCoordinator creates a new cleanup coordinator.
func NewCleanupCoordinator() *CleanupCoordinator {
	return &CleanupCoordinator{}
}

// SetSession registers the browser session for termination.
func (c *CleanupCoordinator) SetSession(s Terminable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// SetServer registers the application server for shutdown.
func (c *CleanupCoordinator) SetServer(s Terminable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.server = s
}

// SetLogger registers the run logger for cleanup.
func (c *CleanupCoordinator) SetLogger(l *RunLogger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
}

// SetLock registers the run lock for release.
func (c *CleanupCoordinator) SetLock(rl *RunLock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lock = rl
}

// Cleanup terminates the session, stops the server, closes the log and
// releases the lock.
// Safe to call multiple times.
func (c *CleanupCoordinator) Cleanup(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return
	}
	c.done = true

	if c.session != nil {
		c.session.Terminate()
		c.session = nil
	}

	if c.server != nil {
		c.server.Terminate()
		c.server = nil
	}

	if c.logger != nil {
		if reason != "" {
			c.logger.RunEnd(false, reason)
		}
		c.logger.Close()
	}

	// Release lock last
	if c.lock != nil {
		c.lock.Release()
	}
}
