package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// LockInfo describes the run holding the lock
type LockInfo struct {
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"startedAt"`
	Suite      string    `json:"suite"`
	ResultPath string    `json:"resultPath"`
}

// RunLock keeps two runs in the same project from writing the same result document
type RunLock struct {
	path string
	info *LockInfo
}

// maxLockAge bounds how long a lock from a live PID is trusted (PID reuse)
const maxLockAge = 6 * time.Hour

// NewRunLock creates a lock manager for the project
func NewRunLock(projectRoot string) *RunLock {
	return &RunLock{
		path: filepath.Join(StateDir(projectRoot), "run.lock"),
	}
}

// Acquire takes the lock, clearing it first if the holder is gone
func (rl *RunLock) Acquire(suite, resultPath string) error {
	if err := os.MkdirAll(filepath.Dir(rl.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	if existing, err := rl.read(); err == nil {
		if !isLockStale(existing) {
			return fmt.Errorf("failshot is already running (PID %d, suite: %s)\nStarted at: %s",
				existing.PID, existing.Suite, existing.StartedAt.Format(time.RFC3339))
		}
		fmt.Printf("Removing stale lock (PID %d)\n", existing.PID)
		if err := os.Remove(rl.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	} else if !os.IsNotExist(err) {
		// unreadable lock file
		os.Remove(rl.path)
	}

	info := &LockInfo{
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
		Suite:      suite,
		ResultPath: resultPath,
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock info: %w", err)
	}

	f, err := os.OpenFile(rl.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("failshot is already running (lock acquired by another process)")
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		os.Remove(rl.path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}

	rl.info = info
	return nil
}

// Release removes the lock if this process owns it
func (rl *RunLock) Release() error {
	if rl == nil || rl.info == nil {
		return nil
	}
	existing, err := rl.read()
	if err != nil || existing.PID != os.Getpid() {
		return nil
	}
	rl.info = nil
	return os.Remove(rl.path)
}

// ReadLockStatus returns the live lock holder, or nil when no run is active
func ReadLockStatus(projectRoot string) (*LockInfo, error) {
	info, err := NewRunLock(projectRoot).read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if isLockStale(info) {
		return nil, nil
	}
	return info, nil
}

func (rl *RunLock) read() (*LockInfo, error) {
	data, err := os.ReadFile(rl.path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("corrupt lock file: %w", err)
	}
	return &info, nil
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}

func isLockStale(info *LockInfo) bool {
	if !isProcessAlive(info.PID) {
		return true
	}
	return time.Since(info.StartedAt) > maxLockAge
}
