package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// SnapshotCapable is implemented by any session that can write a visual
// snapshot of its current state to a file.
type SnapshotCapable interface {
	CaptureSnapshot(ctx context.Context, path string) error
}

// Terminable is implemented by sessions that own external resources.
type Terminable interface {
	Terminate() error
}

// ArtifactReference points at a captured screenshot
type ArtifactReference struct {
	Path       string    `json:"path"`
	CapturedAt time.Time `json:"capturedAt"`
}

// ArtifactStore owns the on-disk layout of screenshots for one run
type ArtifactStore struct {
	dir string

	mu     sync.Mutex
	byID   map[string]string // identity -> stem
	owners map[string]string // folded stem -> identity
}

// NewArtifactStore creates a store rooted at dir
func NewArtifactStore(dir string) *ArtifactStore {
	if dir == "" {
		dir = "screenshots"
	}
	return &ArtifactStore{
		dir:    dir,
		byID:   make(map[string]string),
		owners: make(map[string]string),
	}
}

// Dir returns the screenshot directory
func (s *ArtifactStore) Dir() string {
	return s.dir
}

var identitySeparators = strings.NewReplacer("::", "__", "/", "_", `\`, "_")

// SanitizeIdentity replaces path-hostile separators in a test identity.
// e.g. "tests/test_login.py::test_bad_password" → "tests_test_login.py__test_bad_password"
func SanitizeIdentity(identity string) string {
	stem := identitySeparators.Replace(identity)
	if stem == "" || stem == "." || stem == ".." {
		stem = "unnamed" + stem
	}
	return stem
}

// ResolvePath returns the screenshot path for identity. The same identity
// always resolves to the same path; a different identity whose sanitized
// name is already taken (including case-only differences) gets a hash suffix.
func (s *ArtifactStore) ResolvePath(identity string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stem, ok := s.byID[identity]; ok {
		return s.pathFor(stem)
	}

	base := SanitizeIdentity(identity)
	stem := base
	for n := 0; s.taken(stem, identity); n++ {
		stem = base + "-" + identityHash(identity)
		if n > 0 {
			stem = fmt.Sprintf("%s-%d", stem, n)
		}
	}

	s.byID[identity] = stem
	s.owners[strings.ToLower(stem)] = identity
	return s.pathFor(stem)
}

func (s *ArtifactStore) taken(stem, identity string) bool {
	owner, ok := s.owners[strings.ToLower(stem)]
	return ok && owner != identity
}

func (s *ArtifactStore) pathFor(stem string) string {
	return filepath.Join(s.dir, stem+".png")
}

func identityHash(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])[:8]
}

// Capture asks session to write a snapshot to path, creating the directory first.
// The returned error is always a *CaptureError and is never meant to abort the run.
func (s *ArtifactStore) Capture(ctx context.Context, identity string, session SnapshotCapable, path string) (*ArtifactReference, error) {
	if session == nil {
		return nil, &CaptureError{Identity: identity, Path: path, Err: ErrNotCapturable}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &CaptureError{Identity: identity, Path: path, Err: fmt.Errorf("failed to create screenshot dir: %w", err)}
	}

	if err := session.CaptureSnapshot(ctx, path); err != nil {
		return nil, &CaptureError{Identity: identity, Path: path, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &CaptureError{Identity: identity, Path: path, Err: fmt.Errorf("snapshot not written: %w", err)}
	}
	if info.Size() == 0 {
		os.Remove(path)
		return nil, &CaptureError{Identity: identity, Path: path, Err: fmt.Errorf("snapshot is empty")}
	}

	return &ArtifactReference{Path: path, CapturedAt: time.Now()}, nil
}
