package main

import (
	"fmt"
	"sync"
)

// CorrelationIndex maps test identities to captured artifacts for a single run.
// It is written by the Observer while tests run and drained once at finalize.
type CorrelationIndex struct {
	mu      sync.Mutex
	entries map[string]ArtifactReference
	drained bool
}

// NewCorrelationIndex creates an empty index
func NewCorrelationIndex() *CorrelationIndex {
	return &CorrelationIndex{
		entries: make(map[string]ArtifactReference),
	}
}

// Record stores the artifact for identity
func (ci *CorrelationIndex) Record(identity string, ref ArtifactReference) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if ci.drained {
		return ErrIndexSealed
	}
	if _, exists := ci.entries[identity]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateArtifact, identity)
	}
	ci.entries[identity] = ref
	return nil
}

// Lookup returns the artifact for identity, if any
func (ci *CorrelationIndex) Lookup(identity string) (ArtifactReference, bool) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ref, ok := ci.entries[identity]
	return ref, ok
}

// Len returns the number of recorded artifacts
func (ci *CorrelationIndex) Len() int {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	return len(ci.entries)
}

// Drain returns a copy of all entries and seals the index against further writes.
// Entries are not removed; repeated calls return the same mapping.
func (ci *CorrelationIndex) Drain() map[string]ArtifactReference {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	ci.drained = true
	out := make(map[string]ArtifactReference, len(ci.entries))
	for id, ref := range ci.entries {
		out[id] = ref
	}
	return out
}
