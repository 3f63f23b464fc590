package main

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistenceMissing means the run-result document was not found at synthesis time.
	ErrPersistenceMissing = errors.New("run-result document not found")

	// ErrIndexSealed is returned when recording into an index that was already drained.
	ErrIndexSealed = errors.New("correlation index already drained")

	// ErrDuplicateArtifact is returned when an identity already has an artifact.
	ErrDuplicateArtifact = errors.New("artifact already recorded for identity")

	// ErrNotCapturable means the session cannot produce a visual snapshot.
	ErrNotCapturable = errors.New("session cannot capture a snapshot")

	// ErrInvalidTransition is returned when the run session is driven out of order.
	ErrInvalidTransition = errors.New("invalid run state transition")
)

// CaptureError reports a failed screenshot capture for one test
type CaptureError struct {
	Identity string
	Path     string
	Err      error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s to %s: %v", e.Identity, e.Path, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// DocumentError reports a run-result document that exists but cannot be read
type DocumentError struct {
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// EmbedError reports a single screenshot that could not be placed in the document
type EmbedError struct {
	Path     string
	Err      error
	Optional bool // the block was decoration, like the logo, and was dropped
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }

// RenderError reports a failure assembling or writing the whole illustrated document
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
