package main

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResultSerializer bakes artifact references into the run-result document
// and persists it. Paths are written relative to baseDir.
type ResultSerializer struct {
	baseDir string
	logger  *RunLogger
}

// NewResultSerializer creates a serializer for documents rooted at baseDir
func NewResultSerializer(baseDir string, logger *RunLogger) *ResultSerializer {
	if logger == nil {
		logger = NopLogger()
	}
	return &ResultSerializer{baseDir: baseDir, logger: logger}
}

// Attach drains index and adds a screenshot property to every matching record.
// Records without an entry are left untouched. Returns the number attached.
func (rs *ResultSerializer) Attach(doc *RunResultDocument, index *CorrelationIndex) int {
	entries := index.Drain()
	attached := 0

	for i := range doc.Tests {
		rec := &doc.Tests[i]
		ref, ok := entries[rec.NodeID]
		if !ok {
			continue
		}
		if _, already := rec.Screenshot(); already {
			continue
		}
		rec.UserProperties = append(rec.UserProperties, UserProperty{
			Name:  ScreenshotProperty,
			Value: rs.relativePath(ref.Path),
		})
		attached++
	}

	return attached
}

// Persist writes doc to path atomically
func (rs *ResultSerializer) Persist(path string, doc *RunResultDocument) error {
	if err := AtomicWriteJSON(path, doc); err != nil {
		return fmt.Errorf("failed to persist %s: %w", path, err)
	}
	return nil
}

// Finalize attaches artifacts and persists the document in one step
func (rs *ResultSerializer) Finalize(path string, doc *RunResultDocument, index *CorrelationIndex) error {
	attached := rs.Attach(doc, index)
	if err := rs.Persist(path, doc); err != nil {
		rs.logger.Error("finalize failed", err)
		return err
	}
	rs.logger.Finalize(path, len(doc.Tests), attached)
	return nil
}

func (rs *ResultSerializer) relativePath(path string) string {
	if rs.baseDir == "" || !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(rs.baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
