package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	reportTitle       = "Test Report Summary"
	failedTestsTitle  = "Failed Tests Details"
	textReportName    = "TEST_REPORT.md"
	pdfReportName     = "TEST_REPORT.pdf"
	renderErrorName   = "TEST_REPORT_ERROR.txt"
	noScreenshotNote  = "[No screenshot captured]"
	missingFileNote   = "[No screenshot file found]"
	embedFailedPrefix = "[Unable to insert screenshot: "
)

// ReportStage turns a persisted run-result document into human-facing reports
type ReportStage interface {
	Synthesize(ctx context.Context, docPath string) (*SynthesisResult, error)
}

// ReportOptions configures where reports are read from and written to
type ReportOptions struct {
	BaseDir   string // screenshot paths in the document are relative to this
	OutputDir string
	LogoPath  string
	PDF       bool
}

// SynthesisResult lists what a synthesis pass produced
type SynthesisResult struct {
	TextPath    string
	PDFPath     string
	ErrorPath   string
	EmbedErrors []*EmbedError
}

// Synthesizer renders the text and illustrated reports
type Synthesizer struct {
	opts   ReportOptions
	out    io.Writer
	errOut io.Writer
	logger *RunLogger
}

// NewSynthesizer creates a synthesizer. Diagnostics go to stdout/stderr.
func NewSynthesizer(opts ReportOptions, logger *RunLogger) *Synthesizer {
	if logger == nil {
		logger = NopLogger()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = opts.BaseDir
	}
	return &Synthesizer{
		opts:   opts,
		out:    os.Stdout,
		errOut: os.Stderr,
		logger: logger,
	}
}

// SetOutput redirects diagnostics
func (s *Synthesizer) SetOutput(out, errOut io.Writer) {
	s.out = out
	s.errOut = errOut
}

// Synthesize reads the document at docPath and writes TEST_REPORT.md and,
// when enabled, TEST_REPORT.pdf. A missing or unreadable document produces
// no files and is reported through the returned error.
func (s *Synthesizer) Synthesize(ctx context.Context, docPath string) (*SynthesisResult, error) {
	s.logger.ReportStart(docPath)

	doc, err := LoadDocument(docPath)
	if err != nil {
		if errors.Is(err, ErrPersistenceMissing) {
			fmt.Fprintf(s.out, "⚠️ %s not found, skipping PDF generation\n", filepath.Base(docPath))
		} else {
			fmt.Fprintf(s.errOut, "❌ ERROR reading %s: %v\n", filepath.Base(docPath), err)
		}
		s.logger.Warning(fmt.Sprintf("report synthesis skipped: %v", err))
		s.logger.ReportEnd(false, nil)
		return nil, err
	}

	for _, msg := range doc.MalformedProperties() {
		fmt.Fprintf(s.errOut, "⚠️ Skipped malformed user property in %s: %s\n", filepath.Base(docPath), msg)
		s.logger.Warning("skipped malformed user property: " + msg)
	}

	result := &SynthesisResult{}

	textPath := filepath.Join(s.opts.OutputDir, textReportName)
	if err := AtomicWriteFile(textPath, []byte(RenderText(doc))); err != nil {
		fmt.Fprintf(s.errOut, "❌ ERROR writing %s: %v\n", textReportName, err)
		s.logger.Error("text report failed", err)
	} else {
		result.TextPath = textPath
		fmt.Fprintf(s.out, "✔️ %s generated\n", textReportName)
	}

	if s.opts.PDF {
		if err := ctx.Err(); err != nil {
			s.logger.ReportEnd(false, result)
			return result, err
		}
		s.renderIllustrated(doc, docPath, result)
	}

	s.logger.ReportEnd(result.ErrorPath == "", result)
	return result, nil
}

func (s *Synthesizer) renderIllustrated(doc *RunResultDocument, docPath string, result *SynthesisResult) {
	pdfPath := filepath.Join(s.opts.OutputDir, pdfReportName)
	errorPath := filepath.Join(s.opts.OutputDir, renderErrorName)

	story := BuildStory(doc, s.opts.BaseDir, s.opts.LogoPath, s.out)

	fmt.Fprintln(s.out, "ℹ️ About to build PDF…")
	embedErrs, err := RenderPDF(story, pdfPath, documentTime(docPath))
	result.EmbedErrors = embedErrs
	for _, e := range embedErrs {
		if e.Optional {
			fmt.Fprintf(s.errOut, "⚠️ Could not embed %s: %v\n", filepath.Base(e.Path), e.Err)
			s.logger.Warning(fmt.Sprintf("logo not embedded: %v", e))
			continue
		}
		s.logger.Warning(fmt.Sprintf("screenshot not embedded: %v", e))
	}

	if err != nil {
		fmt.Fprintf(s.errOut, "❌ ERROR generating %s: %v\n", pdfReportName, err)
		s.logger.Error("pdf render failed", err)
		fallback := fmt.Sprintf("PDF generation failed:\n%v\n", err)
		if werr := AtomicWriteFile(errorPath, []byte(fallback)); werr != nil {
			fmt.Fprintf(s.errOut, "❌ ERROR writing %s: %v\n", renderErrorName, werr)
			return
		}
		result.ErrorPath = errorPath
		fmt.Fprintf(s.out, "ℹ️ Wrote fallback error to %s\n", errorPath)
		return
	}

	os.Remove(errorPath)
	result.PDFPath = pdfPath
	fmt.Fprintf(s.out, "✔️ %s generated\n", pdfReportName)
}

// RenderText renders the markdown summary. It never fails.
func RenderText(doc *RunResultDocument) string {
	lines := []string{
		"# " + reportTitle,
		fmt.Sprintf("- **Total tests:** %d", doc.Summary.Total),
		fmt.Sprintf("- **Passed:** %d", doc.Summary.Passed),
		fmt.Sprintf("- **Failed:** %d", doc.Summary.Failed),
		"",
		"## " + failedTestsTitle,
	}

	for _, t := range doc.FailedTests() {
		lines = append(lines, fmt.Sprintf("- `%s`: %s", t.NodeID, t.FailureMessage()))
	}

	return strings.Join(lines, "\n")
}
