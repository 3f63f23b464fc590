package main

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Layout in points (1in = 72pt)
const (
	pageMargin      = 40.0
	logoSize        = 2 * 72.0
	screenshotWidth = 6 * 72.0
	screenshotHigh  = 3 * 72.0
	bodyLineHeight  = 14.0
)

type blockKind int

const (
	blockTitle blockKind = iota
	blockHeading
	blockBody
	blockBold
	blockLabel
	blockImage
	blockSpacer
)

// storyBlock is one flowable in the illustrated document
type storyBlock struct {
	Kind   blockKind
	Label  string
	Text   string
	Path   string
	Width  float64
	Height float64

	// Optional marks an image that is skipped silently (with a warning) if it
	// cannot be embedded, instead of being replaced by an inline note.
	Optional bool
}

func spacer(h float64) storyBlock {
	return storyBlock{Kind: blockSpacer, Height: h}
}

// BuildStory lays out the illustrated document as a list of blocks. Missing
// screenshot files become placeholder lines; decoding happens at render time.
func BuildStory(doc *RunResultDocument, baseDir, logoPath string, out io.Writer) []storyBlock {
	if out == nil {
		out = io.Discard
	}
	var story []storyBlock

	if logoPath != "" {
		if abs := resolveArtifactPath(baseDir, logoPath); fileExists(abs) {
			story = append(story,
				storyBlock{Kind: blockImage, Path: abs, Width: logoSize, Height: logoSize, Optional: true},
				spacer(12),
			)
		}
	}

	story = append(story,
		storyBlock{Kind: blockTitle, Text: reportTitle},
		spacer(12),
		storyBlock{Kind: blockLabel, Label: "Total tests:", Text: fmt.Sprint(doc.Summary.Total)},
		storyBlock{Kind: blockLabel, Label: "Passed:", Text: fmt.Sprint(doc.Summary.Passed)},
		storyBlock{Kind: blockLabel, Label: "Failed:", Text: fmt.Sprint(doc.Summary.Failed)},
		spacer(12),
		storyBlock{Kind: blockHeading, Text: failedTestsTitle},
		spacer(6),
	)

	for _, t := range doc.FailedTests() {
		story = append(story,
			storyBlock{Kind: blockBold, Text: strings.ReplaceAll(t.NodeID, "/", " / ") + ":"},
			spacer(4),
			storyBlock{Kind: blockBody, Text: t.FailureMessage()},
			spacer(8),
		)

		shot, ok := t.Screenshot()
		if !ok {
			story = append(story, storyBlock{Kind: blockBody, Text: noScreenshotNote}, spacer(12))
			continue
		}

		abs := resolveArtifactPath(baseDir, shot)
		exists := isRegularFile(abs)
		fmt.Fprintf(out, "▶️ Found screenshot for %s: %s (exists? %t)\n", t.NodeID, abs, exists)
		if !exists {
			story = append(story, storyBlock{Kind: blockBody, Text: missingFileNote}, spacer(12))
			continue
		}
		story = append(story,
			storyBlock{Kind: blockImage, Path: abs, Width: screenshotWidth, Height: screenshotHigh},
			spacer(12),
		)
	}

	return story
}

// RenderPDF writes story to path. Individual image failures are replaced by
// an inline note and returned; the error is reserved for whole-document failure.
func RenderPDF(story []storyBlock, path string, created time.Time) ([]*EmbedError, error) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetCatalogSort(true)
	if !created.IsZero() {
		pdf.SetCreationDate(created)
		pdf.SetModificationDate(created)
	}
	pdf.SetTitle(reportTitle, true)
	pdf.SetCreator("failshot", true)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	var embedErrs []*EmbedError

	for _, b := range story {
		switch b.Kind {
		case blockTitle:
			pdf.SetFont("Helvetica", "B", 18)
			pdf.MultiCell(0, 22, tr(b.Text), "", "C", false)
		case blockHeading:
			pdf.SetFont("Helvetica", "B", 14)
			pdf.MultiCell(0, 18, tr(b.Text), "", "L", false)
		case blockBold:
			pdf.SetFont("Helvetica", "B", 10)
			pdf.MultiCell(0, bodyLineHeight, tr(b.Text), "", "L", false)
		case blockBody:
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, bodyLineHeight, tr(b.Text), "", "L", false)
		case blockLabel:
			pdf.SetFont("Helvetica", "B", 10)
			pdf.Write(bodyLineHeight, tr(b.Label))
			pdf.SetFont("Helvetica", "", 10)
			pdf.Write(bodyLineHeight, tr(" "+b.Text))
			pdf.Ln(bodyLineHeight)
		case blockSpacer:
			pdf.Ln(b.Height)
		case blockImage:
			if err := placeImage(pdf, b); err != nil {
				embedErr := &EmbedError{Path: b.Path, Err: err, Optional: b.Optional}
				embedErrs = append(embedErrs, embedErr)
				if b.Optional {
					continue
				}
				pdf.SetFont("Helvetica", "", 10)
				pdf.MultiCell(0, bodyLineHeight, tr(embedFailedPrefix+err.Error()+"]"), "", "L", false)
			}
		}
	}

	if err := pdf.Error(); err != nil {
		return embedErrs, &RenderError{Path: path, Err: err}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return embedErrs, &RenderError{Path: path, Err: err}
	}
	if err := AtomicWriteFile(path, buf.Bytes()); err != nil {
		return embedErrs, &RenderError{Path: path, Err: err}
	}
	return embedErrs, nil
}

// placeImage embeds one image centered on the page, starting a new page if it
// does not fit. Errors leave the document usable.
func placeImage(pdf *fpdf.Fpdf, b storyBlock) error {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		return err
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	imageType := strings.ToUpper(format)
	if imageType == "JPEG" {
		imageType = "JPG"
	}
	opts := fpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader(b.Path, opts, bytes.NewReader(data))
	if pdf.Err() {
		err := pdf.Error()
		pdf.ClearError()
		return err
	}

	pageW, pageH := pdf.GetPageSize()
	if pdf.GetY()+b.Height > pageH-pageMargin {
		pdf.AddPage()
	}
	x := (pageW - b.Width) / 2
	y := pdf.GetY()
	pdf.ImageOptions(b.Path, x, y, b.Width, b.Height, false, opts, 0, "")
	if pdf.Err() {
		err := pdf.Error()
		pdf.ClearError()
		return err
	}
	pdf.SetY(y + b.Height)
	return nil
}

// resolveArtifactPath interprets a document path relative to baseDir
func resolveArtifactPath(baseDir, path string) string {
	path = filepath.FromSlash(path)
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// documentTime pins the PDF timestamps to the persisted document
func documentTime(docPath string) time.Time {
	info, err := os.Stat(docPath)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime().UTC().Truncate(time.Second)
}
