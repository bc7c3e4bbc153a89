/**
 * Document Processor for docuparse
 *
 * Extractors turn one file into an extraction result:
 * - PDFs: native text per page plus OCR of every embedded image
 * - Raster images: OCR of the whole file
 */

package processor

import (
	"context"
	"strings"

	"github.com/minoad/docuparse/internal/ocr"
)

// Extractor turns one file into an extraction result
type Extractor interface {
	Name() string
	Extract(ctx context.Context, path string) (*Result, error)
}

// Recognizer is the OCR engine as seen by extractors
type Recognizer interface {
	Recognize(ctx context.Context, src ocr.Source, label string) (*ocr.Record, error)
}

// Kind tells which record shape a Result serializes to
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// PageRecord holds one PDF page. CombinedText lists every image's text in
// enumeration order followed by the page's native text.
type PageRecord struct {
	PageNumber   int           `json:"page_number" bson:"page_number"`
	NativeText   string        `json:"native_text" bson:"native_text"`
	Images       []*ocr.Record `json:"images" bson:"images"`
	CombinedText []string      `json:"combined_text" bson:"combined_text"`
}

// Result is the extraction output for one file
type Result struct {
	Kind       Kind
	MergedText string
	Pages      []PageRecord
	Text       string
}

// NewPDFResult builds a PDF result; MergedText is derived from pages
func NewPDFResult(pages []PageRecord) *Result {
	return &Result{
		Kind:       KindPDF,
		MergedText: MergePages(pages),
		Pages:      pages,
	}
}

// NewImageResult builds a standalone image result
func NewImageResult(text string) *Result {
	return &Result{Kind: KindImage, Text: text}
}

// MergePages joins every page's combined text, in page order, with single spaces
func MergePages(pages []PageRecord) string {
	var parts []string
	for _, page := range pages {
		parts = append(parts, page.CombinedText...)
	}
	return strings.Join(parts, " ")
}

// Fields returns the stored record body, without the key
func (r *Result) Fields() map[string]interface{} {
	if r.Kind == KindPDF {
		pages := r.Pages
		if pages == nil {
			pages = []PageRecord{}
		}
		return map[string]interface{}{
			"merged_text": r.MergedText,
			"pages_data":  pages,
		}
	}
	return map[string]interface{}{
		"text": r.Text,
	}
}
