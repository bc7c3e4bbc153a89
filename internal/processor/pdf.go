package processor

import (
	"context"
	"fmt"

	apperrors "github.com/minoad/docuparse/internal/errors"
	"github.com/minoad/docuparse/internal/logging"
	"github.com/minoad/docuparse/internal/ocr"
)

// PDFExtractor combines each page's native text with OCR of its embedded images
type PDFExtractor struct {
	engine Recognizer
	open   PDFOpener
	logger *logging.Logger
}

// NewPDFExtractor creates a PDF extractor. A nil opener uses OpenPDF.
func NewPDFExtractor(engine Recognizer, opener PDFOpener, logger *logging.Logger) *PDFExtractor {
	if opener == nil {
		opener = OpenPDF
	}
	if logger == nil {
		logger = logging.NewLogger("pdf")
	}
	return &PDFExtractor{engine: engine, open: opener, logger: logger}
}

func (p *PDFExtractor) Name() string { return "pdf" }

// Extract walks the document page by page
func (p *PDFExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	doc, err := p.open(path)
	if err != nil {
		p.logger.Error("Failed to open PDF", "path", path, "error", err)
		if apperrors.CodeOf(err) != "" {
			return nil, err
		}
		return nil, apperrors.NewDocumentOpenError(path, err)
	}
	defer doc.Close()

	numPages := doc.NumPages()
	p.logger.Debug("Opened PDF", "path", path, "pages", numPages)

	pages := make([]PageRecord, 0, numPages)
	sequence := 0
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := p.extractPage(ctx, doc, path, pageNum, &sequence)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}

	return NewPDFResult(pages), nil
}

func (p *PDFExtractor) extractPage(ctx context.Context, doc PDFDocument, path string, pageNum int, sequence *int) (PageRecord, error) {
	page := PageRecord{PageNumber: pageNum}

	text, err := doc.PageText(pageNum)
	if err != nil {
		p.logger.Error("Failed to read page text", "path", path, "page", pageNum, "error", err)
		return page, apperrors.NewDecodeFailedError(fmt.Sprintf("%s page %d", path, pageNum), err)
	}
	page.NativeText = text

	images, err := doc.PageImages(pageNum)
	if err != nil {
		if !ocr.IsUnsupportedColorSpace(err) {
			p.logger.Error("Failed to enumerate page images", "path", path, "page", pageNum, "error", err)
			return page, apperrors.NewDecodeFailedError(fmt.Sprintf("%s page %d", path, pageNum), err)
		}
		p.logger.Warn("Unsupported color space in page images, skipping OCR for page",
			"path", path, "page", pageNum, "error", err)
		images = nil
	}

	for _, img := range images {
		src := ocr.FromBytes(img.Data, img.Info)
		src.Sequence = *sequence
		src.Flatten = true
		src.Err = img.Err
		*sequence++

		rec, err := p.engine.Recognize(ctx, src, path)
		if err != nil {
			return page, fmt.Errorf("page %d image %s: %w", pageNum, img.Name, err)
		}

		page.Images = append(page.Images, rec)
		page.CombinedText = append(page.CombinedText, rec.Text)
	}
	page.CombinedText = append(page.CombinedText, text)

	return page, nil
}
