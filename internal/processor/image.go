package processor

import (
	"context"

	"github.com/minoad/docuparse/internal/logging"
	"github.com/minoad/docuparse/internal/ocr"
)

// ImageExtractor routes a standalone raster file through the OCR engine
type ImageExtractor struct {
	engine Recognizer
	logger *logging.Logger
}

// NewImageExtractor creates an image extractor
func NewImageExtractor(engine Recognizer, logger *logging.Logger) *ImageExtractor {
	if logger == nil {
		logger = logging.NewLogger("image")
	}
	return &ImageExtractor{engine: engine, logger: logger}
}

func (e *ImageExtractor) Name() string { return "image" }

// Extract recognizes the file using its path as both source and label
func (e *ImageExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	if mime, err := sniffFile(path); err == nil && mime == "application/pdf" {
		e.logger.Warn("Image file contains a PDF header", "path", path)
	}

	rec, err := e.engine.Recognize(ctx, ocr.FromPath(path), path)
	if err != nil {
		return nil, err
	}
	if rec.Empty() {
		e.logger.Info("No text recognized", "path", path, "reason", string(rec.Failure))
	}

	return NewImageResult(rec.Text), nil
}
