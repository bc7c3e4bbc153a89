package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	apperrors "github.com/minoad/docuparse/internal/errors"
	"github.com/minoad/docuparse/internal/logging"
)

// ErrInsufficientText is returned by an OrientationAnalyzer that refused an
// image because it found too little text to decide an orientation.
var ErrInsufficientText = errors.New("too few characters to detect orientation")

// OrientationAnalyzer detects how far an image is rotated from upright
type OrientationAnalyzer interface {
	Detect(ctx context.Context, img image.Image, relaxed bool) (OrientationReport, error)
}

// TextRecognizer turns a normalized image into raw text
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// EngineConfig wires the engine's collaborators and policies
type EngineConfig struct {
	Analyzer   OrientationAnalyzer
	Recognizer TextRecognizer
	Scorer     *QualityScorer

	// Rotation is applied when confidence >= RotationThreshold.
	RotationThreshold float64
	PosterizeBits     int
	// RetrySparseText retries a refused orientation pass once in relaxed mode.
	RetrySparseText bool

	Logger *logging.Logger
}

// Engine runs the full OCR pipeline for one image at a time
type Engine struct {
	analyzer   OrientationAnalyzer
	recognizer TextRecognizer
	scorer     *QualityScorer
	normalizer Normalizer
	threshold  float64
	retry      bool
	logger     *logging.Logger
}

// NewEngine validates cfg and builds an Engine
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("orientation analyzer is required")
	}
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("text recognizer is required")
	}

	scorer := cfg.Scorer
	if scorer == nil {
		scorer = NewQualityScorer(DefaultDictionary(), 50)
	}

	bits := cfg.PosterizeBits
	if bits == 0 {
		bits = 3
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("ocr")
	}

	return &Engine{
		analyzer:   cfg.Analyzer,
		recognizer: cfg.Recognizer,
		scorer:     scorer,
		normalizer: Normalizer{Bits: bits},
		threshold:  cfg.RotationThreshold,
		retry:      cfg.RetrySparseText,
		logger:     logger,
	}, nil
}

// Recognize loads src, corrects its orientation, normalizes it, recognizes
// its text and scores the result. Recoverable failures come back as a record
// with Failure set and a nil error.
func (e *Engine) Recognize(ctx context.Context, src Source, label string) (*Record, error) {
	sourceID := fmt.Sprintf("%s_image_%d", label, src.Sequence)

	img, meta, err := src.Load()
	if err != nil {
		if IsUnsupportedColorSpace(err) {
			e.logger.Warn("Unsupported color space, skipping OCR", "source", sourceID, "error", err)
			return emptyRecord(sourceID, meta, FailureUnsupportedColorSpace), nil
		}
		e.logger.Error("Failed to load image", "source", sourceID, "error", err)
		if apperrors.HasCode(err, apperrors.ErrorFileIO) {
			return nil, err
		}
		return nil, apperrors.NewDecodeFailedError(sourceID, err)
	}

	report, err := e.detectOrientation(ctx, img, sourceID)
	if err != nil {
		if errors.Is(err, ErrInsufficientText) {
			e.logger.Warn("Too little text to detect orientation, returning empty record", "source", sourceID)
			return emptyRecord(sourceID, meta, FailureInsufficientText), nil
		}
		e.logger.Error("Orientation detection failed", "source", sourceID, "error", err)
		return nil, apperrors.NewOCRFailedError(sourceID, "orientation", err)
	}

	rotated := false
	if report.DetectedRotation != 0 {
		if report.Confidence >= e.threshold {
			img = Rotate(img, report.ComplementRotation)
			rotated = true
			e.logger.Debug("Rotated image", "source", sourceID,
				"detected", report.DetectedRotation, "applied", report.ComplementRotation)
		} else {
			e.logger.Debug("Rotation detected but below threshold", "source", sourceID,
				"detected", report.DetectedRotation, "confidence", report.Confidence, "threshold", e.threshold)
		}
	}

	normalized := e.normalizer.Normalize(img)

	raw, err := e.recognizer.Recognize(ctx, normalized)
	if err != nil {
		e.logger.Error("Text recognition failed", "source", sourceID, "error", err)
		return nil, apperrors.NewOCRFailedError(sourceID, "recognize", err)
	}
	text := singleLine(raw)

	return &Record{
		SourceID:    sourceID,
		Text:        text,
		Orientation: report,
		Rotated:     rotated,
		Quality:     e.scorer.Score(text),
		Metadata:    meta,
	}, nil
}

func (e *Engine) detectOrientation(ctx context.Context, img image.Image, sourceID string) (OrientationReport, error) {
	report, err := e.analyzer.Detect(ctx, img, false)
	if err == nil || !errors.Is(err, ErrInsufficientText) || !e.retry {
		return report, err
	}

	e.logger.Debug("Retrying orientation detection in relaxed mode", "source", sourceID)
	return e.analyzer.Detect(ctx, img, true)
}

// FailureOf maps an error returned by Recognize to its failure reason
func FailureOf(err error) FailureReason {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrInsufficientText):
		return FailureInsufficientText
	case IsUnsupportedColorSpace(err):
		return FailureUnsupportedColorSpace
	case apperrors.HasCode(err, apperrors.ErrorDecodeFailed):
		return FailureDecode
	}
	return FailureNone
}

func emptyRecord(sourceID string, meta ImageMetadata, reason FailureReason) *Record {
	return &Record{
		SourceID: sourceID,
		Metadata: meta,
		Failure:  reason,
	}
}

func singleLine(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}
