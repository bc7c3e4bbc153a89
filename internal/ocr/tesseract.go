/**
 * Tesseract OCR - orientation detection and text recognition
 *
 * Each call creates its own gosseract client, so a TesseractOCR value can be
 * shared by concurrent workers.
 */

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractOCR implements OrientationAnalyzer and TextRecognizer with libtesseract
type TesseractOCR struct {
	tessdataPrefix string
	language       string
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	TessdataPrefix string
	Language       string
}

// NewTesseractOCR creates a new Tesseract OCR instance
func NewTesseractOCR(cfg *TesseractConfig) *TesseractOCR {
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}

	return &TesseractOCR{
		tessdataPrefix: cfg.TessdataPrefix,
		language:       lang,
	}
}

func (t *TesseractOCR) newClient(language string) (*gosseract.Client, error) {
	client := gosseract.NewClient()

	if t.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.tessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}

	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set language %s: %w", language, err)
	}

	return client, nil
}

// Detect runs an orientation and script detection pass. With relaxed set the
// detector accepts images with as few as five characters.
func (t *TesseractOCR) Detect(ctx context.Context, img image.Image, relaxed bool) (OrientationReport, error) {
	if err := ctx.Err(); err != nil {
		return OrientationReport{}, err
	}

	data, err := encodePNG(img)
	if err != nil {
		return OrientationReport{}, err
	}

	client, err := t.newClient("osd")
	if err != nil {
		return OrientationReport{}, err
	}
	defer client.Close()

	if err := client.SetPageSegMode(gosseract.PSM_OSD_ONLY); err != nil {
		return OrientationReport{}, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	if relaxed {
		if err := client.SetVariable("min_characters_to_try", "5"); err != nil {
			return OrientationReport{}, fmt.Errorf("failed to relax character threshold: %w", err)
		}
	}

	if err := client.SetImageFromBytes(data); err != nil {
		return OrientationReport{}, fmt.Errorf("failed to set image: %w", err)
	}

	orientDeg, orientConf, script, scriptConf, err := client.DetectOrientationScript()
	if err != nil {
		if isSetupFailure(err) {
			return OrientationReport{}, fmt.Errorf("orientation detection failed: %w", err)
		}
		return OrientationReport{}, fmt.Errorf("%w: %v", ErrInsufficientText, err)
	}

	// orientDeg is the text's counter-clockwise orientation; the detected
	// rotation is the clockwise turn that makes the page upright.
	rotation := (360 - orientDeg) % 360

	return NewOrientationReport(rotation, float64(orientConf), script, float64(scriptConf)), nil
}

// Recognize extracts text from an already normalized image
func (t *TesseractOCR) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	client, err := t.newClient(t.language)
	if err != nil {
		return "", err
	}
	defer client.Close()

	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return text, nil
}

// isSetupFailure separates missing language data from a sparse-text refusal
func isSetupFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "tessdata") || strings.Contains(msg, "init")
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
