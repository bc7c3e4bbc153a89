package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperrors "github.com/minoad/docuparse/internal/errors"
)

// ErrUnsupportedColorSpace marks images whose color model cannot be decoded
var ErrUnsupportedColorSpace = errors.New("unsupported color space")

// Source is an image handed to the engine, either by path or already decoded
type Source struct {
	Path     string
	Data     []byte
	Image    image.Image
	Format   string
	Mode     string
	Info     map[string]interface{}
	Sequence int

	// Flatten converts the decoded image to opaque RGB before recognition
	Flatten bool

	// Err is returned by Load when the producer could not supply pixels
	Err error
}

// FromPath returns a Source that is decoded from disk on Load
func FromPath(path string) Source {
	return Source{Path: path}
}

// FromImage wraps an already decoded image
func FromImage(img image.Image, format string, info map[string]interface{}) Source {
	return Source{Image: img, Format: format, Info: info}
}

// FromBytes returns a Source decoded from encoded image bytes on Load
func FromBytes(data []byte, info map[string]interface{}) Source {
	return Source{Data: data, Info: info}
}

// Load decodes the source and describes it
func (s Source) Load() (image.Image, ImageMetadata, error) {
	meta := ImageMetadata{Format: s.Format, Mode: s.Mode, Info: map[string]interface{}{}}
	for k, v := range s.Info {
		meta.Info[k] = v
	}

	img := s.Image
	switch {
	case s.Err != nil:
		return nil, meta, s.Err
	case img != nil:
	case s.Data != nil:
		decoded, format, err := image.Decode(bytes.NewReader(s.Data))
		if err != nil {
			return nil, meta, err
		}
		img = decoded
		meta.Format = format
	case s.Path != "":
		f, err := os.Open(s.Path)
		if err != nil {
			return nil, meta, apperrors.NewFileIOError(s.Path, "open", err)
		}
		defer f.Close()

		decoded, format, err := image.Decode(f)
		if err != nil {
			return nil, meta, err
		}
		img = decoded
		meta.Format = format
	default:
		return nil, meta, fmt.Errorf("image source has neither a path, bytes nor pixels")
	}

	if s.Flatten && !IsRGB(img) {
		meta.Info["original_mode"] = ColorMode(img)
		img = ToRGB(img)
		meta.Mode = "RGB"
	}
	if meta.Mode == "" {
		meta.Mode = ColorMode(img)
	}
	bounds := img.Bounds()
	meta.Info["width"] = bounds.Dx()
	meta.Info["height"] = bounds.Dy()

	return img, meta, nil
}

// ColorMode names the color model of img using the usual short mode names
func ColorMode(img image.Image) string {
	switch img.(type) {
	case *image.Gray:
		return "L"
	case *image.Gray16:
		return "I;16"
	case *image.Alpha, *image.Alpha16:
		return "A"
	case *image.Paletted:
		return "P"
	case *image.CMYK:
		return "CMYK"
	case *image.YCbCr:
		return "YCbCr"
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return "RGBA"
	}
	return "RGB"
}

// ToRGB flattens img onto an opaque white canvas
func ToRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Over)
	return out
}

// IsRGB reports whether img already has an opaque three-channel model
func IsRGB(img image.Image) bool {
	switch v := img.(type) {
	case *image.YCbCr:
		return true
	case *image.RGBA:
		return v.Opaque()
	}
	return false
}

// IsUnsupportedColorSpace reports whether a decode error is about the image's color model
func IsUnsupportedColorSpace(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnsupportedColorSpace) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unsupported") {
		return false
	}
	for _, marker := range []string{"color space", "colorspace", "color model", "color type"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
