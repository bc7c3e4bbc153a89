package ocr

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Normalizer prepares an image for recognition: auto-contrast, posterize,
// then grayscale. The result is only used for the current OCR call.
type Normalizer struct {
	Bits int
}

// Normalize applies the three transforms in their fixed order
func (n Normalizer) Normalize(img image.Image) *image.NRGBA {
	out := AutoContrast(img)
	out = Posterize(out, n.Bits)
	return imaging.Grayscale(out)
}

// AutoContrast stretches every color channel so its darkest value maps to 0
// and its lightest to 255. Channels with a single value are left unchanged.
func AutoContrast(img image.Image) *image.NRGBA {
	src := imaging.Clone(img)

	lo := [3]int{255, 255, 255}
	hi := [3]int{0, 0, 0}
	for i := 0; i+3 < len(src.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := int(src.Pix[i+c])
			if v < lo[c] {
				lo[c] = v
			}
			if v > hi[c] {
				hi[c] = v
			}
		}
	}

	var luts [3][256]uint8
	for c := 0; c < 3; c++ {
		luts[c] = contrastLUT(lo[c], hi[c])
	}

	return imaging.AdjustFunc(src, func(px color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: luts[0][px.R],
			G: luts[1][px.G],
			B: luts[2][px.B],
			A: px.A,
		}
	})
}

func contrastLUT(lo, hi int) [256]uint8 {
	var lut [256]uint8
	if hi <= lo {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	for i := range lut {
		v := (i - lo) * 255 / (hi - lo)
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		lut[i] = uint8(v)
	}
	return lut
}

// Posterize keeps the top bits of every color channel
func Posterize(img image.Image, bits int) *image.NRGBA {
	if bits < 1 {
		bits = 1
	}
	if bits > 8 {
		bits = 8
	}
	mask := ^uint8((1 << (8 - bits)) - 1)

	return imaging.AdjustFunc(img, func(px color.NRGBA) color.NRGBA {
		return color.NRGBA{R: px.R & mask, G: px.G & mask, B: px.B & mask, A: px.A}
	})
}

// Rotate turns img counter-clockwise by degrees, expanding the canvas as needed
func Rotate(img image.Image, degrees int) image.Image {
	switch ((degrees % 360) + 360) % 360 {
	case 0:
		return img
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return imaging.Rotate(img, float64(degrees), color.White)
	}
}
