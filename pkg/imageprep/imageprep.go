// Package imageprep decodes uploaded page photos into the pixel form the
// recognition pipeline expects.
package imageprep

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxDimension bounds the longest side of a page before detection
const DefaultMaxDimension = 1280

// Decode reads an encoded image and applies its EXIF orientation
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Normalize flattens transparency onto white and shrinks the image so that
// neither side exceeds maxDim, keeping the aspect ratio. Smaller images keep
// their size. A maxDim of zero or less disables resizing.
func Normalize(img image.Image, maxDim int) *image.NRGBA {
	b := img.Bounds()
	flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), img, image.Pt(0, 0), 1.0)

	if maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim) {
		return flat
	}
	return imaging.Fit(flat, maxDim, maxDim, imaging.Lanczos)
}

// Load decodes data and normalizes it for detection
func Load(data []byte, maxDim int) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode image: empty input")
	}
	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return Normalize(img, maxDim), nil
}

// EncodePNG encodes img as PNG
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
