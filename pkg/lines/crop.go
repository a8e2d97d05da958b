package lines

import (
	"image"

	"github.com/disintegration/imaging"
)

// DefaultPadding is the margin in pixels added around every line before cropping
const DefaultPadding = 10

// Expand grows the region by padding on every side and clamps the result
// into [0,width] x [0,height].
func (r Region) Expand(padding, width, height int) image.Rectangle {
	return image.Rect(
		clamp(r.XMin-padding, 0, width),
		clamp(r.YMin-padding, 0, height),
		clamp(r.XMax+padding, 0, width),
		clamp(r.YMax+padding, 0, height),
	)
}

// Crop extracts the padded line region from img. Coordinates are relative
// to the image's top-left corner, whatever its bounds origin. The returned
// image always starts at (0,0).
func Crop(img image.Image, r Region, padding int) image.Image {
	b := img.Bounds()
	rect := r.Expand(padding, b.Dx(), b.Dy()).Add(b.Min)
	return imaging.Crop(img, rect)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
