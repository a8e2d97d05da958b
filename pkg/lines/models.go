package lines

import "image"

// Box is a detected text fragment in pixel coordinates
type Box struct {
	XMin, XMax, YMin, YMax int
}

// Region is a merged rectangle covering one full text line
type Region Box

// CenterY returns the vertical center of the box
func (b Box) CenterY() float64 {
	return float64(b.YMin+b.YMax) / 2
}

// Height returns the vertical extent of the box
func (b Box) Height() int {
	return b.YMax - b.YMin
}

// Width returns the horizontal extent of the box
func (b Box) Width() int {
	return b.XMax - b.XMin
}

// Valid reports whether the box has positive width and height
func (b Box) Valid() bool {
	return b.XMin < b.XMax && b.YMin < b.YMax
}

// Rect converts the region into an image rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.XMin, r.YMin, r.XMax, r.YMax)
}

// Width returns the horizontal extent of the region
func (r Region) Width() int {
	return r.XMax - r.XMin
}

// Height returns the vertical extent of the region
func (r Region) Height() int {
	return r.YMax - r.YMin
}

// FromRect builds a Box from an image rectangle
func FromRect(r image.Rectangle) Box {
	r = r.Canon()
	return Box{XMin: r.Min.X, XMax: r.Max.X, YMin: r.Min.Y, YMax: r.Max.Y}
}
