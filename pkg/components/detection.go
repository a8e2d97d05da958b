// Package components finds word boxes on a page with a connected-component
// search over a binarized copy of the image. It runs entirely in process and
// is the default detector when no OCR service is configured.
package components

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/lehigh-university-libraries/scribe/pkg/lines"
)

const (
	// DefaultThreshold is the gray level at or below which a pixel counts as ink
	DefaultThreshold = 191
	// DefaultMinWidth and DefaultMinHeight drop specks smaller than a glyph
	DefaultMinWidth  = 8
	DefaultMinHeight = 10
)

// Detector implements pipeline.Detector without external dependencies
type Detector struct {
	Threshold uint8
	MinWidth  int
	MinHeight int
	// Contrast and Sharpen are handed to imaging before binarization
	Contrast float64
	Sharpen  float64
}

// New returns a detector tuned for scanned handwriting
func New() *Detector {
	return &Detector{
		Threshold: DefaultThreshold,
		MinWidth:  DefaultMinWidth,
		MinHeight: DefaultMinHeight,
		Contrast:  20,
		Sharpen:   1,
	}
}

// Fingerprint names the binarization and size filter settings
func (d *Detector) Fingerprint() string {
	return fmt.Sprintf("t%d/w%d/h%d/c%g/s%g", d.Threshold, d.MinWidth, d.MinHeight, d.Contrast, d.Sharpen)
}

// Detect returns word boxes in page coordinates
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]lines.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mask := d.binarize(img)
	components := d.findComponents(ctx, mask)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := mergeNearbyComponents(components)

	offset := img.Bounds().Min
	boxes := make([]lines.Box, len(words))
	for i, w := range words {
		boxes[i] = lines.Box{
			XMin: w.XMin + offset.X,
			XMax: w.XMax + offset.X,
			YMin: w.YMin + offset.Y,
			YMax: w.YMax + offset.Y,
		}
	}

	slog.Debug("Component detection completed",
		"component_count", len(components),
		"word_count", len(boxes),
		"image_size", img.Bounds().Size().String())
	return boxes, nil
}

// inkMask marks the pixels treated as text
type inkMask struct {
	width, height int
	ink           []bool
}

func (m *inkMask) at(x, y int) bool {
	return m.ink[y*m.width+x]
}

func (d *Detector) binarize(img image.Image) *inkMask {
	gray := imaging.Grayscale(img)
	if d.Contrast != 0 {
		gray = imaging.AdjustContrast(gray, d.Contrast)
	}
	if d.Sharpen > 0 {
		gray = imaging.Sharpen(gray, d.Sharpen)
	}

	b := gray.Bounds()
	m := &inkMask{width: b.Dx(), height: b.Dy(), ink: make([]bool, b.Dx()*b.Dy())}
	for y := 0; y < m.height; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < m.width; x++ {
			m.ink[y*m.width+x] = isTextPixel(row[x*4], d.Threshold)
		}
	}
	return m
}

func isTextPixel(gray, threshold uint8) bool {
	return gray <= threshold
}

func (d *Detector) findComponents(ctx context.Context, m *inkMask) []lines.Box {
	visited := make([]bool, len(m.ink))
	var components []lines.Box
	var stack []image.Point

	for y := 0; y < m.height; y++ {
		if y%256 == 0 && ctx.Err() != nil {
			return nil
		}
		for x := 0; x < m.width; x++ {
			if visited[y*m.width+x] || !m.at(x, y) {
				continue
			}

			box := lines.Box{XMin: x, XMax: x, YMin: y, YMax: y}
			visited[y*m.width+x] = true
			stack = append(stack[:0], image.Pt(x, y))

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]

				box.XMin = min(box.XMin, p.X)
				box.XMax = max(box.XMax, p.X)
				box.YMin = min(box.YMin, p.Y)
				box.YMax = max(box.YMax, p.Y)

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || nx >= m.width || ny < 0 || ny >= m.height {
							continue
						}
						i := ny*m.width + nx
						if visited[i] || !m.ink[i] {
							continue
						}
						visited[i] = true
						stack = append(stack, image.Pt(nx, ny))
					}
				}
			}

			// pixel extents are inclusive, boxes are half-open
			box.XMax++
			box.YMax++
			if d.isValidWordSize(box.Width(), box.Height(), m.width, m.height) {
				components = append(components, box)
			}
		}
	}

	return components
}

func (d *Detector) isValidWordSize(w, h, imgWidth, imgHeight int) bool {
	maxWidth := imgWidth / 2
	maxHeight := imgHeight / 5
	return w >= d.MinWidth && h >= d.MinHeight && w <= maxWidth && h <= maxHeight
}

// mergeNearbyComponents joins glyph components that sit side by side into words
func mergeNearbyComponents(components []lines.Box) []lines.Box {
	if len(components) <= 1 {
		return components
	}

	sort.SliceStable(components, func(i, j int) bool {
		if abs(components[i].YMin-components[j].YMin) < 10 {
			return components[i].XMin < components[j].XMin
		}
		return components[i].YMin < components[j].YMin
	})

	var merged []lines.Box
	current := components[0]
	for _, c := range components[1:] {
		if shouldMergeComponents(current, c) {
			current = mergeBoxes(current, c)
			continue
		}
		merged = append(merged, current)
		current = c
	}
	return append(merged, current)
}

func shouldMergeComponents(a, b lines.Box) bool {
	horizontalGap := b.XMin - a.XMax
	verticalOverlap := b.YMax >= a.YMin && b.YMin <= a.YMax
	maxGap := max(a.Height(), b.Height()) / 3
	return horizontalGap >= 0 && horizontalGap <= maxGap && verticalOverlap
}

func mergeBoxes(a, b lines.Box) lines.Box {
	return lines.Box{
		XMin: min(a.XMin, b.XMin),
		XMax: max(a.XMax, b.XMax),
		YMin: min(a.YMin, b.YMin),
		YMax: max(a.YMax, b.YMax),
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
