package lines

import (
	"math"
	"sort"
)

// SameLineFactor scales a box's own height into the maximum vertical
// distance its center may sit from the current line's center.
const SameLineFactor = 0.6

// Group clusters boxes into text lines ordered top to bottom.
//
// Boxes are visited once in order of vertical center. A box joins the
// current line while its center lies within SameLineFactor of its own
// height from the center of the box that opened the line; otherwise it
// opens a new line. Lines are never revisited, so vertically interleaved
// layouts (skewed or multi-column pages) are not separated.
func Group(boxes []Box) []Region {
	if len(boxes) == 0 {
		return nil
	}

	sorted := make([]Box, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CenterY() < sorted[j].CenterY()
	})

	var regions []Region
	current := []Box{sorted[0]}
	lineCenter := sorted[0].CenterY()

	for _, box := range sorted[1:] {
		if sameLine(lineCenter, box) {
			current = append(current, box)
			continue
		}
		regions = append(regions, mergeBoxes(current))
		current = []Box{box}
		lineCenter = box.CenterY()
	}
	regions = append(regions, mergeBoxes(current))

	return regions
}

func sameLine(lineCenter float64, box Box) bool {
	return math.Abs(box.CenterY()-lineCenter) < float64(box.Height())*SameLineFactor
}

func mergeBoxes(boxes []Box) Region {
	merged := Region(boxes[0])
	for _, b := range boxes[1:] {
		merged.XMin = min(merged.XMin, b.XMin)
		merged.YMin = min(merged.YMin, b.YMin)
		merged.XMax = max(merged.XMax, b.XMax)
		merged.YMax = max(merged.YMax, b.YMax)
	}
	return merged
}
