// Package vision detects words with Google Cloud Vision document text
// detection. Credentials come from the environment the way every Google Cloud
// client resolves them (GOOGLE_APPLICATION_CREDENTIALS or workload identity).
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/lehigh-university-libraries/scribe/pkg/imageprep"
	"github.com/lehigh-university-libraries/scribe/pkg/lines"
)

// ErrEmptyResponse is returned when Vision answers without a result for the image
var ErrEmptyResponse = errors.New("vision returned no response")

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// Detector implements pipeline.Detector on top of the Vision API
type Detector struct {
	Languages []string

	client   *vision.ImageAnnotatorClient
	annotate annotateFunc
}

// NewDetector dials the Vision API
func NewDetector(ctx context.Context, languages ...string) (*Detector, error) {
	client, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	d := &Detector{Languages: languages, client: client}
	d.annotate = func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return client.BatchAnnotateImages(ctx, req)
	}
	return d, nil
}

// Close releases the underlying connection
func (d *Detector) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}

// Fingerprint names the language hints sent with every request
func (d *Detector) Fingerprint() string {
	return "langs=" + strings.Join(d.Languages, "+")
}

// Detect sends the page to Vision and returns one box per recognized word
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]lines.Box, error) {
	data, err := imageprep.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: data},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	}
	if len(d.Languages) > 0 {
		req.Requests[0].ImageContext = &visionpb.ImageContext{LanguageHints: d.Languages}
	}

	resp, err := d.annotate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision request failed: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, ErrEmptyResponse
	}
	r := resp.GetResponses()[0]
	if msg := r.GetError().GetMessage(); msg != "" {
		return nil, fmt.Errorf("vision error: %s", msg)
	}

	boxes := wordBoxes(r.GetFullTextAnnotation(), img.Bounds().Min)
	slog.Debug("Vision detection completed", "word_count", len(boxes))
	return boxes, nil
}

// wordBoxes flattens the page/block/paragraph/word hierarchy into word boxes
func wordBoxes(doc *visionpb.TextAnnotation, offset image.Point) []lines.Box {
	var boxes []lines.Box
	for _, page := range doc.GetPages() {
		for _, block := range page.GetBlocks() {
			for _, para := range block.GetParagraphs() {
				for _, word := range para.GetWords() {
					box, ok := polyBox(word.GetBoundingBox())
					if !ok {
						continue
					}
					box.XMin += offset.X
					box.XMax += offset.X
					box.YMin += offset.Y
					box.YMax += offset.Y
					boxes = append(boxes, box)
				}
			}
		}
	}
	return boxes
}

// polyBox reduces a bounding polygon to its axis-aligned extent
func polyBox(poly *visionpb.BoundingPoly) (lines.Box, bool) {
	vertices := poly.GetVertices()
	if len(vertices) == 0 {
		return lines.Box{}, false
	}
	box := lines.Box{
		XMin: int(vertices[0].GetX()), XMax: int(vertices[0].GetX()),
		YMin: int(vertices[0].GetY()), YMax: int(vertices[0].GetY()),
	}
	for _, v := range vertices[1:] {
		box.XMin = min(box.XMin, int(v.GetX()))
		box.XMax = max(box.XMax, int(v.GetX()))
		box.YMin = min(box.YMin, int(v.GetY()))
		box.YMax = max(box.YMax, int(v.GetY()))
	}
	return box, box.Valid()
}
