// Package tesseract adapts a local Tesseract install, through gosseract, to
// the pipeline's Detector and Recognizer roles.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/lehigh-university-libraries/scribe/pkg/imageprep"
	"github.com/lehigh-university-libraries/scribe/pkg/lines"
)

// DefaultLanguage is used when no language hints are configured
const DefaultLanguage = "eng"

// Detector finds word boxes with Tesseract's page layout analysis
type Detector struct {
	Languages []string
	// MinConfidence drops words Tesseract is less sure of, on a 0-100 scale
	MinConfidence float64

	clientFactory func() *gosseract.Client
}

// NewDetector returns a word detector for the given languages
func NewDetector(languages ...string) *Detector {
	return &Detector{Languages: languages, clientFactory: gosseract.NewClient}
}

// Fingerprint names the languages and segmentation mode used for detection
func (d *Detector) Fingerprint() string {
	return fmt.Sprintf("langs=%s/psm=%d/conf=%g", languageKey(d.Languages), gosseract.PSM_AUTO, d.MinConfidence)
}

// Detect returns the page's word boxes
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]lines.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := imageprep.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	c := newClient(d.clientFactory)
	defer c.Close()

	if err := configure(c, d.Languages, gosseract.PSM_AUTO); err != nil {
		return nil, err
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	found, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("failed to get word boxes: %w", err)
	}

	boxes := wordBoxes(found, img.Bounds().Min, d.MinConfidence)
	slog.Debug("Tesseract detection completed", "raw_count", len(found), "word_count", len(boxes))
	return boxes, nil
}

func wordBoxes(found []gosseract.BoundingBox, offset image.Point, minConfidence float64) []lines.Box {
	boxes := make([]lines.Box, 0, len(found))
	for _, b := range found {
		if strings.TrimSpace(b.Word) == "" || b.Confidence < minConfidence {
			continue
		}
		boxes = append(boxes, lines.FromRect(b.Box.Add(offset)))
	}
	return boxes
}

// Recognizer reads one text line per image
type Recognizer struct {
	Languages []string

	clientFactory func() *gosseract.Client
}

// NewRecognizer returns a single-line recognizer for the given languages
func NewRecognizer(languages ...string) *Recognizer {
	return &Recognizer{Languages: languages, clientFactory: gosseract.NewClient}
}

// Fingerprint names the languages and segmentation mode used for recognition
func (r *Recognizer) Fingerprint() string {
	return fmt.Sprintf("langs=%s/psm=%d", languageKey(r.Languages), gosseract.PSM_SINGLE_LINE)
}

// RecognizeBatch reads each crop in order with one client for the whole batch
func (r *Recognizer) RecognizeBatch(ctx context.Context, images []image.Image) ([]string, error) {
	c := newClient(r.clientFactory)
	defer c.Close()

	if err := configure(c, r.Languages, gosseract.PSM_SINGLE_LINE); err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := imageprep.EncodePNG(img)
		if err != nil {
			return nil, err
		}
		if err := c.SetImageFromBytes(data); err != nil {
			return nil, fmt.Errorf("set image %d: %w", i, err)
		}
		text, err := c.Text()
		if err != nil {
			return nil, fmt.Errorf("recognize line %d: %w", i, err)
		}
		texts = append(texts, strings.TrimSpace(text))
	}
	return texts, nil
}

func newClient(factory func() *gosseract.Client) *gosseract.Client {
	if factory == nil {
		return gosseract.NewClient()
	}
	return factory()
}

func languageKey(languages []string) string {
	if len(languages) == 0 {
		return DefaultLanguage
	}
	return strings.Join(languages, "+")
}

func configure(c *gosseract.Client, languages []string, mode gosseract.PageSegMode) error {
	if len(languages) == 0 {
		languages = []string{DefaultLanguage}
	}
	if err := c.SetLanguage(languages...); err != nil {
		return fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetPageSegMode(mode); err != nil {
		return fmt.Errorf("set page segmentation mode: %w", err)
	}
	return nil
}
