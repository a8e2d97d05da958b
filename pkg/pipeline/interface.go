package pipeline

import (
	"context"
	"image"

	"github.com/lehigh-university-libraries/scribe/pkg/lines"
)

// Detector finds text fragments in a page image.
// An empty result means no text was found and is not an error.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]lines.Box, error)
}

// Recognizer turns a batch of line images into text.
// It must return one string per image, in the order received.
type Recognizer interface {
	RecognizeBatch(ctx context.Context, images []image.Image) ([]string, error)
}

// Fingerprinter is implemented by detectors and recognizers whose output
// depends on settings beyond their type, such as a model name or language hints
type Fingerprinter interface {
	Fingerprint() string
}

// DetectorFunc adapts a function to the Detector interface
type DetectorFunc func(ctx context.Context, img image.Image) ([]lines.Box, error)

// Detect calls f(ctx, img)
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]lines.Box, error) {
	return f(ctx, img)
}

// RecognizerFunc adapts a function to the Recognizer interface
type RecognizerFunc func(ctx context.Context, images []image.Image) ([]string, error)

// RecognizeBatch calls f(ctx, images)
func (f RecognizerFunc) RecognizeBatch(ctx context.Context, images []image.Image) ([]string, error) {
	return f(ctx, images)
}

// IndexedCrop is a line image tagged with its top-to-bottom position on the page
type IndexedCrop struct {
	Index int
	Image image.Image
}

// ResultMap maps a line's original index to its recognized text
type ResultMap map[int]string
