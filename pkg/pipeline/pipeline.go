package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/scribe/pkg/imageprep"
	"github.com/lehigh-university-libraries/scribe/pkg/lines"
)

// NoTextFound is the document text returned when detection finds nothing
const NoTextFound = "No text found."

// ErrDecodeImage is returned when uploaded bytes are not a readable image
var ErrDecodeImage = errors.New("cannot decode image")

// Document is the transcription of one page
type Document struct {
	Text          string
	Lines         []string
	Regions       []lines.Region
	Width, Height int
	NoText        bool
	FailedBatches int
}

// Pipeline detects text lines on a page and recognizes them in reading order.
// It keeps no per-request state, so one Pipeline may serve concurrent calls
// when its Detector and Recognizer allow it.
type Pipeline struct {
	detector     Detector
	recognizer   Recognizer
	batchSize    int
	padding      int
	maxDimension int
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithBatchSize sets how many line crops go to the recognizer per call
func WithBatchSize(n int) Option {
	return func(p *Pipeline) { p.batchSize = n }
}

// WithPadding sets the margin added around each line crop
func WithPadding(px int) Option {
	return func(p *Pipeline) { p.padding = px }
}

// WithMaxDimension sets the longest page side kept before detection
func WithMaxDimension(px int) Option {
	return func(p *Pipeline) { p.maxDimension = px }
}

// New creates a pipeline around a detector and a recognizer
func New(detector Detector, recognizer Recognizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector:     detector,
		recognizer:   recognizer,
		batchSize:    DefaultBatchSize,
		padding:      lines.DefaultPadding,
		maxDimension: imageprep.DefaultMaxDimension,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fingerprint identifies the settings that change a pipeline's output
func (p *Pipeline) Fingerprint() string {
	return fmt.Sprintf("%s|%s|b%d/p%d/m%d", describe(p.detector), describe(p.recognizer), p.batchSize, p.padding, p.maxDimension)
}

// describe prefers a stage's own fingerprint and falls back to its type
func describe(stage any) string {
	if f, ok := stage.(Fingerprinter); ok {
		return fmt.Sprintf("%T(%s)", stage, f.Fingerprint())
	}
	return fmt.Sprintf("%T", stage)
}

// TranscribeBytes decodes and normalizes an uploaded image, then transcribes it
func (p *Pipeline) TranscribeBytes(ctx context.Context, data []byte) (Document, error) {
	img, err := imageprep.Load(data, p.maxDimension)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrDecodeImage, err)
	}
	return p.Transcribe(ctx, img)
}

// Transcribe runs detection once, then recognizes the page's lines batch by
// batch. Detection errors are returned; recognition failures only blank the
// affected lines.
func (p *Pipeline) Transcribe(ctx context.Context, img image.Image) (Document, error) {
	start := time.Now()
	b := img.Bounds()

	boxes, err := p.detector.Detect(ctx, img)
	if err != nil {
		return Document{}, fmt.Errorf("failed to detect text: %w", err)
	}
	boxes = validBoxes(boxes, b.Dx(), b.Dy(), p.padding)
	slog.Debug("Text detection completed", "box_count", len(boxes), "duration_ms", time.Since(start).Milliseconds())

	if len(boxes) == 0 {
		slog.Info("No text found", "image_size", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()))
		return Document{Text: NoTextFound, NoText: true, Width: b.Dx(), Height: b.Dy()}, nil
	}

	regions := lines.Group(boxes)
	slog.Info("Grouped boxes into lines", "box_count", len(boxes), "line_count", len(regions))

	crops := make([]IndexedCrop, len(regions))
	for i, r := range regions {
		crops[i] = IndexedCrop{Index: i, Image: lines.Crop(img, r, p.padding)}
	}

	scheduler := Scheduler{BatchSize: p.batchSize, Recognizer: p.recognizer}
	results, stats := scheduler.Run(ctx, crops)

	texts := Assemble(results, len(regions))
	slog.Info("Transcription completed",
		"line_count", len(regions),
		"batches", stats.Batches,
		"failed_batches", stats.FailedBatches,
		"duration_ms", time.Since(start).Milliseconds())

	return Document{
		Text:          Join(texts),
		Lines:         texts,
		Regions:       regions,
		Width:         b.Dx(),
		Height:        b.Dy(),
		FailedBatches: stats.FailedBatches,
	}, nil
}

// validBoxes drops degenerate boxes and boxes whose padded crop would be
// empty because they lie outside the page
func validBoxes(boxes []lines.Box, width, height, padding int) []lines.Box {
	valid := boxes[:0:0]
	for _, box := range boxes {
		if !box.Valid() || lines.Region(box).Expand(padding, width, height).Empty() {
			continue
		}
		valid = append(valid, box)
	}
	if dropped := len(boxes) - len(valid); dropped > 0 {
		slog.Debug("Dropped unusable boxes", "count", dropped)
	}
	return valid
}
