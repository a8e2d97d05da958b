package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/lehigh-university-libraries/scribe/pkg/imageprep"
)

// Recognizer turns a vision Provider into a line recognizer. Each crop in a
// batch becomes one provider call; the first failure fails the batch.
type Recognizer struct {
	provider Provider
	config   Config

	mu    sync.Mutex
	usage UsageInfo
}

// NewRecognizer validates config against the provider and fills in the
// single-line prompt when none is set
func NewRecognizer(provider Provider, config Config) (*Recognizer, error) {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if err := provider.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid %s configuration: %w", provider.Name(), err)
	}
	return &Recognizer{provider: provider, config: config}, nil
}

// Fingerprint names the provider settings that shape its transcriptions
func (r *Recognizer) Fingerprint() string {
	prompt := sha256.Sum256([]byte(r.config.Prompt))
	return fmt.Sprintf("%s/model=%s/temperature=%g/base=%s/prompt=%s",
		r.provider.Name(), r.config.Model, r.config.Temperature, r.config.BaseURL, hex.EncodeToString(prompt[:8]))
}

// RecognizeBatch returns one transcription per image, in order
func (r *Recognizer) RecognizeBatch(ctx context.Context, images []image.Image) ([]string, error) {
	texts := make([]string, 0, len(images))
	for i, crop := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := imageprep.EncodePNG(crop)
		if err != nil {
			return nil, err
		}

		text, usage, err := r.provider.ExtractText(ctx, r.config, Image{Data: data, MimeType: "image/png"})
		if err != nil {
			return nil, fmt.Errorf("%s failed on line %d: %w", r.provider.Name(), i, err)
		}
		r.addUsage(usage)
		texts = append(texts, SingleLine(text))
	}

	slog.Debug("Recognized batch", "provider", r.provider.Name(), "model", r.config.Model, "lines", len(texts))
	return texts, nil
}

func (r *Recognizer) addUsage(u UsageInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage.Add(u)
}

// Usage returns the tokens spent since the recognizer was created
func (r *Recognizer) Usage() UsageInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}
