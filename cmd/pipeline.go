package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/scribe/internal/config"
	"github.com/lehigh-university-libraries/scribe/pkg/claude"
	"github.com/lehigh-university-libraries/scribe/pkg/components"
	"github.com/lehigh-university-libraries/scribe/pkg/gemini"
	"github.com/lehigh-university-libraries/scribe/pkg/ollama"
	"github.com/lehigh-university-libraries/scribe/pkg/openai"
	"github.com/lehigh-university-libraries/scribe/pkg/pipeline"
	"github.com/lehigh-university-libraries/scribe/pkg/providers"
	"github.com/lehigh-university-libraries/scribe/pkg/tesseract"
	"github.com/lehigh-university-libraries/scribe/pkg/vision"
	"github.com/spf13/cobra"
)

// addPipelineFlags registers the flags shared by every command that runs the pipeline
func addPipelineFlags(cmd *cobra.Command) {
	d := config.Default()
	f := cmd.Flags()
	f.String("detector", d.Detector, "Line detector: components, tesseract, vision")
	f.String("recognizer", d.Recognizer, "Line recognizer: provider, tesseract")
	f.String("provider", d.Provider, "Provider to use: openai, claude, gemini, ollama")
	f.String("model", "", "Model to use (uses provider default if not specified)")
	f.StringSlice("languages", nil, "Language hints for tesseract and vision, e.g. eng,rus")
	f.Int("batch-size", d.BatchSize, "Number of line crops sent to the recognizer at once")
	f.Int("padding", d.Padding, "Pixels of margin around each line crop")
	f.Int("max-dimension", d.MaxDimension, "Longest image side kept before detection (0 disables resizing)")
	f.Float64P("temperature", "t", d.Temperature, "Temperature for LLM")
}

// resolveConfig layers explicitly set flags over SCRIBE_* environment settings
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	c, err := config.Load()
	if err != nil {
		return c, err
	}

	f := cmd.Flags()
	var errs []error
	override := func(name string, apply func() error) {
		if f.Lookup(name) == nil || !f.Changed(name) {
			return
		}
		if err := apply(); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", name, err))
		}
	}

	override("detector", func() (err error) { c.Detector, err = f.GetString("detector"); return })
	override("recognizer", func() (err error) { c.Recognizer, err = f.GetString("recognizer"); return })
	override("provider", func() (err error) { c.Provider, err = f.GetString("provider"); return })
	override("model", func() (err error) { c.Model, err = f.GetString("model"); return })
	override("languages", func() (err error) { c.Languages, err = f.GetStringSlice("languages"); return })
	override("batch-size", func() (err error) { c.BatchSize, err = f.GetInt("batch-size"); return })
	override("padding", func() (err error) { c.Padding, err = f.GetInt("padding"); return })
	override("max-dimension", func() (err error) { c.MaxDimension, err = f.GetInt("max-dimension"); return })
	override("temperature", func() (err error) { c.Temperature, err = f.GetFloat64("temperature"); return })
	override("host", func() (err error) { c.Host, err = f.GetString("host"); return })
	override("port", func() (err error) { c.Port, err = f.GetString("port"); return })
	override("dataset", func() (err error) { c.DatasetDir, err = f.GetString("dataset"); return })
	override("database-url", func() (err error) { c.DatabaseURL, err = f.GetString("database-url"); return })
	override("redis-url", func() (err error) { c.RedisURL, err = f.GetString("redis-url"); return })
	override("cache-ttl", func() (err error) { c.CacheTTL, err = f.GetDuration("cache-ttl"); return })
	override("max-upload-bytes", func() (err error) { c.MaxUploadBytes, err = f.GetInt64("max-upload-bytes"); return })

	if err := errors.Join(errs...); err != nil {
		return c, err
	}
	resolveModel(&c)
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// resolveModel fills in the provider's default model so the configuration
// names the model that actually runs
func resolveModel(c *config.Config) {
	if c.Recognizer == config.RecognizerProvider && c.Model == "" {
		c.Model = getDefaultModel(strings.ToLower(c.Provider))
	}
}

func newRegistry() *providers.Registry {
	return providers.NewRegistry(
		openai.New(),
		claude.New(),
		gemini.New(),
		ollama.New(),
	)
}

// built is a pipeline plus the resources its stages hold open
type built struct {
	pipeline   *pipeline.Pipeline
	recognizer pipeline.Recognizer
	closers    []func() error
}

// Close releases detector and recognizer resources
func (b *built) Close() {
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil {
			slog.Warn("Failed to release pipeline resource", "err", err)
		}
	}
}

// Usage reports provider token usage when the recognizer tracks it
func (b *built) Usage() (providers.UsageInfo, bool) {
	r, ok := b.recognizer.(*providers.Recognizer)
	if !ok {
		return providers.UsageInfo{}, false
	}
	return r.Usage(), true
}

func buildPipeline(ctx context.Context, c config.Config) (*built, error) {
	b := &built{}

	detector, err := newDetector(ctx, c, b)
	if err != nil {
		return nil, err
	}
	recognizer, err := newRecognizer(c)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.recognizer = recognizer

	b.pipeline = pipeline.New(detector, recognizer,
		pipeline.WithBatchSize(c.BatchSize),
		pipeline.WithPadding(c.Padding),
		pipeline.WithMaxDimension(c.MaxDimension),
	)
	slog.Info("Pipeline ready",
		"detector", c.Detector,
		"recognizer", c.Recognizer,
		"provider", c.Provider,
		"model", c.Model,
		"batch_size", c.BatchSize)
	return b, nil
}

func newDetector(ctx context.Context, c config.Config, b *built) (pipeline.Detector, error) {
	switch c.Detector {
	case config.DetectorComponents:
		return components.New(), nil
	case config.DetectorTesseract:
		return tesseract.NewDetector(c.Languages...), nil
	case config.DetectorVision:
		d, err := vision.NewDetector(ctx, c.Languages...)
		if err != nil {
			return nil, fmt.Errorf("failed to create vision detector: %w", err)
		}
		b.closers = append(b.closers, d.Close)
		return d, nil
	default:
		return nil, fmt.Errorf("unknown detector %q", c.Detector)
	}
}

func newRecognizer(c config.Config) (pipeline.Recognizer, error) {
	switch c.Recognizer {
	case config.RecognizerTesseract:
		return tesseract.NewRecognizer(c.Languages...), nil
	case config.RecognizerProvider:
		p, err := newRegistry().Get(c.Provider)
		if err != nil {
			return nil, err
		}
		model := c.Model
		if model == "" {
			model = getDefaultModel(p.Name())
		}
		r, err := providers.NewRecognizer(p, providers.Config{
			Provider:    p.Name(),
			Model:       model,
			Temperature: c.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("provider configuration validation failed: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown recognizer %q", c.Recognizer)
	}
}

func getDefaultModel(providerName string) string {
	switch providerName {
	case "openai":
		if model := os.Getenv("OPENAI_MODEL"); model != "" {
			return model
		}
		return "gpt-4o"
	case "claude":
		if model := os.Getenv("CLAUDE_MODEL"); model != "" {
			return model
		}
		return "claude-sonnet-4-5"
	case "gemini":
		if model := os.Getenv("GEMINI_MODEL"); model != "" {
			return model
		}
		return "gemini-2.0-flash"
	case "ollama":
		if model := os.Getenv("OLLAMA_MODEL"); model != "" {
			return model
		}
		return "mistral-small3.2:24b"
	default:
		return ""
	}
}
