// Package config reads scribe settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Detector names
const (
	DetectorComponents = "components"
	DetectorTesseract  = "tesseract"
	DetectorVision     = "vision"
)

// Recognizer names
const (
	RecognizerProvider  = "provider"
	RecognizerTesseract = "tesseract"
)

// Config holds everything the CLI and server need to build a pipeline
type Config struct {
	Host string
	Port string

	Detector    string
	Recognizer  string
	Provider    string
	Model       string
	Languages   []string
	Temperature float64

	BatchSize    int
	Padding      int
	MaxDimension int

	DatasetDir  string
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	MaxUploadBytes int64
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           "8000",
		Detector:       DetectorComponents,
		Recognizer:     RecognizerProvider,
		Provider:       "ollama",
		BatchSize:      4,
		Padding:        10,
		MaxDimension:   1280,
		DatasetDir:     "dataset",
		CacheTTL:       24 * time.Hour,
		MaxUploadBytes: 20 << 20,
	}
}

// Load applies SCRIBE_* environment variables on top of Default
func Load() (Config, error) {
	c := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	str("SCRIBE_HOST", &c.Host)
	str("SCRIBE_PORT", &c.Port)
	str("SCRIBE_DETECTOR", &c.Detector)
	str("SCRIBE_RECOGNIZER", &c.Recognizer)
	str("SCRIBE_PROVIDER", &c.Provider)
	str("SCRIBE_MODEL", &c.Model)
	str("SCRIBE_DATASET_DIR", &c.DatasetDir)
	str("SCRIBE_DATABASE_URL", &c.DatabaseURL)
	str("SCRIBE_REDIS_URL", &c.RedisURL)
	integer("SCRIBE_BATCH_SIZE", &c.BatchSize)
	integer("SCRIBE_PADDING", &c.Padding)
	integer("SCRIBE_MAX_DIMENSION", &c.MaxDimension)

	if v := os.Getenv("SCRIBE_LANGUAGES"); v != "" {
		c.Languages = SplitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("SCRIBE_TEMPERATURE")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCRIBE_TEMPERATURE: %w", err))
		} else {
			c.Temperature = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("SCRIBE_CACHE_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCRIBE_CACHE_TTL: %w", err))
		} else {
			c.CacheTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("SCRIBE_MAX_UPLOAD_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCRIBE_MAX_UPLOAD_BYTES: %w", err))
		} else {
			c.MaxUploadBytes = n
		}
	}

	if err := errors.Join(errs...); err != nil {
		return c, fmt.Errorf("invalid environment: %w", err)
	}
	return c, nil
}

// Validate reports settings no pipeline could run with
func (c Config) Validate() error {
	var errs []error

	switch c.Detector {
	case DetectorComponents, DetectorTesseract, DetectorVision:
	default:
		errs = append(errs, fmt.Errorf("unknown detector %q", c.Detector))
	}
	switch c.Recognizer {
	case RecognizerProvider, RecognizerTesseract:
	default:
		errs = append(errs, fmt.Errorf("unknown recognizer %q", c.Recognizer))
	}
	if c.Recognizer == RecognizerProvider && c.Provider == "" {
		errs = append(errs, errors.New("provider is required for the provider recognizer"))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize))
	}
	if c.Padding < 0 {
		errs = append(errs, fmt.Errorf("padding must not be negative, got %d", c.Padding))
	}
	if c.MaxDimension < 0 {
		errs = append(errs, fmt.Errorf("max dimension must not be negative, got %d", c.MaxDimension))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be between 0 and 2, got %g", c.Temperature))
	}
	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("cache ttl must not be negative, got %s", c.CacheTTL))
	}

	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// SplitList splits a comma separated list, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
