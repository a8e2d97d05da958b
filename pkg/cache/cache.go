// Package cache memoizes page transcriptions by image content so repeated
// uploads of the same page skip detection and recognition.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/scribe/pkg/pipeline"
)

// Source produces transcriptions; *pipeline.Pipeline satisfies it
type Source interface {
	TranscribeBytes(ctx context.Context, data []byte) (pipeline.Document, error)
	Fingerprint() string
}

// Backend stores encoded documents by key
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Transcriber serves cached documents and falls back to its Source.
// Backend failures are logged and never fail a request.
type Transcriber struct {
	source  Source
	backend Backend
	ttl     time.Duration
}

// New wraps source with a cache kept in backend for ttl
func New(source Source, backend Backend, ttl time.Duration) *Transcriber {
	return &Transcriber{source: source, backend: backend, ttl: ttl}
}

// Fingerprint forwards the source fingerprint
func (t *Transcriber) Fingerprint() string {
	return t.source.Fingerprint()
}

// Key derives the cache key for data under the source's current settings
func (t *Transcriber) Key(data []byte) string {
	h := sha256.New()
	h.Write([]byte(t.source.Fingerprint()))
	h.Write([]byte{0})
	h.Write(data)
	return "scribe:doc:" + hex.EncodeToString(h.Sum(nil))
}

// TranscribeBytes returns a cached document or transcribes and stores it.
// Pages without text and pages with failed batches are never stored.
func (t *Transcriber) TranscribeBytes(ctx context.Context, data []byte) (pipeline.Document, error) {
	key := t.Key(data)

	if cached, ok, err := t.backend.Get(ctx, key); err != nil {
		slog.Warn("Cache lookup failed", "error", err)
	} else if ok {
		var doc pipeline.Document
		if err := json.Unmarshal(cached, &doc); err == nil {
			slog.Debug("Cache hit", "key", key)
			return doc, nil
		}
		slog.Warn("Discarding unreadable cache entry", "key", key)
	}

	doc, err := t.source.TranscribeBytes(ctx, data)
	if err != nil {
		return doc, err
	}
	if doc.NoText || doc.FailedBatches > 0 {
		return doc, nil
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		slog.Warn("Cannot encode document for cache", "error", err)
		return doc, nil
	}
	if err := t.backend.Set(ctx, key, encoded, t.ttl); err != nil {
		slog.Warn("Cache store failed", "error", err)
	}
	return doc, nil
}
