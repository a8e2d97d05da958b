package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"
)

// DefaultBatchSize is the number of line crops sent to the recognizer per call
const DefaultBatchSize = 4

// Stats summarizes one scheduler run
type Stats struct {
	Batches       int
	FailedBatches int
}

// Scheduler feeds crops to a Recognizer in width-sorted fixed-size batches
// and attributes every result back to the crop's original index.
type Scheduler struct {
	BatchSize  int
	Recognizer Recognizer
}

// Run recognizes every crop exactly once. Batches run one at a time.
// A batch whose recognizer call fails or panics yields an empty string
// for each of its crops and the remaining batches still run.
func (s Scheduler) Run(ctx context.Context, crops []IndexedCrop) (ResultMap, Stats) {
	results := make(ResultMap, len(crops))
	var stats Stats

	sorted := make([]IndexedCrop, len(crops))
	copy(sorted, crops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Image.Bounds().Dx() > sorted[j].Image.Bounds().Dx()
	})

	for i, chunk := range Chunk(sorted, s.batchSize()) {
		stats.Batches++
		images := make([]image.Image, len(chunk))
		for j, c := range chunk {
			images[j] = c.Image
		}

		slog.Debug("Recognizing batch", "batch", i+1, "size", len(chunk))
		texts, err := s.recognize(ctx, images)
		if err != nil {
			stats.FailedBatches++
			slog.Warn("Batch recognition failed, using empty text", "batch", i+1, "size", len(chunk), "err", err)
			for _, c := range chunk {
				results[c.Index] = ""
			}
			continue
		}

		if len(texts) != len(chunk) {
			slog.Warn("Recognizer returned unexpected result count", "batch", i+1, "want", len(chunk), "got", len(texts))
		}
		for j, c := range chunk {
			if j >= len(texts) {
				break
			}
			results[c.Index] = texts[j]
		}
	}

	return results, stats
}

func (s Scheduler) batchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

func (s Scheduler) recognize(ctx context.Context, images []image.Image) (texts []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			texts, err = nil, fmt.Errorf("recognizer panic: %v", r)
		}
	}()
	return s.Recognizer.RecognizeBatch(ctx, images)
}

// Chunk splits items into consecutive slices of at most size elements.
// The last slice may be shorter.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
