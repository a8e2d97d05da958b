// Package feedback persists user-corrected transcriptions together with the
// image they describe, building a dataset for later retraining.
package feedback

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmptyText is returned when a correction has no text
	ErrEmptyText = errors.New("correct text is empty")
	// ErrEmptyImage is returned when a correction has no image
	ErrEmptyImage = errors.New("image is empty")
)

// Record is one stored correction
type Record struct {
	Filename  string
	Text      string
	CreatedAt time.Time
}

// Store appends corrections. Implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, image []byte, text string) (Record, error)
}

// Dataset reads corrections back for evaluation
type Dataset interface {
	Records(ctx context.Context) ([]Record, error)
	Image(ctx context.Context, filename string) ([]byte, error)
}

func validate(image []byte, text string) error {
	if len(image) == 0 {
		return ErrEmptyImage
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return nil
}

// newFilename names a stored image after a fresh UUID, keeping the extension
// of the uploaded format. Unknown formats are stored as .jpg.
func newFilename(image []byte) string {
	ext := ".jpg"
	switch http.DetectContentType(image) {
	case "image/png":
		ext = ".png"
	case "image/gif":
		ext = ".gif"
	case "image/webp":
		ext = ".webp"
	case "image/bmp":
		ext = ".bmp"
	}
	return uuid.New().String() + ext
}
