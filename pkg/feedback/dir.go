package feedback

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// LabelsFile holds one filename,text row per correction
	LabelsFile = "labels.csv"
	// ImagesDir holds the corrected images
	ImagesDir = "images"

	legacyMetaFile = "feedback_meta.csv"
	legacyMetaDir  = "meta"
)

var labelsHeader = []string{"filename", "text"}

// DirStore keeps the dataset as an images directory plus an append-only CSV
type DirStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// OpenDir prepares dir for writing: it creates images/ and a labels.csv with
// its header when missing, and removes diagnostic files older versions left
// behind so the dataset holds only images/ and labels.csv.
func OpenDir(dir string) (*DirStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, ImagesDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}

	if err := os.Remove(filepath.Join(dir, legacyMetaFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove legacy metadata: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(dir, legacyMetaDir)); err != nil {
		return nil, fmt.Errorf("failed to remove legacy metadata: %w", err)
	}

	labels := filepath.Join(dir, LabelsFile)
	if _, err := os.Stat(labels); errors.Is(err, os.ErrNotExist) {
		f, err := os.OpenFile(labels, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to create labels file: %w", err)
		}
		w := csv.NewWriter(f)
		w.Write(labelsHeader)
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write labels header: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat labels file: %w", err)
	}

	return &DirStore{dir: dir, now: time.Now}, nil
}

// Dir returns the dataset root
func (s *DirStore) Dir() string {
	return s.dir
}

// Save writes the image under a new name and appends its label row
func (s *DirStore) Save(ctx context.Context, image []byte, text string) (Record, error) {
	if err := validate(image, text); err != nil {
		return Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	rec := Record{Filename: newFilename(image), Text: text, CreatedAt: s.now().UTC()}
	imagePath := filepath.Join(s.dir, ImagesDir, rec.Filename)
	if err := os.WriteFile(imagePath, image, 0o644); err != nil {
		return Record{}, fmt.Errorf("failed to write image: %w", err)
	}

	if err := s.appendLabel(rec); err != nil {
		os.Remove(imagePath)
		return Record{}, err
	}

	slog.Info("Saved feedback", "filename", rec.Filename, "text_length", len(text))
	return rec, nil
}

func (s *DirStore) appendLabel(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.dir, LabelsFile), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open labels file: %w", err)
	}
	w := csv.NewWriter(f)
	w.Write([]string{rec.Filename, rec.Text})
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to append label: %w", err)
	}
	return f.Close()
}

// Records lists the dataset's labels in file order
func (s *DirStore) Records(ctx context.Context) ([]Record, error) {
	return ReadLabels(s.dir)
}

// Image reads a stored image
func (s *DirStore) Image(ctx context.Context, filename string) ([]byte, error) {
	data, err := os.ReadFile(ImagePath(s.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", filename, err)
	}
	return data, nil
}

// ReadLabels loads every record of a dataset directory in file order
func ReadLabels(dir string) ([]Record, error) {
	f, err := os.Open(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(labelsHeader)

	var records []Record
	for line := 1; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read labels: %w", err)
		}
		if line == 1 && row[0] == labelsHeader[0] && row[1] == labelsHeader[1] {
			continue
		}
		records = append(records, Record{Filename: row[0], Text: row[1]})
	}
	return records, nil
}

// ImagePath returns where a record's image lives inside dir
func ImagePath(dir, filename string) string {
	return filepath.Join(dir, ImagesDir, filepath.Base(filename))
}
