package feedback

import (
	"context"
	"errors"
	"os"
	"testing"
)

// Set SCRIBE_TEST_DATABASE_URL to run against a disposable database.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("SCRIBE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SCRIBE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := OpenPostgres(ctx, url)
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	defer store.Close()

	img := pngBytes(t)
	rec, err := store.Save(ctx, img, "stored line")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	t.Cleanup(func() {
		store.db.Exec(`DELETE FROM feedback WHERE filename = $1`, rec.Filename)
	})

	got, err := store.Image(ctx, rec.Filename)
	if err != nil {
		t.Fatalf("Image() error = %v", err)
	}
	if string(got) != string(img) {
		t.Error("stored image differs from upload")
	}

	records, err := store.Records(ctx)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	found := false
	for _, r := range records {
		if r.Filename == rec.Filename && r.Text == "stored line" {
			found = true
		}
	}
	if !found {
		t.Errorf("record %s not listed", rec.Filename)
	}

	if _, err := store.Save(ctx, img, ""); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Save(empty) error = %v, want ErrEmptyText", err)
	}
}

func TestOpenPostgresRequiresURL(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), ""); err == nil {
		t.Error("Expected error but got none")
	}
}
