package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

const createTable = `
CREATE TABLE IF NOT EXISTS feedback (
	filename   TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	image      BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps corrections in a single insert-only table
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgres connects to databaseURL and creates the feedback table if needed
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create feedback table: %w", err)
	}

	return &PostgresStore{db: db, now: time.Now}, nil
}

// Save inserts one correction
func (s *PostgresStore) Save(ctx context.Context, image []byte, text string) (Record, error) {
	if err := validate(image, text); err != nil {
		return Record{}, err
	}

	rec := Record{Filename: newFilename(image), Text: text, CreatedAt: s.now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (filename, text, image, created_at) VALUES ($1, $2, $3, $4)`,
		rec.Filename, rec.Text, image, rec.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("failed to insert feedback: %w", err)
	}

	slog.Info("Saved feedback", "filename", rec.Filename, "text_length", len(text), "store", "postgres")
	return rec, nil
}

// Records lists stored corrections oldest first, without image bytes
func (s *PostgresStore) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT filename, text, created_at FROM feedback ORDER BY created_at, filename`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Filename, &rec.Text, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Image returns the stored image bytes for filename
func (s *PostgresStore) Image(ctx context.Context, filename string) ([]byte, error) {
	var image []byte
	err := s.db.QueryRowContext(ctx, `SELECT image FROM feedback WHERE filename = $1`, filename).Scan(&image)
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", filename, err)
	}
	return image, nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
