package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/lehigh-university-libraries/scribe/internal/config"
	"github.com/lehigh-university-libraries/scribe/internal/server"
	"github.com/lehigh-university-libraries/scribe/pkg/cache"
	"github.com/lehigh-university-libraries/scribe/pkg/feedback"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the OCR and feedback HTTP API",
	Long: `Start an HTTP server with two endpoints:

  POST /ocr       multipart "file", returns {"text": "..."} (?format=hocr for hOCR)
  POST /feedback  multipart "file" and "correct_text", stores the correction

Corrections go to --dataset unless --database-url points at PostgreSQL.
Setting --redis-url caches transcriptions by image content.`,
	RunE: runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)

	d := config.Default()
	serveCmd.Flags().String("host", d.Host, "Host to bind the web server to")
	serveCmd.Flags().String("port", d.Port, "Port to run the web server on")
	serveCmd.Flags().String("dataset", d.DatasetDir, "Directory for feedback images and labels.csv")
	serveCmd.Flags().String("database-url", "", "PostgreSQL URL for feedback storage (overrides --dataset)")
	serveCmd.Flags().String("redis-url", "", "Redis URL for the transcription cache")
	serveCmd.Flags().Duration("cache-ttl", d.CacheTTL, "How long cached transcriptions are kept")
	serveCmd.Flags().Int64("max-upload-bytes", d.MaxUploadBytes, "Largest accepted upload")
	addPipelineFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := buildPipeline(ctx, c)
	if err != nil {
		return err
	}
	defer b.Close()

	var transcriber server.Transcriber = b.pipeline
	if c.RedisURL != "" {
		backend, err := cache.NewRedisBackend(ctx, c.RedisURL)
		if err != nil {
			return err
		}
		defer backend.Close()
		transcriber = cache.New(b.pipeline, backend, c.CacheTTL)
		slog.Info("Transcription cache enabled", "ttl", c.CacheTTL)
	}

	store, closeStore, err := openFeedbackStore(ctx, c)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := &http.Server{
		Addr:              c.Addr(),
		Handler:           server.New(transcriber, store, c.MaxUploadBytes).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting scribe server", "addr", c.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down scribe server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openFeedbackStore(ctx context.Context, c config.Config) (feedback.Store, func(), error) {
	if c.DatabaseURL != "" {
		store, err := feedback.OpenPostgres(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Storing feedback in PostgreSQL")
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("Failed to close feedback database", "err", err)
			}
		}, nil
	}

	store, err := feedback.OpenDir(c.DatasetDir)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Storing feedback on disk", "dir", store.Dir())
	return store, func() {}, nil
}
