// Package server exposes the transcription pipeline and the feedback store
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/scribe/internal/utils"
	"github.com/lehigh-university-libraries/scribe/pkg/feedback"
	"github.com/lehigh-university-libraries/scribe/pkg/hocr"
	"github.com/lehigh-university-libraries/scribe/pkg/pipeline"
)

// Transcriber turns uploaded image bytes into a document.
// *pipeline.Pipeline and *cache.Transcriber both satisfy it.
type Transcriber interface {
	TranscribeBytes(ctx context.Context, data []byte) (pipeline.Document, error)
}

// Server routes OCR and feedback requests
type Server struct {
	transcriber    Transcriber
	feedback       feedback.Store
	maxUploadBytes int64
	mux            *http.ServeMux
}

// OCRResponse is the body of a successful or error-described /ocr call
type OCRResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// FeedbackResponse is the body of a /feedback call
type FeedbackResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename,omitempty"`
}

// New creates a server. maxUploadBytes caps every request body.
func New(transcriber Transcriber, store feedback.Store, maxUploadBytes int64) *Server {
	s := &Server{
		transcriber:    transcriber,
		feedback:       store,
		maxUploadBytes: maxUploadBytes,
		mux:            http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /ocr", s.handleOCR)
	s.mux.HandleFunc("POST /feedback", s.handleFeedback)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the routes wrapped with CORS and request logging
func (s *Server) Handler() http.Handler {
	return cors(logRequests(s.mux))
}

func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	data, err := s.readUpload(w, r, "file")
	if err != nil {
		s.respondOCRError(w, err)
		return
	}

	doc, err := s.transcriber.TranscribeBytes(r.Context(), data)
	if err != nil {
		s.respondOCRError(w, err)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "hocr") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, hocr.Build(doc.Regions, doc.Lines, doc.Width, doc.Height))
		return
	}

	respondJSON(w, http.StatusOK, OCRResponse{Text: doc.Text})
}

// respondOCRError keeps the 200 contract: clients read failures from the text
func (s *Server) respondOCRError(w http.ResponseWriter, err error) {
	msg := utils.MaskSensitiveData(err.Error())
	slog.Error("OCR request failed", "err", msg)
	respondJSON(w, http.StatusOK, OCRResponse{Text: "Error: " + msg, Error: msg})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	data, err := s.readUpload(w, r, "file")
	if err != nil {
		slog.Warn("Feedback upload rejected", "err", err)
		respondJSON(w, http.StatusBadRequest, FeedbackResponse{Status: "error"})
		return
	}

	rec, err := s.feedback.Save(r.Context(), data, r.FormValue("correct_text"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, feedback.ErrEmptyText) || errors.Is(err, feedback.ErrEmptyImage) {
			status = http.StatusBadRequest
		}
		slog.Error("Failed to save feedback", "err", utils.MaskSensitiveError(err), "status", status)
		respondJSON(w, status, FeedbackResponse{Status: "error"})
		return
	}

	slog.Info("Feedback saved", "filename", rec.Filename)
	respondJSON(w, http.StatusOK, FeedbackResponse{Status: "saved", Filename: rec.Filename})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		return nil, fmt.Errorf("failed to parse upload: %w", err)
	}

	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", field, err)
	}
	return data, nil
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "err", err)
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "*")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Handled request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}
