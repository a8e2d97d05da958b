package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/scribe/pkg/feedback"
	"github.com/lehigh-university-libraries/scribe/pkg/lines"
	"github.com/lehigh-university-libraries/scribe/pkg/pipeline"
)

type fakeTranscriber struct {
	doc  pipeline.Document
	err  error
	seen []byte
}

func (f *fakeTranscriber) TranscribeBytes(ctx context.Context, data []byte) (pipeline.Document, error) {
	f.seen = data
	return f.doc, f.err
}

type fakeStore struct {
	err   error
	saved []string
}

func (f *fakeStore) Save(ctx context.Context, image []byte, text string) (feedback.Record, error) {
	if f.err != nil {
		return feedback.Record{}, f.err
	}
	f.saved = append(f.saved, text)
	return feedback.Record{Filename: "abc.jpg", Text: text}, nil
}

func multipartBody(t *testing.T, file []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if file != nil {
		fw, err := mw.CreateFormFile("file", "page.jpg")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(file); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func do(t *testing.T, s *Server, method, target string, file []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, file, fields)
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestOCR(t *testing.T) {
	tr := &fakeTranscriber{doc: pipeline.Document{Text: "first\nsecond", Lines: []string{"first", "second"}}}
	s := New(tr, &fakeStore{}, 1<<20)

	rec := do(t, s, http.MethodPost, "/ocr", []byte("image-bytes"), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[OCRResponse](t, rec)
	if resp.Text != "first\nsecond" || resp.Error != "" {
		t.Errorf("response = %+v", resp)
	}
	if string(tr.seen) != "image-bytes" {
		t.Errorf("transcriber saw %q", tr.seen)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestOCRNoText(t *testing.T) {
	tr := &fakeTranscriber{doc: pipeline.Document{Text: pipeline.NoTextFound, NoText: true}}
	s := New(tr, &fakeStore{}, 1<<20)

	resp := decode[OCRResponse](t, do(t, s, http.MethodPost, "/ocr", []byte("blank"), nil))
	if resp.Text != pipeline.NoTextFound {
		t.Errorf("Text = %q, want %q", resp.Text, pipeline.NoTextFound)
	}
}

func TestOCRErrorsAreDescribedNotRaised(t *testing.T) {
	tests := []struct {
		name    string
		tr      *fakeTranscriber
		file    []byte
		wantSub string
	}{
		{
			name:    "transcriber failure is masked",
			tr:      &fakeTranscriber{err: errors.New("call https://api.example.com?key=secret123 failed")},
			file:    []byte("img"),
			wantSub: "key=***MASKED***",
		},
		{
			name:    "missing file",
			tr:      &fakeTranscriber{},
			file:    nil,
			wantSub: "failed to read file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.tr, &fakeStore{}, 1<<20)
			rec := do(t, s, http.MethodPost, "/ocr", tt.file, nil)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
			resp := decode[OCRResponse](t, rec)
			if !strings.HasPrefix(resp.Text, "Error: ") {
				t.Errorf("Text = %q, want Error: prefix", resp.Text)
			}
			if !strings.Contains(resp.Error, tt.wantSub) {
				t.Errorf("Error = %q, want it to contain %q", resp.Error, tt.wantSub)
			}
			if strings.Contains(rec.Body.String(), "secret123") {
				t.Error("response leaks the API key")
			}
		})
	}
}

func TestOCRHOCRFormat(t *testing.T) {
	tr := &fakeTranscriber{doc: pipeline.Document{
		Text:    "hello world",
		Lines:   []string{"hello world"},
		Regions: []lines.Region{{XMin: 1, XMax: 90, YMin: 5, YMax: 20}},
		Width:   100,
		Height:  50,
	}}
	s := New(tr, &fakeStore{}, 1<<20)

	rec := do(t, s, http.MethodPost, "/ocr?format=hocr", []byte("img"), nil)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"ocr_page", "bbox 0 0 100 50", "bbox 1 5 90 20", ">hello</span>", ">world</span>"} {
		if !strings.Contains(body, want) {
			t.Errorf("hOCR missing %q", want)
		}
	}
}

func TestOCRUploadLimit(t *testing.T) {
	s := New(&fakeTranscriber{}, &fakeStore{}, 64)

	resp := decode[OCRResponse](t, do(t, s, http.MethodPost, "/ocr", bytes.Repeat([]byte("x"), 4096), nil))
	if resp.Error == "" {
		t.Errorf("response = %+v, want an error for an oversized upload", resp)
	}
}

func TestFeedback(t *testing.T) {
	tests := []struct {
		name       string
		store      *fakeStore
		file       []byte
		text       string
		wantStatus int
		wantBody   FeedbackResponse
	}{
		{
			name:       "saved",
			store:      &fakeStore{},
			file:       []byte("img"),
			text:       "Привет, мир",
			wantStatus: http.StatusOK,
			wantBody:   FeedbackResponse{Status: "saved", Filename: "abc.jpg"},
		},
		{
			name:       "missing file",
			store:      &fakeStore{},
			text:       "text",
			wantStatus: http.StatusBadRequest,
			wantBody:   FeedbackResponse{Status: "error"},
		},
		{
			name:       "validation error",
			store:      &fakeStore{err: feedback.ErrEmptyText},
			file:       []byte("img"),
			wantStatus: http.StatusBadRequest,
			wantBody:   FeedbackResponse{Status: "error"},
		},
		{
			name:       "storage error",
			store:      &fakeStore{err: errors.New("disk full")},
			file:       []byte("img"),
			text:       "text",
			wantStatus: http.StatusInternalServerError,
			wantBody:   FeedbackResponse{Status: "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&fakeTranscriber{}, tt.store, 1<<20)
			rec := do(t, s, http.MethodPost, "/feedback", tt.file, map[string]string{"correct_text": tt.text})

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decode[FeedbackResponse](t, rec); got != tt.wantBody {
				t.Errorf("body = %+v, want %+v", got, tt.wantBody)
			}
		})
	}
}

func TestFeedbackWithDirStore(t *testing.T) {
	store, err := feedback.OpenDir(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDir() error = %v", err)
	}
	s := New(&fakeTranscriber{}, store, 1<<20)

	rec := do(t, s, http.MethodPost, "/feedback", []byte("\x89PNG\r\n\x1a\nrest"), map[string]string{"correct_text": "line one"})
	resp := decode[FeedbackResponse](t, rec)
	if resp.Status != "saved" || !strings.HasSuffix(resp.Filename, ".png") {
		t.Fatalf("response = %+v", resp)
	}

	records, err := feedback.ReadLabels(store.Dir())
	if err != nil {
		t.Fatalf("ReadLabels() error = %v", err)
	}
	if len(records) != 1 || records[0].Filename != resp.Filename || records[0].Text != "line one" {
		t.Errorf("records = %+v", records)
	}
}

func TestHealthAndPreflight(t *testing.T) {
	s := New(&fakeTranscriber{}, &fakeStore{}, 1<<20)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/ocr", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != "*" {
		t.Error("preflight missing Access-Control-Allow-Methods")
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ocr", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /ocr status = %d, want 405", rec.Code)
	}
}
