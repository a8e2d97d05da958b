package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/scribe/pkg/providers"
)

func setAPIKey(t *testing.T, value string) {
	t.Helper()
	original, had := os.LookupEnv("GEMINI_API_KEY")
	os.Setenv("GEMINI_API_KEY", value)
	t.Cleanup(func() {
		if had {
			os.Setenv("GEMINI_API_KEY", original)
		} else {
			os.Unsetenv("GEMINI_API_KEY")
		}
	})
}

func TestProvider_Name(t *testing.T) {
	if New().Name() != "gemini" {
		t.Errorf("Expected name 'gemini', got '%s'", New().Name())
	}
}

func TestProvider_ValidateConfig(t *testing.T) {
	tests := []struct {
		name        string
		apiKey      string
		expectError bool
	}{
		{"valid API key", "test-key", false},
		{"missing API key", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setAPIKey(t, tt.apiKey)

			err := New().ValidateConfig(providers.Config{})
			if tt.expectError && (err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY")) {
				t.Errorf("Expected GEMINI_API_KEY error, got: %v", err)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestProvider_ExtractText(t *testing.T) {
	tests := []struct {
		name           string
		model          string
		statusCode     int
		serverResponse string
		expectedPath   string
		expectedText   string
		expectError    bool
		errorContains  string
	}{
		{
			name:           "successful response",
			model:          "gemini-2.5-pro",
			statusCode:     http.StatusOK,
			serverResponse: `{"candidates":[{"content":{"parts":[{"text":"with kind "},{"text":"regards"}]}}],"usageMetadata":{"promptTokenCount":300,"candidatesTokenCount":5}}`,
			expectedPath:   "/v1beta/models/gemini-2.5-pro:generateContent",
			expectedText:   "with kind regards",
		},
		{
			name:           "default model",
			statusCode:     http.StatusOK,
			serverResponse: `{"candidates":[{"content":{"parts":[{"text":"The text in the image reads: hello"}]}}]}`,
			expectedPath:   "/v1beta/models/" + defaultModel + ":generateContent",
			expectedText:   "hello",
		},
		{
			name:           "no candidates",
			model:          "gemini-2.5-pro",
			statusCode:     http.StatusOK,
			serverResponse: `{"candidates":[]}`,
			expectedPath:   "/v1beta/models/gemini-2.5-pro:generateContent",
			expectError:    true,
			errorContains:  "no response from Gemini",
		},
		{
			name:           "API error",
			model:          "gemini-2.5-pro",
			statusCode:     http.StatusTooManyRequests,
			serverResponse: `{"error":{"code":429}}`,
			expectedPath:   "/v1beta/models/gemini-2.5-pro:generateContent",
			expectError:    true,
			errorContains:  "gemini API error: 429",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.expectedPath {
					t.Errorf("path = %s, want %s", r.URL.Path, tt.expectedPath)
				}
				if r.Header.Get("x-goog-api-key") != "test-key" {
					t.Error("missing x-goog-api-key header")
				}
				if r.URL.Query().Get("key") != "" {
					t.Error("API key leaked into the query string")
				}

				var reqBody request
				if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
					t.Errorf("request body is not JSON: %v", err)
				}
				if len(reqBody.Contents) != 1 || len(reqBody.Contents[0].Parts) != 2 || reqBody.Contents[0].Parts[1].InlineData == nil {
					t.Errorf("unexpected request contents: %+v", reqBody.Contents)
				}

				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.serverResponse))
			}))
			defer server.Close()

			setAPIKey(t, "test-key")
			config := providers.Config{Model: tt.model, Prompt: "read", BaseURL: server.URL}

			text, _, err := New().ExtractText(context.Background(), config, providers.Image{Data: []byte("png")})

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error to contain '%s', got: %v", tt.errorContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if text != tt.expectedText {
				t.Errorf("Expected '%s', got '%s'", tt.expectedText, text)
			}
		})
	}
}
