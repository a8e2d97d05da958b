package openai

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
	original, had := os.LookupEnv("OPENAI_API_KEY")
	os.Setenv("OPENAI_API_KEY", value)
	t.Cleanup(func() {
		if had {
			os.Setenv("OPENAI_API_KEY", original)
		} else {
			os.Unsetenv("OPENAI_API_KEY")
		}
	})
}

func TestProvider_Name(t *testing.T) {
	p := New()
	if p.Name() != "openai" {
		t.Errorf("Expected name 'openai', got '%s'", p.Name())
	}
}

func TestProvider_ValidateConfig(t *testing.T) {
	p := New()

	tests := []struct {
		name          string
		apiKey        string
		model         string
		expectError   bool
		errorContains string
	}{
		{
			name:   "valid API key",
			apiKey: "sk-test-key",
			model:  "gpt-4o",
		},
		{
			name:          "missing API key",
			model:         "gpt-4o",
			expectError:   true,
			errorContains: "OPENAI_API_KEY",
		},
		{
			name:          "missing model",
			apiKey:        "sk-test-key",
			expectError:   true,
			errorContains: "model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setAPIKey(t, tt.apiKey)

			err := p.ValidateConfig(providers.Config{Provider: "openai", Model: tt.model})

			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
			if tt.expectError && err != nil && !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("Expected error to contain '%s', got: %v", tt.errorContains, err)
			}
		})
	}
}

func TestProvider_ExtractText(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse string
		statusCode     int
		expectedText   string
		expectedInput  int
		expectError    bool
		errorContains  string
	}{
		{
			name:           "successful response",
			statusCode:     http.StatusOK,
			serverResponse: `{"choices":[{"message":{"content":"dear sir"}}],"usage":{"prompt_tokens":85,"completion_tokens":3}}`,
			expectedText:   "dear sir",
			expectedInput:  85,
		},
		{
			name:           "response with cleaning needed",
			statusCode:     http.StatusOK,
			serverResponse: `{"choices":[{"message":{"content":"Here's the text extracted from the image: \"Cleaned text\""}}]}`,
			expectedText:   "Cleaned text",
		},
		{
			name:           "API error response",
			statusCode:     http.StatusBadRequest,
			serverResponse: `{"error":{"message":"Invalid request"}}`,
			expectError:    true,
			errorContains:  "openAI API error",
		},
		{
			name:           "empty choices",
			statusCode:     http.StatusOK,
			serverResponse: `{"choices": []}`,
			expectError:    true,
			errorContains:  "no response from OpenAI",
		},
		{
			name:           "malformed JSON",
			statusCode:     http.StatusOK,
			serverResponse: `{"invalid": json}`,
			expectError:    true,
			errorContains:  "failed to parse JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Expected POST request, got %s", r.Method)
				}
				if r.URL.Path != "/v1/chat/completions" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "Bearer sk-test-key" {
					t.Errorf("Expected Bearer authorization header")
				}

				var reqBody map[string]any
				if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
					t.Errorf("request body is not JSON: %v", err)
				}
				if reqBody["model"] != "gpt-4o" {
					t.Errorf("model = %v", reqBody["model"])
				}
				if messages, ok := reqBody["messages"].([]any); !ok || len(messages) != 1 {
					t.Error("Expected one message in request body")
				}

				w.WriteHeader(tt.statusCode)
				if _, err := w.Write([]byte(tt.serverResponse)); err != nil {
					t.Errorf("Failed to write response: %v", err)
				}
			}))
			defer server.Close()

			setAPIKey(t, "sk-test-key")

			config := providers.Config{Model: "gpt-4o", Prompt: `Read "this" line`, BaseURL: server.URL}
			text, usage, err := New().ExtractText(context.Background(), config, providers.Image{Data: []byte{0x89, 'P', 'N', 'G'}, MimeType: "image/png"})

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
			if usage.InputTokens != tt.expectedInput {
				t.Errorf("InputTokens = %d, want %d", usage.InputTokens, tt.expectedInput)
			}
		})
	}
}

func TestJsonEscape(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple string", "hello world", "hello world"},
		{"string with quotes", `He said "hello"`, `He said \"hello\"`},
		{"string with newlines", "line1\nline2", "line1\\nline2"},
		{"string with backslashes", "path\\to\\file", "path\\\\to\\\\file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := jsonEscape(tt.input); result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}
