package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/scribe/pkg/providers"
)

const (
	defaultURL   = "http://localhost:11434"
	defaultModel = "llava"
)

// Provider implements the Ollama local provider
type Provider struct{}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Images  []string `json:"images"`
	Stream  bool     `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

// Response represents a non-streaming /api/generate response
type Response struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// New creates a new Ollama provider
func New() *Provider {
	return &Provider{}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "ollama"
}

// ValidateConfig validates the Ollama configuration
func (p *Provider) ValidateConfig(config providers.Config) error {
	base := baseURL(config)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("invalid OLLAMA_URL %q: must start with http:// or https://", base)
	}
	return nil
}

func baseURL(config providers.Config) string {
	if config.BaseURL != "" {
		return config.BaseURL
	}
	if u := os.Getenv("OLLAMA_URL"); u != "" {
		return u
	}
	return defaultURL
}

// ExtractText extracts text from an image using the local Ollama API
func (p *Provider) ExtractText(ctx context.Context, config providers.Config, img providers.Image) (string, providers.UsageInfo, error) {
	model := config.Model
	if model == "" {
		model = defaultModel
	}

	body := generateRequest{
		Model:  model,
		Prompt: config.Prompt,
		Images: []string{img.Base64()},
	}
	body.Options.Temperature = config.Temperature

	requestJSON, err := json.Marshal(body)
	if err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(baseURL(config), "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestJSON))
	if err != nil {
		return "", providers.UsageInfo{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	timeout := config.Timeout
	if timeout <= 0 {
		// local inference is slow
		timeout = 300 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", providers.UsageInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", providers.UsageInfo{}, fmt.Errorf("ollama API error: %d - %s", resp.StatusCode, providers.TruncateBody(respBody))
	}

	var ollamaResp Response
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if !ollamaResp.Done {
		return "", providers.UsageInfo{}, fmt.Errorf("no response from Ollama")
	}

	usage := providers.UsageInfo{
		InputTokens:  ollamaResp.PromptEvalCount,
		OutputTokens: ollamaResp.EvalCount,
	}
	return providers.ProcessResponse(p, ollamaResp.Response), usage, nil
}
