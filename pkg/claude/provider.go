package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/lehigh-university-libraries/scribe/pkg/providers"
)

const (
	apiURL     = "https://api.anthropic.com/v1/messages"
	apiVersion = "2023-06-01"
	// a single line never needs more
	maxTokens = 512
)

// Provider implements the Anthropic Claude vision provider
type Provider struct{}

// Response represents an Anthropic API response
type Response struct {
	Content []struct {
		Text string `json:"text"`
		Type string `json:"type"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// New creates a new Claude provider
func New() *Provider {
	return &Provider{}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "claude"
}

// ValidateConfig validates the Claude configuration
func (p *Provider) ValidateConfig(config providers.Config) error {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}
	if config.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// ExtractText extracts text from an image using Claude's messages API
func (p *Provider) ExtractText(ctx context.Context, config providers.Config, img providers.Image) (string, providers.UsageInfo, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return "", providers.UsageInfo{}, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	mediaType := img.MimeType
	if mediaType == "" {
		mediaType = "image/png"
	}

	requestBody := map[string]any{
		"model":      config.Model,
		"max_tokens": maxTokens,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{
						"type": "image",
						"source": map[string]any{
							"type":       "base64",
							"media_type": mediaType,
							"data":       img.Base64(),
						},
					},
					{
						"type": "text",
						"text": config.Prompt,
					},
				},
			},
		},
	}
	if config.Temperature > 0 {
		requestBody["temperature"] = config.Temperature
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, providers.Endpoint(config, apiURL, "/v1/messages"), bytes.NewReader(requestJSON))
	if err != nil {
		return "", providers.UsageInfo{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", providers.UsageInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", providers.UsageInfo{}, fmt.Errorf("claude API error: %d - %s", resp.StatusCode, providers.TruncateBody(body))
	}

	var claudeResp Response
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if len(claudeResp.Content) == 0 {
		return "", providers.UsageInfo{}, fmt.Errorf("no response from Claude")
	}

	usage := providers.UsageInfo{
		InputTokens:  claudeResp.Usage.InputTokens,
		OutputTokens: claudeResp.Usage.OutputTokens,
	}

	for _, content := range claudeResp.Content {
		if content.Type == "text" {
			return providers.ProcessResponse(p, content.Text), usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Claude response")
}
