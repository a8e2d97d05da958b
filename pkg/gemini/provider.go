package gemini

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
	apiBase      = "https://generativelanguage.googleapis.com"
	defaultModel = "gemini-2.0-flash"
)

// Provider implements the Google Gemini vision provider
type Provider struct{}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type request struct {
	Contents         []content `json:"contents"`
	GenerationConfig struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

// Response represents a generateContent response
type Response struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// New creates a new Gemini provider
func New() *Provider {
	return &Provider{}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "gemini"
}

// ValidateConfig validates the Gemini configuration
func (p *Provider) ValidateConfig(config providers.Config) error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}
	return nil
}

// ExtractText extracts text from an image using the Gemini generateContent API
func (p *Provider) ExtractText(ctx context.Context, config providers.Config, img providers.Image) (string, providers.UsageInfo, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return "", providers.UsageInfo{}, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}

	var body request
	body.Contents = []content{{Parts: []part{
		{Text: config.Prompt},
		{InlineData: &inlineData{MimeType: mimeType, Data: img.Base64()}},
	}}}
	body.GenerationConfig.Temperature = config.Temperature

	requestJSON, err := json.Marshal(body)
	if err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultModel
	}
	base := apiBase
	if config.BaseURL != "" {
		base = config.BaseURL
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestJSON))
	if err != nil {
		return "", providers.UsageInfo{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", providers.UsageInfo{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", providers.UsageInfo{}, fmt.Errorf("gemini API error: %d - %s", resp.StatusCode, providers.TruncateBody(respBody))
	}

	var geminiResp Response
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to parse JSON response: %w - body: %s", err, providers.TruncateBody(respBody))
	}
	if len(geminiResp.Candidates) == 0 {
		return "", providers.UsageInfo{}, fmt.Errorf("no response from Gemini")
	}

	usage := providers.UsageInfo{
		InputTokens:  geminiResp.UsageMetadata.PromptTokenCount,
		OutputTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
	}

	var text string
	for _, pt := range geminiResp.Candidates[0].Content.Parts {
		text += pt.Text
	}
	return providers.ProcessResponse(p, text), usage, nil
}
