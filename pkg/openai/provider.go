package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/template"
	"time"

	"github.com/lehigh-university-libraries/scribe/pkg/providers"
)

const apiURL = "https://api.openai.com/v1/chat/completions"

// Provider implements the OpenAI vision provider
type Provider struct{}

// Response represents an OpenAI API response
type Response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// TemplateData represents data for API request template
type TemplateData struct {
	Model       string
	Prompt      string
	Temperature float64
	ImageBase64 string
	MimeType    string
}

var requestTemplate = template.Must(template.New("openai").Parse(`{
  "model": "{{.Model}}",
  "temperature": {{.Temperature}},
  "messages": [
    {
      "role": "user",
      "content": [
        {
          "type": "text",
          "text": "{{.Prompt}}"
        },
        {
          "type": "image_url",
          "image_url": {
            "url": "data:{{.MimeType}};base64,{{.ImageBase64}}"
          }
        }
      ]
    }
  ]
}`))

// New creates a new OpenAI provider
func New() *Provider {
	return &Provider{}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "openai"
}

// ValidateConfig validates the OpenAI configuration
func (p *Provider) ValidateConfig(config providers.Config) error {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if config.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// ExtractText extracts text from an image using OpenAI's chat completions API
func (p *Provider) ExtractText(ctx context.Context, config providers.Config, img providers.Image) (string, providers.UsageInfo, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return "", providers.UsageInfo{}, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}

	templateData := TemplateData{
		Model:       jsonEscape(config.Model),
		Prompt:      jsonEscape(config.Prompt),
		Temperature: config.Temperature,
		ImageBase64: img.Base64(),
		MimeType:    mimeType,
	}

	var requestBuffer bytes.Buffer
	if err := requestTemplate.Execute(&requestBuffer, templateData); err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to execute template: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, providers.Endpoint(config, apiURL, "/v1/chat/completions"), &requestBuffer)
	if err != nil {
		return "", providers.UsageInfo{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	client := &http.Client{Timeout: timeout(config)}
	resp, err := client.Do(req)
	if err != nil {
		return "", providers.UsageInfo{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", providers.UsageInfo{}, fmt.Errorf("openAI API error: %d - %s", resp.StatusCode, providers.TruncateBody(body))
	}

	var openaiResp Response
	if err := json.Unmarshal(body, &openaiResp); err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to parse JSON response: %w - body: %s", err, providers.TruncateBody(body))
	}

	if len(openaiResp.Choices) == 0 {
		return "", providers.UsageInfo{}, fmt.Errorf("no response from OpenAI - body: %s", providers.TruncateBody(body))
	}

	usage := providers.UsageInfo{
		InputTokens:  openaiResp.Usage.PromptTokens,
		OutputTokens: openaiResp.Usage.CompletionTokens,
	}

	return providers.ProcessResponse(p, openaiResp.Choices[0].Message.Content), usage, nil
}

func timeout(config providers.Config) time.Duration {
	if config.Timeout > 0 {
		return config.Timeout
	}
	return 60 * time.Second
}

// jsonEscape properly escapes a string for use in JSON
func jsonEscape(s string) string {
	escaped, _ := json.Marshal(s)
	return string(escaped[1 : len(escaped)-1])
}
