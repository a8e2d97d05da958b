package providers

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"time"
)

// DefaultPrompt asks a vision model for the text of a single cropped line
const DefaultPrompt = "This image is one line of handwritten text cropped from a page. " +
	"Transcribe exactly what is written on it. Reply with the transcription only, " +
	"on a single line, without commentary. If the line is illegible or blank, reply with nothing."

// Config represents the configuration for a provider
type Config struct {
	Provider    string
	Model       string
	Prompt      string
	Temperature float64
	Timeout     time.Duration
	// BaseURL overrides the provider's API endpoint when set
	BaseURL string
}

// UsageInfo represents token usage information from a provider
type UsageInfo struct {
	InputTokens  int
	OutputTokens int
}

// Add accumulates usage across calls
func (u *UsageInfo) Add(other UsageInfo) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Image is an encoded image sent to a provider
type Image struct {
	Data     []byte
	MimeType string
}

// Base64 returns the standard base64 encoding of the image bytes
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// Provider interface that all vision providers must implement
type Provider interface {
	// ExtractText extracts text from an image using the provider's API
	// Returns the extracted text and usage information (tokens used)
	ExtractText(ctx context.Context, config Config, img Image) (string, UsageInfo, error)
	// Name returns the provider's name
	Name() string
	// ValidateConfig validates the provider-specific configuration
	ValidateConfig(config Config) error
}

// CleanResponseProvider is an optional interface that providers can implement
// to provide custom response cleaning logic
type CleanResponseProvider interface {
	CleanResponse(response string) string
}

var prefixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(the\s+)?text\s+in\s+(the\s+)?image\s+(is|says|reads):?\s*`),
	regexp.MustCompile(`(?i)^(the\s+)?image\s+contains\s+(the\s+following\s+)?text:?\s*`),
	regexp.MustCompile(`(?i)^here'?s?\s+(the\s+)?text\s+(extracted\s+)?from\s+(the\s+)?image:?\s*`),
	regexp.MustCompile(`(?i)^(i\s+can\s+see\s+)?text\s+(that\s+says|reading):?\s*`),
	regexp.MustCompile(`(?i)^i\s+can\s+see\s+text\s+reading:\s*`),
	regexp.MustCompile(`(?i)^certainly!\s+here'?s?\s+(the\s+)?text\s+(extracted\s+)?from\s+(the\s+)?image:?\s*`),
	regexp.MustCompile(`(?i)^here'?s?\s+the\s+extracted\s+text\s+from\s+(the\s+)?image:?\s*`),
	regexp.MustCompile(`(?i)^(the\s+)?(handwritten\s+)?line\s+(says|reads):?\s*`),
}

// CleanResponse strips the chatter vision models wrap around a transcription
func CleanResponse(response string) string {
	response = strings.TrimSpace(response)

	for _, re := range prefixPatterns {
		response = re.ReplaceAllString(response, "")
		response = strings.TrimSpace(response)
	}

	response = strings.Trim(response, `"'`)

	if strings.HasPrefix(response, "```") && strings.HasSuffix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimSpace(response)
	}

	return response
}

// SingleLine collapses a response onto one line
func SingleLine(response string) string {
	return strings.Join(strings.Fields(response), " ")
}

// ProcessResponse cleans a response using the provider's custom cleaner if available,
// otherwise uses the general CleanResponse function
func ProcessResponse(provider Provider, response string) string {
	if cleaner, ok := provider.(CleanResponseProvider); ok {
		return cleaner.CleanResponse(response)
	}
	return CleanResponse(response)
}

// TruncateBody truncates a response body to a maximum length for error messages.
// Default maxLen is 500 if not specified.
func TruncateBody(body []byte, maxLen ...int) string {
	limit := 500
	if len(maxLen) > 0 && maxLen[0] > 0 {
		limit = maxLen[0]
	}
	s := string(body)
	if len(s) > limit {
		return s[:limit] + "... (truncated)"
	}
	return s
}

// Endpoint returns config.BaseURL joined with path, or fallback when no base is set
func Endpoint(config Config, fallback, path string) string {
	if config.BaseURL == "" {
		return fallback
	}
	return strings.TrimRight(config.BaseURL, "/") + path
}
