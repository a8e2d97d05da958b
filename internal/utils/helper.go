package utils

import (
	"log/slog"
	"os"
	"regexp"
)

var (
	// key=VALUE, api_key=VALUE, apiKey=VALUE, api-key=VALUE, apikey=VALUE in query strings
	queryKeyPattern = regexp.MustCompile(`([?&])(api[_\-]?[kK]ey|key)=([^&\s"]+)`)
	bearerPattern   = regexp.MustCompile(`Bearer\s+([A-Za-z0-9_\-\.]+)`)
	// x-api-key (Anthropic) and x-goog-api-key (Gemini) headers
	headerKeyPattern = regexp.MustCompile(`(?i)(x-(?:goog-)?api-key):\s*([^\s]+)`)
	// user:password@ in postgres:// and redis:// connection strings
	urlPasswordPattern = regexp.MustCompile(`([a-z][a-z0-9+.\-]*://[^:/@\s]*):([^@\s]+)@`)
)

// MaskSensitiveData masks API keys, tokens and connection string passwords
// so they never reach logs or HTTP responses
func MaskSensitiveData(s string) string {
	if s == "" {
		return s
	}

	s = queryKeyPattern.ReplaceAllString(s, `${1}${2}=***MASKED***`)
	s = bearerPattern.ReplaceAllString(s, `Bearer ***MASKED***`)
	s = headerKeyPattern.ReplaceAllString(s, `${1}: ***MASKED***`)
	s = urlPasswordPattern.ReplaceAllString(s, `${1}:***MASKED***@`)

	return s
}

// MaskSensitiveError wraps an error and masks sensitive data when the error is converted to string
func MaskSensitiveError(err error) error {
	if err == nil {
		return nil
	}
	return &maskedError{err: err}
}

type maskedError struct {
	err error
}

func (e *maskedError) Error() string {
	return MaskSensitiveData(e.err.Error())
}

func (e *maskedError) Unwrap() error {
	return e.err
}

func ExitOnError(msg string, err error) {
	slog.Error(msg, "err", MaskSensitiveError(err))
	os.Exit(1)
}
