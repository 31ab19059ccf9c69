package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v2"
	"google.golang.org/genai"
)

var (
	inputTooLargeMarkers = []string{
		"too large",
		"too long",
		"context length",
		"context_length_exceeded",
		"maximum context",
		"exceeds the maximum",
		"request_too_large",
	}
	invalidKeyMarkers = []string{
		"invalid api key",
		"incorrect api key",
		"invalid x-api-key",
		"api key not valid",
		"authentication_error",
	}
)

// ClassifyError maps an upstream failure onto the gateway error taxonomy.
// Caller cancellation and errors that are already classified pass through.
func ClassifyError(provider models.ProviderID, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}

	status := statusCode(err)
	msg := strings.ToLower(err.Error())

	switch {
	case status == http.StatusRequestEntityTooLarge || containsAny(msg, inputTooLargeMarkers):
		return models.NewProviderHardError(provider, "input too large", err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden || containsAny(msg, invalidKeyMarkers):
		return models.NewProviderHardError(provider, "invalid API key or access denied", err)
	case errors.Is(err, context.DeadlineExceeded) || status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return models.NewProviderTransientError(provider, "timeout", err)
	case status == http.StatusTooManyRequests:
		return models.NewProviderTransientError(provider, "rate limited", err)
	case status >= 500:
		return models.NewProviderTransientError(provider, "upstream unavailable", err)
	default:
		return models.NewProviderTransientError(provider, "request failed", err)
	}
}

// statusCode extracts the HTTP status from any of the SDK error types
func statusCode(err error) int {
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return genaiErr.Code
	}
	var genaiErrPtr *genai.APIError
	if errors.As(err, &genaiErrPtr) {
		return genaiErrPtr.Code
	}
	var status interface{ StatusCode() int }
	if errors.As(err, &status) {
		return status.StatusCode()
	}
	return 0
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
