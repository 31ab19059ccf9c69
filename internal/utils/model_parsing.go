package utils

import (
	"fmt"
	"strings"
)

var providerAliases = map[string]string{
	"anthropic": "claude",
	"google":    "gemini",
}

// CanonicalProvider lowercases a provider name and resolves aliases
func CanonicalProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := providerAliases[name]; ok {
		return canonical
	}
	return name
}

// ParseForcedModel splits a "provider:model" spec. The prefix is only treated
// as a provider when isProvider accepts it, so model names that contain a
// colon (fine-tuned ids like "ft:gpt-4o:org") pass through whole.
// Examples:
//   - "openai:gpt-4o" -> ("openai", "gpt-4o")
//   - "anthropic:claude-sonnet-4-5" -> ("claude", "claude-sonnet-4-5")
//   - "gpt-4o" -> ("", "gpt-4o")
func ParseForcedModel(spec string, isProvider func(string) bool) (provider, model string, err error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return "", "", fmt.Errorf("model specification cannot be empty")
	}

	prefix, rest, found := strings.Cut(trimmed, ":")
	if !found {
		return "", trimmed, nil
	}

	candidate := CanonicalProvider(prefix)
	if isProvider == nil || !isProvider(candidate) {
		return "", trimmed, nil
	}

	model = strings.TrimSpace(rest)
	if model == "" {
		return "", "", fmt.Errorf("model cannot be empty in model specification '%s'", spec)
	}
	return candidate, model, nil
}
