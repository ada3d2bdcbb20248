package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON decodes model output into T, tolerating the noise small
// models wrap around their JSON.
//
// Strategy sequence:
//  1. Direct parse of the trimmed text
//  2. Strip markdown code fences and retry
//  3. Slice from the first '{' to the last '}' and retry
func ParseJSON[T any](text string) (T, error) {
	var zero T

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return zero, fmt.Errorf("empty model output")
	}

	var out T
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out, nil
	}

	cleaned := removeCodeFences(trimmed)
	if err := json.Unmarshal([]byte(cleaned), &out); err == nil {
		return out, nil
	}

	extracted := extractObject(cleaned)
	if extracted == "" {
		return zero, fmt.Errorf("no JSON object found in model output: %s", truncate(trimmed, 200))
	}
	if err := json.Unmarshal([]byte(extracted), &out); err != nil {
		return zero, fmt.Errorf("failed to decode JSON from model output: %w", err)
	}
	return out, nil
}

// removeCodeFences strips a leading ```json (or bare ```) fence and the
// matching trailing fence.
func removeCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		if idx := strings.Index(cleaned, "\n"); idx >= 0 {
			cleaned = cleaned[idx+1:]
		} else {
			cleaned = strings.TrimPrefix(cleaned, "```json")
			cleaned = strings.TrimPrefix(cleaned, "```")
		}
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

// extractObject slices from the first '{' to the last '}', the span a
// chatty model's prose most plausibly surrounds.
func extractObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
