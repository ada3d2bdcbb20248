// Package llm wraps the inference backends behind a single Provider
// interface: an OpenAI-compatible local server, the Anthropic API, or
// none at all. Higher-level operations (classification, reports, code
// synthesis) live in Service and share the same prompt contracts
// regardless of backend.
package llm

import (
	"context"
	"fmt"
)

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// Provider is a chat completion backend.
type Provider interface {
	// Complete runs one chat exchange and returns the assistant text.
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)

	// Name identifies the backend in logs and health output.
	Name() string
}

// Backend selector values accepted in configuration.
const (
	BackendLocal     = "local"
	BackendAnthropic = "anthropic"
	BackendNone      = "none"
)

// ErrUnavailable is returned by Service operations when no inference
// backend is configured.
var ErrUnavailable = fmt.Errorf("inference backend unavailable")
