package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/echohq/echo-agent/internal/types"
)

// Service exposes the pipeline's inference operations over whatever
// Provider is configured. A nil provider means every operation returns
// ErrUnavailable, which callers surface as a 503.
type Service struct {
	provider Provider
}

// NewService wraps a provider. provider may be nil.
func NewService(provider Provider) *Service {
	return &Service{provider: provider}
}

// Available reports whether inference calls can be made.
func (s *Service) Available() bool {
	return s != nil && s.provider != nil
}

// BackendName returns the active backend's name, or "none".
func (s *Service) BackendName() string {
	if !s.Available() {
		return BackendNone
	}
	return s.provider.Name()
}

// AnalyzeComment classifies one piece of feedback. Out-of-range scores
// are clamped rather than rejected; structurally unusable output is an
// error so the caller's retry policy can kick in.
func (s *Service) AnalyzeComment(ctx context.Context, text string) (*types.AnalysisResult, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	out, err := s.provider.Complete(ctx, analyzeMessages(text), Options{
		Temperature: 0.1,
		MaxTokens:   300,
		Stop:        stopSequences,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis completion failed: %w", err)
	}

	result, err := ParseJSON[types.AnalysisResult](out)
	if err != nil {
		return nil, fmt.Errorf("analysis output unusable: %w", err)
	}
	result.Normalize()
	return &result, nil
}

// GenerateReport produces a markdown report over a batch of comments.
func (s *Service) GenerateReport(ctx context.Context, comments []string) (string, error) {
	if !s.Available() {
		return "", ErrUnavailable
	}

	out, err := s.provider.Complete(ctx, reportMessages(comments), Options{
		Temperature: 0.7,
		MaxTokens:   1000,
		Stop:        stopSequences,
	})
	if err != nil {
		return "", fmt.Errorf("report completion failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// codegenOutput is the file-set contract for code synthesis.
type codegenOutput struct {
	Files []struct {
		Path        string   `json:"path"`
		Content     string   `json:"content"`
		Explanation string   `json:"explanation"`
		Confidence  *float64 `json:"confidence"`
	} `json:"files"`
}

// GenerateCode synthesizes a candidate patch set for a task given the
// repository's file tree. An empty or malformed file set returns an
// error and no patches.
func (s *Service) GenerateCode(ctx context.Context, task string, fileTree []string) ([]types.Patch, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	out, err := s.provider.Complete(ctx, codegenMessages(task, fileTree), Options{
		Temperature: 0.1,
		MaxTokens:   4096,
		Stop:        stopSequences,
	})
	if err != nil {
		return nil, fmt.Errorf("code synthesis failed: %w", err)
	}

	parsed, err := ParseJSON[codegenOutput](out)
	if err != nil {
		return nil, fmt.Errorf("synthesis output unusable: %w", err)
	}

	var patches []types.Patch
	for _, f := range parsed.Files {
		if f.Path == "" || f.Content == "" {
			continue
		}
		confidence := 0.8
		if f.Confidence != nil && *f.Confidence >= 0 && *f.Confidence <= 1 {
			confidence = *f.Confidence
		}
		patches = append(patches, types.Patch{
			Path:        f.Path,
			NewCode:     f.Content,
			Explanation: f.Explanation,
			Confidence:  confidence,
		})
	}
	if len(patches) == 0 {
		return nil, fmt.Errorf("synthesis produced no usable files")
	}
	return patches, nil
}

// ChatCompletion is the passthrough behind the OpenAI-compatible proxy
// endpoint. A nil temperature means the caller left it out; an explicit
// zero requests greedy decoding and is forwarded as-is.
func (s *Service) ChatCompletion(ctx context.Context, messages []Message, temperature *float64, maxTokens int) (string, error) {
	if !s.Available() {
		return "", ErrUnavailable
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	temp := 0.7
	if temperature != nil {
		temp = *temperature
	}
	return s.provider.Complete(ctx, messages, Options{
		Temperature: temp,
		MaxTokens:   maxTokens,
		Stop:        stopSequences,
	})
}
