package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echohq/echo-agent/internal/agent"
	"github.com/echohq/echo-agent/internal/analysis"
	"github.com/echohq/echo-agent/internal/gitcli"
	"github.com/echohq/echo-agent/internal/llm"
	"github.com/echohq/echo-agent/internal/logging"
	"github.com/echohq/echo-agent/internal/storage"
	"github.com/echohq/echo-agent/internal/types"
)

type fakeStore struct {
	storage.Store

	mu       sync.Mutex
	comments map[string]*types.Comment
	analyses map[string]*types.AnalysisResult
	top      *storage.TopComment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		comments: make(map[string]*types.Comment),
		analyses: make(map[string]*types.AnalysisResult),
	}
}

func (f *fakeStore) GetComment(ctx context.Context, id string) (*types.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments[id], nil
}

func (f *fakeStore) GetCommentContents(ctx context.Context, ids []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, id := range ids {
		if c, ok := f.comments[id]; ok {
			out = append(out, c.Content)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertEmbedding(ctx context.Context, commentID string, embedding []float64) error {
	return nil
}

func (f *fakeStore) InsertAnalysis(ctx context.Context, result *types.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyses[result.CommentID] = result
	return nil
}

func (f *fakeStore) TopComment(ctx context.Context, ids []string) (*storage.TopComment, error) {
	return f.top, nil
}

func (f *fakeStore) FailStaleTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(ctx context.Context, text string) ([]float64, error) {
	return []float64{0.5}, nil
}

type fakeProvider struct{ reply string }

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	return f.reply, nil
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(ctx context.Context, commentID string, priority float64) {}

func newTestServer(store *fakeStore, provider llm.Provider, rpm int) *Server {
	svc := llm.NewService(provider)
	worker := analysis.NewWorker(store, fakeEncoder{}, svc, noopDispatcher{}, 2, nil)
	ring := logging.NewRing(logging.DefaultRingSize)
	ring.Append("boot line")
	return New(Config{Addr: ":0", GenerateRPM: rpm}, store, svc, fakeEncoder{}, worker, nil, ring, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const generalReply = `{"sentiment_score": 0.1, "category": "general", "priority_score": 0.2,
	"actionable_summary": "none", "keywords": []}`

func TestHealth(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeProvider{}, 6)
	rec := doJSON(t, s, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["llm"])
	assert.Equal(t, "fake", body["model"])
}

func TestHealthNoBackend(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, 6)
	rec := doJSON(t, s, http.MethodGet, "/health", nil)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["llm"])
	assert.Equal(t, "none", body["model"])
}

func TestLogs(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, 6)
	rec := doJSON(t, s, http.MethodGet, "/logs", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Logs []string `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Logs, "boot line")
}

func TestEmbed(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, 6)
	rec := doJSON(t, s, http.MethodPost, "/embed", map[string]string{"text": "hello"})

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Embedding []float64 `json:"embedding"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []float64{0.5}, body.Embedding)
}

func TestEmbedMissingText(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, 6)
	rec := doJSON(t, s, http.MethodPost, "/embed", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeComment(t *testing.T) {
	store := newFakeStore()
	store.comments["c-1"] = &types.Comment{ID: "c-1", Content: "slow search"}

	s := newTestServer(store, &fakeProvider{reply: generalReply}, 6)
	rec := doJSON(t, s, http.MethodPost, "/analyze_comment/c-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, store.analyses["c-1"])
}

func TestAnalyzeCommentNotFound(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeProvider{reply: generalReply}, 6)
	rec := doJSON(t, s, http.MethodPost, "/analyze_comment/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateUnavailableWithoutBackend(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, 6)
	rec := doJSON(t, s, http.MethodPost, "/generate",
		map[string]any{"repo_url": "https://example.com/r.git", "task": "fix"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGenerateInvalidBody(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeProvider{}, 6)
	req := httptest.NewRequest(http.MethodPost, "/generate", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateRateLimit(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, 2)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := doJSON(t, s, http.MethodPost, "/generate",
			map[string]any{"repo_url": "x", "task": "y"})
		codes = append(codes, rec.Code)
	}
	// Burst of 2, then the limiter rejects before the handler runs.
	assert.Equal(t, http.StatusServiceUnavailable, codes[0])
	assert.Equal(t, http.StatusServiceUnavailable, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
}

func TestGenerateCloneFailureStatus(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	store := newFakeStore()
	svc := llm.NewService(&fakeProvider{reply: "{}"})
	worker := analysis.NewWorker(store, fakeEncoder{}, svc, noopDispatcher{}, 2, nil)
	git, err := gitcli.New(context.Background(), gitcli.Options{CloneTimeout: time.Minute})
	require.NoError(t, err)
	orch := agent.New(store, svc, git, nil, nil,
		agent.Config{WorkspaceRoot: t.TempDir(), MaxTreeFiles: 50}, nil)
	ring := logging.NewRing(logging.DefaultRingSize)
	s := New(Config{Addr: ":0", GenerateRPM: 6}, store, svc, fakeEncoder{}, worker, orch, ring, nil)

	rec := doJSON(t, s, http.MethodPost, "/generate", map[string]any{
		"repo_url": filepath.Join(t.TempDir(), "missing-repo"),
		"task":     "fix it",
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Contains(t, body.Message, "clone failed")
}

func TestGenerateReport(t *testing.T) {
	store := newFakeStore()
	store.comments["c-1"] = &types.Comment{ID: "c-1", Content: "please add exports"}

	s := newTestServer(store, &fakeProvider{reply: "## Report"}, 6)
	rec := doJSON(t, s, http.MethodPost, "/generate_report",
		map[string]any{"comment_ids": []string{"c-1"}})

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Report string `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "## Report", body.Report)
}

func TestGenerateReportNoComments(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeProvider{reply: "## Report"}, 6)
	rec := doJSON(t, s, http.MethodPost, "/generate_report",
		map[string]any{"comment_ids": []string{"missing"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTopComment(t *testing.T) {
	store := newFakeStore()
	store.top = &storage.TopComment{CommentID: "c-1", PriorityScore: 0.95, Category: "bug"}

	s := newTestServer(store, nil, 6)
	rec := doJSON(t, s, http.MethodPost, "/top_comment",
		map[string]any{"comment_ids": []string{"c-1", "c-2"}})

	require.Equal(t, http.StatusOK, rec.Code)
	var body storage.TopComment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "c-1", body.CommentID)
}

func TestTopCommentEmpty(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, 6)
	rec := doJSON(t, s, http.MethodPost, "/top_comment",
		map[string]any{"comment_ids": []string{"c-1"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatCompletions(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeProvider{reply: "Hello there."}, 6)
	rec := doJSON(t, s, http.MethodPost, "/v1/chat/completions", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Object  string `json:"object"`
		Choices []struct {
			Message llm.Message `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "chat.completion", body.Object)
	require.Len(t, body.Choices, 1)
	assert.Equal(t, "Hello there.", body.Choices[0].Message.Content)
	assert.Greater(t, body.Usage.PromptTokens, 0)
	assert.Greater(t, body.Usage.CompletionTokens, 0)
	assert.Equal(t, body.Usage.PromptTokens+body.Usage.CompletionTokens, body.Usage.TotalTokens)
}

func TestChatCompletionsUnavailable(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, 6)
	rec := doJSON(t, s, http.MethodPost, "/v1/chat/completions", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
