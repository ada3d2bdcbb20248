package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/echohq/echo-agent/internal/agent"
	"github.com/echohq/echo-agent/internal/llm"
	"github.com/echohq/echo-agent/internal/types"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"model":  s.svc.BackendName(),
		"device": "cpu",
		"llm":    s.svc.Available(),
	})
}

func (s *Server) handleLogs(c *gin.Context) {
	var lines []string
	if s.ring != nil {
		lines = s.ring.Lines()
	}
	c.JSON(http.StatusOK, gin.H{"logs": lines})
}

type embedRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleEmbed(c *gin.Context) {
	var req embedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	if s.encoder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "encoder unavailable"})
		return
	}

	embedding, err := s.encoder.Encode(c.Request.Context(), req.Text)
	if err != nil {
		s.logger.Error("embedding request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "embedding failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"embedding": embedding})
}

func (s *Server) handleAnalyzeComment(c *gin.Context) {
	id := c.Param("id")

	comment, err := s.store.GetComment(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("failed to load comment", "comment_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to load comment"})
		return
	}
	if comment == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "comment not found"})
		return
	}

	s.worker.Process(c.Request.Context(), types.ChangeEvent{ID: comment.ID, Content: comment.Content})
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "comment analyzed"})
}

func (s *Server) handleGenerate(c *gin.Context) {
	if !s.svc.Available() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "synthesis capability unavailable"})
		return
	}

	var req agent.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}

	result, err := s.orchestrator.Run(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	switch result.Failure {
	case agent.FailureClone, agent.FailureWorkspace, agent.FailureTree:
		c.JSON(http.StatusInternalServerError, result)
	default:
		// Synthesis coming up empty is reported in-band, not as a
		// transport error.
		c.JSON(http.StatusOK, result)
	}
}

type reportRequest struct {
	CommentIDs []string `json:"comment_ids" binding:"required"`
}

func (s *Server) handleGenerateReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment_ids is required"})
		return
	}

	contents, err := s.store.GetCommentContents(c.Request.Context(), req.CommentIDs)
	if err != nil {
		s.logger.Error("failed to load comments for report", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load comments"})
		return
	}
	if len(contents) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no comments found"})
		return
	}

	report, err := s.svc.GenerateReport(c.Request.Context(), contents)
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "inference backend unavailable"})
			return
		}
		s.logger.Error("report generation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (s *Server) handleTopComment(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment_ids is required"})
		return
	}

	top, err := s.store.TopComment(c.Request.Context(), req.CommentIDs)
	if err != nil {
		s.logger.Error("top comment lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if top == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analyzed comments in set"})
		return
	}
	c.JSON(http.StatusOK, top)
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages" binding:"required"`

	// Temperature distinguishes absent from an explicit 0.
	Temperature *float64 `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
}

func (s *Server) handleChatCompletions(c *gin.Context) {
	var req chatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages is required"})
		return
	}

	content, err := s.svc.ChatCompletion(c.Request.Context(), req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "inference backend unavailable"})
			return
		}
		s.logger.Error("chat completion failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "completion failed"})
		return
	}

	model := req.Model
	if model == "" {
		model = s.svc.BackendName()
	}
	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += approxTokens(m.Content)
	}
	completionTokens := approxTokens(content)
	c.JSON(http.StatusOK, gin.H{
		"id":      "chatcmpl-" + uuid.NewString(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []gin.H{
			{
				"index":         0,
				"message":       gin.H{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": gin.H{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	})
}

// approxTokens estimates a token count at four characters per token.
func approxTokens(s string) int {
	if s == "" {
		return 0
	}
	n := len(s) / 4
	if n < 1 {
		return 1
	}
	return n
}
