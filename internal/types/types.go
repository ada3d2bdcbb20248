// Package types defines the domain types shared across the echo-agent
// pipeline: feed events, analysis results, agent tasks, and patches.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeEvent is the canonical shape of one feed notification after
// envelope decoding. Events missing an ID are never constructed; the
// decoder drops them instead. Content may be empty when the notifying
// side truncated an oversized payload, in which case the consumer
// re-fetches the row by ID.
type ChangeEvent struct {
	ID      string `json:"id"`
	Content string `json:"content"`

	// Raw is the original envelope payload, kept for diagnostics.
	Raw json.RawMessage `json:"-"`
}

// Comment is one row of the comments table.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Category classifies a piece of feedback.
type Category string

const (
	CategoryBug            Category = "bug"
	CategoryFeatureRequest Category = "feature_request"
	CategoryQuestion       Category = "question"
	CategoryGeneral        Category = "general"
)

// IsValid checks if the category value is valid.
func (c Category) IsValid() bool {
	switch c {
	case CategoryBug, CategoryFeatureRequest, CategoryQuestion, CategoryGeneral:
		return true
	}
	return false
}

// AnalysisResult is the persisted classification of one comment.
// It is created at most once per comment and never mutated.
type AnalysisResult struct {
	CommentID         string   `json:"comment_id"`
	SentimentScore    float64  `json:"sentiment_score"`
	Category          Category `json:"category"`
	PriorityScore     float64  `json:"priority_score"`
	ActionableSummary string   `json:"actionable_summary"`
	Keywords          []string `json:"keywords"`
}

// Validate checks field ranges before the result is persisted.
func (a *AnalysisResult) Validate() error {
	if a.CommentID == "" {
		return fmt.Errorf("comment_id is required")
	}
	if a.SentimentScore < -1 || a.SentimentScore > 1 {
		return fmt.Errorf("sentiment_score must be in [-1, 1] (got %v)", a.SentimentScore)
	}
	if !a.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", a.Category)
	}
	if a.PriorityScore < 0 || a.PriorityScore > 1 {
		return fmt.Errorf("priority_score must be in [0, 1] (got %v)", a.PriorityScore)
	}
	if len(a.Keywords) > 3 {
		return fmt.Errorf("at most 3 keywords allowed (got %d)", len(a.Keywords))
	}
	return nil
}

// Normalize clamps out-of-range model output into valid bounds rather
// than discarding an otherwise usable classification.
func (a *AnalysisResult) Normalize() {
	if a.SentimentScore < -1 {
		a.SentimentScore = -1
	}
	if a.SentimentScore > 1 {
		a.SentimentScore = 1
	}
	if a.PriorityScore < 0 {
		a.PriorityScore = 0
	}
	if a.PriorityScore > 1 {
		a.PriorityScore = 1
	}
	if !a.Category.IsValid() {
		a.Category = CategoryGeneral
	}
	if len(a.Keywords) > 3 {
		a.Keywords = a.Keywords[:3]
	}
}

// TaskStatus is the agent task state machine:
// pending → processing → {completed, failed}. Terminal states absorb
// further transitions.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// IsValid checks if the status value is valid.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskProcessing, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransitionTo reports whether s → next is a legal forward move.
// Self-transitions are allowed so repeated log appends can restate the
// current status without tripping the state machine.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s == next {
		return !s.IsTerminal()
	}
	switch s {
	case TaskPending:
		return next == TaskProcessing || next == TaskFailed
	case TaskProcessing:
		return next == TaskCompleted || next == TaskFailed
	}
	return false
}

// TaskLogEntry is one append-only activity log record on an agent task.
type TaskLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Status    string    `json:"status,omitempty"`
}

// TaskType distinguishes why an agent task exists.
type TaskType string

const (
	TaskTypeAnalyze      TaskType = "analyze"
	TaskTypeGenerateCode TaskType = "generate_code"
)

// AgentTask is the persisted unit of work tracking one autonomous
// code-generation attempt.
type AgentTask struct {
	ID              string          `json:"id"`
	MonitoredPostID string          `json:"monitored_post_id,omitempty"`
	TaskType        TaskType        `json:"task_type"`
	Status          TaskStatus      `json:"status"`
	CurrentStep     string          `json:"current_step"`
	Logs            []TaskLogEntry  `json:"logs"`
	Result          json.RawMessage `json:"result,omitempty"`
	LastHeartbeat   time.Time       `json:"last_heartbeat"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TaskResult is the structured payload stored in AgentTask.Result for
// escalation-created tasks.
type TaskResult struct {
	CommentID       string  `json:"comment_id,omitempty"`
	Priority        float64 `json:"priority,omitempty"`
	TaskDescription string  `json:"task_description,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// MonitoredPost marks a post whose feedback is under active watch.
type MonitoredPost struct {
	ID       string `json:"id"`
	PostID   string `json:"post_id"`
	RepoID   string `json:"repo_id"`
	IsActive bool   `json:"is_active"`
}

// Patch is one synthesized file replacement plus metadata.
type Patch struct {
	Path        string  `json:"path"`
	NewCode     string  `json:"new_code"`
	Explanation string  `json:"explanation,omitempty"`
	Confidence  float64 `json:"confidence"`
}
