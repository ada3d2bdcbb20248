// Package storage defines the row-store interface consumed by the
// pipeline. The postgres subpackage provides the production
// implementation; tests use in-memory fakes.
package storage

import (
	"context"
	"time"

	"github.com/echohq/echo-agent/internal/types"
)

// TopComment is the highest-priority analyzed comment in a set, joined
// with its content for the /top_comment endpoint.
type TopComment struct {
	CommentID         string         `json:"id"`
	Content           string         `json:"content"`
	SentimentScore    float64        `json:"score"`
	Category          types.Category `json:"category"`
	PriorityScore     float64        `json:"priority"`
	ActionableSummary string         `json:"summary"`
}

// Store is the row-store contract. Lookup methods return (nil, nil)
// when the row does not exist; errors are reserved for store failures.
type Store interface {
	// Comments
	GetComment(ctx context.Context, id string) (*types.Comment, error)
	GetCommentContents(ctx context.Context, ids []string) ([]string, error)

	// Embeddings. Upsert keyed by comment id; recomputation overwrites.
	UpsertEmbedding(ctx context.Context, commentID string, embedding []float64) error

	// Analysis. Insert-once per comment; re-inserting is an error.
	InsertAnalysis(ctx context.Context, result *types.AnalysisResult) error
	GetAnalysis(ctx context.Context, commentID string) (*types.AnalysisResult, error)
	TopComment(ctx context.Context, commentIDs []string) (*TopComment, error)

	// Monitoring
	GetActiveMonitor(ctx context.Context, postID string) (*types.MonitoredPost, error)

	// Agent tasks
	CreateTask(ctx context.Context, task *types.AgentTask) error
	GetTask(ctx context.Context, id string) (*types.AgentTask, error)

	// UpdateTaskActivity writes back the full log sequence together
	// with status, current step, and a fresh heartbeat. Updates that
	// would move a task out of a terminal status are dropped by the
	// store and reported via the returned bool.
	UpdateTaskActivity(ctx context.Context, id string, logs []types.TaskLogEntry, status types.TaskStatus, step string) (bool, error)

	// SetTaskResult replaces the opaque result payload.
	SetTaskResult(ctx context.Context, id string, result []byte) error

	// FailStaleTasks marks processing tasks whose heartbeat is older
	// than the cutoff as failed. Returns the number of tasks reaped.
	FailStaleTasks(ctx context.Context, olderThan time.Duration) (int, error)

	Close() error
}
