// Package dispatch turns escalated comments into pending agent tasks
// and pokes the external runner. Everything here is advisory: failures
// are logged and swallowed, never raised back into the pipeline.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/echohq/echo-agent/internal/storage"
	"github.com/echohq/echo-agent/internal/types"
)

// initialStep is the first activity line on an escalation-created task.
const initialStep = "Initializing autonomous analysis of high-priority feedback."

// Dispatcher creates agent tasks for comments on actively monitored
// posts.
type Dispatcher struct {
	store      storage.Store
	runnerURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a dispatcher. runnerURL may be empty, in which case no
// downstream trigger is attempted.
func New(store storage.Store, runnerURL string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:     store,
		runnerURL: runnerURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With("component", "dispatch"),
	}
}

// Dispatch resolves the comment's parent post, and when that post is
// under active monitoring, creates one pending agent task carrying the
// comment id and priority, then fires the best-effort runner trigger.
func (d *Dispatcher) Dispatch(ctx context.Context, commentID string, priority float64) {
	logger := d.logger.With("comment_id", commentID)

	comment, err := d.store.GetComment(ctx, commentID)
	if err != nil {
		logger.Error("failed to resolve comment for escalation", "error", err)
		return
	}
	if comment == nil || comment.PostID == "" {
		logger.Debug("escalated comment has no parent post, skipping")
		return
	}

	monitor, err := d.store.GetActiveMonitor(ctx, comment.PostID)
	if err != nil {
		logger.Error("failed to check post monitoring", "post_id", comment.PostID, "error", err)
		return
	}
	if monitor == nil {
		logger.Debug("post is not under active monitoring, skipping", "post_id", comment.PostID)
		return
	}

	payload, err := json.Marshal(types.TaskResult{CommentID: commentID, Priority: priority})
	if err != nil {
		logger.Error("failed to encode task payload", "error", err)
		return
	}

	task := &types.AgentTask{
		MonitoredPostID: monitor.ID,
		TaskType:        types.TaskTypeAnalyze,
		Status:          types.TaskPending,
		CurrentStep:     initialStep,
		Result:          payload,
	}
	if err := d.store.CreateTask(ctx, task); err != nil {
		logger.Error("failed to create agent task", "monitored_post_id", monitor.ID, "error", err)
		return
	}
	logger.Info("created agent task",
		"task_id", task.ID, "monitored_post_id", monitor.ID, "priority", priority)

	d.trigger(ctx, task.ID)
}

// trigger pokes the external runner. Unreachable runners are logged,
// the escalation is not retried.
func (d *Dispatcher) trigger(ctx context.Context, taskID string) {
	if d.runnerURL == "" {
		return
	}

	body, _ := json.Marshal(map[string]string{"task_id": taskID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.runnerURL, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("failed to build runner trigger", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Warn("runner trigger unreachable", "task_id", taskID, "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		d.logger.Warn("runner trigger rejected", "task_id", taskID, "status", resp.StatusCode)
		return
	}
	d.logger.Info("runner triggered", "task_id", taskID)
}
