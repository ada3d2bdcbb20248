// Package agent implements the code-generation orchestrator: workspace
// acquisition, clone, synthesis, optional PR, and guaranteed teardown.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/echohq/echo-agent/internal/storage"
	"github.com/echohq/echo-agent/internal/types"
)

// taskLog appends activity entries to one task's log with a fresh
// heartbeat on every write. The read-modify-write is not atomic; only
// one orchestration run owns a given task id, so there is never a
// concurrent appender.
type taskLog struct {
	store  storage.Store
	taskID string
	logger *slog.Logger
}

func newTaskLog(store storage.Store, taskID string, logger *slog.Logger) *taskLog {
	return &taskLog{store: store, taskID: taskID, logger: logger}
}

// Append records one log entry and moves the task to status/step. With
// no task id (direct /generate calls) the entry only reaches the
// process log. Store failures are logged and swallowed; losing an
// activity line must not fail the run.
func (l *taskLog) Append(ctx context.Context, message string, status types.TaskStatus, step string) {
	l.logger.Info(message, "step", step, "status", status)
	if l.taskID == "" {
		return
	}

	task, err := l.store.GetTask(ctx, l.taskID)
	if err != nil {
		l.logger.Error("failed to read task log", "task_id", l.taskID, "error", err)
		return
	}
	if task == nil {
		l.logger.Warn("task vanished, dropping log entry", "task_id", l.taskID)
		return
	}
	if !task.Status.CanTransitionTo(status) {
		l.logger.Warn("illegal task transition, dropping log entry",
			"task_id", l.taskID, "from", task.Status, "to", status)
		return
	}

	logs := append(task.Logs, types.TaskLogEntry{
		Timestamp: time.Now().UTC(),
		Message:   message,
		Status:    string(status),
	})

	applied, err := l.store.UpdateTaskActivity(ctx, l.taskID, logs, status, step)
	if err != nil {
		l.logger.Error("failed to append task log", "task_id", l.taskID, "error", err)
		return
	}
	if !applied {
		l.logger.Debug("task already terminal, log entry dropped", "task_id", l.taskID)
	}
}
