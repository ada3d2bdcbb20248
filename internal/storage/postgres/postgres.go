// Package postgres implements the storage.Store interface on
// PostgreSQL using pgx connection pooling.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echohq/echo-agent/internal/storage"
	"github.com/echohq/echo-agent/internal/types"
)

// Storage implements storage.Store backed by a pgx pool.
type Storage struct {
	pool *pgxpool.Pool
}

// Compile-time check that Storage implements the Store interface.
var _ storage.Store = (*Storage)(nil)

// Config holds PostgreSQL connection configuration.
type Config struct {
	ConnString      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	HealthCheck     time.Duration
}

// New creates a PostgreSQL storage backend, verifies connectivity, and
// installs the schema (tables plus the change-feed trigger).
func New(ctx context.Context, cfg *Config) (*Storage, error) {
	if cfg == nil || cfg.ConnString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.HealthCheck > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheck
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Storage{pool: pool}, nil
}

// Close closes the connection pool and releases all resources.
func (s *Storage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// GetComment retrieves one comment by id. Returns (nil, nil) when the
// row does not exist.
func (s *Storage) GetComment(ctx context.Context, id string) (*types.Comment, error) {
	var c types.Comment
	err := s.pool.QueryRow(ctx, `
		SELECT id, post_id, user_id, content, created_at
		FROM comments
		WHERE id = $1
	`, id).Scan(&c.ID, &c.PostID, &c.UserID, &c.Content, &c.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment %s: %w", id, err)
	}
	return &c, nil
}

// GetCommentContents returns the content of every listed comment that
// exists, in creation order.
func (s *Storage) GetCommentContents(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT content FROM comments
		WHERE id = ANY($1)
		ORDER BY created_at
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get comment contents: %w", err)
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("failed to scan comment content: %w", err)
		}
		contents = append(contents, content)
	}
	return contents, rows.Err()
}

// UpsertEmbedding stores the embedding for a comment, overwriting any
// previous value. Recomputation for the same id is idempotent.
func (s *Storage) UpsertEmbedding(ctx context.Context, commentID string, embedding []float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO comment_embeddings (comment_id, embedding, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (comment_id) DO UPDATE
			SET embedding = EXCLUDED.embedding, updated_at = NOW()
	`, commentID, embedding)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for %s: %w", commentID, err)
	}
	return nil
}

// InsertAnalysis persists exactly one analysis row per comment. A
// duplicate insert surfaces the unique violation to the caller.
func (s *Storage) InsertAnalysis(ctx context.Context, result *types.AnalysisResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	keywords := result.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedback_analysis (
			comment_id, sentiment_score, category, priority_score,
			actionable_summary, keywords
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, result.CommentID, result.SentimentScore, result.Category,
		result.PriorityScore, result.ActionableSummary, keywords)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("analysis already exists for comment %s", result.CommentID)
		}
		return fmt.Errorf("failed to insert analysis for %s: %w", result.CommentID, err)
	}
	return nil
}

// GetAnalysis retrieves the analysis for a comment, or (nil, nil).
func (s *Storage) GetAnalysis(ctx context.Context, commentID string) (*types.AnalysisResult, error) {
	var r types.AnalysisResult
	err := s.pool.QueryRow(ctx, `
		SELECT comment_id, sentiment_score, category, priority_score,
		       actionable_summary, keywords
		FROM feedback_analysis
		WHERE comment_id = $1
	`, commentID).Scan(&r.CommentID, &r.SentimentScore, &r.Category,
		&r.PriorityScore, &r.ActionableSummary, &r.Keywords)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis for %s: %w", commentID, err)
	}
	return &r, nil
}

// TopComment returns the highest-priority analyzed comment in the set,
// or (nil, nil) when none of the comments has an analysis.
func (s *Storage) TopComment(ctx context.Context, commentIDs []string) (*storage.TopComment, error) {
	if len(commentIDs) == 0 {
		return nil, nil
	}

	var tc storage.TopComment
	err := s.pool.QueryRow(ctx, `
		SELECT fa.comment_id, c.content, fa.sentiment_score, fa.category,
		       fa.priority_score, fa.actionable_summary
		FROM feedback_analysis fa
		JOIN comments c ON c.id = fa.comment_id
		WHERE fa.comment_id = ANY($1)
		ORDER BY fa.priority_score DESC
		LIMIT 1
	`, commentIDs).Scan(&tc.CommentID, &tc.Content, &tc.SentimentScore,
		&tc.Category, &tc.PriorityScore, &tc.ActionableSummary)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get top comment: %w", err)
	}
	return &tc, nil
}

// GetActiveMonitor returns the active monitor for a post, or (nil, nil).
func (s *Storage) GetActiveMonitor(ctx context.Context, postID string) (*types.MonitoredPost, error) {
	var m types.MonitoredPost
	err := s.pool.QueryRow(ctx, `
		SELECT id, post_id, repo_id, is_active
		FROM monitored_posts
		WHERE post_id = $1 AND is_active = TRUE
		LIMIT 1
	`, postID).Scan(&m.ID, &m.PostID, &m.RepoID, &m.IsActive)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor for post %s: %w", postID, err)
	}
	return &m, nil
}

// CreateTask inserts a new agent task, assigning an id when unset.
func (s *Storage) CreateTask(ctx context.Context, task *types.AgentTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = types.TaskPending
	}
	if !task.Status.IsValid() {
		return fmt.Errorf("invalid task status: %s", task.Status)
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.LastHeartbeat = now

	logs := task.Logs
	if logs == nil {
		logs = []types.TaskLogEntry{}
	}
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return fmt.Errorf("failed to marshal task logs: %w", err)
	}

	var monitoredPostID *string
	if task.MonitoredPostID != "" {
		monitoredPostID = &task.MonitoredPostID
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO agent_tasks (
			id, monitored_post_id, task_type, status, current_step,
			logs, result, last_heartbeat, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, task.ID, monitoredPostID, task.TaskType, task.Status, task.CurrentStep,
		logsJSON, nullableJSON(task.Result), task.LastHeartbeat, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves one agent task by id, or (nil, nil).
func (s *Storage) GetTask(ctx context.Context, id string) (*types.AgentTask, error) {
	var t types.AgentTask
	var monitoredPostID *string
	var logsJSON []byte
	var result []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, monitored_post_id, task_type, status, current_step,
		       logs, result, last_heartbeat, created_at
		FROM agent_tasks
		WHERE id = $1
	`, id).Scan(&t.ID, &monitoredPostID, &t.TaskType, &t.Status, &t.CurrentStep,
		&logsJSON, &result, &t.LastHeartbeat, &t.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}

	if monitoredPostID != nil {
		t.MonitoredPostID = *monitoredPostID
	}
	if err := json.Unmarshal(logsJSON, &t.Logs); err != nil {
		return nil, fmt.Errorf("failed to decode logs for task %s: %w", id, err)
	}
	if result != nil {
		t.Result = json.RawMessage(result)
	}
	return &t, nil
}

// UpdateTaskActivity writes back the full log sequence, status, step,
// and a fresh heartbeat. The WHERE clause drops updates against tasks
// already in a terminal status; the bool reports whether a row changed.
func (s *Storage) UpdateTaskActivity(ctx context.Context, id string, logs []types.TaskLogEntry, status types.TaskStatus, step string) (bool, error) {
	if !status.IsValid() {
		return false, fmt.Errorf("invalid task status: %s", status)
	}
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return false, fmt.Errorf("failed to marshal task logs: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE agent_tasks
		SET logs = $2, status = $3, current_step = $4, last_heartbeat = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`, id, logsJSON, status, step)
	if err != nil {
		return false, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetTaskResult replaces the opaque result payload of a task.
func (s *Storage) SetTaskResult(ctx context.Context, id string, result []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE agent_tasks SET result = $2 WHERE id = $1
	`, id, nullableJSON(result))
	if err != nil {
		return fmt.Errorf("failed to set result for task %s: %w", id, err)
	}
	return nil
}

// FailStaleTasks reaps processing tasks whose heartbeat is older than
// the cutoff, appending a timeout entry to each task's log.
func (s *Storage) FailStaleTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	entry := types.TaskLogEntry{
		Timestamp: time.Now().UTC(),
		Message:   "Marked as failed due to inactivity (timeout).",
		Status:    string(types.TaskFailed),
	}
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal timeout log entry: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE agent_tasks
		SET status = 'failed',
		    current_step = 'Failed: agent process timed out (no heartbeat)',
		    logs = logs || $2::jsonb
		WHERE status = 'processing' AND last_heartbeat < $1
	`, cutoff, entryJSON)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// nullableJSON maps an empty payload to SQL NULL.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
