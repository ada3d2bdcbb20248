package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/echohq/echo-agent/internal/gitcli"
	"github.com/echohq/echo-agent/internal/llm"
	"github.com/echohq/echo-agent/internal/storage"
	"github.com/echohq/echo-agent/internal/types"
	"github.com/echohq/echo-agent/internal/workspace"
)

// Analyzer re-runs the comment pipeline on demand, covering tasks
// whose escalation raced ahead of analysis persistence.
type Analyzer interface {
	Process(ctx context.Context, event types.ChangeEvent)
}

// GenerateRequest is one orchestration invocation.
type GenerateRequest struct {
	RepoURL     string `json:"repo_url"`
	Task        string `json:"task"`
	TaskID      string `json:"task_id"`
	GithubToken string `json:"github_token,omitempty"`
	CreatePR    bool   `json:"create_pr,omitempty"`
}

// FailureKind names the pipeline stage a failed run stopped at, so
// callers can pick a response without parsing Message.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureWorkspace FailureKind = "workspace"
	FailureClone     FailureKind = "clone"
	FailureTree      FailureKind = "tree"
	FailureSynthesis FailureKind = "synthesis"
)

// GenerateResult is the outcome of one orchestration run. PR outcome is
// orthogonal: a completed run with a failed PR still reports success
// with patches, just without a PRURL.
type GenerateResult struct {
	Success       bool          `json:"success"`
	Patches       []types.Patch `json:"patches"`
	FilesAnalyzed int           `json:"files_analyzed"`
	FilesModified int           `json:"files_modified"`
	PRURL         string        `json:"pr_url,omitempty"`
	Message       string        `json:"message,omitempty"`
	Failure       FailureKind   `json:"-"`
}

// Config holds orchestrator tuning.
type Config struct {
	WorkspaceRoot    string
	MaxTreeFiles     int
	SynthesisTimeout time.Duration

	// StaleTaskAge bounds the pre-run sweep that fails abandoned
	// processing tasks before a new run starts.
	StaleTaskAge time.Duration
}

// Orchestrator executes generation runs end to end. One instance serves
// all requests; each run owns its workspace exclusively.
type Orchestrator struct {
	store    storage.Store
	svc      *llm.Service
	git      *gitcli.Git
	pr       *gitcli.PRCreator
	analyzer Analyzer
	cfg      Config
	logger   *slog.Logger
}

// New creates an orchestrator. pr may be nil when the gh CLI is absent;
// PR creation then fails softly like any other PR-stage error.
func New(store storage.Store, svc *llm.Service, git *gitcli.Git, pr *gitcli.PRCreator, analyzer Analyzer, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxTreeFiles <= 0 {
		cfg.MaxTreeFiles = 300
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = 10 * time.Minute
	}
	if cfg.StaleTaskAge <= 0 {
		cfg.StaleTaskAge = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		svc:      svc,
		git:      git,
		pr:       pr,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger.With("component", "agent"),
	}
}

// Run executes one generation request. The returned error is reserved
// for request-level problems (missing fields); pipeline failures are
// reported through GenerateResult.Success and Message.
func (o *Orchestrator) Run(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if req.RepoURL == "" || req.Task == "" {
		return nil, fmt.Errorf("repo_url and task are required")
	}

	logger := o.logger.With("task_id", req.TaskID)
	tl := newTaskLog(o.store, req.TaskID, logger)

	if n, err := o.store.FailStaleTasks(ctx, o.cfg.StaleTaskAge); err != nil {
		logger.Warn("stale task sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("failed stale tasks before run", "count", n)
	}

	tl.Append(ctx, fmt.Sprintf("Cloning repository %s...", req.RepoURL),
		types.TaskProcessing, "Cloning repository")

	o.analyzeIfMissing(ctx, req.TaskID)

	ws, err := workspace.New(o.cfg.WorkspaceRoot)
	if err != nil {
		tl.Append(ctx, "Failed to acquire workspace: "+truncateErr(err),
			types.TaskFailed, "Failed")
		return &GenerateResult{Success: false, Failure: FailureWorkspace,
			Message: "workspace acquisition failed"}, nil
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			logger.Warn("workspace cleanup failed", "path", ws.Path, "error", err)
		}
	}()

	if err := o.git.Clone(ctx, req.RepoURL, req.GithubToken, ws.Path); err != nil {
		tl.Append(ctx, "Clone failed: "+truncateErr(err), types.TaskFailed, "Failed")
		return &GenerateResult{Success: false, Failure: FailureClone,
			Message: "clone failed: " + truncateErr(err)}, nil
	}

	files, truncated, err := ws.FileTree(o.cfg.MaxTreeFiles)
	if err != nil {
		tl.Append(ctx, "Failed to enumerate repository: "+truncateErr(err),
			types.TaskFailed, "Failed")
		return &GenerateResult{Success: false, Failure: FailureTree,
			Message: "file tree enumeration failed"}, nil
	}
	msg := fmt.Sprintf("Repository cloned. Analyzing %d files...", len(files))
	if truncated {
		msg = fmt.Sprintf("Repository cloned. Analyzing first %d files (tree truncated)...", len(files))
	}
	tl.Append(ctx, msg, types.TaskProcessing, "Analyzing repository")

	synthCtx, cancel := context.WithTimeout(ctx, o.cfg.SynthesisTimeout)
	defer cancel()
	patches, err := o.svc.GenerateCode(synthCtx, req.Task, files)
	if err != nil {
		tl.Append(ctx, "Code synthesis failed: "+truncateErr(err), types.TaskFailed, "Failed")
		o.recordError(ctx, req.TaskID, err)
		return &GenerateResult{Success: false, Failure: FailureSynthesis,
			FilesAnalyzed: len(files),
			Message:       "code synthesis produced no usable patches"}, nil
	}
	tl.Append(ctx, fmt.Sprintf("Synthesized %d patches.", len(patches)),
		types.TaskProcessing, "Patches ready")

	result := &GenerateResult{
		Success:       true,
		Patches:       patches,
		FilesAnalyzed: len(files),
		FilesModified: len(patches),
	}

	if req.CreatePR {
		prURL, prErr := o.createPR(ctx, ws, req, patches)
		if prErr != nil {
			// Patches stay valid; only the PR is lost.
			tl.Append(ctx, "PR creation failed: "+truncateErr(prErr),
				types.TaskProcessing, "PR failed")
			logger.Warn("pull request creation failed", "error", prErr)
		} else {
			result.PRURL = prURL
			tl.Append(ctx, "Pull request opened: "+prURL, types.TaskProcessing, "PR created")
		}
	}

	tl.Append(ctx, "Task completed.", types.TaskCompleted, "Completed")
	return result, nil
}

// analyzeIfMissing re-enters the analysis pipeline for the task's
// triggering comment when no AnalysisResult exists yet.
func (o *Orchestrator) analyzeIfMissing(ctx context.Context, taskID string) {
	if taskID == "" || o.analyzer == nil {
		return
	}

	task, err := o.store.GetTask(ctx, taskID)
	if err != nil || task == nil || len(task.Result) == 0 {
		return
	}
	var payload types.TaskResult
	if json.Unmarshal(task.Result, &payload) != nil || payload.CommentID == "" {
		return
	}

	analysis, err := o.store.GetAnalysis(ctx, payload.CommentID)
	if err != nil || analysis != nil {
		return
	}

	o.logger.Info("running on-demand analysis for task comment",
		"task_id", taskID, "comment_id", payload.CommentID)
	o.analyzer.Process(ctx, types.ChangeEvent{ID: payload.CommentID})
}

// createPR writes the patches into the workspace, pushes a uniquely
// named branch, and opens the pull request.
func (o *Orchestrator) createPR(ctx context.Context, ws *workspace.Workspace, req GenerateRequest, patches []types.Patch) (string, error) {
	for _, p := range patches {
		if err := ws.WriteFile(p.Path, p.NewCode); err != nil {
			return "", fmt.Errorf("failed to apply patch: %w", err)
		}
	}

	branch := branchName(req.TaskID)
	if err := o.git.CheckoutBranch(ctx, ws.Path, branch); err != nil {
		return "", err
	}
	if err := o.git.CommitAll(ctx, ws.Path, commitMessage(req.Task)); err != nil {
		return "", err
	}
	if err := o.git.Push(ctx, ws.Path, branch); err != nil {
		return "", err
	}

	if o.pr == nil {
		return "", fmt.Errorf("gh CLI unavailable, branch pushed without PR")
	}
	title, body := prContent(req.Task, patches)
	return o.pr.Create(ctx, ws.Path, title, body, "", req.GithubToken)
}

// recordError attaches a structured error to the task result.
func (o *Orchestrator) recordError(ctx context.Context, taskID string, runErr error) {
	if taskID == "" {
		return
	}
	payload, err := json.Marshal(types.TaskResult{Error: truncateErr(runErr)})
	if err != nil {
		return
	}
	if err := o.store.SetTaskResult(ctx, taskID, payload); err != nil {
		o.logger.Error("failed to record task error", "task_id", taskID, "error", err)
	}
}

// branchName derives a unique branch from the task id, falling back to
// a random suffix for out-of-band runs.
func branchName(taskID string) string {
	suffix := taskID
	if suffix == "" {
		suffix = uuid.NewString()
	}
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return "echo-agent-fix-" + suffix
}

func commitMessage(task string) string {
	summary := task
	if len(summary) > 72 {
		summary = summary[:69] + "..."
	}
	return "Agent: " + summary
}

// prContent derives the PR title and body from the task and patch set.
func prContent(task string, patches []types.Patch) (string, string) {
	title := "Agent: " + task
	if len(title) > 60 {
		title = title[:57] + "..."
	}

	var b strings.Builder
	b.WriteString("This PR was automatically generated by the Echo Agent based on community feedback.\n\n")
	b.WriteString("### Feedback Context\n> " + task + "\n\n")
	b.WriteString("### Changes Summary\n")
	for _, p := range patches {
		explanation := p.Explanation
		if explanation == "" {
			explanation = "Automatic patch generated based on community feedback signals."
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", p.Path, explanation)
	}
	return title, b.String()
}

// truncateErr bounds error text surfaced into logs and task records.
func truncateErr(err error) string {
	msg := err.Error()
	if len(msg) > 300 {
		msg = msg[:300] + "... (truncated)"
	}
	return msg
}
