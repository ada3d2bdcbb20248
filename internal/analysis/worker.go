package analysis

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/echohq/echo-agent/internal/llm"
	"github.com/echohq/echo-agent/internal/storage"
	"github.com/echohq/echo-agent/internal/types"
)

// classifyAttempts bounds the retry loop around classification.
const classifyAttempts = 3

// Dispatcher receives escalated comments. Implementations log their own
// failures; escalation is advisory and never propagates an error back
// into the pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, commentID string, priority float64)
}

// Worker drains the change-feed queue and runs the per-comment pipeline
// with bounded concurrency. One comment's failure never interrupts the
// feed or other in-flight comments.
type Worker struct {
	store      storage.Store
	encoder    llm.Encoder
	svc        *llm.Service
	dispatcher Dispatcher
	sem        *semaphore.Weighted
	maxWeight  int64
	logger     *slog.Logger

	// backoffBase scales the classification retry delays. Tests shrink
	// it; production leaves the default second.
	backoffBase time.Duration
}

// NewWorker creates a worker processing at most maxConcurrent comments
// at a time.
func NewWorker(store storage.Store, encoder llm.Encoder, svc *llm.Service, dispatcher Dispatcher, maxConcurrent int, logger *slog.Logger) *Worker {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:       store,
		encoder:     encoder,
		svc:         svc,
		dispatcher:  dispatcher,
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		maxWeight:   int64(maxConcurrent),
		logger:      logger.With("component", "analysis"),
		backoffBase: time.Second,
	}
}

// Run consumes events until the queue closes or the context is
// canceled, then waits for in-flight comments to finish. In-flight
// processing is detached from the run context: cancellation stops
// intake, never a comment already mid-pipeline.
func (w *Worker) Run(ctx context.Context, events <-chan types.ChangeEvent) {
	procCtx := context.WithoutCancel(ctx)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				w.drain()
				return
			}
			if err := w.sem.Acquire(ctx, 1); err != nil {
				w.drain()
				return
			}
			go func(e types.ChangeEvent) {
				defer w.sem.Release(1)
				w.Process(procCtx, e)
			}(event)
		case <-ctx.Done():
			w.drain()
			return
		}
	}
}

// drain blocks until every in-flight comment has released the
// semaphore.
func (w *Worker) drain() {
	if w.sem.Acquire(context.Background(), w.maxWeight) == nil {
		w.sem.Release(w.maxWeight)
	}
}

// Process runs the full pipeline for one event: embed, classify with
// retry, persist, escalate. Every failure is contained and logged.
func (w *Worker) Process(ctx context.Context, event types.ChangeEvent) {
	logger := w.logger.With("comment_id", event.ID)

	content := event.Content
	if content == "" {
		comment, err := w.store.GetComment(ctx, event.ID)
		if err != nil {
			logger.Error("failed to fetch comment for truncated event", "error", err)
			return
		}
		if comment == nil {
			logger.Debug("truncated event references unknown comment, dropping")
			return
		}
		content = comment.Content
	}
	if content == "" {
		logger.Debug("comment has no content, dropping")
		return
	}

	embedding, err := w.encoder.Encode(ctx, content)
	if err != nil {
		logger.Error("embedding failed", "error", err)
		return
	}
	if err := w.store.UpsertEmbedding(ctx, event.ID, embedding); err != nil {
		logger.Error("failed to persist embedding", "error", err)
		return
	}
	logger.Info("saved embedding", "dimensions", len(embedding))

	if !w.svc.Available() {
		logger.Warn("no inference backend, skipping classification")
		return
	}

	result, err := w.classifyWithRetry(ctx, content)
	if err != nil {
		logger.Warn("classification failed after all attempts, leaving comment unanalyzed", "error", err)
		return
	}
	result.CommentID = event.ID

	if err := w.store.InsertAnalysis(ctx, result); err != nil {
		logger.Error("failed to persist analysis", "error", err)
		return
	}
	logger.Info("saved analysis",
		"category", result.Category,
		"priority", result.PriorityScore,
		"sentiment", result.SentimentScore)

	if ShouldEscalate(result.PriorityScore, result.Category) {
		logger.Info("escalating high-priority feedback",
			"priority", result.PriorityScore, "category", result.Category)
		w.dispatcher.Dispatch(ctx, event.ID, result.PriorityScore)
	}
}

// classifyWithRetry attempts classification up to classifyAttempts
// times, backing off 2^attempt seconds after each failure (1s, 2s, 4s
// at the default base, 7s total before giving up).
func (w *Worker) classifyWithRetry(ctx context.Context, content string) (*types.AnalysisResult, error) {
	var lastErr error
	for attempt := 0; attempt < classifyAttempts; attempt++ {
		result, err := w.svc.AnalyzeComment(ctx, content)
		if err == nil {
			return result, nil
		}
		lastErr = err
		w.logger.Warn("classification attempt failed",
			"attempt", attempt+1, "error", err)

		delay := w.backoffBase << attempt
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
