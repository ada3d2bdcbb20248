package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/echohq/echo-agent/internal/storage"
)

// Reaper periodically fails processing tasks whose heartbeat went
// silent, so crashed or hung runs do not stay "processing" forever.
type Reaper struct {
	store    storage.Store
	staleAge time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewReaper creates a reaper. staleAge is how old a heartbeat may get
// before the task is declared dead.
func NewReaper(store storage.Store, staleAge time.Duration, logger *slog.Logger) *Reaper {
	if staleAge <= 0 {
		staleAge = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		store:    store,
		staleAge: staleAge,
		interval: staleAge / 2,
		logger:   logger.With("component", "reaper"),
	}
}

// Run sweeps until the context is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep performs one reaping pass.
func (r *Reaper) Sweep(ctx context.Context) {
	n, err := r.store.FailStaleTasks(ctx, r.staleAge)
	if err != nil {
		r.logger.Error("stale task sweep failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Warn("failed stale tasks", "count", n, "older_than", r.staleAge)
	}
}
