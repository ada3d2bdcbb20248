package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/echohq/echo-agent/internal/types"
)

// Runner is the restartable unit the supervisor manages.
type Runner interface {
	Run(ctx context.Context, out chan<- types.ChangeEvent) error
}

// Supervisor keeps a feed runner alive, restarting it after a fixed
// delay whenever it exits with an error. Events from every incarnation
// flow through a single bounded queue.
type Supervisor struct {
	runner       Runner
	restartDelay time.Duration
	queueSize    int
	logger       *slog.Logger
}

// NewSupervisor wraps a runner with restart-on-failure behavior.
func NewSupervisor(runner Runner, restartDelay time.Duration, queueSize int, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Supervisor{
		runner:       runner,
		restartDelay: restartDelay,
		queueSize:    queueSize,
		logger:       logger.With("component", "feed"),
	}
}

// Start launches the supervision loop and returns the event queue. The
// queue is closed after the context is canceled and the current runner
// incarnation has returned, so consumers can range over it.
func (s *Supervisor) Start(ctx context.Context) <-chan types.ChangeEvent {
	out := make(chan types.ChangeEvent, s.queueSize)

	go func() {
		defer close(out)
		for {
			err := s.runner.Run(ctx, out)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				s.logger.Warn("feed runner exited, restarting",
					"error", err, "delay", s.restartDelay)
			} else {
				s.logger.Warn("feed runner exited without error, restarting",
					"delay", s.restartDelay)
			}

			select {
			case <-time.After(s.restartDelay):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
