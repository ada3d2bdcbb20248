package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/echohq/echo-agent/internal/types"
)

// Subscriber holds one dedicated Postgres connection in LISTEN mode and
// streams decoded change events to a queue. A pooled connection cannot
// be used here: LISTEN is session state, so the connection must stay
// checked out for the subscriber's whole lifetime.
type Subscriber struct {
	connString string
	channel    string
	logger     *slog.Logger
}

// NewSubscriber creates a subscriber for the given notification channel.
func NewSubscriber(connString, channel string, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		connString: connString,
		channel:    channel,
		logger:     logger.With("component", "feed"),
	}
}

// Run connects, issues LISTEN, and pumps notifications into out until
// the context is canceled (returns nil) or the connection fails
// (returns the error so the supervisor can restart). Delivery into out
// blocks, so a full queue applies backpressure to the feed rather than
// dropping events.
func (s *Subscriber) Run(ctx context.Context, out chan<- types.ChangeEvent) error {
	conn, err := pgx.Connect(ctx, s.connString)
	if err != nil {
		return fmt.Errorf("failed to connect for LISTEN: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to LISTEN on %s: %w", s.channel, err)
	}
	s.logger.Info("subscribed to change feed", "channel", s.channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("lost feed connection: %w", err)
		}

		event, ok := Decode([]byte(notification.Payload))
		if !ok {
			s.logger.Debug("dropped undecodable notification",
				"channel", notification.Channel,
				"bytes", len(notification.Payload))
			continue
		}

		select {
		case out <- event:
		case <-ctx.Done():
			return nil
		}
	}
}
