package logging

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingKeepsLastN(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(fmt.Sprintf("line-%d", i))
	}

	assert.Equal(t, []string{"line-2", "line-3", "line-4"}, r.Lines())
}

func TestRingPartialFill(t *testing.T) {
	r := NewRing(10)
	r.Append("a")
	r.Append("b")

	assert.Equal(t, []string{"a", "b"}, r.Lines())
	assert.Equal(t, "a\nb", r.Tail())
}

func TestRingEmpty(t *testing.T) {
	r := NewRing(5)
	assert.Empty(t, r.Lines())
	assert.Equal(t, "", r.Tail())
}

func TestHandlerMirrorsRecords(t *testing.T) {
	ring := NewRing(10)
	logger := slog.New(NewHandler(ring, slog.LevelInfo))

	logger.Info("processing comment", "comment_id", "c-42")
	logger.Debug("should be filtered")
	logger.Warn("classification failed", "attempt", 2)

	lines := ring.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "processing comment")
	assert.Contains(t, lines[0], "comment_id=c-42")
	assert.Contains(t, lines[1], "WARN")
	assert.Contains(t, lines[1], "attempt=2")
}

func TestHandlerWithAttrs(t *testing.T) {
	ring := NewRing(10)
	logger := slog.New(NewHandler(ring, slog.LevelInfo)).With("component", "feed")

	logger.Info("subscribed")

	lines := ring.Lines()
	require.Len(t, lines, 1)
	assert.True(t, strings.Contains(lines[0], "component=feed"), lines[0])
}
