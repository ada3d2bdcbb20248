// Package logging wires the process-wide slog handler. Records are
// written to stderr and mirrored into a bounded in-memory ring buffer
// that backs the GET /logs endpoint.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultRingSize matches the /logs contract: the last 100 lines.
const DefaultRingSize = 100

// Ring is a fixed-capacity buffer of rendered log lines.
// Safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	lines []string
	size  int
	next  int
	full  bool
}

// NewRing creates a ring buffer holding at most size lines.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{
		lines: make([]string, size),
		size:  size,
	}
}

// Append adds one rendered line, evicting the oldest when full.
func (r *Ring) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[r.next] = line
	r.next = (r.next + 1) % r.size
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns the buffered lines in append order, oldest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]string, 0, r.size)
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}

// Tail returns the buffered lines joined with newlines.
func (r *Ring) Tail() string {
	return strings.Join(r.Lines(), "\n")
}

// ringHandler tees slog records into a Ring alongside a delegate handler.
type ringHandler struct {
	delegate slog.Handler
	ring     *Ring
	attrs    []slog.Attr
	groups   []string
}

// NewHandler returns a slog handler writing text records to stderr and
// mirroring each rendered line into ring.
func NewHandler(ring *Ring, level slog.Leveler) slog.Handler {
	return &ringHandler{
		delegate: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		ring:     ring,
	}
}

func (h *ringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.delegate.Enabled(ctx, level)
}

func (h *ringHandler) Handle(ctx context.Context, rec slog.Record) error {
	var sb strings.Builder
	sb.WriteString(rec.Time.Format(time.RFC3339))
	sb.WriteString(" ")
	sb.WriteString(rec.Level.String())
	sb.WriteString(" ")
	sb.WriteString(rec.Message)

	prefix := strings.Join(h.groups, ".")
	appendAttr := func(a slog.Attr) {
		key := a.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		fmt.Fprintf(&sb, " %s=%v", key, a.Value)
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		appendAttr(a)
		return true
	})

	h.ring.Append(sb.String())
	return h.delegate.Handle(ctx, rec)
}

func (h *ringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &ringHandler{
		delegate: h.delegate.WithAttrs(attrs),
		ring:     h.ring,
		attrs:    combined,
		groups:   h.groups,
	}
}

func (h *ringHandler) WithGroup(name string) slog.Handler {
	return &ringHandler{
		delegate: h.delegate.WithGroup(name),
		ring:     h.ring,
		attrs:    h.attrs,
		groups:   append(append([]string{}, h.groups...), name),
	}
}

// Setup installs the tee handler as the slog default and returns the
// ring that captures the tail of the process log.
func Setup(level slog.Leveler) *Ring {
	ring := NewRing(DefaultRingSize)
	slog.SetDefault(slog.New(NewHandler(ring, level)))
	return ring
}
