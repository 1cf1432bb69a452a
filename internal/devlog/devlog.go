// Package devlog adapts a device's log callback (§6: "one line per
// message, UTF-8") into an slog.Handler, so a caller who wants every
// library log line routed to their own application callback can attach
// one handler instead of hand-rolling a forwarding shim.
package devlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sink receives one formatted line per log record.
type Sink func(message string)

// Handler is an slog.Handler that formats each record as a single
// "[level] msg key=value ..." line and hands it to Sink.
type Handler struct {
	sink  Sink
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// New returns a Handler that forwards every record at or above level
// to sink.
func New(sink Sink, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{sink: sink, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", r.Level.String(), r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&b, " %s=%v", key, a.Value)
		return true
	})
	if h.sink != nil {
		h.sink(b.String())
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	next := *h
	if next.group != "" {
		next.group = next.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

var _ slog.Handler = (*Handler)(nil)
