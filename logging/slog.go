package logging

import (
	"context"
	"log/slog"
)

// SlogHandler wraps another slog.Handler and adds executor and thread attrs
// taken from the ctx passed to the *Context logging calls.
type SlogHandler struct {
	next slog.Handler
}

// NewSlogHandler wraps next.
func NewSlogHandler(next slog.Handler) *SlogHandler {
	return &SlogHandler{next: next}
}

func (h *SlogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SlogHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		executor, thread := bindingFields(ctx)
		if executor != "" {
			r.AddAttrs(slog.String(ExecutorKey, executor))
		}
		if thread != "" {
			r.AddAttrs(slog.String(ThreadKey, thread))
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SlogHandler{next: h.next.WithAttrs(attrs)}
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	return &SlogHandler{next: h.next.WithGroup(name)}
}
