package logger

import (
	"context"
	"log/slog"
)

// TeeHandler writes every record to the local handler and copies it to a
// remote one. The local handler decides the returned error; the remote
// copy is best effort.
type TeeHandler struct {
	local  slog.Handler
	remote slog.Handler
}

// NewTeeHandler returns local alone when remote is nil.
func NewTeeHandler(local, remote slog.Handler) slog.Handler {
	if remote == nil {
		return local
	}
	return &TeeHandler{local: local, remote: remote}
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.local.Enabled(ctx, level) || h.remote.Enabled(ctx, level)
}

func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.remote.Enabled(ctx, r.Level) {
		_ = h.remote.Handle(ctx, r.Clone())
	}
	if !h.local.Enabled(ctx, r.Level) {
		return nil
	}
	return h.local.Handle(ctx, r)
}

func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TeeHandler{local: h.local.WithAttrs(attrs), remote: h.remote.WithAttrs(attrs)}
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	return &TeeHandler{local: h.local.WithGroup(name), remote: h.remote.WithGroup(name)}
}
