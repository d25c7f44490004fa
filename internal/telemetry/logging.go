package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// sensitiveKeys are attribute keys whose values are masked down to their last four characters.
var sensitiveKeys = map[string]bool{
	"phone":           true,
	"phone_number":    true,
	"msisdn":          true,
	"secondary_phone": true,
}

func NewLogger(level slog.Level) *slog.Logger {
	return NewLoggerWithWriter(os.Stdout, level)
}

// NewLoggerWithWriter builds the JSON logger with trace correlation and phone masking.
func NewLoggerWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	baseHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactSensitive,
	})

	handler := &traceHandler{baseHandler: baseHandler}
	return slog.New(handler)
}

// ParseLevel maps LOG_LEVEL values to slog levels, defaulting to info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redactSensitive(_ []string, a slog.Attr) slog.Attr {
	if !sensitiveKeys[a.Key] || a.Value.Kind() != slog.KindString {
		return a
	}
	return slog.String(a.Key, MaskTail(a.Value.String(), 4))
}

// MaskTail replaces all but the last keep characters of s with '*'.
func MaskTail(s string, keep int) string {
	runes := []rune(s)
	if len(runes) <= keep {
		return s
	}
	return strings.Repeat("*", len(runes)-keep) + string(runes[len(runes)-keep:])
}

type traceHandler struct {
	baseHandler slog.Handler
	groups      []string
	attrs       []slog.Attr
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.baseHandler.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := h.baseHandler

	if traceID := TraceID(ctx); traceID != "" {
		traceAttrs := []slog.Attr{slog.String("trace_id", traceID)}
		if spanID := SpanID(ctx); spanID != "" {
			traceAttrs = append(traceAttrs, slog.String("span_id", spanID))
		}
		handler = handler.WithAttrs(traceAttrs)
	}

	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}

	for _, group := range h.groups {
		handler = handler.WithGroup(group)
	}

	return handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	newAttrs = append(newAttrs, attrs...)

	return &traceHandler{
		baseHandler: h.baseHandler,
		groups:      h.groups,
		attrs:       newAttrs,
	}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, 0, len(h.groups)+1)
	newGroups = append(newGroups, h.groups...)
	newGroups = append(newGroups, name)

	return &traceHandler{
		baseHandler: h.baseHandler,
		groups:      newGroups,
		attrs:       h.attrs,
	}
}
