package logger

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// contextKey is a private type to avoid collisions in context.
type contextKey string

const (
	ctxRID     contextKey = "rid"
	ctxMID     contextKey = "mid"
	ctxUserID  contextKey = "user_id"
	ctxPageID  contextKey = "page_id"
	ctxLogger  contextKey = "logger"
	ctxHandler contextKey = "handler"
	ctxTraceID contextKey = "trace_id"
	ctxSpanID  contextKey = "span_id"
)

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if v := ctx.Value(ctxLogger); v != nil {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(ctxRID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// NewRID returns a fresh correlation identifier for one inbound event.
// Webhook deliveries carry no numeric sequence to derive an id from, so a
// random UUID is used; CompactRID shortens it for human-oriented output.
func NewRID() string {
	return uuid.NewString()
}

// WithEventMeta attaches common event identifiers to context.
func WithEventMeta(ctx context.Context, mid, userID, pageID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if mid != "" {
		ctx = context.WithValue(ctx, ctxMID, mid)
	}
	if userID != "" {
		ctx = context.WithValue(ctx, ctxUserID, userID)
	}
	if pageID != "" {
		ctx = context.WithValue(ctx, ctxPageID, pageID)
	}
	return ctx
}

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxHandler, handler)
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(ctxHandler); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithTrace attaches trace and span identifiers to context.
func WithTrace(ctx context.Context, traceID, spanID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if traceID != "" {
		ctx = context.WithValue(ctx, ctxTraceID, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, ctxSpanID, spanID)
	}
	return ctx
}

// TraceIDFrom extracts trace id from context.
func TraceIDFrom(ctx context.Context) string {
	return stringFromContext(ctx, ctxTraceID)
}

// SpanIDFrom extracts span id from context.
func SpanIDFrom(ctx context.Context) string {
	return stringFromContext(ctx, ctxSpanID)
}

// MIDFrom extracts the message id from context.
func MIDFrom(ctx context.Context) string {
	return stringFromContext(ctx, ctxMID)
}

// UserIDFrom extracts the page-scoped user id from context.
func UserIDFrom(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

// PageIDFrom extracts the page id from context.
func PageIDFrom(ctx context.Context) string {
	return stringFromContext(ctx, ctxPageID)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Sanitize trims non-printable runes from s to keep logs clean.
// It removes control characters (Unicode categories Cc, Cf) except for tab and newline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	b := strings.Builder{}
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			// skip
			continue
		}
		// also skip DEL character
		if r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeLimit applies Sanitize and limits the output length in runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	cleaned := Sanitize(s)
	// fast path
	if len([]rune(cleaned)) <= max {
		return cleaned
	}
	r := []rune(cleaned)
	return string(r[:max])
}

// CompactRID shortens a UUID rid to its leading segment for readability.
// Input that is not a canonical UUID is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	if len(rid) == 36 && strings.Count(rid, "-") == 4 {
		return rid[:8]
	}
	return rid
}
