package log

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// stackTraceHandler is slog middleware that inspects each record for an
// error attribute and, when the error carries a cockroachdb/errors stack
// trace, republishes the trace as a separate string attribute.
type stackTraceHandler struct {
	next slog.Handler
}

// WrapWithStackTraces decorates a slog handler so that records logged with
// ErrAttr gain a StacktraceAttrKey attribute. Errors without safe details
// (plain stdlib errors) pass through unchanged.
func WrapWithStackTraces(next slog.Handler) slog.Handler {
	return &stackTraceHandler{next: next}
}

func (h *stackTraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *stackTraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if trace := recordStacktrace(r); trace != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, trace))
	}
	return h.next.Handle(ctx, r)
}

func (h *stackTraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &stackTraceHandler{next: h.next.WithAttrs(attrs)}
}

func (h *stackTraceHandler) WithGroup(name string) slog.Handler {
	return &stackTraceHandler{next: h.next.WithGroup(name)}
}

// recordStacktrace scans the record for the first ErrAttrKey attribute and
// extracts the stack trace from the error's safe details, if any.
func recordStacktrace(r slog.Record) string {
	trace := ""
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key != ErrAttrKey {
			return true
		}
		if err, ok := attr.Value.Any().(error); ok {
			trace = extractStacktrace(err)
		}
		return false
	})
	return trace
}

// extractStacktrace returns the stack trace recorded in the error's safe
// details, if any.
func extractStacktrace(err error) string {
	if details := errors.GetSafeDetails(err).SafeDetails; len(details) > 0 {
		return details[0]
	}
	return ""
}
