package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
)

func newStackTraceLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return slog.New(WrapWithStackTraces(handler))
}

func decodeLogEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestStackTraceHandler_ExtractsStacktrace(t *testing.T) {
	var buf bytes.Buffer
	logger := newStackTraceLogger(&buf, slog.LevelInfo)

	err := errors.New("fit failed")
	logger.Error("training aborted", ErrAttr(err))

	entry := decodeLogEntry(t, &buf)
	if entry["msg"] != "training aborted" {
		t.Errorf("msg = %v, want %q", entry["msg"], "training aborted")
	}
	trace, ok := entry[StacktraceAttrKey].(string)
	if !ok || trace == "" {
		t.Fatalf("expected a %s attribute for a stack-carrying error, got %v",
			StacktraceAttrKey, entry[StacktraceAttrKey])
	}
}

func TestStackTraceHandler_PlainErrorPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	logger := newStackTraceLogger(&buf, slog.LevelInfo)

	// stdlibのエラーはsafe detailsを持たないため属性は追加されない
	logger.Error("load failed", ErrAttr(fmt.Errorf("no such file")))

	entry := decodeLogEntry(t, &buf)
	if _, exists := entry[StacktraceAttrKey]; exists {
		t.Errorf("unexpected %s attribute for a plain error", StacktraceAttrKey)
	}
	if entry[ErrAttrKey] != "no such file" {
		t.Errorf("error attribute = %v, want %q", entry[ErrAttrKey], "no such file")
	}
}

func TestStackTraceHandler_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newStackTraceLogger(&buf, slog.LevelWarn)

	ctx := context.Background()
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug should be disabled at warn level")
	}
	if !logger.Enabled(ctx, slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info record should be filtered, got %q", buf.String())
	}
}

func TestStackTraceHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newStackTraceLogger(&buf, slog.LevelInfo)

	logger.With(ModelNameKey, "VotingClassifier").
		Error("ensemble fit failed", ErrAttr(errors.New("member diverged")))

	entry := decodeLogEntry(t, &buf)
	if entry[ModelNameKey] != "VotingClassifier" {
		t.Errorf("%s = %v, want VotingClassifier", ModelNameKey, entry[ModelNameKey])
	}
	if _, ok := entry[StacktraceAttrKey].(string); !ok {
		t.Error("stacktrace attribute lost after WithAttrs")
	}
}
