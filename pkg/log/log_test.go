package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	tkerrors "github.com/go-tabkit/tabkit/pkg/errors"
)

func TestTestLogger_CapturesStructuredFields(t *testing.T) {
	logger, buffer := NewTestLogger(LevelDebug)

	logger.Info("Training started",
		OperationKey, OperationFit,
		SamplesKey, 100,
		FeaturesKey, 5,
	)

	if !strings.Contains(buffer.String(), "Training started") {
		t.Error("expected message in captured output")
	}

	entries, err := logger.GetLogEntries()
	if err != nil {
		t.Fatalf("GetLogEntries() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0][OperationKey] != OperationFit {
		t.Errorf("operation = %v, want %v", entries[0][OperationKey], OperationFit)
	}
}

func TestTestLogger_LevelFiltering(t *testing.T) {
	logger, buffer := NewTestLogger(LevelWarn)

	logger.Debug("too detailed")
	logger.Info("still too detailed")
	logger.Warn("important")

	if strings.Contains(buffer.String(), "too detailed") {
		t.Error("debug/info entries should be suppressed at warn level")
	}
	if !logger.ContainsMessage("important") {
		t.Error("warn entry should be captured")
	}
}

func TestTestLogger_WithFields(t *testing.T) {
	logger, _ := NewTestLogger(LevelInfo)
	named := logger.With(ModelNameKey, "RandomForestClassifier")

	named.Info("fitted")

	if !logger.ContainsField(ModelNameKey, "RandomForestClassifier") {
		t.Error("expected pre-populated model name field")
	}
}

func TestZerologProvider_EmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProviderWithWriter(LevelInfo, &buf)
	logger := provider.GetLoggerWithName("ensemble")

	logger.Info("Training completed", AccuracyKey, 0.97)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (raw: %s)", err, buf.String())
	}
	if entry[ComponentKey] != "ensemble" {
		t.Errorf("component = %v, want ensemble", entry[ComponentKey])
	}
	if entry[AccuracyKey] != 0.97 {
		t.Errorf("accuracy = %v, want 0.97", entry[AccuracyKey])
	}
}

func TestZerologProvider_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProviderWithWriter(LevelWarn, &buf)
	logger := provider.GetLogger()

	if logger.Enabled(context.Background(), LevelInfo) {
		t.Error("info should be disabled at warn level")
	}

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %s", buf.String())
	}

	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn entry should be emitted")
	}
}

func TestCaptureWarnings(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProviderWithWriter(LevelDebug, &buf)
	CaptureWarnings(provider)
	defer tkerrors.SetZerologWarnFunc(nil)

	tkerrors.Warn(tkerrors.NewUndefinedMetricWarning("precision", "no predicted samples", 0.0))

	if !strings.Contains(buf.String(), "precision") {
		t.Errorf("expected warning in log output, got %s", buf.String())
	}
}
