package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestNewLoggerDefaultsToInfoAndStdout(t *testing.T) {
	logger, err := NewLogger("", "json", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(zap.InfoLevel) {
		t.Fatal("expected info level to be enabled by default")
	}
	if logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected debug level to be disabled by default")
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := NewComponentLogger("debug", "json", path, ComponentWorker)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log file to contain output")
	}
}

func TestWithEntryIDRoundTrip(t *testing.T) {
	ctx := WithEntryID(context.Background(), "abc123")
	if got := EntryIDFromContext(ctx); got != "abc123" {
		t.Fatalf("got %q want %q", got, "abc123")
	}

	logger := zap.NewNop()
	enriched := WithContext(logger, ctx)
	if enriched == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestEntryIDFromContextEmptyWhenUnset(t *testing.T) {
	if got := EntryIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
