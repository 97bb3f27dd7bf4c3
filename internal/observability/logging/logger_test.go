package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		" WARN ":   slog.LevelWarn,
		"warning":  slog.LevelWarn,
		"error":    slog.LevelError,
		"":         slog.LevelInfo,
		"verbose?": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTextLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTextLogger(&buf, "ragctl", "warn")
	logger.Info("index_completed", "chunks", 4)
	logger.Warn("index_ledger_write_failed", "content_hash", "abc")

	out := buf.String()
	if strings.Contains(out, "index_completed") {
		t.Fatalf("info record must be filtered at warn level:\n%s", out)
	}
	if !strings.Contains(out, "index_ledger_write_failed") || !strings.Contains(out, "service=ragctl") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
