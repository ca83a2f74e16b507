package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

// decodeLine は1行分のJSONログを読み取る。
func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestSetup_WritesStandardFields(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "info").Warn("oracle unavailable")

	entry := decodeLine(t, &buf)
	if entry["msg"] != "oracle unavailable" {
		t.Errorf("msg = %v, want %q", entry["msg"], "oracle unavailable")
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected time field")
	}
}

func TestSetup_OracleFallbackFields(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "info").Warn("oracle fallback",
		slog.String("kind", "task"),
		slog.String("outcome", "fallback_timeout"),
		slog.Duration("elapsed", 1500*time.Millisecond),
	)

	entry := decodeLine(t, &buf)
	if entry["kind"] != "task" || entry["outcome"] != "fallback_timeout" {
		t.Errorf("kind/outcome = %v/%v", entry["kind"], entry["outcome"])
	}
	// slogのJSONハンドラーはDurationをナノ秒の数値で出力する
	if entry["elapsed"] != float64(1500*time.Millisecond) {
		t.Errorf("elapsed = %v, want %v", entry["elapsed"], float64(1500*time.Millisecond))
	}
}

func TestSetup_ReminderDeliveryFields(t *testing.T) {
	var buf bytes.Buffer
	next := time.Date(2026, 3, 14, 9, 2, 0, 0, time.UTC)
	Setup(&buf, "info").Warn("reminder delivery failed",
		slog.String("reminder_id", "3f2a"),
		slog.Int("attempts", 2),
		slog.Time("next_attempt_at", next),
	)

	entry := decodeLine(t, &buf)
	if entry["reminder_id"] != "3f2a" {
		t.Errorf("reminder_id = %v, want 3f2a", entry["reminder_id"])
	}
	if entry["attempts"] != float64(2) {
		t.Errorf("attempts = %v, want 2", entry["attempts"])
	}
	if entry["next_attempt_at"] != "2026-03-14T09:02:00Z" {
		t.Errorf("next_attempt_at = %v", entry["next_attempt_at"])
	}
}

func TestSetupDefault_ReplacesGlobalLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupDefault(&buf, "debug")
	slog.Debug("sweep cycle", slog.Int("claimed", 3))

	entry := decodeLine(t, &buf)
	if entry["msg"] != "sweep cycle" || entry["claimed"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}
}

func TestSetup_LevelFilters(t *testing.T) {
	tests := []struct {
		level   string
		logged  func(l *slog.Logger)
		wantOut bool
	}{
		{"warn", func(l *slog.Logger) { l.Info("dropped") }, false},
		{"warn", func(l *slog.Logger) { l.Error("kept") }, true},
		{"error", func(l *slog.Logger) { l.Warn("dropped") }, false},
		{"debug", func(l *slog.Logger) { l.Debug("kept") }, true},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		tt.logged(Setup(&buf, tt.level))
		if got := buf.Len() > 0; got != tt.wantOut {
			t.Errorf("level %s: output = %v, want %v (%s)", tt.level, got, tt.wantOut, buf.String())
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warning ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
