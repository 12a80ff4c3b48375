package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhouzirui/z-voice/backend/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestInitWritesJSONFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	path := filepath.Join(t.TempDir(), "backend.log")
	closer, err := Init(config.LogConfig{Level: "info", File: path})
	if err != nil {
		t.Fatalf("Init err: %v", err)
	}

	slog.Info("chat request received", "session_id", "s1")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close err: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile err: %v", err)
	}
	if !strings.Contains(string(data), `"session_id":"s1"`) {
		t.Fatalf("log file missing record: %s", data)
	}
}
