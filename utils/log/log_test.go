package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConvertStringToLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
	}
	for input, expected := range cases {
		level, err := convertStringToLogLevel(input)
		if err != nil {
			t.Errorf("unexpected error for %s: %v", input, err)
		}
		if level != expected {
			t.Errorf("expected %v for %s, got %v", expected, input, level)
		}
	}

	level, err := convertStringToLogLevel("TRACE")
	if err == nil {
		t.Errorf("expected error for unknown level")
	}
	if level != slog.LevelInfo {
		t.Errorf("expected INFO fallback, got %v", level)
	}
}

func TestInitLogger_WritesFile(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	path := filepath.Join(t.TempDir(), "memoria.log")
	InitLogger(path, "INFO")
	slog.Info("## PID: 1 - Proceso Creado")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(content), "## PID: 1 - Proceso Creado") {
		t.Errorf("log line missing from file: %s", content)
	}
}

func TestNewLogger_FiltersByLevel(t *testing.T) {
	var sb strings.Builder
	logger, err := NewLogger(&sb, "WARN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("no debería aparecer")
	logger.Warn("## PID: 2 - Proceso Destruido")

	out := sb.String()
	if strings.Contains(out, "no debería aparecer") {
		t.Errorf("INFO line should be filtered: %s", out)
	}
	if !strings.Contains(out, "Proceso Destruido") {
		t.Errorf("WARN line missing: %s", out)
	}
}
