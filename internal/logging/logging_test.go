package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"none":  LevelNone,
		"off":   LevelNone,
		"INFO":  LevelInfo,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLevelString(t *testing.T) {
	if LevelString(LevelInfo) != "info" {
		t.Errorf("LevelString(info) = %s", LevelString(LevelInfo))
	}
	if LevelString(LevelNone) != "none" {
		t.Errorf("LevelString(none) = %s", LevelString(LevelNone))
	}
}

func TestFileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	log, err := New(&Config{
		Level:    LevelInfo,
		Format:   FormatText,
		Output:   "file",
		FilePath: path,
		MaxSize:  10,
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	log.Info("hello", "key", "value")
	if err := log.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing entry: %s", data)
	}
	if !strings.Contains(string(data), "key=value") {
		t.Errorf("log file missing attribute: %s", data)
	}
}

func TestWithComponent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	log, err := New(&Config{
		Level:    LevelInfo,
		Format:   FormatJSON,
		Output:   "file",
		FilePath: path,
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	child := log.WithComponent("watcher")
	child.Info("started")
	log.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"component":"watcher"`) {
		t.Errorf("component attribute missing: %s", data)
	}
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	log, err := New(&Config{
		Level:    LevelInfo,
		Format:   FormatText,
		Output:   "file",
		FilePath: path,
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	log.Debug("invisible")
	log.Info("visible")
	log.Close()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "invisible") {
		t.Error("debug entry leaked at info level")
	}
	if !strings.Contains(string(data), "visible") {
		t.Error("info entry missing")
	}
}
