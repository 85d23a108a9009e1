package logging

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/config"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("writer broken")
}

func TestParseLevel_MapsKnownNames(t *testing.T) {
	cases := map[string]slog.Leveler{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for raw, want := range cases {
		got, err := parseLevel(raw)
		if err != nil {
			t.Fatalf("parseLevel(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parseLevel(%q) = %v, expected %v", raw, got, want)
		}
	}

	if _, err := parseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level name")
	}
}

func TestConfigure_RejectsUnknownLevel(t *testing.T) {
	m := NewManager()
	err := m.Configure(config.LoggingConfig{Level: "nope"}, "")
	if err == nil {
		t.Fatal("expected configure to fail on unknown level")
	}
}

func TestConfigure_WritesToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.log")

	m := NewManager()
	if err := m.Configure(config.LoggingConfig{Level: "debug", LogToFile: true}, path); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	defer m.Close()

	m.Logger("test").Info("hello from test", "key", "value")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Fatalf("log file missing record, got: %q", string(data))
	}
	if !strings.Contains(string(data), "component=test") {
		t.Fatalf("log file missing component attribute, got: %q", string(data))
	}
}

func TestConfigure_ReplacesPreviousLogFile(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	m := NewManager()
	if err := m.Configure(config.LoggingConfig{LogToFile: true}, first); err != nil {
		t.Fatalf("first configure failed: %v", err)
	}
	if err := m.Configure(config.LoggingConfig{LogToFile: true}, second); err != nil {
		t.Fatalf("second configure failed: %v", err)
	}
	defer m.Close()

	m.Logger("test").Info("after reconfigure")

	data, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("read second log file: %v", err)
	}
	if !strings.Contains(string(data), "after reconfigure") {
		t.Fatal("expected record in second log file")
	}

	firstData, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read first log file: %v", err)
	}
	if strings.Contains(string(firstData), "after reconfigure") {
		t.Fatal("expected first log file to stop receiving records")
	}
}

func TestTeeWriter_SurvivesBrokenDestination(t *testing.T) {
	var buf strings.Builder
	w := newTeeWriter(failingWriter{}, &buf)

	n, err := w.Write([]byte("record"))
	if err != nil {
		t.Fatalf("expected write to succeed past broken destination, got: %v", err)
	}
	if n != len("record") {
		t.Fatalf("expected full length %d, got %d", len("record"), n)
	}
	if buf.String() != "record" {
		t.Fatalf("expected healthy destination to receive record, got %q", buf.String())
	}
}

func TestTeeWriter_FailsWhenAllDestinationsFail(t *testing.T) {
	w := newTeeWriter(failingWriter{}, failingWriter{})

	if _, err := w.Write([]byte("record")); err == nil {
		t.Fatal("expected error when every destination fails")
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	m := NewManager()
	if err := m.Close(); err != nil {
		t.Fatalf("close without file should be nil, got: %v", err)
	}

	path := filepath.Join(t.TempDir(), "beacon.log")
	if err := m.Configure(config.LoggingConfig{LogToFile: true}, path); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close should be nil, got: %v", err)
	}
}
