package logx

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newFileService(t *testing.T) (*Service, Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "duebot.log")
	svc, log := New(Config{
		Level: "debug",
		File:  FileConfig{Enabled: true, Path: path},
	}, nil)
	t.Cleanup(func() { svc.Close() })
	return svc, log, path
}

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("record %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLoggerWritesStructuredRecords(t *testing.T) {
	t.Parallel()
	_, log, path := newFileService(t)

	log.Info("cycle finished", String("scope", "global"), Int("items", 3))
	log.Warn("send failed", Err(errors.New("boom")))

	recs := readRecords(t, path)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0]["level"] != "info" || recs[0]["message"] != "cycle finished" {
		t.Fatalf("record[0] = %v", recs[0])
	}
	if recs[0]["scope"] != "global" || recs[0]["items"] != float64(3) {
		t.Fatalf("record[0] fields = %v", recs[0])
	}
	if recs[1]["level"] != "warn" || recs[1]["err"] != "boom" {
		t.Fatalf("record[1] = %v", recs[1])
	}
}

func TestLoggerWithFieldsAccumulate(t *testing.T) {
	t.Parallel()
	_, log, path := newFileService(t)

	log.With(String("comp", "scheduler")).Info("started", Bool("enabled", true))

	recs := readRecords(t, path)
	if len(recs) != 1 || recs[0]["comp"] != "scheduler" || recs[0]["enabled"] != true {
		t.Fatalf("records = %v", recs)
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "duebot.log")
	svc, log := New(Config{
		Level: "warn",
		File:  FileConfig{Enabled: true, Path: path},
	}, nil)
	defer svc.Close()

	log.Debug("dropped")
	log.Info("dropped too")
	log.Error("kept")

	recs := readRecords(t, path)
	if len(recs) != 1 || recs[0]["message"] != "kept" {
		t.Fatalf("records = %v", recs)
	}
}

func TestZeroAndNopLoggersAreSafe(t *testing.T) {
	t.Parallel()
	var zero Logger
	zero.Info("nowhere", String("k", "v"))
	Nop().Warn("nowhere either")
	if !zero.IsZero() {
		t.Fatal("zero Logger must report IsZero")
	}
	if Nop().IsZero() {
		t.Fatal("Nop logger is usable, not zero")
	}
}

func TestAdminSinkThresholdAndRendering(t *testing.T) {
	t.Parallel()
	// nil notifier keeps the queue worker inert so the queue can be
	// inspected directly.
	svc, _ := New(Config{
		Level: "debug",
		File:  FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "l.log")},
		Admin: AdminConfig{Enabled: true, RatePerSec: 100},
	}, nil)
	defer svc.Close()

	w := &adminWriter{svc: svc}
	if _, err := w.WriteLevel(zerolog.InfoLevel, []byte(`{"level":"info","message":"below threshold"}`)); err != nil {
		t.Fatalf("WriteLevel: %v", err)
	}
	if _, err := w.WriteLevel(zerolog.WarnLevel, []byte(`{"level":"warn","message":"send failed","platform":"line"}`)); err != nil {
		t.Fatalf("WriteLevel: %v", err)
	}

	select {
	case msg := <-svc.queue:
		if !strings.Contains(msg, "[WARN] send failed") || !strings.Contains(msg, "platform=line") {
			t.Fatalf("rendered line = %q", msg)
		}
	default:
		t.Fatal("warn record should be queued for the admin sink")
	}
	select {
	case msg := <-svc.queue:
		t.Fatalf("info record must not pass the threshold: %q", msg)
	default:
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"Warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
