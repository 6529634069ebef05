package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestNewSloggerJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelWarn, Format: FormatJSON}}
	l := cfg.NewSloggerTo(&buf)
	l.Info("hidden")
	l.Warn("shown", "module", "sync")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if m["msg"] != "shown" || m["module"] != "sync" {
		t.Fatalf("unexpected record: %v", m)
	}
	if _, ok := m["time"]; ok {
		t.Fatalf("time should be dropped when TimeStamps=false")
	}
}

func TestColorTextHandlerPrefixesLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelDebug, Color: true}}
	l := cfg.NewSloggerTo(&buf).With("worker", "reader")
	l.Warn("overflow")
	out := buf.String()
	if !strings.Contains(out, "\033[33mWARN\033[0m") {
		t.Fatalf("missing colored level: %q", out)
	}
	if !strings.Contains(out, "worker=reader") {
		t.Fatalf("attrs lost through WithAttrs: %q", out)
	}
}

func TestColorTextHandlerWritesRawLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelInfo, Color: true}}
	l := cfg.NewSloggerTo(&buf).WithGroup("bus")
	l.Info("drop warning", "dropped", 3, "note", "two words")
	l.Debug("filtered")
	out := buf.String()
	if strings.Contains(out, `\x1b`) || strings.Contains(out, "msg=") {
		t.Fatalf("level escaped into the message: %q", out)
	}
	if !strings.HasPrefix(out, "\033[32mINFO\033[0m  drop warning") {
		t.Fatalf("unexpected line start: %q", out)
	}
	if !strings.Contains(out, "bus.dropped=3") || !strings.Contains(out, `bus.note="two words"`) {
		t.Fatalf("grouped attrs not rendered: %q", out)
	}
	if strings.Contains(out, "filtered") {
		t.Fatalf("debug record passed an info handler: %q", out)
	}
}

func TestColorTextHandlerConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	l := slog.New(h).With("worker", "writer")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Warn("tick", "g", i, "n", j)
			}
		}(i)
	}
	wg.Wait()
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 400 {
		t.Fatalf("expected 400 lines, got %d", len(lines))
	}
	for _, ln := range lines {
		if !strings.HasPrefix(ln, "\033[33mWARN\033[0m  tick worker=writer g=") {
			t.Fatalf("interleaved or malformed line: %q", ln)
		}
	}
}

func TestFileConfigWriter(t *testing.T) {
	if (FileConfig{}).Writer() != nil {
		t.Fatalf("no path should mean no writer")
	}
	dir := t.TempDir()
	fc := FileConfig{Dir: dir}
	if fc.FilePath() != filepath.Join(dir, DefaultFileName) {
		t.Fatalf("unexpected path %s", fc.FilePath())
	}
	w := fc.Writer()
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()
	b, err := os.ReadFile(fc.FilePath())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "hello\n" {
		t.Fatalf("unexpected content %q", b)
	}
}
