package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
	DefaultFileName   = "tablesync.log"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config groups structured logging and optional file output.
type Config struct {
	Slog SlogConfig
	File FileConfig
}

// SlogConfig controls the slog handler.
type SlogConfig struct {
	Level      Level
	Format     Format
	Color      bool // ANSI level colors, text format only
	TimeStamps bool
	Source     bool
}

// FileConfig describes a rotating log file. If Path is empty and Dir is set,
// the file is Dir/tablesync.log. Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Dir        string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FilePath resolves the log file location, or "" when file logging is off.
func (f FileConfig) FilePath() string {
	if f.Path != "" {
		return f.Path
	}
	if f.Dir != "" {
		return filepath.Join(f.Dir, DefaultFileName)
	}
	return ""
}

// Writer returns a rotating writer for the configured file, or nil.
func (f FileConfig) Writer() io.WriteCloser {
	p := f.FilePath()
	if p == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   p,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

// NewSlogger builds a logger writing to stdout and, when configured, to the
// rotating file as well.
func (c Config) NewSlogger() *slog.Logger {
	var w io.Writer = os.Stdout
	if fw := c.File.Writer(); fw != nil {
		w = io.MultiWriter(os.Stdout, fw)
	}
	return c.NewSloggerTo(w)
}

// NewSloggerTo builds a logger writing to w.
func (c Config) NewSloggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(string(c.Slog.Level)),
		AddSource: c.Slog.Source,
	}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = dropTime
	}
	var h slog.Handler
	switch {
	case c.Slog.Format == FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case c.Slog.Color:
		h = NewColorTextHandler(w, opts, c.Slog.TimeStamps)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
