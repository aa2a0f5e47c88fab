// Package logging builds the engine logger: one human-readable line per
// event with a [YYYY-MM-DD HH:MM:SS] prefix, echoed to the console and
// appended to a size-rotated log file.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxFileSizeMB = 2
	maxBackups    = 5
)

// Config controls logger construction.
type Config struct {
	// LogFile is the rotating file path. Empty means "./schedd.log".
	LogFile string
	// Level is the minimum level: debug, info, warn, error. Empty means info.
	Level string
	// ConsoleOnly disables the file sink (used by short-lived CLI commands).
	ConsoleOnly bool
}

// New returns a logger writing bracketed-timestamp lines to stdout and the
// rotating file, plus the resolved file path.
func New(cfg Config) (*slog.Logger, string) {
	level := parseLevel(cfg.Level)

	path := cfg.LogFile
	if path == "" {
		wd, _ := os.Getwd()
		path = filepath.Join(wd, "schedd.log")
	}

	var out io.Writer = os.Stdout
	if !cfg.ConsoleOnly {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxFileSizeMB,
			MaxBackups: maxBackups,
		})
	}

	return slog.New(NewLineHandler(out, level)), path
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LineHandler is a slog.Handler that renders records as
//
//	[2026-01-02 15:04:05] message key=val key=val
//
// with a WARN/ERROR tag on elevated levels. Writes are serialised so the
// console and file sinks never interleave partial lines.
type LineHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
}

// NewLineHandler creates a LineHandler writing to out at the given level.
func NewLineHandler(out io.Writer, level slog.Level) *LineHandler {
	return &LineHandler{mu: &sync.Mutex{}, out: out, level: level}
}

// Enabled reports whether records at the given level are emitted.
func (h *LineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle renders one record as a single line.
func (h *LineHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	b.WriteString("] ")
	switch {
	case r.Level >= slog.LevelError:
		b.WriteString("ERROR ")
	case r.Level >= slog.LevelWarn:
		b.WriteString("WARN ")
	}
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, a)
		return true
	})
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteString(" ")
	b.WriteString(a.Key)
	b.WriteString("=")
	v := a.Value.String()
	if strings.ContainsAny(v, " \t") {
		fmt.Fprintf(b, "%q", v)
	} else {
		b.WriteString(v)
	}
}

// WithAttrs returns a handler that prepends attrs to every record.
func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &LineHandler{mu: h.mu, out: h.out, level: h.level, attrs: merged}
}

// WithGroup is accepted but flattened; the line format has no nesting.
func (h *LineHandler) WithGroup(string) slog.Handler { return h }
