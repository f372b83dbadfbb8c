// Package logging provides the console log/slog handler used by the ghsync CLI.
package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// TimeFormat is the timestamp layout of every console line
const TimeFormat = "2006-01-02 15:04:05"

// Options configures a ConsoleHandler
type Options struct {
	// Level is the minimum level written, slog.LevelInfo when nil
	Level slog.Leveler

	// Color enables level colouring
	Color bool
}

// ConsoleHandler writes records as "[time] message key=value ..." lines
type ConsoleHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Leveler
	colors map[slog.Level]*color.Color

	prefix string // preformatted attrs from WithAttrs
	groups []string
}

// NewConsoleHandler creates a handler writing to w
func NewConsoleHandler(w io.Writer, opts *Options) *ConsoleHandler {
	if opts == nil {
		opts = &Options{}
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}

	h := &ConsoleHandler{
		mu:    &sync.Mutex{},
		out:   w,
		level: level,
	}
	if opts.Color {
		h.colors = map[slog.Level]*color.Color{
			slog.LevelError: color.New(color.FgRed),
			slog.LevelWarn:  color.New(color.FgYellow),
			slog.LevelDebug: color.New(color.Faint),
		}
		// color.NoColor is decided from stdout, the handler writes to stderr
		for _, c := range h.colors {
			c.EnableColor()
		}
	}
	return h
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	if !r.Time.IsZero() {
		buf.WriteString("[")
		buf.WriteString(r.Time.Format(TimeFormat))
		buf.WriteString("] ")
	}
	buf.WriteString(r.Message)
	buf.WriteString(h.prefix)

	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&buf, h.groups, a)
		return true
	})

	line := buf.String()
	if c := h.colorFor(r.Level); c != nil {
		line = c.Sprint(line)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line+"\n")
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	var buf bytes.Buffer
	buf.WriteString(h.prefix)
	for _, a := range attrs {
		appendAttr(&buf, h.groups, a)
	}

	clone := *h
	clone.prefix = buf.String()
	return &clone
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func (h *ConsoleHandler) colorFor(level slog.Level) *color.Color {
	if h.colors == nil {
		return nil
	}
	switch {
	case level >= slog.LevelError:
		return h.colors[slog.LevelError]
	case level >= slog.LevelWarn:
		return h.colors[slog.LevelWarn]
	case level < slog.LevelInfo:
		return h.colors[slog.LevelDebug]
	}
	return nil
}

func appendAttr(buf *bytes.Buffer, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		nested := groups
		if a.Key != "" {
			nested = append(append([]string(nil), groups...), a.Key)
		}
		for _, ga := range a.Value.Group() {
			appendAttr(buf, nested, ga)
		}
		return
	}

	buf.WriteByte(' ')
	for _, g := range groups {
		buf.WriteString(g)
		buf.WriteByte('.')
	}
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	buf.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindTime:
		s = v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		s = v.Duration().String()
	default:
		s = fmt.Sprint(v.Any())
	}

	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// Level maps the --quiet flag to a minimum level
func Level(quiet bool) slog.Level {
	if quiet {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// IsTerminal reports whether w is a terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// New returns a logger writing console lines to w, coloured when w is a terminal
func New(w io.Writer, quiet bool) *slog.Logger {
	return slog.New(NewConsoleHandler(w, &Options{
		Level: Level(quiet),
		Color: IsTerminal(w),
	}))
}
