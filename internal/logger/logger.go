// Package logger configures process-wide slog output. Everything goes to
// stderr because stdout carries the JSON-RPC stream. Component loggers
// carry a component attribute and can have their level overridden
// individually, so one noisy subsystem can be silenced (or one quiet one
// promoted to debug) without touching the rest.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

type Config struct {
	Level     slog.Level
	Format    string
	Output    io.Writer
	AddSource bool

	// ComponentLevels overrides the base level per component name,
	// e.g. {"store": slog.LevelDebug}.
	ComponentLevels map[string]slog.Level
}

func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

type state struct {
	sink   slog.Handler
	level  slog.Level
	levels map[string]slog.Level
}

var (
	mu  sync.RWMutex
	cur = state{
		sink:  slog.NewTextHandler(os.Stderr, nil),
		level: slog.LevelInfo,
	}
)

// Init installs the process-wide sink and levels. Loggers created before
// Init, including package-level ones, pick the new configuration up on
// their next log call.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	// The sink accepts everything; componentHandler gates levels so the
	// per-component overrides can go below the base level.
	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: cfg.AddSource,
	}
	var sink slog.Handler
	if cfg.Format == "json" {
		sink = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		sink = slog.NewTextHandler(cfg.Output, opts)
	}

	mu.Lock()
	cur = state{sink: sink, level: cfg.Level, levels: cfg.ComponentLevels}
	mu.Unlock()

	slog.SetDefault(root)
}

// componentHandler resolves the sink and the effective level on every
// call instead of capturing them at construction time.
type componentHandler struct {
	component string
	attrs     []slog.Attr
	groups    []string
}

func levelFor(component string) slog.Level {
	mu.RLock()
	defer mu.RUnlock()
	if lvl, ok := cur.levels[component]; ok {
		return lvl
	}
	return cur.level
}

func (h *componentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= levelFor(h.component)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	mu.RLock()
	sink := cur.sink
	mu.RUnlock()

	if h.component != "" {
		sink = sink.WithAttrs([]slog.Attr{slog.String("component", h.component)})
	}
	if len(h.attrs) > 0 {
		sink = sink.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		sink = sink.WithGroup(g)
	}
	return sink.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

var root = slog.New(&componentHandler{})

func Debug(msg string, args ...any) { root.Debug(msg, args...) }
func Info(msg string, args ...any)  { root.Info(msg, args...) }
func Warn(msg string, args ...any)  { root.Warn(msg, args...) }
func Error(msg string, args ...any) { root.Error(msg, args...) }

// ForComponent returns a logger tagged with a component attribute and
// honoring that component's level override.
func ForComponent(component string) *slog.Logger {
	return slog.New(&componentHandler{component: component})
}

func With(args ...any) *slog.Logger {
	return root.With(args...)
}
