// Package observability carries build-scoped log fields through a context.
// Stages tag their context once and every log line below picks the tags up.
package observability

import (
	"context"
	"log/slog"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/logfields"
)

// LogContext is the set of tags attached to a context.
type LogContext struct {
	BuildID string
	Stage   string
	Bundle  string
	Target  string
}

type ctxKey struct{}

func with(ctx context.Context, set func(*LogContext)) context.Context {
	lc := GetContext(ctx)
	set(&lc)
	return context.WithValue(ctx, ctxKey{}, lc)
}

// WithBuildID tags ctx with the id of the running build.
func WithBuildID(ctx context.Context, id string) context.Context {
	return with(ctx, func(lc *LogContext) { lc.BuildID = id })
}

// WithStage tags ctx with the pipeline stage, replacing any previous one.
func WithStage(ctx context.Context, stage string) context.Context {
	return with(ctx, func(lc *LogContext) { lc.Stage = stage })
}

func WithBundle(ctx context.Context, name string) context.Context {
	return with(ctx, func(lc *LogContext) { lc.Bundle = name })
}

func WithTarget(ctx context.Context, target string) context.Context {
	return with(ctx, func(lc *LogContext) { lc.Target = target })
}

// GetContext returns the tags on ctx. The zero value means none were set.
func GetContext(ctx context.Context) LogContext {
	lc, _ := ctx.Value(ctxKey{}).(LogContext)
	return lc
}

// Attrs renders the non-empty tags as slog attributes.
func (lc LogContext) Attrs() []slog.Attr {
	pairs := [...]struct{ key, value string }{
		{logfields.KeyBuildID, lc.BuildID},
		{logfields.KeyStage, lc.Stage},
		{logfields.KeyBundle, lc.Bundle},
		{"target", lc.Target},
	}
	attrs := make([]slog.Attr, 0, len(pairs))
	for _, p := range pairs {
		if p.value != "" {
			attrs = append(attrs, slog.String(p.key, p.value))
		}
	}
	return attrs
}

// Logger returns base with the tags of ctx bound, for code that logs many
// lines under one context.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	attrs := GetContext(ctx).Attrs()
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return base.With(args...)
}

func emit(ctx context.Context, level slog.Level, msg string, extra []slog.Attr) {
	logger := slog.Default()
	if !logger.Enabled(ctx, level) {
		return
	}
	logger.LogAttrs(ctx, level, msg, append(GetContext(ctx).Attrs(), extra...)...)
}

func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelDebug, msg, attrs)
}

func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelInfo, msg, attrs)
}

func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelWarn, msg, attrs)
}

func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelError, msg, attrs)
}
