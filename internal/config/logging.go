package config

import (
	"log/slog"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/normalization"
)

// LogLevel is the logging.level setting.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevels = normalization.NewEnum("log level", LogLevelInfo,
	LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError).
	WithAlias("warning", LogLevelWarn)

// NormalizeLogLevel returns info for anything it does not recognize.
func NormalizeLogLevel(raw string) LogLevel {
	return logLevels.Normalize(raw)
}

var slogLevels = map[LogLevel]slog.Level{
	LogLevelDebug: slog.LevelDebug,
	LogLevelInfo:  slog.LevelInfo,
	LogLevelWarn:  slog.LevelWarn,
	LogLevelError: slog.LevelError,
}

// SlogLevel is the handler level for l. Unknown levels log at info.
func (l LogLevel) SlogLevel() slog.Level {
	if lvl, ok := slogLevels[l]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// LogFormat is the logging.format setting: text for terminals, json for CI log collectors.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormats = normalization.NewEnum("log format", LogFormatText, LogFormatText, LogFormatJSON)

func NormalizeLogFormat(raw string) LogFormat {
	return logFormats.Normalize(raw)
}
