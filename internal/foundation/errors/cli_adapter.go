package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ExitCodes maps categories to process exit codes. Unclassified errors and
// categories missing here exit with 1.
var ExitCodes = map[ErrorCategory]int{
	CategoryValidation:     2,
	CategoryUnsavedChanges: 3,
	CategoryCanceled:       4,
	CategoryConfig:         7,
	CategoryConversion:     9,
	CategoryInternal:       10,
	CategoryIO:             11,
	CategoryCache:          11,
	CategoryHook:           12,
}

// CLIErrorAdapter prints a build error, logs it and exits with its code.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	out     io.Writer
	exit    func(int)
}

func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger, out: os.Stderr, exit: os.Exit}
}

func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	classified, ok := AsClassified(err)
	if !ok {
		return 1
	}
	if code, ok := ExitCodes[classified.Category()]; ok {
		return code
	}
	return 1
}

// FormatError renders err for the terminal. Without -v only the message and
// where it happened are shown; internal errors are hidden entirely.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	classified, ok := AsClassified(err)
	switch {
	case !ok:
		return "Error: " + err.Error()
	case a.verbose:
		return classified.Error()
	case classified.IsCategory(CategoryInternal):
		return "Internal error occurred (use -v for details)"
	}

	var where []string
	for _, k := range []string{KeyBundle, KeyAsset, KeyPath} {
		if v, ok := classified.Context().Get(k); ok {
			where = append(where, fmt.Sprintf("%s=%v", k, v))
		}
	}
	if len(where) == 0 {
		return "Error: " + classified.Message()
	}
	return fmt.Sprintf("Error: %s (%s)", classified.Message(), strings.Join(where, " "))
}

// HandleError logs err, prints it and exits with the mapped code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	if a.verbose || GetSeverity(err) == SeverityFatal || !IsClassified(err) {
		a.logError(err)
	}
	fmt.Fprintln(a.out, a.FormatError(err))
	a.exit(a.ExitCodeFor(err))
}

func (a *CLIErrorAdapter) logError(err error) {
	classified, ok := AsClassified(err)
	if !ok {
		a.logger.Error("Unclassified error", slog.String("error", err.Error()))
		return
	}
	attrs := []slog.Attr{slog.String("category", string(classified.Category()))}
	for _, k := range classified.Context().Keys() {
		attrs = append(attrs, slog.Any(k, classified.Context()[k]))
	}
	if cause := classified.Cause(); cause != nil {
		attrs = append(attrs, slog.String("cause", cause.Error()))
	}
	a.logger.LogAttrs(context.Background(), levelFor(classified.Severity()), classified.Message(), attrs...)
}

func levelFor(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
