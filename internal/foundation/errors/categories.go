package errors

import "maps"

// ErrorCategory is the broad classification of a pipeline failure.
type ErrorCategory string

const (
	// CategoryCanceled marks a user-requested abort. It is not a failure.
	CategoryCanceled ErrorCategory = "canceled"
	// CategoryUnsavedChanges marks a precondition failure detected before any mutation.
	CategoryUnsavedChanges ErrorCategory = "unsaved_changes"

	// CategoryConversion is raised when an external collaborator fails for an asset.
	CategoryConversion ErrorCategory = "conversion"
	// CategoryIO covers writing, compressing and moving output files.
	CategoryIO ErrorCategory = "io"
	// CategoryCache covers cache backend failures that cannot be downgraded to a miss.
	CategoryCache ErrorCategory = "cache"

	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryHook       ErrorCategory = "hook"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity decides how the CLI logs an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // build stops
	SeverityError   ErrorSeverity = "error"   // stage fails
	SeverityWarning ErrorSeverity = "warning" // outcome unaffected
	SeverityInfo    ErrorSeverity = "info"
)

// ErrorContext holds the bundle, asset, path and other keys of a failure.
// A nil context reads as empty.
type ErrorContext map[string]any

// Set stores value under key, allocating a nil context.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = ErrorContext{}
	}
	c[key] = value
	return c
}

func (c ErrorContext) Get(key string) (any, bool) {
	v, ok := c[key]
	return v, ok
}

// GetString is Get for string values only.
func (c ErrorContext) GetString(key string) (string, bool) {
	s, ok := c[key].(string)
	return s, ok
}

// Merge returns a new context with the entries of c overlaid by other.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	out := make(ErrorContext, len(c)+len(other))
	maps.Copy(out, c)
	maps.Copy(out, other)
	return out
}
