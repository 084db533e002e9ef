package errors

import "maps"

// severityByCategory is the default severity of each category. Canceled
// builds are reported as warnings; cache failures never stop a build.
var severityByCategory = map[ErrorCategory]ErrorSeverity{
	CategoryCanceled:       SeverityWarning,
	CategoryUnsavedChanges: SeverityFatal,
	CategoryConversion:     SeverityFatal,
	CategoryIO:             SeverityFatal,
	CategoryCache:          SeverityError,
	CategoryConfig:         SeverityFatal,
	CategoryValidation:     SeverityFatal,
	CategoryHook:           SeverityFatal,
	CategoryInternal:       SeverityFatal,
}

// ErrorBuilder assembles a ClassifiedError.
type ErrorBuilder struct {
	err ClassifiedError
}

// NewError starts an error of category with that category's default severity.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	severity, ok := severityByCategory[category]
	if !ok {
		severity = SeverityError
	}
	return &ErrorBuilder{err: ClassifiedError{
		category: category,
		severity: severity,
		message:  message,
		context:  make(ErrorContext),
	}}
}

// WrapError is NewError with a cause.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	return NewError(category, message).WithCause(err)
}

func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.err.severity = severity
	return b
}

func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.err.cause = err
	return b
}

// Context keys the CLI adapter prints after the message.
const (
	KeyBundle = "bundle"
	KeyAsset  = "asset"
	KeyPath   = "path"
)

func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.err.context = b.err.context.Set(key, value)
	return b
}

// WithBundle records the bundle the failure concerns.
func (b *ErrorBuilder) WithBundle(name string) *ErrorBuilder {
	return b.WithContext(KeyBundle, name)
}

// WithAsset records the asset the failure concerns.
func (b *ErrorBuilder) WithAsset(guid string) *ErrorBuilder {
	return b.WithContext(KeyAsset, guid)
}

// WithPath records the file or directory the failure concerns.
func (b *ErrorBuilder) WithPath(path string) *ErrorBuilder {
	return b.WithContext(KeyPath, path)
}

func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	return b.WithSeverity(SeverityFatal)
}

func (b *ErrorBuilder) Warning() *ErrorBuilder {
	return b.WithSeverity(SeverityWarning)
}

// Build returns the error. The builder may be reused; later changes do not
// leak into errors already built.
func (b *ErrorBuilder) Build() *ClassifiedError {
	e := b.err
	e.context = maps.Clone(b.err.context)
	return &e
}

// One constructor per category of the pipeline taxonomy.

func CanceledError(message string) *ErrorBuilder { return NewError(CategoryCanceled, message) }

// UnsavedChangesError reports editor state found dirty before the build started.
func UnsavedChangesError(message string) *ErrorBuilder {
	return NewError(CategoryUnsavedChanges, message)
}

// ConversionError reports a collaborator failure for a specific asset.
func ConversionError(message string) *ErrorBuilder { return NewError(CategoryConversion, message) }

// IOError reports a failure writing, compressing or moving output.
func IOError(message string) *ErrorBuilder { return NewError(CategoryIO, message) }

func CacheError(message string) *ErrorBuilder      { return NewError(CategoryCache, message) }
func ConfigError(message string) *ErrorBuilder     { return NewError(CategoryConfig, message) }
func ValidationError(message string) *ErrorBuilder { return NewError(CategoryValidation, message) }

// HookError reports a post-stage hook that stopped the build.
func HookError(message string) *ErrorBuilder { return NewError(CategoryHook, message) }

func InternalError(message string) *ErrorBuilder { return NewError(CategoryInternal, message) }
