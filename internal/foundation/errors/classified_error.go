package errors

import (
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
)

// ClassifiedError is a pipeline failure with a category, a severity and the
// bundle/asset/path it concerns.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	message  string
	cause    error
	context  ErrorContext
}

// Sentinels for errors.Is checks by category alone.
var (
	ErrCanceled       = &ClassifiedError{category: CategoryCanceled}
	ErrUnsavedChanges = &ClassifiedError{category: CategoryUnsavedChanges}
	ErrConversion     = &ClassifiedError{category: CategoryConversion}
	ErrIO             = &ClassifiedError{category: CategoryIO}
)

// Error renders "category: message [k=v ...]: cause" with context keys sorted.
func (e *ClassifiedError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.category))
	b.WriteString(": ")
	b.WriteString(e.message)
	if keys := e.context.Keys(); len(keys) > 0 {
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%v", k, e.context[k])
		}
		b.WriteByte(']')
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

func (e *ClassifiedError) Category() ErrorCategory {
	return e.category
}

func (e *ClassifiedError) Severity() ErrorSeverity {
	return e.severity
}

// Message returns the error message without category, context or cause.
func (e *ClassifiedError) Message() string {
	return e.message
}

func (e *ClassifiedError) Cause() error {
	return e.cause
}

func (e *ClassifiedError) Context() ErrorContext {
	return e.context
}

// WithContext returns a copy of e with key set.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	cp := *e
	cp.context = ErrorContext{}.Merge(e.context).Set(key, value)
	return &cp
}

// Is matches another ClassifiedError of the same category. A target without
// a message, such as ErrCanceled, matches every message of its category.
func (e *ClassifiedError) Is(target error) bool {
	other, ok := target.(*ClassifiedError)
	if !ok || e.category != other.category {
		return false
	}
	return other.message == "" || e.message == other.message
}

func (e *ClassifiedError) IsCategory(category ErrorCategory) bool {
	return e.category == category
}

// AsClassified finds the first ClassifiedError in err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

func IsClassified(err error) bool {
	_, ok := AsClassified(err)
	return ok
}

// HasCategory checks the first classified error in the chain only.
func HasCategory(err error, category ErrorCategory) bool {
	if classified, ok := AsClassified(err); ok {
		return classified.IsCategory(category)
	}
	return false
}

// GetCategory returns CategoryInternal for unclassified errors.
func GetCategory(err error) ErrorCategory {
	if classified, ok := AsClassified(err); ok {
		return classified.Category()
	}
	return CategoryInternal
}

// GetSeverity returns SeverityError for unclassified errors.
func GetSeverity(err error) ErrorSeverity {
	if classified, ok := AsClassified(err); ok {
		return classified.Severity()
	}
	return SeverityError
}

// Keys returns the context keys in sorted order.
func (c ErrorContext) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
