package bundle

import (
	"context"
	"errors"

	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
)

// ResultCode is the ordered outcome of a stage or a whole build.
// Codes at or above Success mean the work completed.
type ResultCode int

const (
	SuccessNotRun   ResultCode = 2
	SuccessCached   ResultCode = 1
	Success         ResultCode = 0
	Error           ResultCode = -1
	ConversionError ResultCode = -2
	IOError         ResultCode = -3
	Canceled        ResultCode = -4
	UnsavedChanges  ResultCode = -5
)

// Succeeded reports whether c is at or above the success threshold.
func (c ResultCode) Succeeded() bool { return c >= Success }

// Settled folds SuccessCached into Success. A BuildResult records whether the
// build succeeded, not where its bytes came from, so cached and fresh runs
// produce identical results.
func (c ResultCode) Settled() ResultCode {
	if c == SuccessCached {
		return Success
	}
	return c
}

func (c ResultCode) String() string {
	switch c {
	case SuccessNotRun:
		return "SuccessNotRun"
	case SuccessCached:
		return "SuccessCached"
	case Success:
		return "Success"
	case Error:
		return "Error"
	case ConversionError:
		return "ConversionError"
	case IOError:
		return "IOError"
	case Canceled:
		return "Canceled"
	case UnsavedChanges:
		return "UnsavedChanges"
	default:
		return "Unknown"
	}
}

// CodeOf maps a stage error onto a result code. A nil error is Success.
func CodeOf(err error) ResultCode {
	if err == nil {
		return Success
	}
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	switch dberrors.GetCategory(err) {
	case dberrors.CategoryCanceled:
		return Canceled
	case dberrors.CategoryUnsavedChanges:
		return UnsavedChanges
	case dberrors.CategoryConversion:
		return ConversionError
	case dberrors.CategoryIO:
		return IOError
	default:
		return Error
	}
}
