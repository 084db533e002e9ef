// Package errors classifies pipeline failures.
//
// Every stage returns a plain Go error built here. Its category decides the
// build's result code (bundle.CodeOf) and the CLI exit code (CLIErrorAdapter),
// and errors.Is against ErrCanceled, ErrConversion and the other sentinels
// matches by category:
//
//	err := errors.ConversionError("scene analysis failed").
//		WithAsset(guid.String()).
//		WithBundle("levels").
//		WithCause(cause).
//		Build()
package errors
