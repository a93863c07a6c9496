// Package errors provides structured error types for the resguard library.
//
// Errors are categorized by Phase (which lifecycle operation failed) and
// Kind (error category). The Error type carries the resource name, a
// human-readable detail, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRelease, errors.KindReleaseFailed).
//		Resource("scratch-file").
//		Cause(closeErr).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AlreadyReleased("scratch-file")
//	err := errors.ReleaseFailed("scratch-file", closeErr)
//
// All errors implement the standard error interface and support
// errors.Is/As. Two *Error values match under Is when their Phase and
// Kind are equal.
package errors
