package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates which lifecycle operation the error occurred in
type Phase string

const (
	PhaseUse      Phase = "use"      // accessing the guarded handle
	PhaseRelease  Phase = "release"  // running the release action
	PhaseRegistry Phase = "registry" // registry operations
)

// Kind categorizes the error
type Kind string

const (
	KindAlreadyReleased Kind = "already_released"
	KindReleaseFailed   Kind = "release_failed"
	KindClosed          Kind = "closed"
)

// Error is the structured error type used throughout the library
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Resource string
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Resource != "" {
		b.WriteString(" on ")
		b.WriteString(e.Resource)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Resource sets the resource name
func (b *Builder) Resource(name string) *Builder {
	b.err.Resource = name
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// AlreadyReleased creates an error for use of a handle after release
func AlreadyReleased(resource string) *Error {
	return &Error{
		Phase:    PhaseUse,
		Kind:     KindAlreadyReleased,
		Resource: resource,
		Detail:   "handle was already released",
	}
}

// ReleaseFailed creates an error for a failed release action
func ReleaseFailed(resource string, cause error) *Error {
	return &Error{
		Phase:    PhaseRelease,
		Kind:     KindReleaseFailed,
		Resource: resource,
		Cause:    cause,
	}
}

// Closed creates an error for operations on a closed registry
func Closed(detail string) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindClosed,
		Detail: detail,
	}
}

// IsAlreadyReleased reports whether err is an already-released failure
func IsAlreadyReleased(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == KindAlreadyReleased
	}
	return false
}
