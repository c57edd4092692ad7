// Package errors wraps the standard errors package and adds stack traces,
// prefixed (nested) errors and multi errors with a readable bullet-list format.
//
// Use it instead of "errors" and "fmt.Errorf" in the whole repository.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

const stackDepth = 32

// StackTrace contains program counters of the error creation place.
type StackTrace []uintptr

type stackTracer interface {
	StackTrace() StackTrace
}

// withStack is an error with a stack trace.
type withStack struct {
	error
	trace StackTrace
}

// wrappedError replaces message of the wrapped error.
type wrappedError struct {
	msg   string
	err   error
	trace StackTrace
}

func New(msg string) error {
	return &withStack{error: errors.New(msg), trace: callers()}
}

func Errorf(format string, a ...any) error {
	return &withStack{error: fmt.Errorf(format, a...), trace: callers()} // nolint: forbidigo
}

// Wrap returns a new error with the msg, the original error is accessible by Unwrap.
func Wrap(err error, msg string) error {
	return &wrappedError{msg: msg, err: err, trace: callers()}
}

func Wrapf(err error, format string, a ...any) error {
	return &wrappedError{msg: fmt.Sprintf(format, a...), err: err, trace: callers()}
}

// WithStack adds a stack trace to the error, if it is not present.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var tracer stackTracer
	if As(err, &tracer) {
		return err
	}
	return &withStack{error: err, trace: callers()}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func (e *withStack) Unwrap() error {
	return e.error
}

func (e *withStack) StackTrace() StackTrace {
	return e.trace
}

func (e *wrappedError) Error() string {
	return e.msg
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

func (e *wrappedError) StackTrace() StackTrace {
	return e.trace
}

func callers() StackTrace {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(3, pcs)
	return pcs[0:n]
}
