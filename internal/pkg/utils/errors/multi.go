package errors

import (
	"fmt"
	"sync"
)

// MultiError collects errors, it is safe for concurrent use.
type MultiError interface {
	error
	Len() int
	Append(errs ...error)
	AppendWithPrefix(err error, prefix string)
	AppendWithPrefixf(err error, format string, a ...any)
	WrappedErrors() []error
	ErrorOrNil() error
	Unwrap() []error
}

type multiError struct {
	lock   *sync.Mutex
	errors []error
}

func NewMultiError() MultiError {
	return &multiError{lock: &sync.Mutex{}}
}

func (e *multiError) Len() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.errors)
}

// Append errors, nil values are skipped, nested multi errors are flattened.
// Prefixed errors are kept as they are, they are not multi errors.
func (e *multiError) Append(errs ...error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	for _, err := range errs {
		if err == nil {
			continue
		}
		if v, ok := err.(MultiError); ok { // nolint: errorlint
			e.errors = append(e.errors, v.WrappedErrors()...)
		} else {
			e.errors = append(e.errors, err)
		}
	}
}

func (e *multiError) AppendWithPrefix(err error, prefix string) {
	e.Append(PrefixError(err, prefix))
}

func (e *multiError) AppendWithPrefixf(err error, format string, a ...any) {
	e.Append(PrefixError(err, fmt.Sprintf(format, a...)))
}

func (e *multiError) WrappedErrors() []error {
	e.lock.Lock()
	defer e.lock.Unlock()
	out := make([]error, len(e.errors))
	copy(out, e.errors)
	return out
}

// ErrorOrNil returns nil if there is no error, the only error if there is one, otherwise the multi error itself.
func (e *multiError) ErrorOrNil() error {
	switch e.Len() {
	case 0:
		return nil
	case 1:
		return e.WrappedErrors()[0]
	default:
		return e
	}
}

func (e *multiError) Unwrap() []error {
	return e.WrappedErrors()
}

func (e *multiError) Error() string {
	return Format(e)
}
