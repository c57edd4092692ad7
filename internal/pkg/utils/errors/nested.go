package errors

// nestedError is a main error followed by sub errors.
type nestedError struct {
	main      error
	subErrors []error
	trace     StackTrace
}

type nestedErrorGetter interface {
	MainError() error
	WrappedErrors() []error
}

func PrefixError(err error, prefix string) error {
	return NewNestedError(New(prefix), err)
}

func PrefixErrorf(err error, format string, a ...any) error {
	return NewNestedError(Errorf(format, a...), err)
}

func NewNestedError(main error, subErrs ...error) error {
	if main == nil {
		panic("error cannot be nil")
	}
	out := &nestedError{main: main, trace: callers()}
	for _, err := range subErrs {
		if v, ok := err.(MultiError); ok { // nolint: errorlint
			out.subErrors = append(out.subErrors, v.WrappedErrors()...)
		} else if err != nil {
			out.subErrors = append(out.subErrors, err)
		}
	}
	return out
}

func (e *nestedError) Error() string {
	return Format(e)
}

func (e *nestedError) Unwrap() []error {
	return append([]error{e.main}, e.subErrors...)
}

func (e *nestedError) StackTrace() StackTrace {
	return e.trace
}

func (e *nestedError) MainError() error {
	return e.main
}

func (e *nestedError) WrappedErrors() []error {
	return e.subErrors
}
