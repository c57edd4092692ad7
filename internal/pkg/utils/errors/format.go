package errors

import (
	"fmt"
	"runtime"
	"strings"
)

const (
	Indent = "  "
	Bullet = "- "
)

type writer struct {
	out   strings.Builder
	debug bool
}

// Format error to a string, nested and multi errors are formatted as a bullet list.
func Format(err error) string {
	w := &writer{}
	w.writeError(0, err)
	return w.out.String()
}

// FormatWithDebug output includes also errors stack traces if present.
func FormatWithDebug(err error) string {
	w := &writer{debug: true}
	w.writeError(0, err)
	return w.out.String()
}

func (w *writer) writeError(level int, err error) {
	if err == nil {
		panic("error cannot be nil")
	}

	// nolint: errorlint
	switch v := err.(type) {
	case nestedErrorGetter:
		w.writeNested(level, v.MainError(), v.WrappedErrors())
	case MultiError:
		w.writeList(level, v.WrappedErrors())
	default:
		msg := err.Error()
		if w.debug {
			if v, ok := err.(stackTracer); ok && len(v.StackTrace()) > 0 {
				pc := v.StackTrace()[0]
				file, line := runtime.FuncForPC(pc).FileLine(pc)
				msg = fmt.Sprintf("%s [%s:%d]", msg, file, line)
			}
		}

		// Align all lines of a multi-line message.
		lines := strings.Split(msg, "\n")
		w.write(lines[0])
		for _, line := range lines[1:] {
			w.write("\n")
			w.write(strings.Repeat(Indent, level))
			w.write(line)
		}
	}
}

func (w *writer) writeNested(level int, main error, errs []error) {
	mainWriter := w.clone()
	mainWriter.writeError(level, main)
	mainStr := mainWriter.out.String()
	if len(errs) == 0 {
		w.write(mainStr)
		return
	}
	mainStr = strings.TrimRight(mainStr, ".,:") + ":"

	subWriter := w.clone()
	subWriter.writeList(level, errs)
	subStr := subWriter.out.String()

	// Break line, if there are more errors or the message is long.
	w.write(mainStr)
	if len(errs) > 1 || len(mainStr)+len(subStr) > 60 || strings.Contains(subStr, "\n") {
		w.write("\n")
		if len(errs) == 1 {
			w.write(strings.Repeat(Indent, level))
			w.write(Bullet)
			w.writeError(level+1, errs[0])
		} else {
			w.writeList(level, errs)
		}
	} else {
		w.write(" ")
		w.write(subStr)
	}
}

func (w *writer) writeList(level int, errs []error) {
	bullets := len(errs) > 1
	for i, err := range errs {
		if bullets {
			w.write(strings.Repeat(Indent, level))
			w.write(Bullet)
		}
		w.writeError(level+1, err)
		if i != len(errs)-1 {
			w.write("\n")
		}
	}
}

func (w *writer) write(s string) {
	w.out.WriteString(s)
}

func (w *writer) clone() *writer {
	return &writer{debug: w.debug}
}
