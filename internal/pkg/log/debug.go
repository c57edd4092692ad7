// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"bufio"
	"strings"
	"sync"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

// DebugLogger returns logs as a string, it is used in tests.
type DebugLogger interface {
	Logger
	Truncate()
	AllMessages() string
	WarnAndErrorMessages() string
	ErrorMessages() string
	CompareJSONMessages(expected string) error
	AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool
}

type debugLogger struct {
	*zapLogger
	out *syncBuffer
}

type syncBuffer struct {
	lock *sync.Mutex
	buf  strings.Builder
}

// NewDebugLogger creates a logger which stores all messages, one JSON document per line, in memory.
func NewDebugLogger() DebugLogger {
	out := &syncBuffer{lock: &sync.Mutex{}}
	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LevelKey:       "level",
		MessageKey:     "message",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	return &debugLogger{
		zapLogger: loggerFromZapCore(zapcore.NewCore(encoder, out, DebugLevel)),
		out:       out,
	}
}

func (l *debugLogger) Truncate() {
	l.out.lock.Lock()
	defer l.out.lock.Unlock()
	l.out.buf.Reset()
}

func (l *debugLogger) AllMessages() string {
	return l.out.String()
}

func (l *debugLogger) WarnAndErrorMessages() string {
	return l.filter(`"level":"warn"`, `"level":"error"`)
}

func (l *debugLogger) ErrorMessages() string {
	return l.filter(`"level":"error"`)
}

func (l *debugLogger) CompareJSONMessages(expected string) error {
	return CompareJSONMessages(expected, l.AllMessages())
}

func (l *debugLogger) AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool {
	return AssertJSONMessages(t, expected, l.AllMessages(), msgAndArgs...)
}

func (l *debugLogger) filter(substrings ...string) string {
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(l.AllMessages()))
	for scanner.Scan() {
		line := scanner.Text()
		for _, s := range substrings {
			if strings.Contains(line, s) {
				out.WriteString(line)
				out.WriteString("\n")
				break
			}
		}
	}
	return out.String()
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error {
	return nil
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}
