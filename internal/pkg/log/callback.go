// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"go.uber.org/zap/zapcore"
)

// CallbackFn is invoked for each log record.
type CallbackFn func(entry zapcore.Entry, fields []zapcore.Field)

type callbackCore struct {
	zapcore.LevelEnabler
	callback CallbackFn
	fields   []zapcore.Field
}

// NewCallbackLogger creates a logger which passes all records to the callback.
func NewCallbackLogger(fn CallbackFn) Logger {
	return loggerFromZapCore(NewCallbackCore(fn))
}

// NewCallbackCore creates a zap core, it can be used to bridge a 3rd party zap logger, for example the etcd client logger.
func NewCallbackCore(fn CallbackFn) zapcore.Core {
	return &callbackCore{LevelEnabler: DebugLevel, callback: fn}
}

func (c *callbackCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	return &clone
}

func (c *callbackCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *callbackCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)
	c.callback(entry, all)
	return nil
}

func (c *callbackCore) Sync() error {
	return nil
}
