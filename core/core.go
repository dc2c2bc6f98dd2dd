package core

import "github.com/hupe1980/codeagent/logging"

// loggerAdapter binds a logger to the fields identifying the current run or
// tool call. The Log* helpers append those fields to every record.
type loggerAdapter struct {
	logger logging.Logger
	fields []any
}

// newLoggerAdapter substitutes a NoOpLogger for nil.
func newLoggerAdapter(l logging.Logger, fields ...any) *loggerAdapter {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &loggerAdapter{logger: l, fields: fields}
}

// Logger returns the underlying logger without the bound fields.
func (l *loggerAdapter) Logger() logging.Logger {
	return l.logger
}

// LogDebug logs a debug message with the bound fields.
func (l *loggerAdapter) LogDebug(msg string, args ...any) {
	l.logger.Debug(msg, l.with(args)...)
}

// LogInfo logs an info message with the bound fields.
func (l *loggerAdapter) LogInfo(msg string, args ...any) {
	l.logger.Info(msg, l.with(args)...)
}

// LogWarn logs a warning message with the bound fields.
func (l *loggerAdapter) LogWarn(msg string, args ...any) {
	l.logger.Warn(msg, l.with(args)...)
}

// LogError logs an error message with the bound fields.
func (l *loggerAdapter) LogError(msg string, args ...any) {
	l.logger.Error(msg, l.with(args)...)
}

func (l *loggerAdapter) with(args []any) []any {
	if len(l.fields) == 0 {
		return args
	}
	out := make([]any, 0, len(args)+len(l.fields))
	out = append(out, args...)
	return append(out, l.fields...)
}
