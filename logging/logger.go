package logging

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

type loggerContextKey struct{}

// Logger wraps a logrus entry so that structured fields attached along the way
// keep returning the same Logger type.
type Logger struct {
	*logrus.Entry
}

func New() Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return Logger{logrus.NewEntry(l)}
}

func (l Logger) WithField(key string, value interface{}) Logger {
	return Logger{l.Entry.WithField(key, value)}
}

func (l Logger) WithFields(fields logrus.Fields) Logger {
	return Logger{l.Entry.WithFields(fields)}
}

func (l Logger) WithError(err error) Logger {
	return Logger{l.Entry.WithError(err)}
}

func (l Logger) SetLevel(level logrus.Level) {
	l.Entry.Logger.SetLevel(level)
}

func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return l
	}
	return New()
}
