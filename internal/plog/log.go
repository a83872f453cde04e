// Package plog reconstructs the Logger interface boulder's rpc and cmd
// packages consume from github.com/letsencrypt/boulder/log (not retrieved
// with the rest of the teacher repo), backed by logrus instead of syslog.
package plog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logging interface every pathfinder component
// logs through. Audit and AuditErr exist as distinguished levels so an
// operator can grep broker-traffic audit lines (misrouted messages, auth
// failures) out of routine operational noise, mirroring boulder's
// blog.Logger.Audit/AuditErr split.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Audit(format string, args ...interface{})
	AuditErr(format string, args ...interface{})
	Crit(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New builds a Logger at the given level ("debug", "info", "warn", "error"),
// writing JSON lines to stderr.
func New(level string) (Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(lvl)
	base.SetFormatter(&logrus.JSONFormatter{})
	return &logrusLogger{entry: logrus.NewEntry(base)}, nil
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &logrusLogger{entry: logrus.NewEntry(base)}
}

func (l *logrusLogger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Warning(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *logrusLogger) Audit(format string, args ...interface{}) {
	l.entry.WithField("audit", true).Infof(format, args...)
}

func (l *logrusLogger) AuditErr(format string, args ...interface{}) {
	l.entry.WithField("audit", true).Errorf(format, args...)
}

func (l *logrusLogger) Crit(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}
