// Package logging adapts logrus to the closed level set and sub-logger
// semantics the job runner needs: CRITICAL, ERROR, WARNING, INFO, DEBUG,
// plus named sub-loggers for side-channel log pipes.
package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Level is one of the five levels the runner and its tools understand.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARNING
	ERROR
	CRITICAL
)

// ParseLevel maps a `hit logpipe` level token to a Level. The token set is
// closed; anything else is a structural error.
func ParseLevel(token string) (Level, error) {
	switch token {
	case "CRITICAL":
		return CRITICAL, nil
	case "ERROR":
		return ERROR, nil
	case "WARNING":
		return WARNING, nil
	case "INFO":
		return INFO, nil
	case "DEBUG":
		return DEBUG, nil
	default:
		return 0, fmt.Errorf("unknown log level %q, must be one of CRITICAL, ERROR, WARNING, INFO, DEBUG", token)
	}
}

func (l Level) String() string {
	switch l {
	case CRITICAL:
		return "CRITICAL"
	case ERROR:
		return "ERROR"
	case WARNING:
		return "WARNING"
	case INFO:
		return "INFO"
	case DEBUG:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

func (l Level) logrus() logrus.Level {
	switch l {
	case CRITICAL, ERROR:
		return logrus.ErrorLevel
	case WARNING:
		return logrus.WarnLevel
	case INFO:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// Logger is the contract the core consumes. It is satisfied by the
// adapter below, which wraps a *logrus.Entry.
type Logger interface {
	Log(level Level, line string)
	SubLogger(header string) Logger
	// Verbosity reports the lowest level this logger is configured to
	// emit (DEBUG when debug lines are emitted); Quieted lowers it for
	// the logger handed to in-process tools.
	Verbosity() Level
}

// entry wraps a *logrus.Entry to satisfy Logger.
type entry struct {
	e   *logrus.Entry
	lvl Level
}

// New builds a root Logger from a *logrus.Logger, deriving *logrus.Entry
// values via WithField for each header-tagged sub-logger.
func New(base *logrus.Logger) Logger {
	lvl := DEBUG
	switch base.GetLevel() {
	case logrus.ErrorLevel:
		lvl = ERROR
	case logrus.WarnLevel:
		lvl = WARNING
	case logrus.InfoLevel:
		lvl = INFO
	}
	return &entry{e: logrus.NewEntry(base), lvl: lvl}
}

func (l *entry) Log(level Level, line string) {
	fields := logrus.Fields{}
	if level == CRITICAL {
		fields["critical"] = true
	}
	l.e.WithFields(fields).Log(level.logrus(), line)
}

func (l *entry) SubLogger(header string) Logger {
	return &entry{e: l.e.WithField("header", header), lvl: l.lvl}
}

func (l *entry) Verbosity() Level {
	return l.lvl
}

// Quieted returns a copy of l whose Verbosity is lowered to at most
// WARNING when l is currently above DEBUG, matching the in-process tool
// dispatcher's rule of quieting third-party tool chatter unless the caller
// is already running in debug mode.
func Quieted(l Logger) Logger {
	e, ok := l.(*entry)
	if !ok || e.lvl <= DEBUG {
		return l
	}
	return &entry{e: e.e, lvl: WARNING}
}
