package helper

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

// Logger is the narrow logging interface consumed by the processor,
// gateway, and transport. Swapping implementations (e.g. in tests)
// does not touch protocol code.
type Logger interface {
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	ToggleDebug(value bool) bool
}

// DefaultLogger wraps logrus with colorized level prefixes, used when
// the caller does not provide its own Logger.
type DefaultLogger struct {
	entry *logrus.Logger
}

// NewDefaultLogger builds the default logger, writing to stderr through
// a colorable writer so level colors survive on Windows consoles too.
func NewDefaultLogger(helperName string) *DefaultLogger {
	l := logrus.New()
	l.SetOutput(colorable.NewColorableStderr())
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
	l.SetLevel(logrus.InfoLevel)
	return &DefaultLogger{entry: l.WithField("helper", helperName).Logger}
}

func (l *DefaultLogger) colored(level string) string {
	switch level {
	case "WARN":
		return color.YellowString(level)
	case "ERROR", "FATAL":
		return color.RedString(level)
	case "DEBUG":
		return color.CyanString(level)
	default:
		return color.GreenString(level)
	}
}

func (l *DefaultLogger) Infof(format string, v ...interface{}) {
	l.entry.Infof("[%s] %s", l.colored("INFO"), fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Warnf(format string, v ...interface{}) {
	l.entry.Warnf("[%s] %s", l.colored("WARN"), fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Errorf(format string, v ...interface{}) {
	l.entry.Errorf("[%s] %s", l.colored("ERROR"), fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	l.entry.Debugf("[%s] %s", l.colored("DEBUG"), fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) ToggleDebug(value bool) bool {
	if value {
		l.entry.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.SetLevel(logrus.InfoLevel)
	}
	return value
}

// NoopLogger discards everything. Handy as a test default when a test
// doesn't care about log output.
type NoopLogger struct{}

func (NoopLogger) Infof(string, ...interface{}) {}
func (NoopLogger) Warnf(string, ...interface{}) {}
func (NoopLogger) Errorf(string, ...interface{}) {}
func (NoopLogger) Debugf(string, ...interface{}) {}
func (NoopLogger) ToggleDebug(bool) bool         { return false }

var _ Logger = (*DefaultLogger)(nil)
var _ Logger = NoopLogger{}
