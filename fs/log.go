package fs

import (
	"fmt"
	"log/slog"
	"os"
)

// The teacher's log package layers extra severities on top of the
// standard slog levels by spacing custom Level values between and above
// the built-ins (Debug=-4, Info=0, Warn=4, Error=8).
const (
	SlogLevelNotice    = slog.Level(2)
	SlogLevelCritical  = slog.Level(12)
	SlogLevelAlert     = slog.Level(16)
	SlogLevelEmergency = slog.Level(20)
)

// slogLevelToString renders a level, including the custom ones above,
// falling back to slog's own String() for anything unrecognised.
func slogLevelToString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case SlogLevelNotice:
		return "NOTICE"
	case slog.LevelWarn:
		return "WARNING"
	case slog.LevelError:
		return "ERROR"
	case SlogLevelCritical:
		return "CRITICAL"
	case SlogLevelAlert:
		return "ALERT"
	case SlogLevelEmergency:
		return "EMERGENCY"
	default:
		return level.String()
	}
}

// mapLogLevelNames rewrites the level attribute to the lower-cased string
// form above, so downstream log consumers get a stable severity token
// regardless of handler.
func mapLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(toLower(slogLevelToString(level)))
		}
	}
	return a
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level:       slog.LevelInfo,
	ReplaceAttr: mapLogLevelNames,
}))

// SetLogger replaces the package-level logger, e.g. to redirect to a JSON
// handler or to silence output in tests.
func SetLogger(l *slog.Logger) { logger = l }

// logf is the shared formatter: o identifies the subject of the log line
// (an Fs, an Entry, or nil) the way the teacher's fs.LogPrintf tags every
// line with the object it concerns.
func logf(level slog.Level, o interface{}, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if o != nil {
		msg = fmt.Sprintf("%v: %s", o, msg)
	}
	logger.Log(nil, level, msg)
}

// Debugf logs at debug severity.
func Debugf(o interface{}, format string, args ...interface{}) { logf(slog.LevelDebug, o, format, args...) }

// Infof logs at info severity.
func Infof(o interface{}, format string, args ...interface{}) { logf(slog.LevelInfo, o, format, args...) }

// Noticef logs at notice severity (above info, below warning).
func Noticef(o interface{}, format string, args ...interface{}) {
	logf(SlogLevelNotice, o, format, args...)
}

// Logf is an alias for Noticef, matching the teacher's default verbosity.
func Logf(o interface{}, format string, args ...interface{}) { Noticef(o, format, args...) }

// Errorf logs at error severity.
func Errorf(o interface{}, format string, args ...interface{}) { logf(slog.LevelError, o, format, args...) }
