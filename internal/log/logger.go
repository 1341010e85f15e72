// SPDX-License-Identifier: MIT
package log

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// logrusLevel maps a LogLevel onto the backing logrus level.
func (l LogLevel) logrusLevel() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// --- Global Logger State ---

// currentLevel holds the current global log level atomically so the hot path
// can skip formatting without touching the logrus mutex.
var currentLevel atomic.Uint32

// logger is the logrus instance every package-level function writes through.
var logger = newLogger(os.Stderr)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05.000000",
	})
	return l
}

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
	logger.SetLevel(level.logrusLevel())
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all log output. Tests use it to capture messages.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// shouldLog reports whether level is enabled.
func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

// Debugf, Infof, Warnf and Errorf check the level before logrus formats the
// message, so disabled calls on the analysis path stay cheap.

func Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		logger.Debugf(format, v...)
	}
}

func Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		logger.Infof(format, v...)
	}
}

func Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		logger.Warnf(format, v...)
	}
}

func Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		logger.Errorf(format, v...)
	}
}

// Fatalf logs regardless of level and exits the process.
func Fatalf(format string, v ...any) {
	logger.Fatalf(format, v...)
}

// WithField returns a logrus entry carrying a structured field, for call sites
// that log several lines about the same run or component.
func WithField(key string, value any) *logrus.Entry {
	return logger.WithField(key, value)
}
