package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger implements utils.ExtendedLogger on top of logrus.
// It carries no global state; every command builds its own.
type Logger struct {
	logger *logrus.Logger
	file   *os.File
}

func callerPrettyfier(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

// CreateLogger creates a new logger instance with specified configuration.
// An empty logFile writes to logs/jacob-<date>.log.
func CreateLogger(logFile string, level string, format string, console bool) (Logger, error) {
	logrusLogger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return Logger{}, fmt.Errorf("invalid log level: %w", err)
	}
	logrusLogger.SetLevel(logLevel)

	switch strings.ToLower(format) {
	case "json":
		logrusLogger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: callerPrettyfier,
		})
	case "text":
		logrusLogger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: callerPrettyfier,
		})
	default:
		return Logger{}, fmt.Errorf("unsupported log format: %s", format)
	}
	logrusLogger.SetReportCaller(true)

	if logFile == "" {
		logFile = filepath.Join("logs", fmt.Sprintf("jacob-%s.log", time.Now().Format("2006-01-02")))
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return Logger{}, fmt.Errorf("failed to create log directory: %w", err)
	}
	//nolint:gosec // G304: logFile comes from configuration/environment, not user input
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return Logger{}, fmt.Errorf("failed to open log file: %w", err)
	}

	// stdout is reserved for command output
	if console {
		logrusLogger.SetOutput(io.MultiWriter(file, os.Stderr))
	} else {
		logrusLogger.SetOutput(file)
	}

	return Logger{logger: logrusLogger, file: file}, nil
}

// NewWriterLogger builds a text logger writing to w. Nothing is opened on disk.
func NewWriterLogger(w io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return Logger{logger: l}
}

// CreateTestLogger returns a logger that discards everything.
func CreateTestLogger() Logger {
	return NewWriterLogger(io.Discard, logrus.DebugLevel)
}

func (l Logger) Infof(format string, v ...any) {
	l.logger.Infof(format, v...)
}

func (l Logger) Errorf(format string, v ...any) {
	l.logger.Errorf(format, v...)
}

func (l Logger) Info(args ...interface{}) {
	l.logger.Info(args...)
}

func (l Logger) Error(args ...interface{}) {
	l.logger.Error(args...)
}

func (l Logger) Debug(args ...interface{}) {
	l.logger.Debug(args...)
}

func (l Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l Logger) Warn(args ...interface{}) {
	l.logger.Warn(args...)
}

func (l Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

func (l Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.logger.WithFields(fields)
}

func (l Logger) WithError(err error) *logrus.Entry {
	return l.logger.WithError(err)
}

// Close closes the log file, if any.
func (l Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// IsInitialized reports whether l was built by one of the constructors.
func (l Logger) IsInitialized() bool {
	return l.logger != nil
}
