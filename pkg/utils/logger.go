package utils

import "github.com/sirupsen/logrus"

// ExtendedLogger is the logging surface every component accepts.
// pkg/logger.Logger is the production implementation.
type ExtendedLogger interface {
	Infof(format string, v ...any)
	Errorf(format string, v ...any)

	Info(args ...interface{})
	Error(args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	WithField(key string, value interface{}) *logrus.Entry
	WithFields(fields logrus.Fields) *logrus.Entry
	WithError(err error) *logrus.Entry

	Close() error
}

// IssueFields returns the log fields identifying one tracked issue.
func IssueFields(projectID int64, issueNumber int) logrus.Fields {
	return logrus.Fields{
		"project_id":   projectID,
		"issue_number": issueNumber,
	}
}
