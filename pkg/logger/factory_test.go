package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RogWilco/jacob/pkg/utils"
)

var _ utils.ExtendedLogger = Logger{}

func TestCreateLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "text", level: "info", format: "text"},
		{name: "json", level: "debug", format: "JSON"},
		{name: "bad level", level: "loud", format: "text", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "jacob.log")
			l, err := CreateLogger(path, tt.level, tt.format, false)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			l.WithFields(utils.IssueFields(7, 42)).Info("hello")
			require.NoError(t, l.Close())

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Contains(t, string(data), "issue_number")
			assert.Contains(t, string(data), "hello")
		})
	}
}

func TestNewWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, logrus.InfoLevel)
	l.Debugf("hidden %d", 1)
	l.Warnf("shown %d", 2)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 2")
	assert.True(t, l.IsInitialized())
	assert.NoError(t, l.Close())
}
