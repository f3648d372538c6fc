package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewWithOutput(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"ERROR", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewWithOutput(tt.level, &buf)
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestUnknownLevelIsReported(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("verbose", &buf)

	assert.Contains(t, buf.String(), "Unknown log level")
	assert.Contains(t, buf.String(), "log_level=verbose")

	buf.Reset()
	l.WithField("fund_id", 7).Info("Deposit recorded")
	assert.Contains(t, buf.String(), "fund_id=7")
	assert.Contains(t, buf.String(), `msg="Deposit recorded"`)
}
