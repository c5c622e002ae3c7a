package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"Warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestNewWriter(t *testing.T) {
	t.Run("uses stdout when no file is configured", func(t *testing.T) {
		assert.Equal(t, os.Stdout, newWriter(FileOptions{}))
	})

	t.Run("uses a rotating file when a path is configured", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "crm-sync.log")

		w := newWriter(FileOptions{Path: path, MaxBackups: 3})

		rotating, ok := w.(*lumberjack.Logger)
		assert.True(t, ok, "expected a lumberjack logger")
		assert.Equal(t, path, rotating.Filename)
		assert.Equal(t, 100, rotating.MaxSize)
		assert.Equal(t, 3, rotating.MaxBackups)
	})
}
