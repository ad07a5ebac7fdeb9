package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestStringToLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"2", zapcore.Level(-2), false},
		{"0", zapcore.InfoLevel, true},
		{"-1", zapcore.InfoLevel, true},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()

			got, err := StringToLevel(tt.value, zapcore.InfoLevel)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_LevelFlag(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("cdpbridge", &buf)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	log.AddLevelFlag(fs)

	log.V(1).Info("hidden at info level")
	assert.Empty(t, buf.String())

	require.NoError(t, fs.Parse([]string{"-v", "debug"}))
	assert.Equal(t, zapcore.DebugLevel, log.Level())
	assert.Equal(t, "debug", fs.Lookup("verbosity").Value.String())

	log.V(1).Info("visible at debug level", "port", 9229)
	log.Flush()

	out := buf.String()
	assert.Contains(t, out, "visible at debug level")
	assert.Contains(t, out, "cdpbridge")
	assert.Contains(t, out, `"port": 9229`)
}

func TestLogger_ErrorLevelHidesInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("cdpbridge", &buf)
	log.SetLevel(zapcore.ErrorLevel)

	log.Info("multiple debuggers found, using the first one")
	assert.Empty(t, buf.String())

	log.Error(assert.AnError, "transport failed")
	log.Flush()
	assert.True(t, strings.Contains(buf.String(), "ERROR"), buf.String())
}

func TestLevelFlag_RejectsInvalid(t *testing.T) {
	t.Parallel()

	log := NewWithWriter("cdpbridge", &bytes.Buffer{})
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	log.AddLevelFlag(fs)

	assert.Error(t, fs.Parse([]string{"--verbosity=loud"}))
	assert.Equal(t, zapcore.InfoLevel, log.Level())
}
