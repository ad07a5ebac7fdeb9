// Package logger builds the logr.Logger used by the command line tool: a
// zap console encoder on stderr whose level follows the -v flag.
package logger

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	verbosityFlagName      = "verbosity"
	verbosityFlagShortName = "v"
)

// Logger pairs a logr.Logger with the zap level that gates it.
type Logger struct {
	logr.Logger
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New returns a logger writing to stderr at info level.
func New(name string) *Logger {
	return NewWithWriter(name, os.Stderr)
}

// NewWithWriter returns a logger writing console-formatted lines to w.
func NewWithWriter(name string, w io.Writer) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	atomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core := zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(w)), atomicLevel)
	zapLogger := zap.New(core)

	return &Logger{
		Logger:      zapr.NewLogger(zapLogger).WithName(name),
		atomicLevel: atomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}
}

// SetLevel changes the minimum level written.
func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

// Level returns the minimum level written.
func (l *Logger) Level() zapcore.Level {
	return l.atomicLevel.Level()
}

// Flush writes any buffered entries.
func (l *Logger) Flush() {
	l.flush()
}

// AddLevelFlag registers -v/--verbosity on fs.
func (l *Logger) AddLevelFlag(fs *pflag.FlagSet) {
	levelVal := NewLevelFlagValue(l.SetLevel)
	fs.VarP(&levelVal, verbosityFlagName, verbosityFlagShortName, "Logging verbosity level (e.g. -v=debug). One of 'debug', 'info' or 'error', or a positive integer for increasing levels of debug verbosity.")
}
