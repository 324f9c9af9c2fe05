// Package logging builds the zap loggers used by the CLI and the shim.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config selects level, destination and encoding
type Config struct {
	// Level, see zapcore.ParseLevel.
	Level string `mapstructure:"log_level" yaml:"log_level"`

	// File the logger writes to, appending. Empty means stderr.
	File string `mapstructure:"log_file" yaml:"log_file"`

	// Format is console or json.
	Format string `mapstructure:"log_format" yaml:"log_format"`
}

var (
	stderr = zapcore.Lock(os.Stderr)

	// Lvl controls the level of every logger built by New.
	Lvl = zap.NewAtomicLevelAt(zap.WarnLevel)

	nop = zap.NewNop()
)

// New builds a logger. The returned close function releases the log file.
func New(lc Config) (*zap.Logger, func(), error) {
	level := zap.WarnLevel
	if lc.Level != "" {
		parsed, err := zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
		}
		level = parsed
	}
	Lvl.SetLevel(level)

	out := stderr
	closeFn := func() {}
	if lc.File != "" {
		f, closeFile, err := zap.Open(lc.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = zapcore.Lock(f)
		closeFn = closeFile
	}

	var enc zapcore.Encoder
	switch strings.ToLower(lc.Format) {
	case "", FormatConsole:
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case FormatJSON:
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		closeFn()
		return nil, nil, fmt.Errorf("invalid log format %q", lc.Format)
	}

	return zap.New(zapcore.NewCore(enc, out, Lvl)), closeFn, nil
}

// Nop is a logger that never writes out logs.
func Nop() *zap.Logger {
	return nop
}
