package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	level   zapcore.Level
	console io.Writer
}

type Option func(*options)

// WithLevel sets the minimum level from a name such as "debug" or "warn".
// Unknown names keep the default (info).
func WithLevel(name string) Option {
	return func(o *options) {
		if lvl, ok := ParseLevel(name); ok {
			o.level = lvl
		}
	}
}

// WithConsole tees human-readable output to w in addition to the log file.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

func NewLogger(logDir string, opts ...Option) (*zap.Logger, error) {
	o := options{level: zap.InfoLevel}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, "reachcheck.log"),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, o.level)

	if o.console != nil {
		ccfg := zap.NewDevelopmentEncoderConfig()
		ccfg.TimeKey = ""
		console := zapcore.NewCore(zapcore.NewConsoleEncoder(ccfg), zapcore.AddSync(o.console), o.level)
		core = zapcore.NewTee(core, console)
	}
	return zap.New(core), nil
}

// ParseLevel accepts zap's level names in either case.
func ParseLevel(name string) (zapcore.Level, bool) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return zap.InfoLevel, false
	}
	return lvl, true
}
