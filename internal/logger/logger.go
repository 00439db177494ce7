// Package logger builds the slog.Logger used by the pnnxgen command.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvVar selects the environment when New is given an empty Env.
const EnvVar = "PNNXGEN_ENV"

// Env selects the console format.
type Env string

// Environments.
const (
	Development Env = "development"
	Production  Env = "production"
)

// FromEnv reads EnvVar. Anything other than "production" is development.
func FromEnv() Env {
	if Env(os.Getenv(EnvVar)) == Production {
		return Production
	}
	return Development
}

type options struct {
	level     slog.Level
	out       io.Writer
	noColor   bool
	logToFile bool
	file      string

	maxSizeMB  int
	maxBackups int
	maxAgeDays int
}

// Option configures New.
type Option func(*options)

// WithLevel sets the minimum level. The default is info.
func WithLevel(l slog.Level) Option {
	return func(o *options) { o.level = l }
}

// WithOutput replaces stderr as the console destination.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithNoColor disables ANSI colors in development output.
func WithNoColor() Option {
	return func(o *options) { o.noColor = true }
}

// WithLogToFile enables the rotating JSON log file.
func WithLogToFile(enabled bool) Option {
	return func(o *options) { o.logToFile = enabled }
}

// WithLogFile sets the rotating log file path and enables it.
func WithLogFile(path string) Option {
	return func(o *options) {
		o.file = path
		o.logToFile = path != ""
	}
}

// WithRotation sets the size, count and age limits of rotated files.
func WithRotation(maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *options) {
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
		o.maxAgeDays = maxAgeDays
	}
}

// DefaultFile is the log file used by WithLogToFile without WithLogFile.
const DefaultFile = "pnnxgen.log"

// New returns a logger for env and a closer for the log file, if any. An
// empty env is read from EnvVar.
func New(env Env, opts ...Option) (*slog.Logger, io.Closer) {
	o := options{
		level:      slog.LevelInfo,
		out:        os.Stderr,
		maxSizeMB:  10,
		maxBackups: 3,
		maxAgeDays: 28,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if env == "" {
		env = FromEnv()
	}

	var console slog.Handler
	if env == Production {
		console = slog.NewJSONHandler(o.out, &slog.HandlerOptions{Level: o.level})
	} else {
		console = tint.NewHandler(o.out, &tint.Options{
			Level:      o.level,
			TimeFormat: time.Kitchen,
			NoColor:    o.noColor,
		})
	}

	if !o.logToFile {
		return slog.New(console), nopCloser{}
	}

	file := o.file
	if file == "" {
		file = DefaultFile
	}
	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    o.maxSizeMB,
		MaxBackups: o.maxBackups,
		MaxAge:     o.maxAgeDays,
	}
	fileHandler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: o.level})
	return slog.New(fanout{console, fileHandler}), rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends every record to all handlers.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
