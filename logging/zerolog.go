// Package logging adapts zerolog to keypool.Logger.
package logging

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/getpup/keypool-orchestrator"
	"github.com/rs/zerolog"
)

// ErrUnsupportedFormat is returned for log formats other than json and console.
var ErrUnsupportedFormat = errors.New("unsupported log format")

// Logger is a keypool.Logger writing through zerolog.
type Logger struct {
	zl zerolog.Logger
}

var _ keypool.Logger = (*Logger)(nil)

// New constructs a Logger writing to w based on level and format ("json" or "console").
// A nil w writes to stdout.
func New(w io.Writer, level, format string) (*Logger, error) {
	if w == nil {
		w = os.Stdout
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, err
	}

	var zl zerolog.Logger
	switch strings.ToLower(format) {
	case "json", "":
		zl = zerolog.New(w)
	case "console":
		zl = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	default:
		return nil, ErrUnsupportedFormat
	}

	return NewZerolog(zl.With().Timestamp().Logger().Level(lvl)), nil
}

// NewZerolog wraps an existing zerolog logger.
func NewZerolog(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Zerolog returns the underlying zerolog logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Debug implements keypool.Logger.
func (l *Logger) Debug(ctx context.Context, msg string, args ...interface{}) {
	l.log(ctx, l.zl.Debug(), msg, args)
}

// Info implements keypool.Logger.
func (l *Logger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.log(ctx, l.zl.Info(), msg, args)
}

// Error implements keypool.Logger.
func (l *Logger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.log(ctx, l.zl.Error(), msg, args)
}

func (l *Logger) log(ctx context.Context, e *zerolog.Event, msg string, args []interface{}) {
	if e == nil {
		return
	}

	fields := sanitize(args)
	if rc, ok := keypool.RequestContextFrom(ctx); ok && !hasKey(fields, "runID") {
		fields = append(fields, "runID", rc.RunID())
	}

	e.Fields(fields).Msg(msg)
}

// sanitize pairs up args, naming a dangling value "arg" and masking secret keys.
func sanitize(args []interface{}) []interface{} {
	fields := make([]interface{}, 0, len(args)+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "arg"
		}
		if i+1 >= len(args) {
			fields = append(fields, "arg", args[i])
			break
		}

		value := args[i+1]
		if strings.Contains(strings.ToLower(key), "secret") {
			value = "****"
		}
		fields = append(fields, key, value)
	}
	return fields
}

func hasKey(fields []interface{}, key string) bool {
	for i := 0; i < len(fields); i += 2 {
		if fields[i] == key {
			return true
		}
	}
	return false
}
