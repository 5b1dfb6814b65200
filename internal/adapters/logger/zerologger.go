package logger

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ZeroLogger implements the ports.Logger interface using zerolog.
type ZeroLogger struct {
	log zerolog.Logger
}

// New creates a zerolog-backed logger writing JSON lines to stderr.
// Unparseable levels fall back to info.
func New(level string) *ZeroLogger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return &ZeroLogger{
		log: zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl),
	}
}

// emit attaches the caller's context to the event so zerolog hooks can pull
// request-scoped values from it, then renders the optional fields map.
func emit(ctx context.Context, ev *zerolog.Event, msg string, fields []map[string]interface{}) {
	ev = ev.Ctx(ctx)
	if len(fields) > 0 && fields[0] != nil {
		ev = ev.Fields(fields[0])
	}
	ev.Msg(msg)
}

// Debug logs a message at Debug level.
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	emit(ctx, l.log.Debug(), msg, fields)
}

// Info logs a message at Info level.
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	emit(ctx, l.log.Info(), msg, fields)
}

// Warn logs a message at Warning level.
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	emit(ctx, l.log.Warn(), msg, fields)
}

// Error logs an error message at Error level.
func (l *ZeroLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	emit(ctx, l.log.Error().Err(err), msg, fields)
}
