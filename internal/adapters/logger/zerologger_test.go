package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestZeroLogger_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := &ZeroLogger{log: zerolog.New(&buf)}

	l.Info(context.Background(), "order submitted", map[string]interface{}{
		"venue": "mockA",
		"size":  "1.5",
	})

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"message":"order submitted"`)
	assert.Contains(t, out, `"venue":"mockA"`)
	assert.Contains(t, out, `"size":"1.5"`)
}

func TestZeroLogger_ErrorIncludesErr(t *testing.T) {
	var buf bytes.Buffer
	l := &ZeroLogger{log: zerolog.New(&buf)}

	l.Error(context.Background(), errors.New("venue unreachable"), "order failed", nil)

	out := buf.String()
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"error":"venue unreachable"`)
}

func TestZeroLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := &ZeroLogger{log: zerolog.New(&buf).Level(zerolog.WarnLevel)}

	l.Debug(context.Background(), "noise")
	l.Info(context.Background(), "still noise")
	l.Warn(context.Background(), "kept")

	out := buf.String()
	assert.NotContains(t, out, "noise")
	assert.Contains(t, out, "kept")
}

type requestIDKey struct{}

func TestZeroLogger_PropagatesContextToHooks(t *testing.T) {
	var buf bytes.Buffer
	hook := zerolog.HookFunc(func(e *zerolog.Event, level zerolog.Level, msg string) {
		if id, ok := e.GetCtx().Value(requestIDKey{}).(string); ok {
			e.Str("request_id", id)
		}
	})
	l := &ZeroLogger{log: zerolog.New(&buf).Hook(hook)}

	ctx := context.WithValue(context.Background(), requestIDKey{}, "req-42")
	l.Info(ctx, "signal received", nil)

	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}

func TestNew_FallsBackToInfoOnBadLevel(t *testing.T) {
	l := New("not-a-level")
	assert.Equal(t, zerolog.InfoLevel, l.log.GetLevel())
}
