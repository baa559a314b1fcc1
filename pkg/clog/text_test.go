package clog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewAttributesHandler(NewTextHandler(&buf, WithColor(false), WithLevel(slog.LevelDebug))))

	ctx := ContextWithSlog(context.Background())
	AddAttribute(ctx, "permission", "file.write")
	AddError(ctx, errors.New("boom"))
	logger.With("rule", "file.*").InfoContext(ctx, "decision", "granted", false)

	out := buf.String()
	assert.Contains(t, out, "INFO file.write false decision boom\n")
	assert.Contains(t, out, "    rule=file.*\n")
	assert.NotContains(t, out, "error.message=")
}

func TestTextHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTextHandler(&buf, WithColor(false)))
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.WithGroup("engine").Warn("shown", "mode", "open")
	assert.Contains(t, buf.String(), "engine.mode=open")
}

func TestGetAttributeTypeMismatch(t *testing.T) {
	ctx := ContextWithSlog(context.Background())
	AddAttributes(ctx, map[string]any{"n": 1, "nested": map[string]any{"a": "x"}})
	AddAttributes(ctx, map[string]any{"nested": map[string]any{"b": "y"}})

	assert.Equal(t, 1, GetAttribute[int](ctx, "n"))
	assert.Equal(t, "", GetAttribute[string](ctx, "n"))
	assert.Equal(t, map[string]any{"a": "x", "b": "y"}, GetAttribute[map[string]any](ctx, "nested"))
	assert.Nil(t, GetAttributes(context.Background()))
}
