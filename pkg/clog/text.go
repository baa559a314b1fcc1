package clog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fatih/color"
)

// leadingKeys are printed inline, in this order, before the message.
var leadingKeys = []string{"proto", "method", "path", "status", "permission", "granted"}

// TextHandler is a human oriented slog handler for local runs. Known request
// and decision attributes go on the first line; everything else is listed
// below it sorted by key.
type TextHandler struct {
	cfg   TextHandlerConfig
	mu    *sync.Mutex
	attrs []slog.Attr
	group string
	w     io.Writer
}

type TextHandlerConfig struct {
	Color bool
	Level slog.Leveler
}

type TextHandlerOption func(*TextHandlerConfig)

func WithColor(c bool) TextHandlerOption {
	return func(cfg *TextHandlerConfig) {
		cfg.Color = c
	}
}

func WithLevel(level slog.Leveler) TextHandlerOption {
	return func(cfg *TextHandlerConfig) {
		cfg.Level = level
	}
}

func NewTextHandler(w io.Writer, opts ...TextHandlerOption) *TextHandler {
	cfg := TextHandlerConfig{Color: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TextHandler{cfg: cfg, mu: &sync.Mutex{}, w: w}
}

func (h *TextHandler) Enabled(_ context.Context, l slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.cfg.Level != nil {
		minLevel = h.cfg.Level.Level()
	}
	return l >= minLevel
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(slices.Clone(h.attrs), h.qualify(attrs)...)
	return &nh
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	if nh.group != "" {
		nh.group += "." + name
	} else {
		nh.group = name
	}
	return &nh
}

func (h *TextHandler) qualify(attrs []slog.Attr) []slog.Attr {
	if h.group == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
	}
	return out
}

func levelColor(l slog.Level) *color.Color {
	switch {
	case l >= slog.LevelError:
		return color.New(color.FgRed)
	case l >= slog.LevelWarn:
		return color.New(color.FgYellow)
	case l >= slog.LevelInfo:
		return color.New(color.FgBlue)
	default:
		return color.New(color.FgCyan)
	}
}

func (h *TextHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	paint := func(c *color.Color) *color.Color {
		if h.cfg.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}

	kv := map[string]slog.Value{}
	for _, attr := range h.attrs {
		kv[attr.Key] = attr.Value
	}
	var recAttrs []slog.Attr
	record.Attrs(func(attr slog.Attr) bool {
		recAttrs = append(recAttrs, attr)
		return true
	})
	for _, attr := range h.qualify(recAttrs) {
		kv[attr.Key] = attr.Value
	}

	plain := paint(color.New())
	if _, err := plain.Fprintf(h.w, "%s ", record.Time.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("can't write time: %w", err)
	}
	if _, err := paint(levelColor(record.Level)).Fprintf(h.w, "%s ", record.Level); err != nil {
		return fmt.Errorf("can't write level: %w", err)
	}
	for _, key := range leadingKeys {
		v, ok := kv[key]
		if !ok {
			continue
		}
		delete(kv, key)
		if _, err := plain.Fprintf(h.w, "%s ", v); err != nil {
			return fmt.Errorf("can't write %s: %w", key, err)
		}
	}
	if _, err := paint(color.New(color.FgGreen)).Fprint(h.w, record.Message); err != nil {
		return fmt.Errorf("can't write message: %w", err)
	}
	if e, ok := kv[ErrorAttributeKey]; ok {
		delete(kv, ErrorAttributeKey)
		if _, err := paint(color.New(color.FgRed)).Fprintf(h.w, " %s", e); err != nil {
			return fmt.Errorf("can't write err: %w", err)
		}
	}
	if _, err := fmt.Fprintln(h.w); err != nil {
		return err
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if _, err := plain.Fprintf(h.w, "    %s=%s\n", k, kv[k]); err != nil {
			return fmt.Errorf("can't write %s: %w", k, err)
		}
	}
	return nil
}
