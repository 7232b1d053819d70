package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const consoleTimeLayout = "2006-01-02 15:04:05.000"

// leadingFields are printed first, in this order, when present.
var leadingFields = []string{FieldJobID, FieldMessageID, FieldTopic, FieldRequestID}

// consoleHandler writes one human readable line per record:
//
//	2026-01-02 15:04:05.000 INF session: reload complete job_id=... posts=3
type consoleHandler struct {
	out    io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	source bool
	bound  []slog.Attr
	prefix string
}

func newConsoleHandler(out io.Writer, level slog.Leveler, source bool) *consoleHandler {
	return &consoleHandler{out: out, mu: &sync.Mutex{}, level: level, source: source}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.bound = make([]slog.Attr, 0, len(h.bound)+len(attrs))
	next.bound = append(next.bound, h.bound...)
	for _, attr := range attrs {
		next.bound = append(next.bound, qualify(h.prefix, attr))
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]slog.Attr, 0, len(h.bound)+record.NumAttrs())
	fields = append(fields, h.bound...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = append(fields, qualify(h.prefix, attr))
		return true
	})

	var flat []slog.Attr
	for _, attr := range fields {
		flat = flattenInto(flat, "", attr)
	}

	component := ""
	rest := flat[:0]
	for _, attr := range flat {
		if attr.Key == FieldComponent && component == "" {
			component = attr.Value.String()
			continue
		}
		rest = append(rest, attr)
	}

	var line strings.Builder
	line.WriteString(record.Time.Format(consoleTimeLayout))
	line.WriteByte(' ')
	line.WriteString(levelTag(record.Level))
	line.WriteByte(' ')
	if component != "" {
		line.WriteString(component)
		line.WriteString(": ")
	}
	line.WriteString(record.Message)

	for _, key := range leadingFields {
		for _, attr := range rest {
			if attr.Key == key {
				writeField(&line, attr)
			}
		}
	}
	for _, attr := range rest {
		if !isLeading(attr.Key) {
			writeField(&line, attr)
		}
	}
	if h.source && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		if frame.File != "" {
			line.WriteString(" @")
			line.WriteString(filepath.Base(frame.File))
			line.WriteByte(':')
			line.WriteString(strconv.Itoa(frame.Line))
		}
	}
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line.String())
	return err
}

func qualify(prefix string, attr slog.Attr) slog.Attr {
	if prefix == "" || attr.Key == "" {
		return attr
	}
	attr.Key = prefix + attr.Key
	return attr
}

func flattenInto(dst []slog.Attr, prefix string, attr slog.Attr) []slog.Attr {
	value := attr.Value.Resolve()
	key := attr.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if value.Kind() == slog.KindGroup {
		for _, member := range value.Group() {
			dst = flattenInto(dst, key, member)
		}
		return dst
	}
	if key == "" {
		return dst
	}
	return append(dst, slog.Attr{Key: key, Value: value})
}

func isLeading(key string) bool {
	for _, candidate := range leadingFields {
		if candidate == key {
			return true
		}
	}
	return false
}

func writeField(b *strings.Builder, attr slog.Attr) {
	b.WriteByte(' ')
	b.WriteString(attr.Key)
	b.WriteByte('=')
	b.WriteString(renderValue(attr.Value))
}

func renderValue(v slog.Value) string {
	var text string
	switch v.Kind() {
	case slog.KindTime:
		text = v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		text = v.Duration().Round(time.Millisecond).String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			text = err.Error()
		} else {
			text = fmt.Sprint(v.Any())
		}
	default:
		text = v.String()
	}
	if text == "" || strings.ContainsAny(text, " \t\n\"=") {
		return strconv.Quote(text)
	}
	return text
}

func levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERR"
	case level >= slog.LevelWarn:
		return "WRN"
	case level >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}
