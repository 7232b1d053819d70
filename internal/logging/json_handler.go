package logging

import (
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// newJSONHandler emits one object per line with "ts", a lowercase "level"
// and, when enabled, "source" as file:line.
func newJSONHandler(w io.Writer, level slog.Leveler, source bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   source,
		ReplaceAttr: rewriteJSONAttr,
	})
}

func rewriteJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339Nano))
	case slog.LevelKey:
		return slog.String(slog.LevelKey, strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			return slog.String(slog.SourceKey, filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
		}
	}
	return attr
}
