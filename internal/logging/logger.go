package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"curator/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level string
	// Format is "console" (default) or "json".
	Format string
	// Outputs lists destinations: "stdout", "stderr" or a file path.
	// Empty means stderr.
	Outputs []string
	// Source adds the caller location; always on at debug level.
	Source bool
}

// New builds a logger writing to every destination in opts.Outputs.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))

	out, err := openOutputs(opts.Outputs)
	if err != nil {
		return nil, err
	}
	source := opts.Source || level.Level() <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return slog.New(newConsoleHandler(out, level, source)), nil
	case "json":
		return slog.New(newJSONHandler(out, level, source)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig logs to stderr and, when a log directory is configured, to
// curator.log inside it. Stdout stays free for command output.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info"})
	}
	outputs := []string{"stderr"}
	if cfg.Paths.LogDir != "" {
		outputs = append(outputs, cfg.LogPath())
	}
	return New(Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Outputs: outputs,
	})
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return parsed
}

func openOutputs(targets []string) (io.Writer, error) {
	if len(targets) == 0 {
		return os.Stderr, nil
	}
	var writers []io.Writer
	var seen []string
	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" || slices.Contains(seen, target) {
			continue
		}
		seen = append(seen, target)

		switch target {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file: %w", err)
			}
			writers = append(writers, file)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}
