package testsupport

import (
	"path/filepath"
	"testing"

	"curator/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Session.Username = "events"
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.View.Bind = "127.0.0.1:0"
	cfgVal.Backend.RequestsPerSecond = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithBackend points the config at a fake backend.
func WithBackend(b *Backend) ConfigOption {
	return func(cb *configBuilder) {
		cb.cfg.Backend.BaseURL = b.URL()
	}
}

// WithBackendURL overrides the backend base URL.
func WithBackendURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backend.BaseURL = url
	}
}

// WithChannelID selects posts by channel id instead of username.
func WithChannelID(id int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Session.Username = ""
		b.cfg.Session.ChannelID = id
	}
}

// WithoutSelection clears the default channel selection.
func WithoutSelection() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Session.Username = ""
		b.cfg.Session.ChannelID = 0
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
