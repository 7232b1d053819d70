package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend contains connection settings for the curation backend REST API.
type Backend struct {
	BaseURL           string  `toml:"base_url"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Session contains the default post selection used by reloads and actions
// that operate on "the current channel".
type Session struct {
	Username    string `toml:"username"`
	ChannelID   int64  `toml:"channel_id"`
	FwdUsername string `toml:"fwd_username"`
	PostLimit   int    `toml:"post_limit"`
	IngestLimit int    `toml:"ingest_limit"`
}

// Generation contains comment generation settings.
type Generation struct {
	// FollowUpMarker is the glyph that marks a post as an annotation of the
	// post listed before it.
	FollowUpMarker string `toml:"follow_up_marker"`
	// UseEffectiveText submits main+follow-up text through generate_override.
	// When false, only message ids are sent and the backend uses stored text.
	UseEffectiveText bool `toml:"use_effective_text"`
}

// Paths contains local state locations.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// View contains settings for the local view server.
type View struct {
	Bind string `toml:"bind"`
}

// Notifications contains ntfy settings for generation job alerts.
type Notifications struct {
	// NtfyTopic is the full topic URL, e.g. https://ntfy.sh/my-curator.
	// Empty disables notifications.
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for curator.
type Config struct {
	Backend       Backend       `toml:"backend"`
	Session       Session       `toml:"session"`
	Generation    Generation    `toml:"generation"`
	Paths         Paths         `toml:"paths"`
	View          View          `toml:"view"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// JournalPath is the SQLite database of finished generation jobs.
func (c *Config) JournalPath() string { return filepath.Join(c.Paths.StateDir, "journal.db") }

// RunLockPath is the lock file that keeps one generation run per state dir.
func (c *Config) RunLockPath() string { return filepath.Join(c.Paths.StateDir, "generate.lock") }

// LogPath is the log file written next to console output.
func (c *Config) LogPath() string { return filepath.Join(c.Paths.LogDir, "curator.log") }
