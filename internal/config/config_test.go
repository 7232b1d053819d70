package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"curator/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("CURATOR_BACKEND_URL", "")
	t.Setenv("CURATOR_USERNAME", "")
	t.Setenv("CURATOR_CHANNEL_ID", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "curator")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.JournalPath() != filepath.Join(wantState, "journal.db") {
		t.Fatalf("unexpected journal path: %q", cfg.JournalPath())
	}
	if cfg.Backend.BaseURL != "http://127.0.0.1:8000" {
		t.Fatalf("unexpected backend url: %q", cfg.Backend.BaseURL)
	}
	if cfg.Session.PostLimit != 100 {
		t.Fatalf("unexpected post limit: %d", cfg.Session.PostLimit)
	}
	if cfg.Generation.FollowUpMarker != "👆" {
		t.Fatalf("unexpected follow-up marker: %q", cfg.Generation.FollowUpMarker)
	}
	if !cfg.Generation.UseEffectiveText {
		t.Fatal("expected effective text submission by default")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("CURATOR_BACKEND_URL", "")
	t.Setenv("CURATOR_USERNAME", "")
	t.Setenv("CURATOR_CHANNEL_ID", "")
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "curator.toml")

	type payload struct {
		Backend struct {
			BaseURL string `toml:"base_url"`
		} `toml:"backend"`
		Session struct {
			Username  string `toml:"username"`
			PostLimit int    `toml:"post_limit"`
		} `toml:"session"`
		Paths struct {
			StateDir string `toml:"state_dir"`
		} `toml:"paths"`
	}
	custom := payload{}
	custom.Backend.BaseURL = "https://curation.example.com/"
	custom.Session.Username = "@news_channel"
	custom.Session.PostLimit = 5000
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Backend.BaseURL != "https://curation.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Session.Username != "news_channel" {
		t.Fatalf("expected @ prefix stripped, got %q", cfg.Session.Username)
	}
	if cfg.Session.PostLimit != 1000 {
		t.Fatalf("expected post limit clamped to 1000, got %d", cfg.Session.PostLimit)
	}
	if cfg.Paths.StateDir != filepath.Join(tempDir, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
}

func TestEnvVarOverridesConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "curator.toml")
	contents := "[backend]\nbase_url = \"http://file.example\"\n\n[session]\nusername = \"from_file\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CURATOR_BACKEND_URL", "http://env.example:9000")
	t.Setenv("CURATOR_USERNAME", "from_env")
	t.Setenv("CURATOR_CHANNEL_ID", "")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Backend.BaseURL != "http://env.example:9000" {
		t.Errorf("expected backend url from env, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Session.Username != "from_env" {
		t.Errorf("expected username from env, got %q", cfg.Session.Username)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_channel_username_here") {
		t.Fatalf("sample config missing placeholder username: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StateDir, "curator") {
		t.Fatalf("expected state dir to contain curator, got %q", cfg.Paths.StateDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "bad scheme",
			mutate: func(c *config.Config) { c.Backend.BaseURL = "ftp://example.com" },
			want:   "backend.base_url",
		},
		{
			name:   "missing host",
			mutate: func(c *config.Config) { c.Backend.BaseURL = "http://" },
			want:   "host",
		},
		{
			name: "username and channel",
			mutate: func(c *config.Config) {
				c.Session.Username = "chan"
				c.Session.ChannelID = 42
			},
			want: "mutually exclusive",
		},
		{
			name:   "negative rate",
			mutate: func(c *config.Config) { c.Backend.RequestsPerSecond = -1 },
			want:   "requests_per_second",
		},
		{
			name:   "bare ntfy topic",
			mutate: func(c *config.Config) { c.Notifications.NtfyTopic = "my-topic" },
			want:   "ntfy_topic",
		},
		{
			name:   "unknown level",
			mutate: func(c *config.Config) { c.Logging.Level = "loud" },
			want:   "logging.level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
