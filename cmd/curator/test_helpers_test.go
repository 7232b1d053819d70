package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"curator/internal/config"
	"curator/internal/testsupport"
)

type cliTestEnv struct {
	backend    *testsupport.Backend
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	for _, key := range []string{"CURATOR_BACKEND_URL", "CURATOR_USERNAME", "CURATOR_CHANNEL_ID", "CURATOR_NTFY_TOPIC"} {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", t.TempDir())

	b := testsupport.NewBackend(t)
	b.SetPosts(
		testsupport.Post(1, "events", "hello world"),
		testsupport.Post(2, "events", "👆 more context"),
		testsupport.Post(3, "events", "solo post"),
	)
	b.AddTopic("T", 1)

	cfg := testsupport.NewConfig(t, testsupport.WithBackend(b))
	cfg.Logging.Level = "error"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "curator.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{backend: b, cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if env != nil {
		flags = append(flags, "--config", env.configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
