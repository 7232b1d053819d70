package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig []byte

const (
	userConfigPath    = "~/.config/curator/config.toml"
	projectConfigName = "curator.toml"
)

// DefaultConfigPath is where `curator config init` writes by default.
func DefaultConfigPath() (string, error) {
	return ExpandPath(userConfigPath)
}

// Load reads the configuration at path, or searches the user config
// directory and then ./curator.toml when path is empty. Missing files yield
// defaults. It returns the config, the path consulted, and whether that file
// existed.
func Load(path string) (*Config, string, bool, error) {
	source, found, err := locate(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if found {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config: %w", err)
		}
		if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse %s: %w", source, err)
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, source, found, nil
}

func locate(explicit string) (string, bool, error) {
	if explicit != "" {
		target, err := ExpandPath(explicit)
		if err != nil {
			return "", false, err
		}
		found, err := isFile(target)
		return target, found, err
	}

	userPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{userPath, projectPath} {
		if found, _ := isFile(candidate); found {
			return candidate, true, nil
		}
	}
	return userPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	}
	return !info.IsDir(), nil
}

// ExpandPath resolves a leading "~" against the home directory and returns
// an absolute, cleaned path. Empty input stays empty.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// CreateSample writes the commented sample configuration to path.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, sampleConfig, 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
