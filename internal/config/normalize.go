package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeBackend(); err != nil {
		return err
	}
	if err := c.normalizeSession(); err != nil {
		return err
	}
	c.normalizeGeneration()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeBackend() error {
	if value, ok := os.LookupEnv("CURATOR_BACKEND_URL"); ok && strings.TrimSpace(value) != "" {
		c.Backend.BaseURL = value
	}
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaultBackendURL
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Backend.Burst <= 0 {
		c.Backend.Burst = defaultBurst
	}
	return nil
}

func (c *Config) normalizeSession() error {
	if value, ok := os.LookupEnv("CURATOR_USERNAME"); ok && strings.TrimSpace(value) != "" {
		c.Session.Username = value
	}
	if value, ok := os.LookupEnv("CURATOR_CHANNEL_ID"); ok && strings.TrimSpace(value) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("CURATOR_CHANNEL_ID: %w", err)
		}
		c.Session.ChannelID = id
	}
	c.Session.Username = strings.TrimPrefix(strings.TrimSpace(c.Session.Username), "@")
	c.Session.FwdUsername = strings.TrimPrefix(strings.TrimSpace(c.Session.FwdUsername), "@")
	if c.Session.PostLimit <= 0 {
		c.Session.PostLimit = defaultPostLimit
	}
	if c.Session.PostLimit > maxPostLimit {
		c.Session.PostLimit = maxPostLimit
	}
	if c.Session.IngestLimit <= 0 {
		c.Session.IngestLimit = defaultIngestLimit
	}
	return nil
}

func (c *Config) normalizeGeneration() {
	c.Generation.FollowUpMarker = strings.TrimSpace(c.Generation.FollowUpMarker)
	if c.Generation.FollowUpMarker == "" {
		c.Generation.FollowUpMarker = defaultFollowUpMarker
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = ExpandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.View.Bind = strings.TrimSpace(c.View.Bind)
	if c.View.Bind == "" {
		c.View.Bind = defaultViewBind
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	if value, ok := os.LookupEnv("CURATOR_NTFY_TOPIC"); ok {
		c.Notifications.NtfyTopic = value
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
