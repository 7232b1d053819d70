package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBackend() error {
	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http or https, got %q", c.Backend.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("backend.base_url must include a host, got %q", c.Backend.BaseURL)
	}
	if c.Backend.RequestsPerSecond < 0 {
		return errors.New("backend.requests_per_second must be >= 0 (0 disables throttling)")
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.Username != "" && c.Session.ChannelID != 0 {
		return errors.New("session.username and session.channel_id are mutually exclusive")
	}
	if c.Session.ChannelID < 0 {
		return errors.New("session.channel_id must be positive when set")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyTopic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) topic URL, got %q", c.Notifications.NtfyTopic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q (use debug, info, warn or error)", strings.TrimSpace(c.Logging.Level))
	}
}
