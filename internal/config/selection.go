package config

import "curator/internal/feed"

// Selection returns the configured default post filter.
func (c *Config) Selection() feed.Selection {
	return feed.Selection{
		Username:    c.Session.Username,
		ChannelID:   c.Session.ChannelID,
		FwdUsername: c.Session.FwdUsername,
		Limit:       c.Session.PostLimit,
	}
}
