package feed

import (
	"fmt"
	"strings"
	"time"
)

// ChannelIdentity names the channel a post was ingested from.
type ChannelIdentity struct {
	TgID     int64  `json:"channel_tg_id,omitempty"`
	Username string `json:"channel_username,omitempty"`
	Title    string `json:"channel_title,omitempty"`
}

// Forward describes the origin of a forwarded post.
type Forward struct {
	FromUsername string `json:"from_username,omitempty"`
	FromName     string `json:"from_name,omitempty"`
	FromType     string `json:"from_type,omitempty"`
}

// Media is one attachment served by the backend.
type Media struct {
	URL  string `json:"url"`
	Kind string `json:"kind,omitempty"`
	Mime string `json:"mime,omitempty"`
}

// Post is a read-only snapshot of an ingested message. ID is the global
// message id; MsgID is the per-channel message id.
type Post struct {
	ID int64 `json:"id"`
	ChannelIdentity
	Text      string    `json:"text"`
	Date      time.Time `json:"date"`
	Media     []Media   `json:"media,omitempty"`
	Forward   *Forward  `json:"forward,omitempty"`
	AIComment string    `json:"ai_comment,omitempty"`
	SourceURL string    `json:"source_url,omitempty"`
	MsgID     int64     `json:"msg_id,omitempty"`
}

// HasComment reports whether the post carries a non-empty generated comment.
func (p Post) HasComment() bool {
	return strings.TrimSpace(p.AIComment) != ""
}

// Link returns the public source URL, deriving a t.me link from the channel
// username and per-channel id when the backend did not supply one.
func (p Post) Link() string {
	if p.SourceURL != "" {
		return p.SourceURL
	}
	if p.Username != "" && p.MsgID != 0 {
		return fmt.Sprintf("https://t.me/%s/%d", p.Username, p.MsgID)
	}
	return ""
}

// ChannelLabel returns the best human readable channel name.
func (p Post) ChannelLabel() string {
	switch {
	case p.Title != "":
		return p.Title
	case p.Username != "":
		return "@" + p.Username
	default:
		return "Channel"
	}
}

// Snapshot builds the durable membership snapshot for p, used when adding the
// post to a topic so the entry outlives the source post.
func (p Post) Snapshot() Snapshot {
	return Snapshot{
		MessageID:       p.ID,
		ChannelTgID:     p.TgID,
		MsgID:           p.MsgID,
		PostText:        p.Text,
		CommentText:     p.AIComment,
		ChannelUsername: p.Username,
		SourceURL:       p.Link(),
	}
}

// Channel is an ingested channel as listed by the backend.
type Channel struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name"`
}

// Topic is an operator-defined label bucket.
type Topic struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Snapshot is the durable copy of a post stored on a topic entry.
type Snapshot struct {
	ItemID          int64  `json:"id,omitempty"`
	MessageID       int64  `json:"message_id,omitempty"`
	ChannelTgID     int64  `json:"channel_tg_id,omitempty"`
	MsgID           int64  `json:"msg_id,omitempty"`
	PostText        string `json:"post_text,omitempty"`
	CommentText     string `json:"comment_text,omitempty"`
	ChannelUsername string `json:"channel_username,omitempty"`
	SourceURL       string `json:"source_url,omitempty"`
}

// TopicRecord is one topic as returned by GET /api/topics.
type TopicRecord struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	MessageIDs []int64    `json:"message_ids"`
	Items      []Snapshot `json:"items"`
}

// ItemKeys carries the extra identifiers that let the backend disambiguate a
// topic entry when the message id alone is not sufficient.
type ItemKeys struct {
	ChannelTgID int64 `json:"channel_tg_id,omitempty"`
	MsgID       int64 `json:"msg_id,omitempty"`
	TopicItemID int64 `json:"topic_item_id,omitempty"`
}

// Selection is the post filter shared by reloads and generation polling.
// Username and ChannelID are mutually exclusive.
type Selection struct {
	Username    string `json:"username,omitempty"`
	ChannelID   int64  `json:"channel_id,omitempty"`
	FwdUsername string `json:"fwd_username,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// Empty reports whether neither a channel username nor a channel id is set.
func (s Selection) Empty() bool {
	return strings.TrimSpace(s.Username) == "" && s.ChannelID == 0
}

// String renders the selection for logs and status lines.
func (s Selection) String() string {
	switch {
	case s.Username != "":
		return "@" + s.Username
	case s.ChannelID != 0:
		return fmt.Sprintf("channel %d", s.ChannelID)
	default:
		return "all channels"
	}
}
