package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"curator/internal/feed"
)

type listEnvelope[T any] struct {
	Items []T `json:"items"`
}

// IngestRequest asks the server to pull recent posts for a channel.
type IngestRequest struct {
	Channel    string `json:"channel"`
	Limit      int    `json:"limit"`
	ForceMedia bool   `json:"force_media"`
}

// AddTopicItem is the body of POST /api/topics/add. The optional fields carry
// a durable snapshot of the post.
type AddTopicItem struct {
	TopicID         int64  `json:"topic_id"`
	MessageID       int64  `json:"message_id"`
	ChannelTgID     int64  `json:"channel_tg_id,omitempty"`
	MsgID           int64  `json:"msg_id,omitempty"`
	PostText        string `json:"post_text,omitempty"`
	CommentText     string `json:"comment_text,omitempty"`
	ChannelUsername string `json:"channel_username,omitempty"`
	SourceURL       string `json:"source_url,omitempty"`
}

// RemoveTopicItem is the body of DELETE /api/topics/remove.
type RemoveTopicItem struct {
	TopicID     int64 `json:"topic_id"`
	MessageID   int64 `json:"message_id"`
	ChannelTgID int64 `json:"channel_tg_id,omitempty"`
	MsgID       int64 `json:"msg_id,omitempty"`
	TopicItemID int64 `json:"topic_item_id,omitempty"`
}

// GenerateRequest is the body of POST /api/comments/generate.
type GenerateRequest struct {
	MessageIDs []int64 `json:"message_ids"`
	Username   string  `json:"username,omitempty"`
	ChannelID  int64   `json:"channel_id,omitempty"`
}

// OverrideItem is one target of POST /api/comments/generate_override.
type OverrideItem struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

// DeleteCommentsRequest selects comments to delete, either by ids or by
// channel. Exactly one form should be set.
type DeleteCommentsRequest struct {
	MessageIDs []int64 `json:"message_ids,omitempty"`
	Username   string  `json:"username,omitempty"`
	ChannelID  int64   `json:"channel_id,omitempty"`
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// ListPosts fetches the posts matching sel in server order.
func (c *Client) ListPosts(ctx context.Context, sel feed.Selection) ([]feed.Post, error) {
	query := url.Values{}
	switch {
	case strings.TrimSpace(sel.Username) != "":
		query.Set("username", strings.TrimSpace(sel.Username))
	case sel.ChannelID != 0:
		query.Set("channel_id", strconv.FormatInt(sel.ChannelID, 10))
	}
	if sel.Limit > 0 {
		query.Set("limit", strconv.Itoa(sel.Limit))
	}
	if fwd := strings.TrimSpace(sel.FwdUsername); fwd != "" {
		query.Set("fwd_username", fwd)
	}
	var out listEnvelope[feed.Post]
	if err := c.do(ctx, http.MethodGet, "/api/posts", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ListChannels fetches the ingested channels.
func (c *Client) ListChannels(ctx context.Context) ([]feed.Channel, error) {
	var out listEnvelope[feed.Channel]
	if err := c.do(ctx, http.MethodGet, "/api/channels", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Ingest triggers a server-side ingest run.
func (c *Client) Ingest(ctx context.Context, req IngestRequest) error {
	return c.do(ctx, http.MethodPost, "/api/ingest", nil, req, nil)
}

// ListTopics fetches every topic with its membership snapshot.
func (c *Client) ListTopics(ctx context.Context) ([]feed.TopicRecord, error) {
	var out listEnvelope[feed.TopicRecord]
	if err := c.do(ctx, http.MethodGet, "/api/topics", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CreateTopic creates a topic and returns its server id.
func (c *Client) CreateTopic(ctx context.Context, name string) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/api/topics", nil, body, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// DeleteTopic deletes the topic with id.
func (c *Client) DeleteTopic(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/topics/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// AddToTopic adds a post to a topic.
func (c *Client) AddToTopic(ctx context.Context, item AddTopicItem) error {
	return c.do(ctx, http.MethodPost, "/api/topics/add", nil, item, nil)
}

// RemoveFromTopic removes a post from a topic.
func (c *Client) RemoveFromTopic(ctx context.Context, item RemoveTopicItem) error {
	return c.do(ctx, http.MethodDelete, "/api/topics/remove", nil, item, nil)
}

// GenerateComments requests comments for message ids using their stored text.
func (c *Client) GenerateComments(ctx context.Context, req GenerateRequest) error {
	if req.MessageIDs == nil {
		req.MessageIDs = []int64{}
	}
	return c.do(ctx, http.MethodPost, "/api/comments/generate", nil, req, nil)
}

// GenerateOverride requests comments using caller-supplied source text.
func (c *Client) GenerateOverride(ctx context.Context, items []OverrideItem) error {
	if items == nil {
		items = []OverrideItem{}
	}
	body := struct {
		Items []OverrideItem `json:"items"`
	}{Items: items}
	return c.do(ctx, http.MethodPost, "/api/comments/generate_override", nil, body, nil)
}

// StopGeneration asks the server to stop the running generation job.
func (c *Client) StopGeneration(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/comments/stop", nil, struct{}{}, nil)
}

// DeleteComments deletes generated comments.
func (c *Client) DeleteComments(ctx context.Context, req DeleteCommentsRequest) error {
	return c.do(ctx, http.MethodDelete, "/api/comments", nil, req, nil)
}

// EditComment replaces the comment text of one message.
func (c *Client) EditComment(ctx context.Context, messageID int64, text string) error {
	body := struct {
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
	}{MessageID: messageID, Text: text}
	return c.do(ctx, http.MethodPut, "/api/comments", nil, body, nil)
}

// Prompt returns the server's comment prompt template.
func (c *Client) Prompt(ctx context.Context) (string, error) {
	var out struct {
		Template string `json:"template"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/prompt", nil, nil, &out); err != nil {
		return "", err
	}
	return out.Template, nil
}

// SetPrompt replaces the server's comment prompt template.
func (c *Client) SetPrompt(ctx context.Context, template string) error {
	body := struct {
		Template string `json:"template"`
	}{Template: template}
	return c.do(ctx, http.MethodPut, "/api/prompt", nil, body, nil)
}
