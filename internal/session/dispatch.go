package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"curator/internal/backend"
	"curator/internal/feed"
	"curator/internal/generation"
	"curator/internal/logging"
	"curator/internal/topics"
)

// Action names an operator command.
type Action string

const (
	ActionReload        Action = "reload"
	ActionSelect        Action = "select"
	ActionTopicCreate   Action = "topic.create"
	ActionTopicDelete   Action = "topic.delete"
	ActionTopicAdd      Action = "topic.add"
	ActionTopicRemove   Action = "topic.remove"
	ActionGenerate      Action = "generate"
	ActionStop          Action = "stop"
	ActionCommentEdit   Action = "comment.edit"
	ActionCommentDelete Action = "comment.delete"
	ActionDismiss       Action = "post.dismiss"
	ActionIngest        Action = "ingest"
)

// Command is one operator action with its arguments. Fields irrelevant to
// the action are ignored.
type Command struct {
	Action     Action          `json:"action"`
	Topic      string          `json:"topic,omitempty"`
	TopicID    int64           `json:"topic_id,omitempty"`
	MessageID  int64           `json:"message_id,omitempty"`
	MessageIDs []int64         `json:"message_ids,omitempty"`
	Text       string          `json:"text,omitempty"`
	Snapshot   bool            `json:"snapshot,omitempty"`
	Keys       feed.ItemKeys   `json:"keys"`
	Selection  *feed.Selection `json:"selection,omitempty"`
	Channel    string          `json:"channel,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	ForceMedia bool            `json:"force_media,omitempty"`
}

// Outcome reports what a command changed.
type Outcome struct {
	Action   Action  `json:"action"`
	Message  string  `json:"message"`
	TopicID  int64   `json:"topic_id,omitempty"`
	JobID    string  `json:"job_id,omitempty"`
	Affected []int64 `json:"affected,omitempty"`
}

type handler func(ctx context.Context, cmd Command) (Outcome, error)

func (c *Controller) actionTable() map[Action]handler {
	return map[Action]handler{
		ActionReload:        c.handleReload,
		ActionSelect:        c.handleSelect,
		ActionTopicCreate:   c.handleTopicCreate,
		ActionTopicDelete:   c.handleTopicDelete,
		ActionTopicAdd:      c.handleTopicAdd,
		ActionTopicRemove:   c.handleTopicRemove,
		ActionGenerate:      c.handleGenerate,
		ActionStop:          c.handleStop,
		ActionCommentEdit:   c.handleCommentEdit,
		ActionCommentDelete: c.handleCommentDelete,
		ActionDismiss:       c.handleDismiss,
		ActionIngest:        c.handleIngest,
	}
}

// Actions lists the registered actions.
func (c *Controller) Actions() []Action {
	out := make([]Action, 0, len(c.handlers))
	for action := range c.handlers {
		out = append(out, action)
	}
	slices.Sort(out)
	return out
}

// Dispatch runs cmd through the action table.
func (c *Controller) Dispatch(ctx context.Context, cmd Command) (Outcome, error) {
	h, ok := c.handlers[cmd.Action]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
	outcome, err := h(ctx, cmd)
	outcome.Action = cmd.Action
	if err != nil {
		attrs := []logging.Attr{
			logging.String("action", string(cmd.Action)),
			logging.Error(err),
		}
		if IsValidation(err) {
			c.logger.Info("action rejected", logging.Args(attrs...)...)
		} else {
			attrs = append(attrs,
				logging.String(logging.FieldImpact, "local state unchanged"),
				logging.String(logging.FieldErrorHint, hintFor(err)),
			)
			logging.WarnWithContext(c.logger, "action failed", "action_failed", attrs...)
		}
	}
	return outcome, err
}

func hintFor(err error) string {
	switch {
	case backend.IsNetwork(err):
		return "backend unreachable; check backend.base_url"
	case backend.StatusCode(err) != 0:
		return "backend rejected the request"
	default:
		return "see error for details"
	}
}

func (c *Controller) handleReload(ctx context.Context, _ Command) (Outcome, error) {
	applied, err := c.Reload(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !applied {
		return Outcome{Message: "superseded by a newer reload"}, nil
	}
	return Outcome{Message: fmt.Sprintf("loaded %d posts", len(c.Units()))}, nil
}

func (c *Controller) handleSelect(ctx context.Context, cmd Command) (Outcome, error) {
	if cmd.Selection == nil {
		return Outcome{}, invalid(cmd.Action, "selection is required")
	}
	sel := *cmd.Selection
	if strings.TrimSpace(sel.Username) != "" && sel.ChannelID != 0 {
		return Outcome{}, invalid(cmd.Action, "username and channel_id are mutually exclusive")
	}
	c.SetSelection(sel)
	if _, err := c.Reload(ctx); err != nil {
		return Outcome{}, err
	}
	return Outcome{Message: "selected " + c.Selection().String()}, nil
}

func (c *Controller) handleTopicCreate(ctx context.Context, cmd Command) (Outcome, error) {
	id, err := c.coordinator.CreateTopic(ctx, cmd.Topic)
	if err != nil {
		if errors.Is(err, topics.ErrEmptyName) {
			return Outcome{}, invalid(cmd.Action, err.Error())
		}
		return Outcome{}, err
	}
	return Outcome{Message: "created topic " + strings.TrimSpace(cmd.Topic), TopicID: id}, nil
}

func (c *Controller) handleTopicDelete(ctx context.Context, cmd Command) (Outcome, error) {
	name := strings.TrimSpace(cmd.Topic)
	if name == "" && cmd.TopicID != 0 {
		known, ok := c.coordinator.Name(cmd.TopicID)
		if !ok {
			return Outcome{}, invalid(cmd.Action, fmt.Sprintf("unknown topic %d", cmd.TopicID))
		}
		name = known
	}
	if name == "" {
		return Outcome{}, invalid(cmd.Action, "topic is required")
	}
	affected, err := c.coordinator.DeleteTopic(ctx, name)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Message: "deleted topic " + name, Affected: affected}, nil
}

func (c *Controller) resolveTopic(cmd Command) (int64, error) {
	if cmd.TopicID != 0 {
		return cmd.TopicID, nil
	}
	name := strings.TrimSpace(cmd.Topic)
	if name == "" {
		return 0, invalid(cmd.Action, "topic is required")
	}
	id, ok := c.coordinator.Lookup(name)
	if !ok {
		return 0, invalid(cmd.Action, fmt.Sprintf("unknown topic %q", name))
	}
	return id, nil
}

func (c *Controller) handleTopicAdd(ctx context.Context, cmd Command) (Outcome, error) {
	topicID, err := c.resolveTopic(cmd)
	if err != nil {
		return Outcome{}, err
	}
	if cmd.MessageID == 0 {
		return Outcome{}, invalid(cmd.Action, "message_id is required")
	}
	var snapshot *feed.Snapshot
	if cmd.Snapshot {
		post, ok := c.Post(cmd.MessageID)
		if !ok {
			return Outcome{}, invalid(cmd.Action, fmt.Sprintf("message %d is not loaded", cmd.MessageID))
		}
		snap := post.Snapshot()
		snapshot = &snap
	}
	if err := c.coordinator.AddPost(ctx, topicID, cmd.MessageID, snapshot); err != nil {
		return Outcome{}, err
	}
	return Outcome{Message: "added to topic", TopicID: topicID, Affected: []int64{cmd.MessageID}}, nil
}

func (c *Controller) handleTopicRemove(ctx context.Context, cmd Command) (Outcome, error) {
	topicID, err := c.resolveTopic(cmd)
	if err != nil {
		return Outcome{}, err
	}
	if cmd.MessageID == 0 && cmd.Keys.TopicItemID == 0 {
		return Outcome{}, invalid(cmd.Action, "message_id or keys.topic_item_id is required")
	}
	if err := c.coordinator.RemovePost(ctx, topicID, cmd.MessageID, cmd.Keys); err != nil {
		return Outcome{}, err
	}
	outcome := Outcome{Message: "removed from topic", TopicID: topicID}
	if cmd.MessageID != 0 {
		outcome.Affected = []int64{cmd.MessageID}
	}
	return outcome, nil
}

func (c *Controller) handleGenerate(ctx context.Context, cmd Command) (Outcome, error) {
	sel := c.Selection()
	if sel.Empty() {
		return Outcome{}, invalid(cmd.Action, "select a channel username or id first")
	}
	units := c.Units()
	if len(units) == 0 {
		return Outcome{}, invalid(cmd.Action, "no posts loaded")
	}
	jobID, err := c.generator.Submit(ctx, sel, units)
	if err != nil {
		if errors.Is(err, generation.ErrJobActive) {
			return Outcome{}, invalid(cmd.Action, err.Error())
		}
		return Outcome{}, err
	}
	if c.metrics != nil {
		c.metrics.JobStarted()
	}
	progress := c.generator.Snapshot()
	c.sink.JobChanged(progress)
	return Outcome{Message: fmt.Sprintf("generating %d comments", progress.Total), JobID: jobID}, nil
}

func (c *Controller) handleStop(ctx context.Context, _ Command) (Outcome, error) {
	err := c.generator.Cancel(ctx)
	switch {
	case errors.Is(err, generation.ErrNoJob):
		if stopErr := c.client.StopGeneration(ctx); stopErr != nil {
			return Outcome{}, fmt.Errorf("stop generation: %w", stopErr)
		}
		return Outcome{Message: "stop requested"}, nil
	case err != nil:
		return Outcome{Message: "stopped locally"}, err
	}
	return Outcome{Message: "stopped", JobID: c.generator.Snapshot().JobID}, nil
}

func (c *Controller) handleCommentEdit(ctx context.Context, cmd Command) (Outcome, error) {
	if cmd.MessageID == 0 {
		return Outcome{}, invalid(cmd.Action, "message_id is required")
	}
	ticket := c.tickets.Add(1)
	if err := c.client.EditComment(ctx, cmd.MessageID, cmd.Text); err != nil {
		return Outcome{}, fmt.Errorf("edit comment %d: %w", cmd.MessageID, err)
	}
	c.mu.Lock()
	c.setCommentLocked(ticket, cmd.MessageID, cmd.Text)
	c.mu.Unlock()
	c.emitRow(cmd.MessageID)
	return Outcome{Message: "comment saved", Affected: []int64{cmd.MessageID}}, nil
}

func (c *Controller) handleCommentDelete(ctx context.Context, cmd Command) (Outcome, error) {
	req := backend.DeleteCommentsRequest{MessageIDs: cmd.MessageIDs}
	var affected []int64
	if len(cmd.MessageIDs) > 0 {
		affected = append(affected, cmd.MessageIDs...)
	} else {
		sel := c.Selection()
		if sel.Empty() {
			return Outcome{}, invalid(cmd.Action, "message_ids or a channel selection is required")
		}
		if sel.Username != "" {
			req.Username = sel.Username
		} else {
			req.ChannelID = sel.ChannelID
		}
		for _, post := range c.postsSnapshot() {
			affected = append(affected, post.ID)
		}
	}

	ticket := c.tickets.Add(1)
	if err := c.client.DeleteComments(ctx, req); err != nil {
		return Outcome{}, fmt.Errorf("delete comments: %w", err)
	}
	c.mu.Lock()
	for _, id := range affected {
		c.setCommentLocked(ticket, id, "")
	}
	c.mu.Unlock()
	for _, id := range affected {
		c.emitRow(id)
	}
	return Outcome{Message: fmt.Sprintf("deleted %d comments", len(affected)), Affected: affected}, nil
}

func (c *Controller) handleDismiss(_ context.Context, cmd Command) (Outcome, error) {
	if !c.DismissPost(cmd.MessageID) {
		return Outcome{}, invalid(cmd.Action, fmt.Sprintf("message %d is not loaded", cmd.MessageID))
	}
	return Outcome{Message: "dismissed", Affected: []int64{cmd.MessageID}}, nil
}

func (c *Controller) handleIngest(ctx context.Context, cmd Command) (Outcome, error) {
	channel := strings.TrimPrefix(strings.TrimSpace(cmd.Channel), "@")
	if channel == "" {
		channel = c.Selection().Username
	}
	if channel == "" {
		return Outcome{}, invalid(cmd.Action, "channel is required")
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = c.ingestLimit
	}
	req := backend.IngestRequest{Channel: channel, Limit: limit, ForceMedia: cmd.ForceMedia}
	if err := c.client.Ingest(ctx, req); err != nil {
		return Outcome{}, fmt.Errorf("ingest @%s: %w", channel, err)
	}
	return Outcome{Message: fmt.Sprintf("ingest requested for @%s", channel)}, nil
}

func (c *Controller) postsSnapshot() []feed.Post {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Posts()
}
