// Package topics applies topic mutations against the backend and mirrors
// confirmed changes into the local membership index and name cache.
//
// Every mutation is two-phase: the server call runs first and local state is
// touched only when it succeeds. A failed call leaves the cache and index
// exactly as they were.
package topics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"curator/internal/backend"
	"curator/internal/feed"
	"curator/internal/logging"
	"curator/internal/topicindex"
)

var (
	// ErrEmptyName is returned when a topic name is blank after trimming.
	ErrEmptyName = errors.New("topic name is required")
	// ErrUnknownTopic is returned when a topic id is not in the local cache.
	ErrUnknownTopic = errors.New("unknown topic")
)

// Backend is the subset of the REST client used for topic mutations.
type Backend interface {
	CreateTopic(ctx context.Context, name string) (int64, error)
	DeleteTopic(ctx context.Context, id int64) error
	AddToTopic(ctx context.Context, item backend.AddTopicItem) error
	RemoveFromTopic(ctx context.Context, item backend.RemoveTopicItem) error
}

// EventKind names a confirmed topic mutation.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventDeleted EventKind = "deleted"
	EventAdded   EventKind = "added"
	EventRemoved EventKind = "removed"
)

// Event describes a mutation that was applied locally.
type Event struct {
	Kind       EventKind
	Topic      string
	TopicID    int64
	MessageIDs []int64
}

// Coordinator owns the topic name cache and the membership index.
type Coordinator struct {
	backend Backend
	logger  *slog.Logger

	mu       sync.RWMutex
	order    []feed.Topic
	byName   map[string]int64
	byID     map[int64]string
	index    *topicindex.Index
	listener func(Event)
}

// NewCoordinator constructs a coordinator with an empty cache.
func NewCoordinator(client Backend, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		backend: client,
		logger:  logging.NewComponentLogger(logger, "topics"),
		byName:  make(map[string]int64),
		byID:    make(map[int64]string),
		index:   topicindex.New(),
	}
}

// OnEvent registers fn to receive every applied mutation. fn runs after the
// coordinator lock is released.
func (c *Coordinator) OnEvent(fn func(Event)) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

// Seed replaces the name cache and membership index with a reload snapshot.
func (c *Coordinator) Seed(records []feed.TopicRecord) {
	order := make([]feed.Topic, 0, len(records))
	byName := make(map[string]int64, len(records))
	byID := make(map[int64]string, len(records))
	for _, rec := range records {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			continue
		}
		if _, dup := byName[name]; !dup {
			order = append(order, feed.Topic{ID: rec.ID, Name: name})
		}
		byName[name] = rec.ID
		byID[rec.ID] = name
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = order
	c.byName = byName
	c.byID = byID
	c.index.Rebuild(topicindex.FromRecords(records))
}

// Reset clears the cache and index.
func (c *Coordinator) Reset() {
	c.Seed(nil)
}

// Lookup returns the id cached for name.
func (c *Coordinator) Lookup(name string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[strings.TrimSpace(name)]
	return id, ok
}

// Name returns the name cached for id.
func (c *Coordinator) Name(id int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.byID[id]
	return name, ok
}

// Topics returns the cached topics in server order followed by topics
// created locally since the last seed.
func (c *Coordinator) Topics() []feed.Topic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// Badges returns the topic names attached to messageID.
func (c *Coordinator) Badges(messageID int64) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Lookup(messageID)
}

// Tagged returns the ids of all messages that carry at least one topic.
func (c *Coordinator) Tagged() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Messages()
}

// CreateTopic creates name on the server and caches the returned id.
func (c *Coordinator) CreateTopic(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrEmptyName
	}
	id, err := c.backend.CreateTopic(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("create topic %q: %w", name, err)
	}

	c.mu.Lock()
	if _, exists := c.byName[name]; !exists {
		c.order = append(c.order, feed.Topic{ID: id, Name: name})
	} else {
		c.replaceOrderLocked(name, id)
	}
	c.byName[name] = id
	c.byID[id] = name
	listener := c.listener
	c.mu.Unlock()

	c.logger.Info("topic created", logging.String(logging.FieldTopic, name), logging.Int64("topic_id", id))
	c.emit(listener, Event{Kind: EventCreated, Topic: name, TopicID: id})
	return id, nil
}

// DeleteTopic deletes the topic called name and strips it from every badge.
// Unknown names are a no-op. The returned ids are the messages whose badges
// changed.
func (c *Coordinator) DeleteTopic(ctx context.Context, name string) ([]int64, error) {
	name = strings.TrimSpace(name)
	id, ok := c.Lookup(name)
	if !ok {
		c.logger.Debug("delete of unknown topic ignored", logging.String(logging.FieldTopic, name))
		return nil, nil
	}
	if err := c.backend.DeleteTopic(ctx, id); err != nil {
		return nil, fmt.Errorf("delete topic %q: %w", name, err)
	}

	c.mu.Lock()
	delete(c.byName, name)
	delete(c.byID, id)
	c.order = slices.DeleteFunc(c.order, func(t feed.Topic) bool { return t.ID == id })
	affected := c.index.RemoveTopicEverywhere(name)
	listener := c.listener
	c.mu.Unlock()

	c.logger.Info("topic deleted",
		logging.String(logging.FieldTopic, name),
		logging.Int64("topic_id", id),
		logging.Int("affected", len(affected)),
	)
	c.emit(listener, Event{Kind: EventDeleted, Topic: name, TopicID: id, MessageIDs: affected})
	return affected, nil
}

// AddPost adds messageID to topicID. With a snapshot the durable post fields
// are stored alongside the reference.
func (c *Coordinator) AddPost(ctx context.Context, topicID, messageID int64, snapshot *feed.Snapshot) error {
	name, ok := c.Name(topicID)
	if !ok {
		return fmt.Errorf("add to topic %d: %w", topicID, ErrUnknownTopic)
	}
	item := backend.AddTopicItem{TopicID: topicID, MessageID: messageID}
	if snapshot != nil {
		item.ChannelTgID = snapshot.ChannelTgID
		item.MsgID = snapshot.MsgID
		item.PostText = snapshot.PostText
		item.CommentText = snapshot.CommentText
		item.ChannelUsername = snapshot.ChannelUsername
		item.SourceURL = snapshot.SourceURL
	}
	if err := c.backend.AddToTopic(ctx, item); err != nil {
		return fmt.Errorf("add message %d to topic %q: %w", messageID, name, err)
	}

	c.mu.Lock()
	c.index.AddEntry(messageID, name)
	listener := c.listener
	c.mu.Unlock()

	c.logger.Debug("post added to topic",
		logging.String(logging.FieldTopic, name),
		logging.Int64(logging.FieldMessageID, messageID),
		logging.Bool("snapshot", snapshot != nil),
	)
	c.emit(listener, Event{Kind: EventAdded, Topic: name, TopicID: topicID, MessageIDs: []int64{messageID}})
	return nil
}

// RemovePost removes messageID from topicID. Optional keys let the server
// resolve entries whose source post is gone.
func (c *Coordinator) RemovePost(ctx context.Context, topicID, messageID int64, keys feed.ItemKeys) error {
	name, ok := c.Name(topicID)
	if !ok {
		return fmt.Errorf("remove from topic %d: %w", topicID, ErrUnknownTopic)
	}
	item := backend.RemoveTopicItem{
		TopicID:     topicID,
		MessageID:   messageID,
		ChannelTgID: keys.ChannelTgID,
		MsgID:       keys.MsgID,
		TopicItemID: keys.TopicItemID,
	}
	if err := c.backend.RemoveFromTopic(ctx, item); err != nil {
		return fmt.Errorf("remove message %d from topic %q: %w", messageID, name, err)
	}

	c.logger.Debug("post removed from topic",
		logging.String(logging.FieldTopic, name),
		logging.Int64(logging.FieldMessageID, messageID),
		logging.Int64("topic_item_id", keys.TopicItemID),
	)
	// Removal by topic item id alone names no loaded post.
	if messageID == 0 {
		return nil
	}

	c.mu.Lock()
	c.index.RemoveEntry(messageID, name)
	listener := c.listener
	c.mu.Unlock()

	c.emit(listener, Event{Kind: EventRemoved, Topic: name, TopicID: topicID, MessageIDs: []int64{messageID}})
	return nil
}

func (c *Coordinator) replaceOrderLocked(name string, id int64) {
	for i := range c.order {
		if c.order[i].Name == name {
			delete(c.byID, c.order[i].ID)
			c.order[i].ID = id
			return
		}
	}
}

func (c *Coordinator) emit(listener func(Event), ev Event) {
	if listener != nil {
		listener(ev)
	}
}
