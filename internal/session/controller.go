package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"curator/internal/backend"
	"curator/internal/feed"
	"curator/internal/generation"
	"curator/internal/logging"
	"curator/internal/metrics"
	"curator/internal/pairing"
	"curator/internal/topics"
)

// Backend is the REST surface the session depends on.
type Backend interface {
	topics.Backend
	generation.GenerateClient
	ListPosts(ctx context.Context, sel feed.Selection) ([]feed.Post, error)
	ListTopics(ctx context.Context) ([]feed.TopicRecord, error)
	ListChannels(ctx context.Context) ([]feed.Channel, error)
	Ingest(ctx context.Context, req backend.IngestRequest) error
	DeleteComments(ctx context.Context, req backend.DeleteCommentsRequest) error
	EditComment(ctx context.Context, messageID int64, text string) error
}

// Options configures a Controller.
type Options struct {
	Selection        feed.Selection
	FollowUpMarker   string
	UseEffectiveText bool
	IngestLimit      int
	Logger           *slog.Logger
	Sink             Sink
	Metrics          *metrics.Collector
	Recorder         generation.Recorder
	RunLock          *generation.RunLock
}

// Controller is the single owner of session state.
type Controller struct {
	client      Backend
	resolver    *pairing.Resolver
	coordinator *topics.Coordinator
	generator   *generation.Orchestrator
	sink        Sink
	metrics     *metrics.Collector
	logger      *slog.Logger
	ingestLimit int
	handlers    map[Action]handler

	tickets atomic.Uint64

	mu            sync.RWMutex
	sel           feed.Selection
	cache         *feed.Cache
	units         []pairing.Unit
	appliedReload uint64
	commentSeq    map[int64]uint64
	loadedAt      time.Time
}

// New wires a controller around client.
func New(client Backend, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}
	c := &Controller{
		client:      client,
		resolver:    pairing.NewResolver(opts.FollowUpMarker),
		sink:        sink,
		metrics:     opts.Metrics,
		logger:      logging.NewComponentLogger(logger, "session"),
		ingestLimit: opts.IngestLimit,
		sel:         opts.Selection,
		cache:       feed.NewCache(),
		commentSeq:  make(map[int64]uint64),
	}
	c.coordinator = topics.NewCoordinator(client, logger)
	c.coordinator.OnEvent(c.topicChanged)

	genOpts := []generation.Option{
		generation.WithLogger(logger),
		generation.WithResolver(c.resolver),
	}
	if opts.Recorder != nil {
		genOpts = append(genOpts, generation.WithRecorder(opts.Recorder))
	}
	if opts.RunLock != nil {
		genOpts = append(genOpts, generation.WithRunLock(opts.RunLock))
	}
	submitter := generation.BackendSubmitter{Client: client, UseEffectiveText: opts.UseEffectiveText}
	c.generator = generation.NewOrchestrator(submitter, generation.ObserverFunc(c.observe), genOpts...)
	c.generator.OnCompletion(c.commentReady)
	c.generator.OnFinish(c.jobFinished)

	c.handlers = c.actionTable()
	return c
}

// Coordinator exposes the topic coordinator.
func (c *Controller) Coordinator() *topics.Coordinator {
	return c.coordinator
}

// Generator exposes the generation orchestrator.
func (c *Controller) Generator() *generation.Orchestrator {
	return c.generator
}

// Resolver exposes the follow-up resolver.
func (c *Controller) Resolver() *pairing.Resolver {
	return c.resolver
}

// Selection returns the active post filter.
func (c *Controller) Selection() feed.Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sel
}

// SetSelection switches the post filter and clears state derived from the
// previous one. Call Reload afterwards to repopulate.
func (c *Controller) SetSelection(sel feed.Selection) {
	sel.Username = strings.TrimPrefix(strings.TrimSpace(sel.Username), "@")
	sel.FwdUsername = strings.TrimPrefix(strings.TrimSpace(sel.FwdUsername), "@")
	if sel.Username != "" {
		sel.ChannelID = 0
	}
	c.mu.Lock()
	if sel.Limit <= 0 {
		sel.Limit = c.sel.Limit
	}
	c.sel = sel
	c.mu.Unlock()
	c.Reset()
}

// Reset discards cached posts, pairing, topic state and comment sequencing.
// Reset takes its own ticket, so reloads already in flight are discarded
// when they land.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.cache.Reset()
	c.units = nil
	c.commentSeq = make(map[int64]uint64)
	c.appliedReload = c.tickets.Add(1)
	c.loadedAt = time.Time{}
	c.mu.Unlock()
	c.coordinator.Reset()
}

// Reload fetches posts and topics and replaces local state. It reports false
// when a newer reload was applied while this one was in flight.
func (c *Controller) Reload(ctx context.Context) (bool, error) {
	ticket := c.tickets.Add(1)
	sel := c.Selection()

	var (
		posts   []feed.Post
		records []feed.TopicRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		posts, err = c.client.ListPosts(gctx, sel)
		if err != nil {
			return fmt.Errorf("load posts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = c.client.ListTopics(gctx)
		if err != nil {
			return fmt.Errorf("load topics: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		c.countReload("failed")
		return false, err
	}

	if !c.applyReload(ticket, posts, records) {
		c.countReload("stale")
		c.logger.Debug("stale reload discarded", logging.Int64("ticket", int64(ticket)))
		return false, nil
	}
	c.countReload("applied")
	c.logger.Info("reloaded",
		logging.String("selection", sel.String()),
		logging.Int("posts", len(posts)),
		logging.Int("topics", len(records)),
	)
	c.sink.Reloaded(c.View())
	return true, nil
}

func (c *Controller) applyReload(ticket uint64, posts []feed.Post, records []feed.TopicRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ticket < c.appliedReload {
		return false
	}
	merged := make([]feed.Post, len(posts))
	for i, post := range posts {
		if seq := c.commentSeq[post.ID]; seq > ticket {
			if cached, ok := c.cache.Get(post.ID); ok {
				post.AIComment = cached.AIComment
			}
		} else {
			c.commentSeq[post.ID] = ticket
		}
		merged[i] = post
	}
	c.cache.Replace(merged)
	c.units = c.resolver.Resolve(merged)
	c.appliedReload = ticket
	c.loadedAt = time.Now()
	c.coordinator.Seed(records)
	return true
}

// observe runs one generation poll round and applies comment changes that
// are newer than what the cache already holds.
func (c *Controller) observe(ctx context.Context, sel feed.Selection) ([]feed.Post, error) {
	ticket := c.tickets.Add(1)
	posts, err := c.client.ListPosts(ctx, sel)
	if err != nil {
		return nil, err
	}
	c.applyComments(ticket, posts)
	return posts, nil
}

func (c *Controller) applyComments(ticket uint64, posts []feed.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, post := range posts {
		c.setCommentLocked(ticket, post.ID, post.AIComment)
	}
}

func (c *Controller) setCommentLocked(ticket uint64, id int64, comment string) bool {
	if ticket <= c.commentSeq[id] {
		return false
	}
	if !c.cache.SetComment(id, comment) {
		return false
	}
	c.commentSeq[id] = ticket
	c.refreshUnitLocked(id)
	return true
}

// refreshUnitLocked copies the cached post back into its unit.
func (c *Controller) refreshUnitLocked(id int64) {
	post, ok := c.cache.Get(id)
	if !ok {
		return
	}
	for i := range c.units {
		if c.units[i].Main.ID == id {
			c.units[i].Main = post
			return
		}
		if c.units[i].Child != nil && c.units[i].Child.ID == id {
			child := post
			c.units[i].Child = &child
			return
		}
	}
}

// Units returns the current pairing.
func (c *Controller) Units() []pairing.Unit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]pairing.Unit(nil), c.units...)
}

// Post returns a cached post.
func (c *Controller) Post(id int64) (feed.Post, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Get(id)
}

// Badges returns the topic names attached to messageID.
func (c *Controller) Badges(messageID int64) []string {
	return c.coordinator.Badges(messageID)
}

// View renders the full state.
func (c *Controller) View() View {
	c.mu.RLock()
	rows := make([]Row, 0, len(c.units))
	for i, u := range c.units {
		rows = append(rows, c.rowLocked(i, u))
	}
	view := View{
		Selection: c.sel,
		Rows:      rows,
		Ticket:    c.appliedReload,
		LoadedAt:  c.loadedAt,
	}
	c.mu.RUnlock()
	view.Topics = c.coordinator.Topics()
	view.Job = c.generator.Snapshot()
	return view
}

// Row renders the unit containing messageID.
func (c *Controller) Row(messageID int64) (Row, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i, u := range c.units {
		if u.Main.ID == messageID || (u.Child != nil && u.Child.ID == messageID) {
			return c.rowLocked(i, u), true
		}
	}
	return Row{}, false
}

// rowLocked renders the unit at index i. Positions count units, so a paired
// follow-up never takes a number of its own.
func (c *Controller) rowLocked(i int, u pairing.Unit) Row {
	row := Row{
		Position: i + 1,
		Post:     u.Main,
		Badges:   c.coordinator.Badges(u.Main.ID),
		Link:     u.Main.Link(),
	}
	if u.Child != nil {
		child := *u.Child
		row.Child = &child
		row.ChildBadges = c.coordinator.Badges(child.ID)
	}
	return row
}

// DismissPost removes a post from the local view and renumbers the rest.
// The server copy is untouched.
func (c *Controller) DismissPost(id int64) bool {
	c.mu.Lock()
	if !c.cache.Delete(id) {
		c.mu.Unlock()
		return false
	}
	delete(c.commentSeq, id)
	c.units = c.resolver.Resolve(c.cache.Posts())
	c.mu.Unlock()
	c.sink.RowRemoved(id)
	return true
}

func (c *Controller) emitRow(id int64) {
	if row, ok := c.Row(id); ok {
		c.sink.RowChanged(row)
	}
}

func (c *Controller) topicChanged(ev topics.Event) {
	if c.metrics != nil {
		c.metrics.TopicMutation(string(ev.Kind))
	}
	for _, id := range ev.MessageIDs {
		c.emitRow(id)
	}
}

func (c *Controller) commentReady(_ string, post feed.Post) {
	if c.metrics != nil {
		c.metrics.Completion()
	}
	c.emitRow(post.ID)
	c.sink.JobChanged(c.generator.Snapshot())
}

func (c *Controller) jobFinished(result generation.Result) {
	if c.metrics != nil {
		c.metrics.JobFinished(string(result.State))
	}
	c.sink.JobChanged(result.Progress)
}

func (c *Controller) countReload(outcome string) {
	if c.metrics != nil {
		c.metrics.Reload(outcome)
	}
}
