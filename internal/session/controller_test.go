package session

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"curator/internal/feed"
	"curator/internal/generation"
	"curator/internal/metrics"
	"curator/internal/testsupport"
)

type recordingSink struct {
	mu       sync.Mutex
	reloads  int
	rows     []Row
	removed  []int64
	progress []generation.Progress
}

func (s *recordingSink) Reloaded(View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloads++
}

func (s *recordingSink) RowChanged(row Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
}

func (s *recordingSink) RowRemoved(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, id)
}

func (s *recordingSink) JobChanged(p generation.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, p)
}

func (s *recordingSink) changed() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}

var defaultSelection = feed.Selection{Username: "events", Limit: 100}

func newController(t *testing.T, b *testsupport.Backend, sink Sink) *Controller {
	t.Helper()
	return New(b.Client(), Options{
		Selection:        defaultSelection,
		FollowUpMarker:   "👆",
		UseEffectiveText: true,
		IngestLimit:      50,
		Sink:             sink,
		Metrics:          metrics.New(),
	})
}

func seedBackend(t *testing.T) *testsupport.Backend {
	t.Helper()
	b := testsupport.NewBackend(t)
	b.SetPosts(
		testsupport.Post(1, "events", "hello"),
		testsupport.Post(2, "events", "👆 more context"),
		testsupport.Post(3, "events", "solo"),
	)
	b.AddTopic("T", 1, 3)
	return b
}

func mustReload(t *testing.T, c *Controller) {
	t.Helper()
	applied, err := c.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}
	if !applied {
		t.Fatal("expected reload applied")
	}
}

func TestReloadBuildsView(t *testing.T) {
	b := seedBackend(t)
	sink := &recordingSink{}
	c := newController(t, b, sink)
	mustReload(t, c)

	view := c.View()
	if len(view.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(view.Rows))
	}
	first := view.Rows[0]
	if first.Post.ID != 1 || first.Child == nil || first.Child.ID != 2 {
		t.Fatalf("expected 1 paired with 2, got %+v", first)
	}
	if !reflect.DeepEqual(first.Badges, []string{"T"}) {
		t.Fatalf("unexpected badges %v", first.Badges)
	}
	if view.Rows[1].Position != 2 || view.Rows[1].Link != "https://t.me/events/30" {
		t.Fatalf("unexpected second row %+v", view.Rows[1])
	}
	if len(view.Topics) != 1 || view.Topics[0].Name != "T" {
		t.Fatalf("unexpected topics %+v", view.Topics)
	}
	if sink.reloads != 1 {
		t.Fatalf("expected one reload notification, got %d", sink.reloads)
	}
}

func TestReloadFailureKeepsState(t *testing.T) {
	b := seedBackend(t)
	c := newController(t, b, nil)
	mustReload(t, c)

	b.Fail("GET /api/topics", http.StatusBadGateway)
	if _, err := c.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	if got := len(c.View().Rows); got != 2 {
		t.Fatalf("expected previous rows kept, got %d", got)
	}
}

func TestStaleReloadDiscarded(t *testing.T) {
	b := seedBackend(t)
	c := newController(t, b, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	b.OnListPosts(func(*http.Request) {
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
	})

	type reloadResult struct {
		applied bool
		err     error
	}
	done := make(chan reloadResult, 1)
	go func() {
		applied, err := c.Reload(context.Background())
		done <- reloadResult{applied, err}
	}()
	<-entered

	b.SetPosts(testsupport.Post(9, "events", "newer"))
	mustReload(t, c)

	close(release)
	res := <-done
	if res.err != nil {
		t.Fatalf("stale reload returned error: %v", res.err)
	}
	if res.applied {
		t.Fatal("expected older reload to be discarded")
	}
	units := c.Units()
	if len(units) != 1 || units[0].Main.ID != 9 {
		t.Fatalf("expected newer snapshot to win, got %+v", units)
	}
}

func TestSelectionSwitchDiscardsInFlightReload(t *testing.T) {
	b := seedBackend(t)
	c := newController(t, b, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	b.OnListPosts(func(*http.Request) {
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
	})

	done := make(chan bool, 1)
	go func() {
		applied, err := c.Reload(context.Background())
		if err != nil {
			t.Errorf("in-flight reload returned error: %v", err)
		}
		done <- applied
	}()
	<-entered

	c.SetSelection(feed.Selection{Username: "other"})
	close(release)
	if <-done {
		t.Fatal("expected reload issued before the selection switch to be discarded")
	}
	if units := c.Units(); len(units) != 0 {
		t.Fatalf("expected empty state after switch, got %+v", units)
	}
	if got := c.Selection().Username; got != "other" {
		t.Fatalf("unexpected selection %q", got)
	}
}

func TestRowPositionsCountUnits(t *testing.T) {
	b := seedBackend(t)
	c := newController(t, b, nil)
	mustReload(t, c)

	var positions []int
	for _, row := range c.View().Rows {
		positions = append(positions, row.Position)
	}
	if !reflect.DeepEqual(positions, []int{1, 2}) {
		t.Fatalf("expected contiguous unit positions, got %v", positions)
	}
	if row, ok := c.Row(3); !ok || row.Position != 2 {
		t.Fatalf("expected post 3 at position 2, got %+v (found %v)", row, ok)
	}
	if row, ok := c.Row(2); !ok || row.Position != 1 || row.Post.ID != 1 {
		t.Fatalf("expected follow-up 2 to resolve to row 1, got %+v", row)
	}
}

func TestCommentSequencing(t *testing.T) {
	c := New(testsupport.NewBackend(t).Client(), Options{Selection: defaultSelection})
	bare := []feed.Post{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}}
	commented := []feed.Post{{ID: 1, Text: "a", AIComment: "ready"}, {ID: 2, Text: "b"}}

	if !c.applyReload(1, bare, nil) {
		t.Fatal("expected first reload applied")
	}
	c.applyComments(3, commented)
	if post, _ := c.Post(1); post.AIComment != "ready" {
		t.Fatalf("expected poll comment applied, got %q", post.AIComment)
	}

	// A reload issued before the poll round but landing after it.
	if !c.applyReload(2, bare, nil) {
		t.Fatal("expected reload 2 applied")
	}
	if post, _ := c.Post(1); post.AIComment != "ready" {
		t.Fatalf("older reload erased a fresher comment: %q", post.AIComment)
	}
	if units := c.Units(); units[0].Main.AIComment != "ready" {
		t.Fatalf("expected unit to carry comment, got %+v", units[0].Main)
	}

	// A poll round issued before a reload but landing after it.
	fresh := []feed.Post{{ID: 1, Text: "a", AIComment: "edited"}, {ID: 2, Text: "b"}}
	if !c.applyReload(5, fresh, nil) {
		t.Fatal("expected reload 5 applied")
	}
	c.applyComments(4, commented)
	if post, _ := c.Post(1); post.AIComment != "edited" {
		t.Fatalf("older poll overwrote newer reload: %q", post.AIComment)
	}

	if c.applyReload(4, bare, nil) {
		t.Fatal("expected reload older than the last applied one to be discarded")
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	b := seedBackend(t)
	b.OnGenerate(func(ids []int64) {
		for _, id := range ids {
			b.SetComment(id, "comment for post")
		}
	})
	sink := &recordingSink{}
	c := newController(t, b, sink)
	mustReload(t, c)

	outcome, err := c.Dispatch(context.Background(), Command{Action: ActionGenerate})
	if err != nil {
		t.Fatalf("generate returned error: %v", err)
	}
	if outcome.JobID == "" {
		t.Fatal("expected job id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := c.Generator().Wait(ctx)
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if result.State != generation.StateDone || result.Summary() != "2/2" {
		t.Fatalf("expected done 2/2, got %s %s", result.State, result.Summary())
	}

	batches := b.Overrides()
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("expected one batch of two main units, got %+v", batches)
	}
	if batches[0][0].MessageID != 1 || batches[0][0].Text != "hello\n\nmore context" {
		t.Fatalf("unexpected first target %+v", batches[0][0])
	}
	if post, _ := c.Post(1); post.AIComment != "comment for post" {
		t.Fatalf("expected cached comment, got %q", post.AIComment)
	}
	if len(sink.changed()) < 2 {
		t.Fatalf("expected incremental row updates, got %d", len(sink.changed()))
	}
}

func TestGenerateRequiresSelection(t *testing.T) {
	b := seedBackend(t)
	c := New(b.Client(), Options{})
	_, err := c.Dispatch(context.Background(), Command{Action: ActionGenerate})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if calls := b.Calls(); len(calls) != 0 {
		t.Fatalf("expected no backend calls, got %v", calls)
	}
}

func TestUnknownAction(t *testing.T) {
	c := New(testsupport.NewBackend(t).Client(), Options{})
	if _, err := c.Dispatch(context.Background(), Command{Action: "bogus"}); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestTopicActions(t *testing.T) {
	b := seedBackend(t)
	sink := &recordingSink{}
	c := newController(t, b, sink)
	mustReload(t, c)
	ctx := context.Background()

	created, err := c.Dispatch(ctx, Command{Action: ActionTopicCreate, Topic: "Jobs"})
	if err != nil {
		t.Fatalf("topic.create returned error: %v", err)
	}
	if _, err := c.Dispatch(ctx, Command{Action: ActionTopicAdd, Topic: "Jobs", MessageID: 3, Snapshot: true}); err != nil {
		t.Fatalf("topic.add returned error: %v", err)
	}
	if got := c.Badges(3); !reflect.DeepEqual(got, []string{"T", "Jobs"}) {
		t.Fatalf("unexpected badges %v", got)
	}
	topic, _ := b.Topic("Jobs")
	if len(topic.Items) != 1 || topic.Items[0].PostText != "solo" || topic.Items[0].SourceURL != "https://t.me/events/30" {
		t.Fatalf("expected durable snapshot stored, got %+v", topic.Items)
	}

	b.Fail("DELETE /api/topics/remove", http.StatusInternalServerError)
	if _, err := c.Dispatch(ctx, Command{Action: ActionTopicRemove, TopicID: created.TopicID, MessageID: 3}); err == nil {
		t.Fatal("expected remove failure")
	}
	if got := c.Badges(3); !reflect.DeepEqual(got, []string{"T", "Jobs"}) {
		t.Fatalf("failed remove changed badges: %v", got)
	}
	b.Fail("DELETE /api/topics/remove", 0)

	outcome, err := c.Dispatch(ctx, Command{Action: ActionTopicDelete, Topic: "T"})
	if err != nil {
		t.Fatalf("topic.delete returned error: %v", err)
	}
	if !reflect.DeepEqual(outcome.Affected, []int64{1, 3}) {
		t.Fatalf("unexpected affected ids %v", outcome.Affected)
	}
	if got := c.Badges(1); len(got) != 0 {
		t.Fatalf("expected badges cleared, got %v", got)
	}

	if _, err := c.Dispatch(ctx, Command{Action: ActionTopicAdd, Topic: "missing", MessageID: 1}); !IsValidation(err) {
		t.Fatalf("expected validation error for unknown topic, got %v", err)
	}
	if _, err := c.Dispatch(ctx, Command{Action: ActionTopicCreate, Topic: "  "}); !IsValidation(err) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
}

func TestTopicDeleteUnknownID(t *testing.T) {
	b := seedBackend(t)
	c := newController(t, b, nil)
	mustReload(t, c)

	_, err := c.Dispatch(context.Background(), Command{Action: ActionTopicDelete, TopicID: 404})
	if !IsValidation(err) || !strings.Contains(err.Error(), "unknown topic 404") {
		t.Fatalf("expected unknown topic error, got %v", err)
	}
	if calls := b.Calls(); slices.ContainsFunc(calls, func(call string) bool { return strings.HasPrefix(call, "DELETE /api/topics/") }) {
		t.Fatalf("expected no delete request, got %v", calls)
	}
}

func TestTopicRemoveByItemIDOnly(t *testing.T) {
	b := seedBackend(t)
	sink := &recordingSink{}
	c := newController(t, b, sink)
	mustReload(t, c)
	topicID, _ := c.Coordinator().Lookup("T")

	outcome, err := c.Dispatch(context.Background(), Command{
		Action:  ActionTopicRemove,
		TopicID: topicID,
		Keys:    feed.ItemKeys{TopicItemID: 77},
	})
	if err != nil {
		t.Fatalf("topic.remove returned error: %v", err)
	}
	if len(outcome.Affected) != 0 {
		t.Fatalf("expected no affected posts, got %v", outcome.Affected)
	}
	for _, row := range sink.changed() {
		if row.Post.ID == 0 {
			t.Fatalf("unexpected row event for message 0: %+v", row)
		}
	}
	if got := c.Badges(1); !reflect.DeepEqual(got, []string{"T"}) {
		t.Fatalf("expected badges untouched, got %v", got)
	}
}

func TestCommentActions(t *testing.T) {
	b := seedBackend(t)
	b.SetComment(1, "old")
	b.SetComment(3, "other")
	c := newController(t, b, nil)
	mustReload(t, c)
	ctx := context.Background()

	if _, err := c.Dispatch(ctx, Command{Action: ActionCommentEdit, MessageID: 1, Text: "new"}); err != nil {
		t.Fatalf("comment.edit returned error: %v", err)
	}
	if post, _ := c.Post(1); post.AIComment != "new" || b.Comment(1) != "new" {
		t.Fatalf("expected edited comment, local=%q server=%q", post.AIComment, b.Comment(1))
	}

	outcome, err := c.Dispatch(ctx, Command{Action: ActionCommentDelete})
	if err != nil {
		t.Fatalf("comment.delete returned error: %v", err)
	}
	if len(outcome.Affected) != 3 {
		t.Fatalf("expected all loaded posts affected, got %v", outcome.Affected)
	}
	if post, _ := c.Post(3); post.AIComment != "" || b.Comment(3) != "" {
		t.Fatal("expected comments cleared")
	}
}

func TestDismissRenumbers(t *testing.T) {
	b := seedBackend(t)
	sink := &recordingSink{}
	c := newController(t, b, sink)
	mustReload(t, c)

	if _, err := c.Dispatch(context.Background(), Command{Action: ActionDismiss, MessageID: 1}); err != nil {
		t.Fatalf("dismiss returned error: %v", err)
	}
	view := c.View()
	if len(view.Rows) != 2 {
		t.Fatalf("expected orphaned follow-up to become its own row, got %+v", view.Rows)
	}
	if view.Rows[0].Post.ID != 2 || view.Rows[0].Position != 1 || view.Rows[1].Position != 2 {
		t.Fatalf("expected contiguous positions, got %+v", view.Rows)
	}
	if !reflect.DeepEqual(sink.removed, []int64{1}) {
		t.Fatalf("unexpected removal notifications %v", sink.removed)
	}
}

func TestStopWithoutJobSendsSignal(t *testing.T) {
	b := seedBackend(t)
	c := newController(t, b, nil)
	if _, err := c.Dispatch(context.Background(), Command{Action: ActionStop}); err != nil {
		t.Fatalf("stop returned error: %v", err)
	}
	if b.Stops() != 1 {
		t.Fatalf("expected stop request, got %d", b.Stops())
	}
}

func TestIngestDefaultsToSelection(t *testing.T) {
	b := seedBackend(t)
	c := newController(t, b, nil)
	if _, err := c.Dispatch(context.Background(), Command{Action: ActionIngest, ForceMedia: true}); err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	got := b.Ingests()
	if len(got) != 1 || got[0].Channel != "events" || got[0].Limit != 50 || !got[0].ForceMedia {
		t.Fatalf("unexpected ingest requests %+v", got)
	}
}

func TestSelectSwitchesFeed(t *testing.T) {
	b := seedBackend(t)
	b.SetPosts(
		testsupport.Post(1, "events", "hello"),
		testsupport.Post(7, "jobs", "hiring"),
	)
	c := newController(t, b, nil)
	mustReload(t, c)

	sel := feed.Selection{Username: "@jobs"}
	if _, err := c.Dispatch(context.Background(), Command{Action: ActionSelect, Selection: &sel}); err != nil {
		t.Fatalf("select returned error: %v", err)
	}
	if got := c.Selection(); got.Username != "jobs" || got.Limit != 100 {
		t.Fatalf("unexpected selection %+v", got)
	}
	units := c.Units()
	if len(units) != 1 || units[0].Main.ID != 7 {
		t.Fatalf("expected jobs feed, got %+v", units)
	}
}
