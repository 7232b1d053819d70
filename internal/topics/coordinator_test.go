package topics

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"curator/internal/backend"
	"curator/internal/feed"
)

type fakeBackend struct {
	nextID  int64
	fail    error
	created []string
	deleted []int64
	added   []backend.AddTopicItem
	removed []backend.RemoveTopicItem
}

func (f *fakeBackend) CreateTopic(_ context.Context, name string) (int64, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	f.nextID++
	f.created = append(f.created, name)
	return f.nextID, nil
}

func (f *fakeBackend) DeleteTopic(_ context.Context, id int64) error {
	if f.fail != nil {
		return f.fail
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) AddToTopic(_ context.Context, item backend.AddTopicItem) error {
	if f.fail != nil {
		return f.fail
	}
	f.added = append(f.added, item)
	return nil
}

func (f *fakeBackend) RemoveFromTopic(_ context.Context, item backend.RemoveTopicItem) error {
	if f.fail != nil {
		return f.fail
	}
	f.removed = append(f.removed, item)
	return nil
}

var serverError = &backend.StatusError{Method: http.MethodPost, Path: "/api/topics", Status: http.StatusInternalServerError}

func seeded(t *testing.T) (*Coordinator, *fakeBackend) {
	t.Helper()
	fake := &fakeBackend{nextID: 100}
	c := NewCoordinator(fake, nil)
	c.Seed([]feed.TopicRecord{
		{ID: 1, Name: "T", MessageIDs: []int64{5, 9}},
		{ID: 2, Name: "U", MessageIDs: []int64{9}},
	})
	return c, fake
}

func TestCreateTopicTrimsAndCaches(t *testing.T) {
	c, fake := seeded(t)
	id, err := c.CreateTopic(context.Background(), "  Events  ")
	if err != nil {
		t.Fatalf("CreateTopic returned error: %v", err)
	}
	if id != 101 || fake.created[0] != "Events" {
		t.Fatalf("unexpected create id=%d names=%v", id, fake.created)
	}
	if got, ok := c.Lookup("Events"); !ok || got != 101 {
		t.Fatalf("expected cached id 101, got %d %v", got, ok)
	}
	names := make([]string, 0)
	for _, topic := range c.Topics() {
		names = append(names, topic.Name)
	}
	if !reflect.DeepEqual(names, []string{"T", "U", "Events"}) {
		t.Fatalf("unexpected topic order %v", names)
	}
}

func TestCreateTopicEmptyName(t *testing.T) {
	c, fake := seeded(t)
	if _, err := c.CreateTopic(context.Background(), "   "); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if len(fake.created) != 0 {
		t.Fatal("expected no request for empty name")
	}
}

func TestCreateTopicFailureLeavesCache(t *testing.T) {
	c, fake := seeded(t)
	fake.fail = serverError
	if _, err := c.CreateTopic(context.Background(), "Events"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := c.Lookup("Events"); ok {
		t.Fatal("failed create must not be cached")
	}
}

func TestCreateTopicWrapsStatusError(t *testing.T) {
	c, fake := seeded(t)
	fake.fail = serverError
	_, err := c.CreateTopic(context.Background(), "Events")
	if backend.StatusCode(err) != http.StatusInternalServerError {
		t.Fatalf("expected wrapped status error, got %v", err)
	}
}

func TestDeleteTopicRemovesEverywhere(t *testing.T) {
	c, fake := seeded(t)
	var events []Event
	c.OnEvent(func(ev Event) { events = append(events, ev) })

	affected, err := c.DeleteTopic(context.Background(), "T")
	if err != nil {
		t.Fatalf("DeleteTopic returned error: %v", err)
	}
	if !reflect.DeepEqual(affected, []int64{5, 9}) {
		t.Fatalf("unexpected affected ids %v", affected)
	}
	if !reflect.DeepEqual(fake.deleted, []int64{1}) {
		t.Fatalf("unexpected deleted ids %v", fake.deleted)
	}
	if got := c.Badges(5); len(got) != 0 {
		t.Fatalf("expected no badges on 5, got %v", got)
	}
	if got := c.Badges(9); !reflect.DeepEqual(got, []string{"U"}) {
		t.Fatalf("expected U left on 9, got %v", got)
	}
	if _, ok := c.Lookup("T"); ok {
		t.Fatal("expected T purged from cache")
	}
	if len(events) != 1 || events[0].Kind != EventDeleted {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestDeleteUnknownTopicIsNoop(t *testing.T) {
	c, fake := seeded(t)
	affected, err := c.DeleteTopic(context.Background(), "missing")
	if err != nil || affected != nil {
		t.Fatalf("expected silent no-op, got %v %v", affected, err)
	}
	if len(fake.deleted) != 0 {
		t.Fatal("expected no request for unknown topic")
	}
}

func TestDeleteTopicFailureKeepsBadges(t *testing.T) {
	c, fake := seeded(t)
	fake.fail = serverError
	if _, err := c.DeleteTopic(context.Background(), "T"); err == nil {
		t.Fatal("expected error")
	}
	if got := c.Badges(5); !reflect.DeepEqual(got, []string{"T"}) {
		t.Fatalf("expected badges unchanged, got %v", got)
	}
}

func TestAddPostWithSnapshot(t *testing.T) {
	c, fake := seeded(t)
	snap := feed.Snapshot{MessageID: 7, ChannelTgID: 77, MsgID: 3, PostText: "body", ChannelUsername: "events", SourceURL: "https://t.me/events/3"}

	if err := c.AddPost(context.Background(), 2, 7, &snap); err != nil {
		t.Fatalf("AddPost returned error: %v", err)
	}
	if err := c.AddPost(context.Background(), 2, 7, nil); err != nil {
		t.Fatalf("second AddPost returned error: %v", err)
	}
	if got := c.Badges(7); !reflect.DeepEqual(got, []string{"U"}) {
		t.Fatalf("expected one badge, got %v", got)
	}
	if fake.added[0].PostText != "body" || fake.added[0].MsgID != 3 {
		t.Fatalf("expected snapshot fields sent, got %+v", fake.added[0])
	}
	if fake.added[1].PostText != "" || fake.added[1].ChannelTgID != 0 {
		t.Fatalf("expected reference-only add, got %+v", fake.added[1])
	}
}

func TestAddPostUnknownTopic(t *testing.T) {
	c, fake := seeded(t)
	if err := c.AddPost(context.Background(), 99, 7, nil); !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
	if len(fake.added) != 0 {
		t.Fatal("expected no request for unknown topic")
	}
}

func TestAddPostFailureLeavesIndex(t *testing.T) {
	c, fake := seeded(t)
	fake.fail = serverError
	if err := c.AddPost(context.Background(), 2, 7, nil); err == nil {
		t.Fatal("expected error")
	}
	if got := c.Badges(7); len(got) != 0 {
		t.Fatalf("expected no badge after failure, got %v", got)
	}
}

func TestRemovePostSendsKeysAndNotifies(t *testing.T) {
	c, fake := seeded(t)
	var events []Event
	c.OnEvent(func(ev Event) { events = append(events, ev) })

	keys := feed.ItemKeys{ChannelTgID: 77, MsgID: 3, TopicItemID: 11}
	if err := c.RemovePost(context.Background(), 1, 9, keys); err != nil {
		t.Fatalf("RemovePost returned error: %v", err)
	}
	want := backend.RemoveTopicItem{TopicID: 1, MessageID: 9, ChannelTgID: 77, MsgID: 3, TopicItemID: 11}
	if fake.removed[0] != want {
		t.Fatalf("unexpected remove body %+v", fake.removed[0])
	}
	if got := c.Badges(9); !reflect.DeepEqual(got, []string{"U"}) {
		t.Fatalf("unexpected badges %v", got)
	}
	if len(events) != 1 || events[0].Kind != EventRemoved || events[0].Topic != "T" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestSeedReplacesState(t *testing.T) {
	c, _ := seeded(t)
	c.Seed([]feed.TopicRecord{{ID: 3, Name: "V", Items: []feed.Snapshot{{MessageID: 1}}}})
	if _, ok := c.Lookup("T"); ok {
		t.Fatal("expected old topics dropped")
	}
	if got := c.Badges(1); !reflect.DeepEqual(got, []string{"V"}) {
		t.Fatalf("unexpected badges %v", got)
	}
	if got := c.Tagged(); !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("unexpected tagged ids %v", got)
	}
	c.Reset()
	if len(c.Topics()) != 0 || len(c.Tagged()) != 0 {
		t.Fatal("expected empty state after reset")
	}
}
