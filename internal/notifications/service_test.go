package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"curator/internal/config"
	"curator/internal/generation"
	"curator/internal/notifications"
)

type captured struct {
	title    string
	body     string
	tags     string
	priority string
}

type ntfyRecorder struct {
	mu       sync.Mutex
	requests []captured
	status   int
}

func (r *ntfyRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.requests = append(r.requests, captured{
		title:    req.Header.Get("Title"),
		body:     string(body),
		tags:     req.Header.Get("Tags"),
		priority: req.Header.Get("Priority"),
	})
	status := r.status
	r.mu.Unlock()
	if status != 0 {
		http.Error(w, "nope", status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (r *ntfyRecorder) all() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]captured(nil), r.requests...)
}

func newService(t *testing.T, rec *ntfyRecorder) notifications.Service {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL + "/curator"
	return notifications.NewService(&cfg)
}

func finished(state generation.State, done, total int) generation.Progress {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return generation.Progress{
		JobID:      "job-1",
		State:      state,
		Selection:  "@events",
		Total:      total,
		Done:       done,
		Rounds:     4,
		MaxRounds:  6,
		StartedAt:  start,
		FinishedAt: start.Add(12 * time.Second),
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobFinished(context.Background(), finished(generation.StateDone, 1, 1)); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("nil config: %v", err)
	}
}

func TestNotifyJobFinishedFormatsStates(t *testing.T) {
	tests := []struct {
		name           string
		progress       generation.Progress
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "done",
			progress:      finished(generation.StateDone, 3, 3),
			expectTitle:   "Curator - Comments Ready",
			expectMessage: "✅ 3/3 comments for @events in 12s",
			expectTags:    "curator,generate,done",
		},
		{
			name:           "partial",
			progress:       finished(generation.StatePartial, 1, 3),
			expectTitle:    "Curator - Comments Incomplete",
			expectMessage:  "⚠️ 1/3 comments for @events after 4 rounds",
			expectTags:     "curator,generate,partial",
			expectPriority: "high",
		},
		{
			name:          "stopped",
			progress:      finished(generation.StateStopped, 0, 3),
			expectTitle:   "Curator - Generation Stopped",
			expectMessage: "⏹ Stopped with 0/3 comments for @events",
			expectTags:    "curator,generate,stopped",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &ntfyRecorder{}
			svc := newService(t, rec)
			if err := svc.NotifyJobFinished(context.Background(), tc.progress); err != nil {
				t.Fatalf("NotifyJobFinished: %v", err)
			}
			got := rec.all()
			if len(got) != 1 {
				t.Fatalf("requests = %d", len(got))
			}
			if got[0].title != tc.expectTitle || got[0].body != tc.expectMessage {
				t.Fatalf("got title=%q body=%q", got[0].title, got[0].body)
			}
			if got[0].tags != tc.expectTags || got[0].priority != tc.expectPriority {
				t.Fatalf("got tags=%q priority=%q", got[0].tags, got[0].priority)
			}
		})
	}
}

func TestNotifyJobFinishedSkipsRunningJobs(t *testing.T) {
	rec := &ntfyRecorder{}
	svc := newService(t, rec)
	if err := svc.NotifyJobFinished(context.Background(), finished(generation.StatePolling, 1, 3)); err != nil {
		t.Fatal(err)
	}
	if len(rec.all()) != 0 {
		t.Fatal("expected no request for a running job")
	}
}

func TestNotifyErrorAndStatus(t *testing.T) {
	rec := &ntfyRecorder{}
	svc := newService(t, rec)
	if err := svc.NotifyError(context.Background(), errors.New("backend down"), "reload"); err != nil {
		t.Fatal(err)
	}
	if got := rec.all(); got[0].body != "❌ reload failed: backend down" {
		t.Fatalf("body = %q", got[0].body)
	}

	rec.mu.Lock()
	rec.status = http.StatusForbidden
	rec.mu.Unlock()
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestJobSinkNotifiesOncePerJob(t *testing.T) {
	rec := &ntfyRecorder{}
	sink := notifications.NewJobSink(newService(t, rec), nil)

	sink.JobChanged(finished(generation.StatePolling, 1, 3))
	sink.JobChanged(finished(generation.StateDone, 3, 3))
	sink.JobChanged(finished(generation.StateDone, 3, 3))
	sink.Flush()

	if got := rec.all(); len(got) != 1 {
		t.Fatalf("requests = %d, want 1", len(got))
	}
}
